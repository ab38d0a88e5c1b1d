package repo

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/tree"
)

// ErrStop may be returned by a Log callback to end the walk early.
// Log then returns nil.
var ErrStop = errors.New("stop")

// Log calls f for the commit at addr and each of its first-parent ancestors,
// newest first.
// Commits are loaded one at a time as the walk proceeds.
func Log(ctx context.Context, g gitkv.Getter, addr gitkv.Addr, f func(*Commit) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := LoadCommit(ctx, g, addr)
		if err != nil {
			return errors.Wrapf(err, "loading commit %s", addr)
		}
		if err = f(c); errors.Is(err, ErrStop) {
			return nil
		} else if err != nil {
			return err
		}
		if len(c.parents) == 0 {
			return nil
		}
		addr = c.parents[0]
	}
}

// Head resolves the named ref to its commit.
// It returns ErrDanglingRef if the ref does not exist
// or does not point to a readable commit.
func Head(ctx context.Context, s gitkv.RefStore, ref string) (*Commit, error) {
	addr, err := s.ReadRef(ctx, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "reading ref %s", ref)
	}
	c, err := LoadCommit(ctx, s, addr)
	if errors.Is(err, gitkv.ErrNotFound) || errors.Is(err, gitkv.ErrWrongKind) {
		return nil, errors.Wrapf(gitkv.ErrDanglingRef, "ref %s points to %s: %s", ref, addr, err)
	}
	return c, errors.Wrapf(err, "loading head of %s", ref)
}

// Init creates the named ref,
// pointing it at a new root commit of the empty tree.
// It returns ErrRefExists if the ref is already present
// and ErrInvalidPath if ref fails gitkv.CheckRefName.
func Init(ctx context.Context, s gitkv.RefStore, ref string, sig Signature, msg string) (*Commit, error) {
	if err := gitkv.CheckRefName(ref); err != nil {
		return nil, err
	}
	empty := tree.Empty(s)
	if _, err := gitkv.PutObject(ctx, s, gitkv.KindTree, nil); err != nil {
		return nil, errors.Wrap(err, "storing empty tree")
	}
	c, err := NewCommit(empty.Addr(), sig, sig, msg).Write(ctx, s)
	if err != nil {
		return nil, errors.Wrap(err, "writing root commit")
	}
	if err = s.CreateRef(ctx, ref, c.Addr()); err != nil {
		return nil, errors.Wrapf(err, "creating ref %s", ref)
	}
	return c, nil
}

// CreateBranch creates a ref named name pointing at the given commit
// and opens a Branch on it.
// If the ref already exists,
// CreateBranch returns ErrRefExists,
// unless force is true,
// in which case the ref is repointed.
func CreateBranch(ctx context.Context, s gitkv.RefStore, name string, commit gitkv.Addr, force bool) (*Branch, error) {
	if err := gitkv.CheckRefName(name); err != nil {
		return nil, err
	}
	if _, err := LoadCommit(ctx, s, commit); err != nil {
		return nil, errors.Wrapf(err, "loading commit %s", commit)
	}

	err := s.CreateRef(ctx, name, commit)
	if errors.Is(err, gitkv.ErrRefExists) && force {
		err = forceRef(ctx, s, name, commit)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "creating branch %s", name)
	}
	return OpenBranch(ctx, s, name)
}

// forceRef repoints an existing ref regardless of its current value.
func forceRef(ctx context.Context, s gitkv.RefStore, name string, addr gitkv.Addr) error {
	for {
		cur, err := s.ReadRef(ctx, name)
		if err != nil {
			return err
		}
		ok, err := s.CompareAndSetRef(ctx, name, cur, addr)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err = ctx.Err(); err != nil {
			return err
		}
	}
}
