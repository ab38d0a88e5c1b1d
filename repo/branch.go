package repo

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/tree"
)

// Branch is a handle on a named ref
// holding a working tree.
//
// Reads see the working tree.
// Set and Delete replace the working tree
// without touching the ref;
// Commit publishes it.
// The handle remembers the commit it last observed the ref at,
// its base.
// It does not notice when another writer moves the ref
// until Refresh is called,
// and a Commit made in the meantime fails with ErrConcurrentUpdate.
//
// A Branch is safe for concurrent use.
// Its lock is never held during store operations.
type Branch struct {
	s    gitkv.RefStore
	name string

	mu       sync.Mutex
	base     gitkv.Addr
	baseTree *tree.Tree
	tree     *tree.Tree
}

// OpenBranch opens a Branch on the named ref.
// It returns ErrDanglingRef if the ref cannot be resolved.
func OpenBranch(ctx context.Context, s gitkv.RefStore, name string) (*Branch, error) {
	b := &Branch{s: s, name: name}
	if err := b.Refresh(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Refresh rereads the ref,
// resetting the branch's base and working tree to the commit it now points to.
// Uncommitted changes are discarded.
func (b *Branch) Refresh(ctx context.Context) error {
	c, err := Head(ctx, b.s, b.name)
	if err != nil {
		return err
	}
	t, err := c.Tree(ctx, b.s)
	if err != nil {
		return errors.Wrapf(err, "loading tree of %s", c.Addr())
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.base = c.Addr()
	b.baseTree = t
	b.tree = t
	return nil
}

// Name is the name of b's ref.
func (b *Branch) Name() string { return b.name }

// Base is the address of the commit b last observed its ref pointing to.
func (b *Branch) Base() gitkv.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base
}

// Tree is b's working tree.
func (b *Branch) Tree() *tree.Tree {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tree
}

// Dirty tells whether the working tree differs from the base commit's tree.
func (b *Branch) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.tree.Equal(b.baseTree)
}

// Get returns the content of the blob at path in the working tree.
func (b *Branch) Get(ctx context.Context, path string) ([]byte, error) {
	return b.Tree().Get(ctx, path)
}

// GetOr is like Get but returns def if there is no blob at path.
func (b *Branch) GetOr(ctx context.Context, path string, def []byte) ([]byte, error) {
	return b.Tree().GetOr(ctx, path, def)
}

// Contains tells whether path exists in the working tree.
func (b *Branch) Contains(ctx context.Context, path string) (bool, error) {
	return b.Tree().Contains(ctx, path)
}

// Set stores data at path in the working tree.
// A nil data deletes path.
func (b *Branch) Set(ctx context.Context, path string, data []byte) error {
	return b.update(func(t *tree.Tree) (*tree.Tree, error) {
		return t.Set(ctx, path, data)
	})
}

// Delete removes path from the working tree.
func (b *Branch) Delete(ctx context.Context, path string) error {
	return b.update(func(t *tree.Tree) (*tree.Tree, error) {
		return t.Delete(ctx, path)
	})
}

// update replaces the working tree with f(tree).
// f runs without b.mu held.
// If another update lands while f runs,
// f runs again on the newer tree.
func (b *Branch) update(f func(*tree.Tree) (*tree.Tree, error)) error {
	for {
		old := b.Tree()
		t, err := f(old)
		if err != nil {
			return err
		}

		b.mu.Lock()
		if b.tree == old {
			b.tree = t
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()
	}
}

// Changes reports the uncommitted differences between the base commit's tree and the working tree.
func (b *Branch) Changes(ctx context.Context) ([]tree.Change, error) {
	b.mu.Lock()
	baseTree, t := b.baseTree, b.tree
	b.mu.Unlock()

	return tree.Changes(ctx, baseTree, t)
}

// Commit writes a commit of the working tree,
// with the base as its parent,
// and moves the ref to it.
// A zero When in author or committer means now.
//
// If the ref no longer points at the base,
// Commit writes the commit object but leaves the ref alone
// and returns ErrConcurrentUpdate.
// The caller may Refresh, reapply its changes, and try again.
func (b *Branch) Commit(ctx context.Context, msg string, author, committer Signature) (*Commit, error) {
	b.mu.Lock()
	base, t := b.base, b.tree
	b.mu.Unlock()

	now := time.Now()
	if author.When.IsZero() {
		author.When = now
	}
	if committer.When.IsZero() {
		committer.When = now
	}

	c, err := NewCommit(t.Addr(), author, committer, msg).WithParents(base).Write(ctx, b.s)
	if err != nil {
		return nil, errors.Wrap(err, "writing commit")
	}

	ok, err := b.s.CompareAndSetRef(ctx, b.name, base, c.Addr())
	if err != nil {
		return nil, errors.Wrapf(err, "updating ref %s", b.name)
	}
	if !ok {
		return nil, errors.Wrapf(gitkv.ErrConcurrentUpdate, "ref %s moved away from %s", b.name, base)
	}

	logrus.WithFields(logrus.Fields{
		"ref":    b.name,
		"parent": base,
		"commit": c.Addr(),
		"tree":   c.TreeAddr(),
	}).Debug("commit")

	b.mu.Lock()
	defer b.mu.Unlock()

	// A Refresh that ran meanwhile already moved the base.
	if b.base == base {
		b.base = c.Addr()
		b.baseTree = t
	}
	return c, nil
}

// Log calls f for the base commit and its first-parent ancestors,
// newest first.
// See Log.
func (b *Branch) Log(ctx context.Context, f func(*Commit) error) error {
	return Log(ctx, b.s, b.Base(), f)
}
