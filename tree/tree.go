// Package tree implements immutable, content-addressed trees
// and copy-on-write updates to them.
package tree

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/gitkv"
)

// Tree is a handle on a stored tree node.
// Trees are never modified;
// Set and Delete return new Trees,
// sharing every subtree not on the path they touch.
// A Tree is safe for concurrent use.
type Tree struct {
	s       gitkv.Store
	addr    gitkv.Addr
	entries []Entry // sorted
}

// Empty produces a handle on the empty tree.
// The empty tree is not written to s.
func Empty(s gitkv.Store) *Tree {
	return &Tree{s: s, addr: gitkv.EmptyTreeAddr}
}

// Load loads the tree at the given address.
func Load(ctx context.Context, s gitkv.Store, addr gitkv.Addr) (*Tree, error) {
	if addr == gitkv.EmptyTreeAddr {
		return Empty(s), nil
	}
	content, err := gitkv.GetObject(ctx, s, addr, gitkv.KindTree)
	if err != nil {
		return nil, err
	}
	entries, err := decode(content)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding tree %s", addr)
	}
	return &Tree{s: s, addr: addr, entries: entries}, nil
}

// Addr returns the address of t's root node.
func (t *Tree) Addr() gitkv.Addr { return t.addr }

// Equal tells whether t and other have the same content.
func (t *Tree) Equal(other *Tree) bool {
	return other != nil && t.addr == other.addr
}

func (t *Tree) String() string {
	return fmt.Sprintf("Tree{addr: %s, entries: %d}", t.addr, len(t.entries))
}

// Entries returns the entries of t's root node, in sorted order.
func (t *Tree) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Lookup finds the entry with the given name in t's root node.
func (t *Tree) Lookup(name string) (Entry, bool) {
	for _, key := range []string{name, name + "/"} {
		i := sort.Search(len(t.entries), func(n int) bool {
			return t.entries[n].sortKey() >= key
		})
		if i < len(t.entries) && t.entries[i].sortKey() == key {
			return t.entries[i], true
		}
	}
	return Entry{}, false
}

// entryAt resolves a non-empty path to its entry.
func (t *Tree) entryAt(ctx context.Context, segs []string) (Entry, error) {
	cur := t
	for i, name := range segs {
		e, ok := cur.Lookup(name)
		if !ok {
			return Entry{}, errors.Wrapf(gitkv.ErrNotFound, "path %s", strings.Join(segs, "/"))
		}
		if i == len(segs)-1 {
			return e, nil
		}
		if e.Kind != gitkv.KindTree {
			return Entry{}, errors.Wrapf(gitkv.ErrNotFound, "path %s (%s is a blob)", strings.Join(segs, "/"), strings.Join(segs[:i+1], "/"))
		}
		next, err := Load(ctx, t.s, e.Addr)
		if err != nil {
			return Entry{}, errors.Wrapf(err, "loading %s", strings.Join(segs[:i+1], "/"))
		}
		cur = next
	}
	return Entry{}, errors.Wrap(gitkv.ErrInvalidPath, "empty path")
}

// Get returns the content of the blob at path.
// It returns ErrNotFound if the path does not resolve
// and ErrWrongKind if it resolves to a subtree.
func (t *Tree) Get(ctx context.Context, path string) ([]byte, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, errors.Wrap(gitkv.ErrWrongKind, "root is a tree")
	}
	e, err := t.entryAt(ctx, segs)
	if err != nil {
		return nil, err
	}
	if e.Kind != gitkv.KindBlob {
		return nil, errors.Wrapf(gitkv.ErrWrongKind, "%s is a tree", path)
	}
	return gitkv.GetObject(ctx, t.s, e.Addr, gitkv.KindBlob)
}

// GetOr is like Get but returns def where Get would return ErrNotFound or ErrWrongKind.
// Other errors (e.g. from the underlying store) are still returned.
func (t *Tree) GetOr(ctx context.Context, path string, def []byte) ([]byte, error) {
	b, err := t.Get(ctx, path)
	if errors.Is(err, gitkv.ErrNotFound) || errors.Is(err, gitkv.ErrWrongKind) {
		return def, nil
	}
	return b, err
}

// Contains tells whether path resolves to an entry of either kind.
func (t *Tree) Contains(ctx context.Context, path string) (bool, error) {
	segs, err := splitPath(path)
	if err != nil {
		return false, err
	}
	if len(segs) == 0 {
		return true, nil
	}
	_, err = t.entryAt(ctx, segs)
	if errors.Is(err, gitkv.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Subtree returns the tree at path.
// The empty path denotes t itself.
func (t *Tree) Subtree(ctx context.Context, path string) (*Tree, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return t, nil
	}
	e, err := t.entryAt(ctx, segs)
	if err != nil {
		return nil, err
	}
	if e.Kind != gitkv.KindTree {
		return nil, errors.Wrapf(gitkv.ErrWrongKind, "%s is a blob", path)
	}
	return Load(ctx, t.s, e.Addr)
}

// SubtreeOrEmpty is like Subtree,
// but where Subtree would return ErrNotFound or ErrWrongKind
// it writes and returns the empty tree instead.
func (t *Tree) SubtreeOrEmpty(ctx context.Context, path string) (*Tree, error) {
	sub, err := t.Subtree(ctx, path)
	if errors.Is(err, gitkv.ErrNotFound) || errors.Is(err, gitkv.ErrWrongKind) {
		if _, err := gitkv.PutObject(ctx, t.s, gitkv.KindTree, nil); err != nil {
			return nil, err
		}
		return Empty(t.s), nil
	}
	return sub, err
}

// List returns the entries of the subtree at path.
func (t *Tree) List(ctx context.Context, path string) ([]Entry, error) {
	sub, err := t.Subtree(ctx, path)
	if err != nil {
		return nil, err
	}
	return sub.Entries(), nil
}

// Delete returns a new Tree without the entry at path.
// Deleting an absent path is not an error.
func (t *Tree) Delete(ctx context.Context, path string) (*Tree, error) {
	return t.Set(ctx, path, nil)
}

// Set returns a new Tree in which the blob at path has the given content,
// creating intermediate subtrees as needed.
// A nil data deletes the entry at path.
//
// Only the nodes along path are rewritten.
// Every other subtree keeps its address.
// It is an error (ErrWrongKind) for a directory component of path to be a blob.
func (t *Tree) Set(ctx context.Context, path string, data []byte) (*Tree, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, errors.Wrap(gitkv.ErrInvalidPath, "cannot set the root")
	}

	var (
		dirs     = segs[:len(segs)-1]
		basename = segs[len(segs)-1]
		deleting = data == nil
	)

	chain, err := t.chain(ctx, dirs)
	if deleting && errors.Is(err, gitkv.ErrWrongKind) {
		return t, nil
	}
	if err != nil {
		return nil, err
	}

	parent := chain[len(dirs)]
	if deleting && parent == nil {
		return t, nil
	}

	b := newBuilder(parent)
	if deleting {
		b.remove(basename)
	} else {
		blobAddr, err := gitkv.PutObject(ctx, t.s, gitkv.KindBlob, data)
		if err != nil {
			return nil, errors.Wrapf(err, "storing %s", path)
		}
		b.insert(Entry{Name: basename, Kind: gitkv.KindBlob, Addr: blobAddr})
	}

	child, err := b.write(ctx, t.s)
	if err != nil {
		return nil, errors.Wrapf(err, "writing tree at %s", strings.Join(dirs, "/"))
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		b = newBuilder(chain[i])
		b.insert(Entry{Name: dirs[i], Kind: gitkv.KindTree, Addr: child.addr})
		child, err = b.write(ctx, t.s)
		if err != nil {
			return nil, errors.Wrapf(err, "writing tree at %s", strings.Join(dirs[:i], "/"))
		}
	}

	return child, nil
}

// chain loads the trees along dirs.
// The result has len(dirs)+1 elements:
// element i is the tree at dirs[:i],
// or nil if that path does not exist.
func (t *Tree) chain(ctx context.Context, dirs []string) ([]*Tree, error) {
	nodes := make([]*Tree, len(dirs)+1)
	nodes[0] = t

	cur := t
	for i, name := range dirs {
		e, ok := cur.Lookup(name)
		if !ok {
			break
		}
		if e.Kind != gitkv.KindTree {
			return nil, errors.Wrapf(gitkv.ErrWrongKind, "%s is a blob", strings.Join(dirs[:i+1], "/"))
		}
		next, err := Load(ctx, t.s, e.Addr)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", strings.Join(dirs[:i+1], "/"))
		}
		nodes[i+1] = next
		cur = next
	}

	return nodes, nil
}

// builder accumulates the entries of a new tree node.
type builder struct {
	entries map[string]Entry
}

func newBuilder(seed *Tree) *builder {
	b := &builder{entries: make(map[string]Entry)}
	if seed != nil {
		for _, e := range seed.entries {
			b.entries[e.Name] = e
		}
	}
	return b
}

func (b *builder) insert(e Entry) {
	b.entries[e.Name] = e
}

func (b *builder) remove(name string) {
	delete(b.entries, name)
}

func (b *builder) write(ctx context.Context, s gitkv.Store) (*Tree, error) {
	entries := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	sortEntries(entries)

	addr, err := gitkv.PutObject(ctx, s, gitkv.KindTree, encode(entries))
	if err != nil {
		return nil, err
	}
	return &Tree{s: s, addr: addr, entries: entries}, nil
}
