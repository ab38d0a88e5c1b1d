package tree

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/bobg/gitkv"
)

// Each calls f for every blob reachable from t,
// depth first,
// with the blob's full slash-separated path.
// Subtrees are loaded only as the walk reaches them.
// If f returns an error,
// Each exits with that error.
func Each(ctx context.Context, t *Tree, f func(path string, e Entry) error) error {
	return each(ctx, t, "", f)
}

func each(ctx context.Context, t *Tree, prefix string, f func(string, Entry) error) error {
	for _, e := range t.entries {
		path := joinPath(prefix, e.Name)
		if e.Kind != gitkv.KindTree {
			if err := f(path, e); err != nil {
				return err
			}
			continue
		}
		sub, err := Load(ctx, t.s, e.Addr)
		if err != nil {
			return errors.Wrapf(err, "loading %s", path)
		}
		if err := each(ctx, sub, path, f); err != nil {
			return err
		}
	}
	return nil
}

// Flatten maps the path of every blob reachable from t to its entry.
func Flatten(ctx context.Context, t *Tree) (map[string]Entry, error) {
	m := make(map[string]Entry)
	err := Each(ctx, t, func(path string, e Entry) error {
		m[path] = e
		return nil
	})
	return m, err
}

// Diff calls f once for every blob path whose entry differs between a and b.
// A path present on only one side gets nil for the other.
// Subtrees with the same address on both sides are skipped without being loaded.
// If f returns an error,
// Diff exits with that error.
func Diff(ctx context.Context, a, b *Tree, f func(path string, ea, eb *Entry) error) error {
	return diff(ctx, a, b, "", f)
}

// Either of a and b may be nil, meaning empty.
func diff(ctx context.Context, a, b *Tree, prefix string, f func(string, *Entry, *Entry) error) error {
	if a != nil && b != nil && a.addr == b.addr {
		return nil
	}

	type pair struct{ a, b *Entry }

	pairs := make(map[string]*pair)
	if a != nil {
		for _, e := range a.entries {
			e := e
			pairs[e.Name] = &pair{a: &e}
		}
	}
	if b != nil {
		for _, e := range b.entries {
			e := e
			if p, ok := pairs[e.Name]; ok {
				p.b = &e
			} else {
				pairs[e.Name] = &pair{b: &e}
			}
		}
	}

	names := make([]string, 0, len(pairs))
	for name := range pairs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var (
			p    = pairs[name]
			path = joinPath(prefix, name)
		)
		if p.a != nil && p.b != nil && p.a.Kind == p.b.Kind && p.a.Addr == p.b.Addr {
			continue
		}

		var aBlob, bBlob *Entry
		if p.a != nil && p.a.Kind == gitkv.KindBlob {
			aBlob = p.a
		}
		if p.b != nil && p.b.Kind == gitkv.KindBlob {
			bBlob = p.b
		}
		if aBlob != nil || bBlob != nil {
			if err := f(path, aBlob, bBlob); err != nil {
				return err
			}
		}

		aSub, err := loadIfTree(ctx, a, p.a)
		if err != nil {
			return errors.Wrapf(err, "loading %s", path)
		}
		bSub, err := loadIfTree(ctx, b, p.b)
		if err != nil {
			return errors.Wrapf(err, "loading %s", path)
		}
		if aSub != nil || bSub != nil {
			if err := diff(ctx, aSub, bSub, path, f); err != nil {
				return err
			}
		}
	}

	return nil
}

func loadIfTree(ctx context.Context, parent *Tree, e *Entry) (*Tree, error) {
	if e == nil || e.Kind != gitkv.KindTree {
		return nil, nil
	}
	return Load(ctx, parent.s, e.Addr)
}

// Change is one element of the difference between two trees.
// A and B are the entries at Path in the two trees;
// either may be nil.
type Change struct {
	Path string
	A, B *Entry
}

// Changes collects the output of Diff, sorted by path.
func Changes(ctx context.Context, a, b *Tree) ([]Change, error) {
	var changes []Change
	err := Diff(ctx, a, b, func(path string, ea, eb *Entry) error {
		changes = append(changes, Change{Path: path, A: ea, B: eb})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}
