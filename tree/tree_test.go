package tree_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"testing/quick"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store/mem"
	. "github.com/bobg/gitkv/tree"
)

func TestEmpty(t *testing.T) {
	const want = "6ef19b41225c5369f1c104d45d8d85efa9b057b53b14b4b9b939dd74decc5321"

	s := mem.New()
	if got := Empty(s).Addr().String(); got != want {
		t.Errorf("got empty tree address %s, want %s", got, want)
	}

	tr, err := Load(context.Background(), s, gitkv.EmptyTreeAddr)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Entries()) != 0 {
		t.Errorf("empty tree has %d entries", len(tr.Entries()))
	}
}

// The addresses here pin the serialized layout of blobs and trees.
func TestStableEncoding(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
	)

	cases := []struct {
		path, data, want string
	}{
		{path: "a", data: "b", want: "32131377084a9d8e8ce2667171a03b5a675fdac4d38484b25c39816d4427f7b9"},
		{path: "a/b", data: "1", want: "25ba8b0b56e2bde9376c3da1b4c0e0596365400acd2f99143d5debb7746a8eb5"},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			tr, err := Empty(s).Set(ctx, c.path, []byte(c.data))
			if err != nil {
				t.Fatal(err)
			}
			if got := tr.Addr().String(); got != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}

			reloaded, err := Load(ctx, s, tr.Addr())
			if err != nil {
				t.Fatal(err)
			}
			if !reloaded.Equal(tr) {
				t.Error("reloaded tree differs")
			}
		})
	}
}

func TestSetSubdir(t *testing.T) {
	ctx := context.Background()

	tr, err := Empty(mem.New()).Set(ctx, "a/b", []byte("1"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := tr.Get(ctx, "a/b")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "1" {
		t.Errorf("got %q, want %q", got, "1")
	}

	ok, err := tr.Contains(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("tree does not contain a")
	}

	sub, err := tr.Subtree(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	got, err = sub.Get(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "1" {
		t.Errorf("got %q from subtree, want %q", got, "1")
	}
}

func TestSetThenDelete(t *testing.T) {
	ctx := context.Background()

	tr := mustSet(t, Empty(mem.New()), "a/b", "1")
	tr = mustSet(t, tr, "a/c", "2")

	tr, err := tr.Delete(ctx, "a/b")
	if err != nil {
		t.Fatal(err)
	}

	got, err := tr.Get(ctx, "a/c")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "2" {
		t.Errorf("got %q, want %q", got, "2")
	}

	ok, err := tr.Contains(ctx, "a/b")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("a/b still present after delete")
	}

	if _, err = tr.Get(ctx, "a/b"); !errors.Is(err, gitkv.ErrNotFound) {
		t.Errorf("got error %v, want %v", err, gitkv.ErrNotFound)
	}
}

func TestRoundTrip(t *testing.T) {
	var (
		ctx  = context.Background()
		base = mustSet(t, Empty(mem.New()), "d0/e0/f0", "seed")
	)

	f := func(a, b, c uint8, data []byte) bool {
		path := fmt.Sprintf("d%d/e%d/f%d", a%3, b%3, c%3)
		tr, err := base.Set(ctx, path, data)
		if err != nil {
			t.Log(err)
			return false
		}
		got, err := tr.Get(ctx, path)
		if err != nil {
			t.Log(err)
			return false
		}
		return bytes.Equal(got, data)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestStructuralSharing(t *testing.T) {
	ctx := context.Background()

	tr := mustSet(t, Empty(mem.New()), "x/y/z", "1")
	tr = mustSet(t, tr, "x/w/v", "2")
	tr = mustSet(t, tr, "p/q", "3")

	tr2 := mustSet(t, tr, "x/y/new", "4")

	for _, sibling := range []string{"p", "x/w"} {
		before, err := tr.Subtree(ctx, sibling)
		if err != nil {
			t.Fatal(err)
		}
		after, err := tr2.Subtree(ctx, sibling)
		if err != nil {
			t.Fatal(err)
		}
		if before.Addr() != after.Addr() {
			t.Errorf("subtree %s changed address from %s to %s", sibling, before.Addr(), after.Addr())
		}
	}

	for _, ancestor := range []string{"", "x", "x/y"} {
		before, err := tr.Subtree(ctx, ancestor)
		if err != nil {
			t.Fatal(err)
		}
		after, err := tr2.Subtree(ctx, ancestor)
		if err != nil {
			t.Fatal(err)
		}
		if before.Addr() == after.Addr() {
			t.Errorf("subtree %q kept address %s after a write beneath it", ancestor, before.Addr())
		}
	}
}

func TestIdempotentDelete(t *testing.T) {
	ctx := context.Background()

	tr := mustSet(t, Empty(mem.New()), "a/b", "1")
	tr = mustSet(t, tr, "a/c", "2")

	for _, path := range []string{"a/b", "a/zzz", "nope/b", "a/b/c"} {
		once, err := tr.Delete(ctx, path)
		if err != nil {
			t.Fatalf("deleting %s: %s", path, err)
		}
		twice, err := once.Delete(ctx, path)
		if err != nil {
			t.Fatalf("deleting %s again: %s", path, err)
		}
		if !once.Equal(twice) {
			t.Errorf("deleting %s twice gave %s, once gave %s", path, twice.Addr(), once.Addr())
		}
	}

	// Deleting something absent changes nothing.
	same, err := tr.Delete(ctx, "nope/b")
	if err != nil {
		t.Fatal(err)
	}
	if !same.Equal(tr) {
		t.Error("deleting an absent path changed the tree")
	}
	same, err = tr.Delete(ctx, "a/zzz")
	if err != nil {
		t.Fatal(err)
	}
	if !same.Equal(tr) {
		t.Error("deleting an absent name changed the tree")
	}
}

func TestSameContentSameAddr(t *testing.T) {
	ctx := context.Background()

	tr := mustSet(t, Empty(mem.New()), "a/b", "1")
	tr = mustSet(t, tr, "c", "2")

	again, err := tr.Set(ctx, "a/b", []byte("1"))
	if err != nil {
		t.Fatal(err)
	}
	if !again.Equal(tr) {
		t.Errorf("rewriting identical content gave %s, want %s", again.Addr(), tr.Addr())
	}

	// Insertion order does not matter.
	other := mustSet(t, Empty(mem.New()), "c", "2")
	other = mustSet(t, other, "a/b", "1")
	if !other.Equal(tr) {
		t.Errorf("same content built in another order gave %s, want %s", other.Addr(), tr.Addr())
	}

	// Setting then deleting returns to the original address.
	tr3 := mustSet(t, tr, "d", "3")
	tr3, err = tr3.Delete(ctx, "d")
	if err != nil {
		t.Fatal(err)
	}
	if !tr3.Equal(tr) {
		t.Error("set-then-delete did not restore the original tree")
	}
}

func TestWrongKind(t *testing.T) {
	ctx := context.Background()

	tr := mustSet(t, Empty(mem.New()), "a", "1")
	tr = mustSet(t, tr, "d/e", "2")

	if _, err := tr.Set(ctx, "a/b", []byte("x")); !errors.Is(err, gitkv.ErrWrongKind) {
		t.Errorf("setting beneath a blob: got error %v, want %v", err, gitkv.ErrWrongKind)
	}
	if _, err := tr.Get(ctx, "a/b"); !errors.Is(err, gitkv.ErrNotFound) {
		t.Errorf("getting beneath a blob: got error %v, want %v", err, gitkv.ErrNotFound)
	}
	if _, err := tr.Subtree(ctx, "a"); !errors.Is(err, gitkv.ErrWrongKind) {
		t.Errorf("subtree of a blob: got error %v, want %v", err, gitkv.ErrWrongKind)
	}
	if _, err := tr.Get(ctx, "d"); !errors.Is(err, gitkv.ErrWrongKind) {
		t.Errorf("getting a tree: got error %v, want %v", err, gitkv.ErrWrongKind)
	}

	got, err := tr.GetOr(ctx, "d", []byte("default"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "default" {
		t.Errorf("got %q, want default", got)
	}
	got, err = tr.GetOr(ctx, "missing", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got %q, want nil", got)
	}

	// A blob may replace a subtree.
	tr2 := mustSet(t, tr, "d", "3")
	got, err = tr2.Get(ctx, "d")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "3" {
		t.Errorf("got %q, want %q", got, "3")
	}
}

func TestInvalidPath(t *testing.T) {
	ctx := context.Background()
	tr := Empty(mem.New())

	for _, path := range []string{"", "/a", "a/", "a//b", "a/../b", ".", "a\x00b"} {
		if _, err := tr.Set(ctx, path, []byte("x")); !errors.Is(err, gitkv.ErrInvalidPath) {
			t.Errorf("Set(%q): got error %v, want %v", path, err, gitkv.ErrInvalidPath)
		}
	}
}

func TestSubtreeOrEmpty(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
		tr  = mustSet(t, Empty(s), "a/b", "1")
	)

	sub, err := tr.SubtreeOrEmpty(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Addr() != gitkv.EmptyTreeAddr {
		t.Errorf("got %s, want the empty tree", sub.Addr())
	}
	if _, err = s.Get(ctx, gitkv.EmptyTreeAddr); err != nil {
		t.Errorf("empty tree was not stored: %s", err)
	}

	sub, err = tr.SubtreeOrEmpty(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Addr() == gitkv.EmptyTreeAddr {
		t.Error("existing subtree came back empty")
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()

	tr := mustSet(t, Empty(mem.New()), "dir/b", "1")
	tr = mustSet(t, tr, "dir/a.txt", "2")
	tr = mustSet(t, tr, "dir/a/x", "3")

	entries, err := tr.List(ctx, "dir")
	if err != nil {
		t.Fatal(err)
	}

	// Subtree names sort as if they ended in a slash.
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	want := []string{"a.txt", "a", "b"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", names, want)
	}

	e, ok := tr.Lookup("dir")
	if !ok {
		t.Fatal("dir not found")
	}
	if e.Kind != gitkv.KindTree {
		t.Errorf("dir has kind %s", e.Kind)
	}
}

func TestBlobDeterminism(t *testing.T) {
	f := func(b1 []byte) bool {
		b2 := append([]byte(nil), b1...)
		return gitkv.ObjectAddr(gitkv.KindBlob, b1) == gitkv.ObjectAddr(gitkv.KindBlob, b2)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
	if gitkv.ObjectAddr(gitkv.KindBlob, []byte("content A")) == gitkv.ObjectAddr(gitkv.KindBlob, []byte("content B")) {
		t.Error("different content produced the same address")
	}
}

func mustSet(t *testing.T, tr *Tree, path, data string) *Tree {
	t.Helper()

	out, err := tr.Set(context.Background(), path, []byte(data))
	if err != nil {
		t.Fatalf("setting %s: %s", path, err)
	}
	return out
}
