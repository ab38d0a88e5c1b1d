package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/gitkv"
)

// Refs checks the ref contract of a RefStore,
// including compare-and-set semantics.
// The store must hold no refs when Refs is called.
func Refs(ctx context.Context, t *testing.T, store gitkv.RefStore) {
	var (
		r1 = gitkv.Addr{0x1a}
		r2 = gitkv.Addr{0x1b}
		r3 = gitkv.Addr{0x2}
	)

	if _, err := store.ReadRef(ctx, "refs/heads/main"); !errors.Is(err, gitkv.ErrDanglingRef) {
		t.Fatalf("got error %v reading a missing ref, want %v", err, gitkv.ErrDanglingRef)
	}
	if _, err := store.CompareAndSetRef(ctx, "refs/heads/main", r1, r2); !errors.Is(err, gitkv.ErrDanglingRef) {
		t.Fatalf("got error %v setting a missing ref, want %v", err, gitkv.ErrDanglingRef)
	}

	if err := store.CreateRef(ctx, "refs/heads/main", r1); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateRef(ctx, "refs/heads/main", r2); !errors.Is(err, gitkv.ErrRefExists) {
		t.Fatalf("got error %v re-creating a ref, want %v", err, gitkv.ErrRefExists)
	}
	if err := store.CreateRef(ctx, "refs/heads/other", r3); err != nil {
		t.Fatal(err)
	}

	got, err := store.ReadRef(ctx, "refs/heads/main")
	if err != nil {
		t.Fatal(err)
	}
	if got != r1 {
		t.Fatalf("got %s, want %s", got, r1)
	}

	ok, err := store.CompareAndSetRef(ctx, "refs/heads/main", r1, r2)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("compare-and-set from the current value failed")
	}

	// A second writer still expecting r1 must lose.
	ok, err = store.CompareAndSetRef(ctx, "refs/heads/main", r1, r3)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("compare-and-set from a stale value succeeded")
	}

	got, err = store.ReadRef(ctx, "refs/heads/main")
	if err != nil {
		t.Fatal(err)
	}
	if got != r2 {
		t.Fatalf("after compare-and-set got %s, want %s", got, r2)
	}

	type ref struct {
		Name string
		Addr gitkv.Addr
	}
	var refs []ref
	err = store.ListRefs(ctx, func(name string, addr gitkv.Addr) error {
		refs = append(refs, ref{Name: name, Addr: addr})
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []ref{
		{Name: "refs/heads/main", Addr: r2},
		{Name: "refs/heads/other", Addr: r3},
	}
	if diff := cmp.Diff(want, refs); diff != "" {
		t.Errorf("ListRefs mismatch (-want +got):\n%s", diff)
	}
}
