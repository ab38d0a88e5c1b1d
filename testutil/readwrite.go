package testutil

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/bobg/gitkv"
)

// ReadWrite checks the basic object contract of a Store:
// Put returns the content hash and is idempotent,
// Get returns exactly what was put,
// callers cannot modify a stored object through Get's result,
// and Get of an absent address yields gitkv.ErrNotFound.
func ReadWrite(ctx context.Context, t *testing.T, store gitkv.Store, data []byte) {
	obj := gitkv.Frame(gitkv.KindBlob, data)

	addr, added, err := store.Put(ctx, obj)
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("first Put reported added=false")
	}
	if addr != gitkv.Hash(obj) {
		t.Errorf("got address %s, want %s", addr, gitkv.Hash(obj))
	}

	addr2, added, err := store.Put(ctx, obj)
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("second Put reported added=true")
	}
	if addr2 != addr {
		t.Errorf("second Put gave address %s, want %s", addr2, addr)
	}

	got, err := store.Get(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, obj) {
		t.Errorf("got %d bytes back, want %d", len(got), len(obj))
	}

	// Objects are immutable: scribbling on a returned slice must not reach the store.
	for i := range got {
		got[i] ^= 0xff
	}
	again, err := store.Get(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again, obj) {
		t.Error("modifying the result of Get changed the stored object")
	}

	content, err := gitkv.GetObject(ctx, store, addr, gitkv.KindBlob)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(content, data) {
		t.Error("blob content mismatch")
	}

	missing := gitkv.Hash([]byte("no such object"))
	if _, err = store.Get(ctx, missing); !errors.Is(err, gitkv.ErrNotFound) {
		t.Errorf("got error %v for a missing object, want %v", err, gitkv.ErrNotFound)
	}
}
