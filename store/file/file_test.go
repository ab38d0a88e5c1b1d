package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/repo"
	"github.com/bobg/gitkv/store"
	"github.com/bobg/gitkv/testutil"
)

func TestStore(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	testutil.ReadWrite(context.Background(), t, s, []byte("Hello, World!\n"))
}

func TestCompressed(t *testing.T) {
	var (
		ctx  = context.Background()
		dir  = t.TempDir()
		data = []byte(strings.Repeat("compress me ", 1000))
	)

	s, err := New(dir, Compress(zstd.SpeedDefault))
	if err != nil {
		t.Fatal(err)
	}
	testutil.ReadWrite(ctx, t, s, data)

	addr := gitkv.ObjectAddr(gitkv.KindBlob, data)
	raw, err := os.ReadFile(s.objpath(addr))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, zstdMagic) {
		t.Error("object was not stored compressed")
	}
	if len(raw) >= len(data) {
		t.Errorf("compressed object is %d bytes, uncompressed content is %d", len(raw), len(data))
	}

	// An uncompressing store over the same root still reads it.
	plain, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := gitkv.GetObject(ctx, plain, addr, gitkv.KindBlob)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("content mismatch reading a compressed object")
	}
}

func TestAllAddrs(t *testing.T) {
	testutil.AllAddrs(context.Background(), t, func() gitkv.Store {
		s, err := New(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestRefs(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	testutil.Refs(context.Background(), t, s)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	s, err := store.Create(ctx, "file", map[string]interface{}{
		"root":     t.TempDir(),
		"compress": "3",
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.(*Store).enc == nil {
		t.Error("compress parameter ignored")
	}
}

func TestRefNames(t *testing.T) {
	var (
		ctx  = context.Background()
		root = t.TempDir()
		addr = gitkv.Hash([]byte("x"))
	)
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	if err = s.CreateRef(ctx, "main", addr); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", ".", "..", "main.lock", "refs/heads/.hidden"} {
		if err := s.CreateRef(ctx, name, addr); !errors.Is(err, gitkv.ErrInvalidPath) {
			t.Errorf("CreateRef(%q) = %v, want %v", name, err, gitkv.ErrInvalidPath)
		}
		if _, err := s.ReadRef(ctx, name); !errors.Is(err, gitkv.ErrInvalidPath) {
			t.Errorf("ReadRef(%q) = %v, want %v", name, err, gitkv.ErrInvalidPath)
		}
		if _, err := s.CompareAndSetRef(ctx, name, addr, addr); !errors.Is(err, gitkv.ErrInvalidPath) {
			t.Errorf("CompareAndSetRef(%q) = %v, want %v", name, err, gitkv.ErrInvalidPath)
		}
	}

	ok, err := s.CompareAndSetRef(ctx, "main", addr, gitkv.Hash([]byte("y")))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("compare-and-set from the current value failed")
	}

	// Taking and releasing the lock leaves nothing behind among the refs.
	entries, err := os.ReadDir(s.refroot())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if diff := cmp.Diff([]string{"main"}, names); diff != "" {
		t.Errorf("refs dir mismatch (-want +got):\n%s", diff)
	}
	locks, err := os.ReadDir(s.lockroot())
	if err != nil {
		t.Fatal(err)
	}
	if len(locks) != 0 {
		t.Errorf("found %d leftover lock files", len(locks))
	}
}

func TestConcurrentCommits(t *testing.T) {
	const (
		rounds  = 10
		writers = 8
		ref     = "refs/heads/main"
	)

	var (
		ctx = context.Background()
		sig = repo.Signature{Name: "Alice Author", Email: "alice@authors.tld"}
	)
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err = repo.Init(ctx, s, ref, sig, "init"); err != nil {
		t.Fatal(err)
	}

	for round := 0; round < rounds; round++ {
		branches := make([]*repo.Branch, writers)
		for i := range branches {
			b, err := repo.OpenBranch(ctx, s, ref)
			if err != nil {
				t.Fatal(err)
			}
			if err = b.Set(ctx, "k", []byte(fmt.Sprintf("%d/%d", round, i))); err != nil {
				t.Fatal(err)
			}
			branches[i] = b
		}

		var (
			wg   sync.WaitGroup
			errs = make([]error, writers)
		)
		for i, b := range branches {
			i, b := i, b
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = b.Commit(ctx, "write k", sig, sig)
			}()
		}
		wg.Wait()

		var won int
		for i, err := range errs {
			switch {
			case err == nil:
				won++
			case errors.Is(err, gitkv.ErrConcurrentUpdate):
			default:
				t.Errorf("round %d writer %d: got error %v, want nil or %v", round, i, err, gitkv.ErrConcurrentUpdate)
			}
		}
		if won != 1 {
			t.Errorf("round %d: %d commits won, want exactly 1", round, won)
		}
	}
}
