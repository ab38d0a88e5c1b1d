package sqlite3

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store"
	"github.com/bobg/gitkv/testutil"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	withTestStore(ctx, t, func(s *Store) {
		testutil.ReadWrite(ctx, t, s, []byte("Hello, World!\n"))
	})
}

func TestAllAddrs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	var n int
	testutil.AllAddrs(ctx, t, func() gitkv.Store {
		n++
		db, err := sql.Open("sqlite3", filepath.Join(dir, fmt.Sprintf("db%d", n)))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { db.Close() })
		s, err := New(ctx, db)
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestRefs(t *testing.T) {
	ctx := context.Background()
	withTestStore(ctx, t, func(s *Store) {
		testutil.Refs(ctx, t, s)
	})
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	conn := filepath.Join(t.TempDir(), "reg.db")

	s, err := store.Create(ctx, "sqlite3", map[string]interface{}{"conn": conn})
	if err != nil {
		t.Fatal(err)
	}
	defer s.(*Store).Close()

	if _, err = os.Stat(conn); err != nil {
		t.Errorf("database file not created: %s", err)
	}
}

func withTestStore(ctx context.Context, t *testing.T, fn func(*Store)) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "gitkvsqlite3test"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	fn(s)
}
