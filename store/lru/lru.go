// Package lru implements a store that acts as a least-recently-used cache for a nested store.
package lru

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store"
)

var _ gitkv.RefStore = &Store{}

// Store implements a memory-based least-recently-used cache for a gitkv store.
// It caches only objects.
// Objects never change, so a cached object is never stale.
// Refs do change, so ref operations always go to the nested store.
// Writes pass through to the nested store.
type Store struct {
	c *lru.Cache // Addr->[]byte
	s gitkv.RefStore
}

// New produces a new Store backed by `s` and caching up to `size` objects.
func New(s gitkv.RefStore, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, errors.Wrap(err, "creating cache")
}

// Get gets the object with address `addr`.
func (s *Store) Get(ctx context.Context, addr gitkv.Addr) ([]byte, error) {
	if got, ok := s.c.Get(addr); ok {
		return append([]byte(nil), got.([]byte)...), nil
	}
	b, err := s.s.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	s.c.Add(addr, append([]byte(nil), b...))
	return b, nil
}

// Put adds an object to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b []byte) (gitkv.Addr, bool, error) {
	addr, added, err := s.s.Put(ctx, b)
	if err != nil {
		return addr, added, err
	}
	s.c.Add(addr, append([]byte(nil), b...))
	return addr, added, nil
}

// ListAddrs produces all object addresses in the nested store, in lexicographic order.
func (s *Store) ListAddrs(ctx context.Context, start gitkv.Addr, f func(gitkv.Addr) error) error {
	return s.s.ListAddrs(ctx, start, f)
}

// CreateRef implements gitkv.RefStore.
func (s *Store) CreateRef(ctx context.Context, name string, addr gitkv.Addr) error {
	return s.s.CreateRef(ctx, name, addr)
}

// ReadRef implements gitkv.RefGetter.
func (s *Store) ReadRef(ctx context.Context, name string) (gitkv.Addr, error) {
	return s.s.ReadRef(ctx, name)
}

// CompareAndSetRef implements gitkv.RefStore.
func (s *Store) CompareAndSetRef(ctx context.Context, name string, expected, next gitkv.Addr) (bool, error) {
	return s.s.CompareAndSetRef(ctx, name, expected, next)
}

// ListRefs implements gitkv.RefGetter.
func (s *Store) ListRefs(ctx context.Context, f func(string, gitkv.Addr) error) error {
	return s.s.ListRefs(ctx, f)
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (gitkv.RefStore, error) {
		size, err := store.IntParam(conf, "size")
		if err != nil {
			return nil, err
		}
		nested, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, size)
	})
}
