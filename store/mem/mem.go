// Package mem implements an in-memory object store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store"
)

var _ gitkv.RefStore = &Store{}

// Store is a memory-based implementation of an object store.
type Store struct {
	mu   sync.Mutex
	objs map[gitkv.Addr][]byte
	refs map[string]gitkv.Addr
}

// New produces a new Store.
func New() *Store {
	return &Store{
		objs: make(map[gitkv.Addr][]byte),
		refs: make(map[string]gitkv.Addr),
	}
}

// Get gets the object with address `addr`.
func (s *Store) Get(_ context.Context, addr gitkv.Addr) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.objs[addr]; ok {
		return append([]byte(nil), b...), nil
	}
	return nil, gitkv.ErrNotFound
}

// Put adds an object to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b []byte) (gitkv.Addr, bool, error) {
	addr := gitkv.Hash(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objs[addr]; ok {
		return addr, false, nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	s.objs[addr] = cp
	return addr, true, nil
}

// ListAddrs produces all object addresses in the store, in lexicographic order.
func (s *Store) ListAddrs(_ context.Context, start gitkv.Addr, f func(gitkv.Addr) error) error {
	s.mu.Lock()
	addrs := make([]gitkv.Addr, 0, len(s.objs))
	for addr := range s.objs {
		addrs = append(addrs, addr)
	}
	s.mu.Unlock()

	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	index := sort.Search(len(addrs), func(n int) bool {
		return start.Less(addrs[n])
	})

	for i := index; i < len(addrs); i++ {
		if err := f(addrs[i]); err != nil {
			return err
		}
	}
	return nil
}

// CreateRef implements gitkv.RefStore.
func (s *Store) CreateRef(_ context.Context, name string, addr gitkv.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refs[name]; ok {
		return errors.Wrapf(gitkv.ErrRefExists, "ref %s", name)
	}
	s.refs[name] = addr
	return nil
}

// ReadRef implements gitkv.RefGetter.
func (s *Store) ReadRef(_ context.Context, name string) (gitkv.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr, ok := s.refs[name]
	if !ok {
		return gitkv.Zero, errors.Wrapf(gitkv.ErrDanglingRef, "ref %s", name)
	}
	return addr, nil
}

// CompareAndSetRef implements gitkv.RefStore.
func (s *Store) CompareAndSetRef(_ context.Context, name string, expected, next gitkv.Addr) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.refs[name]
	if !ok {
		return false, errors.Wrapf(gitkv.ErrDanglingRef, "ref %s", name)
	}
	if cur != expected {
		return false, nil
	}
	s.refs[name] = next
	return true, nil
}

// ListRefs lists all refs in the store, in lexicographic order.
func (s *Store) ListRefs(_ context.Context, f func(string, gitkv.Addr) error) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.refs))
	for name := range s.refs {
		names = append(names, name)
	}
	refs := make(map[string]gitkv.Addr, len(s.refs))
	for k, v := range s.refs {
		refs[k] = v
	}
	s.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		if err := f(name, refs[name]); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (gitkv.RefStore, error) {
		return New(), nil
	})
}
