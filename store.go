package gitkv

import (
	"context"
	"errors"
)

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets an object's framed bytes by its address.
	Get(context.Context, Addr) ([]byte, error)

	// ListAddrs calls a function for each object address in the store in lexicographic order,
	// beginning with the first address _after_ the specified one.
	//
	// The calls reflect at least the set of addresses
	// known at the moment ListAddrs was called.
	// It is unspecified whether later changes,
	// that happen concurrently with ListAddrs,
	// are reflected.
	//
	// If the callback function returns an error,
	// ListAddrs exits with that error.
	ListAddrs(context.Context, Addr, func(Addr) error) error
}

// Store is a content-addressable object store.
// Each object can be retrieved using its address as a lookup key.
// An address is simply the SHA2-256 hash of the object's bytes.
type Store interface {
	Getter

	// Put adds b to the store if it was not already present.
	// It returns b's address and a boolean that is true iff the object had to be added.
	// Put is idempotent and safe to call concurrently for the same content.
	Put(ctx context.Context, b []byte) (addr Addr, added bool, err error)
}

// RefGetter resolves named refs.
type RefGetter interface {
	// ReadRef returns the address the named ref points to.
	// It returns ErrDanglingRef if there is no such ref.
	ReadRef(ctx context.Context, name string) (Addr, error)

	// ListRefs calls a function for each ref in the store, in name order.
	ListRefs(ctx context.Context, f func(name string, addr Addr) error) error
}

// RefStore is a Store that also holds refs:
// named, mutable pointers to object addresses.
type RefStore interface {
	Store
	RefGetter

	// CreateRef creates a new ref.
	// It returns ErrRefExists if the ref is already present.
	CreateRef(ctx context.Context, name string, addr Addr) error

	// CompareAndSetRef atomically repoints the named ref from expected to next.
	// It returns false, and changes nothing, if the ref does not currently point at expected.
	// It returns ErrDanglingRef if there is no such ref.
	CompareAndSetRef(ctx context.Context, name string, expected, next Addr) (bool, error)
}

var (
	// ErrNotFound is the error returned
	// when a Getter tries to access a non-existent address,
	// or a tree lookup finds no entry at a path.
	ErrNotFound = errors.New("not found")

	// ErrWrongKind is the error returned when an object or tree entry
	// is a blob where a tree was expected, or vice versa.
	ErrWrongKind = errors.New("wrong kind")

	// ErrDanglingRef is the error returned when a ref does not exist
	// or does not resolve to a readable commit.
	ErrDanglingRef = errors.New("dangling ref")

	// ErrConcurrentUpdate is the error returned when a ref compare-and-set loses a race.
	ErrConcurrentUpdate = errors.New("concurrent update")

	// ErrRefExists is the error returned when creating a ref that already exists.
	ErrRefExists = errors.New("ref exists")

	// ErrInvalidPath is the error returned for a malformed path or entry name.
	ErrInvalidPath = errors.New("invalid path")
)
