// Package gcs implements a gitkv store on Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	stderrs "errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store"
)

var _ gitkv.RefStore = &Store{}

// Store is a Google Cloud Storage-based implementation of a gitkv store.
//
// The object with address A is stored in the bucket object "o:<hex A>".
// The ref named N is stored in the bucket object "r:<hex N>",
// whose content is the hex address it points to.
// Ref updates are conditioned on the bucket object's generation number,
// which makes them compare-and-set.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

// Get gets the object with address `addr`.
func (s *Store) Get(ctx context.Context, addr gitkv.Addr) ([]byte, error) {
	name := objName(addr)
	b, err := s.read(ctx, s.bucket.Object(name))
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, gitkv.ErrNotFound
	}
	return b, errors.Wrapf(err, "reading %s", name)
}

func (s *Store) read(ctx context.Context, obj *storage.ObjectHandle) ([]byte, error) {
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	b := make([]byte, r.Attrs.Size)
	_, err = io.ReadFull(r, b)
	return b, err
}

// write writes data to obj,
// reporting false if a precondition on obj prevented it.
func write(ctx context.Context, obj *storage.ObjectHandle, data []byte) (bool, error) {
	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return false, err
	}
	err := w.Close()
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return false, nil
	}
	return err == nil, err
}

// Put adds an object to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b []byte) (gitkv.Addr, bool, error) {
	var (
		addr = gitkv.Hash(b)
		name = objName(addr)
		obj  = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
	)
	added, err := write(ctx, obj, b)
	if err != nil {
		return gitkv.Zero, false, errors.Wrapf(err, "writing %s", name)
	}
	return addr, added, nil
}

// ListAddrs produces all object addresses in the store, in lexicographic order.
func (s *Store) ListAddrs(ctx context.Context, start gitkv.Addr, f func(gitkv.Addr) error) error {
	// Google Cloud Storage iterators have no API for starting in the middle of a bucket.
	// But they can filter by object-name prefix.
	// So we take (the hex encoding of) `start` and repeatedly compute prefixes for the objects we want.
	// If `start` is e67a, for example, the sequence of generated prefixes is:
	//   e67b e67c e67d e67e e67f
	//   e68 e69 e6a e6b e6c e6d e6e e6f
	//   e7 e8 e9 ea eb ec ed ee ef
	//   f
	return eachHexPrefix(start.String(), false, func(prefix string) error {
		return s.listAddrs(ctx, prefix, f)
	})
}

func (s *Store) listAddrs(ctx context.Context, prefix string, f func(gitkv.Addr) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: objPrefix + prefix})
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over objects")
		}
		addr, err := gitkv.AddrFromHex(strings.TrimPrefix(attrs.Name, objPrefix))
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", attrs.Name)
		}
		if err = f(addr); err != nil {
			return err
		}
	}
}

// CreateRef implements gitkv.RefStore.
func (s *Store) CreateRef(ctx context.Context, name string, addr gitkv.Addr) error {
	obj := s.bucket.Object(refObjName(name)).If(storage.Conditions{DoesNotExist: true})
	ok, err := write(ctx, obj, []byte(addr.String()))
	if err != nil {
		return errors.Wrapf(err, "writing ref %s", name)
	}
	if !ok {
		return errors.Wrapf(gitkv.ErrRefExists, "ref %s", name)
	}
	return nil
}

// ReadRef implements gitkv.RefGetter.
func (s *Store) ReadRef(ctx context.Context, name string) (gitkv.Addr, error) {
	addr, _, err := s.readRef(ctx, name)
	return addr, err
}

// readRef reads the named ref and the generation number it was read at.
func (s *Store) readRef(ctx context.Context, name string) (gitkv.Addr, int64, error) {
	obj := s.bucket.Object(refObjName(name))
	r, err := obj.NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return gitkv.Zero, 0, errors.Wrapf(gitkv.ErrDanglingRef, "ref %s", name)
	}
	if err != nil {
		return gitkv.Zero, 0, errors.Wrapf(err, "reading ref %s", name)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return gitkv.Zero, 0, errors.Wrapf(err, "reading ref %s", name)
	}
	addr, err := gitkv.AddrFromHex(string(b))
	return addr, r.Attrs.Generation, errors.Wrapf(err, "parsing ref %s", name)
}

// CompareAndSetRef implements gitkv.RefStore.
func (s *Store) CompareAndSetRef(ctx context.Context, name string, expected, next gitkv.Addr) (bool, error) {
	cur, gen, err := s.readRef(ctx, name)
	if err != nil {
		return false, err
	}
	if cur != expected {
		return false, nil
	}
	obj := s.bucket.Object(refObjName(name)).If(storage.Conditions{GenerationMatch: gen})
	ok, err := write(ctx, obj, []byte(next.String()))
	return ok, errors.Wrapf(err, "updating ref %s", name)
}

// ListRefs implements gitkv.RefGetter.
// Hex encoding preserves byte order,
// so refs come back sorted by name.
func (s *Store) ListRefs(ctx context.Context, f func(string, gitkv.Addr) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: refPrefix})
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over refs")
		}
		name, err := refNameFromObjName(attrs.Name)
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", attrs.Name)
		}
		addr, err := s.ReadRef(ctx, name)
		if stderrs.Is(err, gitkv.ErrDanglingRef) {
			continue
		}
		if err != nil {
			return err
		}
		if err = f(name, addr); err != nil {
			return err
		}
	}
}

func eachHexPrefix(prefix string, incl bool, f func(string) error) error {
	prefix = strings.ToLower(prefix)
	for len(prefix) > 0 {
		end := hexval(prefix[len(prefix)-1:][0])
		if !incl {
			end++
		}
		prefix = prefix[:len(prefix)-1]
		for c := end; c < 16; c++ {
			err := f(prefix + string(hexdigit(c)))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func hexval(b byte) int {
	switch {
	case '0' <= b && b <= '9':
		return int(b - '0')
	case 'a' <= b && b <= 'f':
		return int(10 + b - 'a')
	case 'A' <= b && b <= 'F':
		return int(10 + b - 'A')
	}
	return 0
}

func hexdigit(n int) byte {
	if n < 10 {
		return byte(n + '0')
	}
	return byte(n - 10 + 'a')
}

const (
	objPrefix = "o:"
	refPrefix = "r:"
)

func objName(addr gitkv.Addr) string {
	return objPrefix + addr.String()
}

func refObjName(name string) string {
	return refPrefix + hex.EncodeToString([]byte(name))
}

func refNameFromObjName(objName string) (string, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(objName, refPrefix))
	return string(b), err
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (gitkv.RefStore, error) {
		creds, err := store.StringParam(conf, "creds")
		if err != nil {
			return nil, err
		}
		bucketName, err := store.StringParam(conf, "bucket")
		if err != nil {
			return nil, err
		}
		c, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
