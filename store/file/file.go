// Package file implements a gitkv store as a file hierarchy.
package file

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bobg/flock"
	"github.com/google/renameio"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store"
)

var _ gitkv.RefStore = &Store{}

// Store is a file-based implementation of a gitkv store.
//
// Objects live at objects/ab/abcd/abcdef...,
// named by the hex form of their addresses.
// Each ref lives in its own file under refs/,
// named by the path-escaped form of the ref name
// and containing the hex address it points to.
// Ref updates are serialized by lock files under locks/.
// Ref names must satisfy gitkv.CheckRefName.
type Store struct {
	root    string
	flocker flock.Locker

	// When non-nil, new objects are zstd-compressed.
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Option is the type of an option that can be passed to New.
type Option func(*Store) error

// Compress causes objects to be written zstd-compressed at the given level.
// Compressed and uncompressed objects may coexist in one store.
func Compress(level zstd.EncoderLevel) Option {
	return func(s *Store) error {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return errors.Wrap(err, "creating zstd encoder")
		}
		s.enc = enc
		return nil
	}
}

// New produces a new Store storing data beneath `root`.
func New(root string, opts ...Option) (*Store, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd decoder")
	}
	s := &Store{root: root, dec: dec}
	s.flocker = flock.Locker{Lockfile: s.lockpath}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// zstdMagic begins every zstd frame.
// No framed object begins with it.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func (s *Store) objroot() string {
	return filepath.Join(s.root, "objects")
}

func (s *Store) objpath(addr gitkv.Addr) string {
	h := addr.String()
	return filepath.Join(s.objroot(), h[:2], h[:4], h)
}

// Get gets the object with address `addr`.
func (s *Store) Get(_ context.Context, addr gitkv.Addr) ([]byte, error) {
	path := s.objpath(addr)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, gitkv.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if bytes.HasPrefix(b, zstdMagic) {
		b, err = s.dec.DecodeAll(b, nil)
		return b, errors.Wrapf(err, "decompressing %s", path)
	}
	return b, nil
}

// Put adds an object to the store if it wasn't already present.
// Objects are written atomically,
// so a concurrent Get never sees a partial object.
func (s *Store) Put(_ context.Context, b []byte) (gitkv.Addr, bool, error) {
	var (
		addr = gitkv.Hash(b)
		path = s.objpath(addr)
		dir  = filepath.Dir(path)
	)

	if _, err := os.Stat(path); err == nil {
		return addr, false, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return gitkv.Zero, false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	data := b
	if s.enc != nil {
		data = s.enc.EncodeAll(b, make([]byte, 0, len(b)))
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return gitkv.Zero, false, errors.Wrapf(err, "writing %s", path)
	}

	return addr, true, nil
}

// ListAddrs produces all object addresses in the store, in lexicographic order.
func (s *Store) ListAddrs(_ context.Context, start gitkv.Addr, f func(gitkv.Addr) error) error {
	root := s.objroot()
	topLevel, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", root)
	}

	startHex := start.String()
	topIndex := sort.Search(len(topLevel), func(n int) bool {
		return topLevel[n].Name() >= startHex[:2]
	})
	for i := topIndex; i < len(topLevel); i++ {
		topName := topLevel[i].Name()
		if !topLevel[i].IsDir() || !isHex(topName, 2) {
			continue
		}

		midLevel, err := os.ReadDir(filepath.Join(root, topName))
		if err != nil {
			return errors.Wrapf(err, "reading dir %s/%s", root, topName)
		}
		midIndex := sort.Search(len(midLevel), func(n int) bool {
			return midLevel[n].Name() >= startHex[:4]
		})
		for j := midIndex; j < len(midLevel); j++ {
			midName := midLevel[j].Name()
			if !midLevel[j].IsDir() || !isHex(midName, 4) {
				continue
			}

			objs, err := os.ReadDir(filepath.Join(root, topName, midName))
			if err != nil {
				return errors.Wrapf(err, "reading dir %s/%s/%s", root, topName, midName)
			}

			index := sort.Search(len(objs), func(n int) bool {
				return objs[n].Name() > startHex
			})
			for k := index; k < len(objs); k++ {
				if objs[k].IsDir() {
					continue
				}
				addr, err := gitkv.AddrFromHex(objs[k].Name())
				if err != nil {
					// Not an object, e.g. a leftover temp file.
					continue
				}
				if err = f(addr); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	_, err := strconv.ParseUint(s, 16, 64)
	return err == nil
}

func (s *Store) refroot() string {
	return filepath.Join(s.root, "refs")
}

func (s *Store) refpath(name string) string {
	return filepath.Join(s.refroot(), url.PathEscape(name))
}

func (s *Store) lockroot() string {
	return filepath.Join(s.root, "locks")
}

// lockpath maps a ref file to its lock file.
func (s *Store) lockpath(refpath string) string {
	return filepath.Join(s.lockroot(), filepath.Base(refpath)+".lock")
}

// Bounds on the wait between attempts to take a ref lock.
const (
	minLockDelay = time.Millisecond
	maxLockDelay = 50 * time.Millisecond
)

// lockRef takes the lock for the named ref,
// waiting while another writer holds it,
// and returns a function that releases it.
func (s *Store) lockRef(ctx context.Context, name string) (func(), error) {
	for _, dir := range []string{s.refroot(), s.lockroot()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "ensuring %s exists", dir)
		}
	}

	path := s.refpath(name)
	delay := minLockDelay
	for {
		err := s.flocker.Lock(path)
		if err == nil {
			return func() { s.flocker.Unlock(path) }, nil
		}
		if !errors.Is(err, flock.ErrLocked) {
			return nil, errors.Wrapf(err, "locking ref %s", name)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Wrapf(ctx.Err(), "waiting for lock on ref %s", name)
		case <-timer.C:
		}
		if delay *= 2; delay > maxLockDelay {
			delay = maxLockDelay
		}
	}
}

func (s *Store) readRef(name string) (gitkv.Addr, error) {
	b, err := os.ReadFile(s.refpath(name))
	if os.IsNotExist(err) {
		return gitkv.Zero, errors.Wrapf(gitkv.ErrDanglingRef, "ref %s", name)
	}
	if err != nil {
		return gitkv.Zero, errors.Wrapf(err, "reading ref %s", name)
	}
	addr, err := gitkv.AddrFromHex(strings.TrimSpace(string(b)))
	return addr, errors.Wrapf(err, "parsing ref %s", name)
}

// Ref lock must be held.
func (s *Store) writeRef(name string, addr gitkv.Addr) error {
	err := renameio.WriteFile(s.refpath(name), []byte(addr.String()+"\n"), 0644)
	return errors.Wrapf(err, "writing ref %s", name)
}

// CreateRef implements gitkv.RefStore.
func (s *Store) CreateRef(ctx context.Context, name string, addr gitkv.Addr) error {
	if err := gitkv.CheckRefName(name); err != nil {
		return err
	}
	unlock, err := s.lockRef(ctx, name)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := os.Stat(s.refpath(name)); err == nil {
		return errors.Wrapf(gitkv.ErrRefExists, "ref %s", name)
	}
	return s.writeRef(name, addr)
}

// ReadRef implements gitkv.RefGetter.
func (s *Store) ReadRef(_ context.Context, name string) (gitkv.Addr, error) {
	if err := gitkv.CheckRefName(name); err != nil {
		return gitkv.Zero, err
	}
	// Refs are replaced atomically, so reading needs no lock.
	return s.readRef(name)
}

// CompareAndSetRef implements gitkv.RefStore.
func (s *Store) CompareAndSetRef(ctx context.Context, name string, expected, next gitkv.Addr) (bool, error) {
	if err := gitkv.CheckRefName(name); err != nil {
		return false, err
	}
	unlock, err := s.lockRef(ctx, name)
	if err != nil {
		return false, err
	}
	defer unlock()

	cur, err := s.readRef(name)
	if err != nil {
		return false, err
	}
	if cur != expected {
		return false, nil
	}
	return true, s.writeRef(name, next)
}

// ListRefs implements gitkv.RefGetter.
func (s *Store) ListRefs(_ context.Context, f func(string, gitkv.Addr) error) error {
	entries, err := os.ReadDir(s.refroot())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.refroot())
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			// Skip renameio's temp files.
			continue
		}
		name, err := url.PathUnescape(e.Name())
		if err != nil || gitkv.CheckRefName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		addr, err := s.readRef(name)
		if errors.Is(err, gitkv.ErrDanglingRef) {
			continue
		}
		if err != nil {
			return err
		}
		if err = f(name, addr); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (gitkv.RefStore, error) {
		root, err := store.StringParam(conf, "root")
		if err != nil {
			return nil, err
		}
		var opts []Option
		if _, ok := conf["compress"]; ok {
			level, err := store.IntParam(conf, "compress")
			if err != nil {
				return nil, err
			}
			opts = append(opts, Compress(zstd.EncoderLevelFromZstd(level)))
		}
		return New(root, opts...)
	})
}
