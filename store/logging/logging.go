// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store"
)

var _ gitkv.RefStore = &Store{}

// Store logs each call before delegating it to a nested store.
// Successful operations log at SuccessLevel and failures at error level.
type Store struct {
	// SuccessLevel is the level for logging successful operations.
	// New sets it to logrus.DebugLevel.
	SuccessLevel logrus.Level

	s   gitkv.RefStore
	log logrus.FieldLogger
}

// New produces a new Store logging to the given logger.
// A nil logger means the logrus standard logger.
func New(s gitkv.RefStore, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{SuccessLevel: logrus.DebugLevel, s: s, log: logger}
}

func (s *Store) report(entry *logrus.Entry, err error, msg string) {
	if err != nil {
		entry.WithError(err).Error(msg)
	} else {
		entry.Log(s.SuccessLevel, msg)
	}
}

// Get implements gitkv.Getter.
func (s *Store) Get(ctx context.Context, addr gitkv.Addr) ([]byte, error) {
	b, err := s.s.Get(ctx, addr)
	s.report(s.log.WithFields(logrus.Fields{"addr": addr, "size": len(b)}), err, "Get")
	return b, err
}

// ListAddrs implements gitkv.Getter.
func (s *Store) ListAddrs(ctx context.Context, start gitkv.Addr, f func(gitkv.Addr) error) error {
	var n int
	err := s.s.ListAddrs(ctx, start, func(addr gitkv.Addr) error {
		n++
		return f(addr)
	})
	s.report(s.log.WithFields(logrus.Fields{"start": start, "count": n}), err, "ListAddrs")
	return err
}

// Put implements gitkv.Store.
func (s *Store) Put(ctx context.Context, b []byte) (gitkv.Addr, bool, error) {
	addr, added, err := s.s.Put(ctx, b)
	s.report(s.log.WithFields(logrus.Fields{"addr": addr, "added": added, "size": len(b)}), err, "Put")
	return addr, added, err
}

// CreateRef implements gitkv.RefStore.
func (s *Store) CreateRef(ctx context.Context, name string, addr gitkv.Addr) error {
	err := s.s.CreateRef(ctx, name, addr)
	s.report(s.log.WithFields(logrus.Fields{"ref": name, "addr": addr}), err, "CreateRef")
	return err
}

// ReadRef implements gitkv.RefGetter.
func (s *Store) ReadRef(ctx context.Context, name string) (gitkv.Addr, error) {
	addr, err := s.s.ReadRef(ctx, name)
	s.report(s.log.WithFields(logrus.Fields{"ref": name, "addr": addr}), err, "ReadRef")
	return addr, err
}

// CompareAndSetRef implements gitkv.RefStore.
func (s *Store) CompareAndSetRef(ctx context.Context, name string, expected, next gitkv.Addr) (bool, error) {
	ok, err := s.s.CompareAndSetRef(ctx, name, expected, next)
	s.report(s.log.WithFields(logrus.Fields{"ref": name, "expected": expected, "next": next, "ok": ok}), err, "CompareAndSetRef")
	return ok, err
}

// ListRefs implements gitkv.RefGetter.
func (s *Store) ListRefs(ctx context.Context, f func(string, gitkv.Addr) error) error {
	var n int
	err := s.s.ListRefs(ctx, func(name string, addr gitkv.Addr) error {
		n++
		return f(name, addr)
	})
	s.report(s.log.WithField("count", n), err, "ListRefs")
	return err
}

// With "verbose" set in its config,
// a registered logging store logs successful operations at info level.
func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (gitkv.RefStore, error) {
		nested, err := store.CreateNested(ctx, conf)
		if err != nil {
			return nil, err
		}
		verbose, err := store.BoolParam(conf, "verbose")
		if err != nil {
			return nil, err
		}
		s := New(nested, nil)
		if verbose {
			s.SuccessLevel = logrus.InfoLevel
		}
		return s, nil
	})
}
