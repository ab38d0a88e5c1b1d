// Package replica implements a gitkv store that mirrors objects across nested stores.
package replica

import (
	"context"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store"
)

var _ gitkv.RefStore = (*Store)(nil)

// Store is a gitkv store that delegates object reads and writes to two sets of nested stores.
// One set is synchronous:
// writes to all of these must succeed before a call to Put returns,
// and an error from any will cause Put to fail.
// The other set is asynchronous:
// a call to Put queues writes on these stores but does not wait for them to finish.
// However, if any asynchronous write encounters an error,
// the whole Store is put into an error state and further operations will fail.
//
// Refs are not replicated.
// They live in the first synchronous store, the primary.
type Store struct {
	sync   []gitkv.RefStore
	async  []asyncChans
	cancel context.CancelFunc

	mu  sync.Mutex // protects err
	err error      // the error from an async goroutine, if any
}

type asyncChans struct {
	objs chan<- []byte
	errs <-chan error
}

// New produces a new Store.
// The set of synchronous stores must be non-empty.
// The set of asynchronous stores may be empty.
// If there are any asynchronous stores,
// goroutines are launched for them,
// and canceling the given context object causes those to exit,
// placing the Store in an error state.
//
// Normally, writes to asynchronous stores do not block calls to Put,
// but the queue for each nested store has a fixed length given by n,
// which must be 1 or greater.
// If any async store falls too far behind,
// Put will block until all requests can be queued.
func New(ctx context.Context, sync []gitkv.RefStore, async []gitkv.Store, n int) (*Store, error) {
	if len(sync) == 0 {
		return nil, errors.New("no synchronous stores")
	}
	if n < 1 {
		n = 1
	}

	result := &Store{sync: sync}

	if len(async) > 0 {
		ctx, result.cancel = context.WithCancel(ctx)

		selectCases := make([]reflect.SelectCase, 1+len(async))

		for i, a := range async {
			var (
				objs = make(chan []byte, n)
				errs = make(chan error, 1)
			)

			result.async = append(result.async, asyncChans{objs: objs, errs: errs})

			selectCases[i].Dir = reflect.SelectRecv
			selectCases[i].Chan = reflect.ValueOf(errs)

			go runAsync(ctx, a, objs, errs)
		}

		selectCases[len(async)].Dir = reflect.SelectRecv
		selectCases[len(async)].Chan = reflect.ValueOf(ctx.Done())

		go func() {
			chosen, errval, ok := reflect.Select(selectCases)
			err := ctx.Err()
			if ok && chosen < len(async) {
				err = errval.Interface().(error)
			}
			result.cancel()
			result.mu.Lock()
			result.err = err
			result.mu.Unlock()
		}()
	}

	return result, nil
}

// Runs as a goroutine until ctx is canceled or an error occurs (which it writes to errs).
func runAsync(ctx context.Context, s gitkv.Store, objs <-chan []byte, errs chan<- error) {
	defer close(errs)

	for {
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return

		case obj := <-objs:
			if _, _, err := s.Put(ctx, obj); err != nil {
				errs <- errors.Wrap(err, "async put")
				return
			}
		}
	}
}

// Close stops the goroutines serving the asynchronous stores.
// After Close, s is in an error state.
func (s *Store) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Put implements gitkv.Store.Put.
// The object is stored in all synchronous nested stores.
// An error from any of them causes Put to return an error.
//
// Some nested stores may already have the object and others may not,
// in which case the value of `added`
// (the boolean return value)
// is the one reported by the primary.
//
// A request to write the object is queued for any asynchronous nested stores.
// Normally this does not block the call to Put,
// but if any async store falls too far behind,
// Put must wait for space to open in its request queue before proceeding.
// The size of this queue is given by the int passed to New.
func (s *Store) Put(ctx context.Context, b []byte) (gitkv.Addr, bool, error) {
	if err := s.checkErr(); err != nil {
		return gitkv.Zero, false, errors.Wrap(err, "in async-store goroutine")
	}

	var (
		addr  gitkv.Addr
		added bool
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, nested := range s.sync {
		i, nested := i, nested
		g.Go(func() error {
			a, ok, err := nested.Put(gctx, b)
			if err != nil {
				return err
			}
			if i == 0 {
				addr, added = a, ok
			}
			return nil
		})
	}

	for _, a := range s.async {
		select {
		case <-ctx.Done():
			return gitkv.Zero, false, ctx.Err()

		case a.objs <- b:
		}
	}

	if err := g.Wait(); err != nil {
		return gitkv.Zero, false, err
	}
	return addr, added, nil
}

// Get implements gitkv.Getter.
// It delegates the request to all of the synchronous stores in s,
// returning the result from the first one to respond without error
// and canceling the request to the others.
// If all synchronous stores respond with an error,
// one of those errors is returned.
func (s *Store) Get(ctx context.Context, addr gitkv.Addr) ([]byte, error) {
	if err := s.checkErr(); err != nil {
		return nil, errors.Wrap(err, "in async-store goroutine")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		g  errgroup.Group
		ch = make(chan []byte, len(s.sync))
	)
	for _, nested := range s.sync {
		nested := nested
		g.Go(func() error {
			b, err := nested.Get(ctx, addr)
			if err != nil {
				return err
			}
			ch <- b
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case b := <-ch:
		return b, nil
	case err := <-done:
		// Every nested Get has returned.
		// One may have succeeded just before the others failed.
		select {
		case b := <-ch:
			return b, nil
		default:
			return nil, err
		}
	}
}

// ListAddrs implements gitkv.Getter.
// It delegates the request to all of the synchronous stores in s
// and synthesizes the result from the union of their addresses.
func (s *Store) ListAddrs(ctx context.Context, start gitkv.Addr, f func(gitkv.Addr) error) error {
	if err := s.checkErr(); err != nil {
		return errors.Wrap(err, "in async-store goroutine")
	}

	chans := make([]chan gitkv.Addr, len(s.sync))
	for i := range s.sync {
		chans[i] = make(chan gitkv.Addr, 1)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	for i, nested := range s.sync {
		i, nested := i, nested
		g.Go(func() error {
			defer close(chans[i])
			return nested.ListAddrs(ctx, start, func(addr gitkv.Addr) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case chans[i] <- addr:
					return nil
				}
			})
		})
	}

	// A zero value in next means that stream is exhausted.
	next := make([]gitkv.Addr, len(s.sync))
	for i, ch := range chans {
		next[i] = <-ch
	}

	for {
		var best gitkv.Addr
		for _, addr := range next {
			if addr.IsZero() {
				continue
			}
			if best.IsZero() || addr.Less(best) {
				best = addr
			}
		}
		if best.IsZero() {
			break
		}
		if err := f(best); err != nil {
			cancel()
			g.Wait()
			return err
		}
		for i, addr := range next {
			if addr == best {
				next[i] = <-chans[i]
			}
		}
	}

	return g.Wait()
}

func (s *Store) primary() gitkv.RefStore {
	return s.sync[0]
}

// CreateRef implements gitkv.RefStore.
func (s *Store) CreateRef(ctx context.Context, name string, addr gitkv.Addr) error {
	return s.primary().CreateRef(ctx, name, addr)
}

// ReadRef implements gitkv.RefGetter.
func (s *Store) ReadRef(ctx context.Context, name string) (gitkv.Addr, error) {
	return s.primary().ReadRef(ctx, name)
}

// CompareAndSetRef implements gitkv.RefStore.
func (s *Store) CompareAndSetRef(ctx context.Context, name string, expected, next gitkv.Addr) (bool, error) {
	return s.primary().CompareAndSetRef(ctx, name, expected, next)
}

// ListRefs implements gitkv.RefGetter.
func (s *Store) ListRefs(ctx context.Context, f func(string, gitkv.Addr) error) error {
	return s.primary().ListRefs(ctx, f)
}

func (s *Store) checkErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func createList(ctx context.Context, conf map[string]interface{}, key string) ([]gitkv.RefStore, error) {
	items, err := cast.ToSliceE(conf[key])
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %q parameter", key)
	}
	var result []gitkv.RefStore
	for _, item := range items {
		nested, err := cast.ToStringMapE(item)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %q item", key)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.Errorf("%q item missing \"type\"", key)
		}
		s, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrapf(err, "creating nested %s store", key)
		}
		result = append(result, s)
	}
	return result, nil
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}) (gitkv.RefStore, error) {
		syncStores, err := createList(ctx, conf, "sync")
		if err != nil {
			return nil, err
		}
		if len(syncStores) == 0 {
			return nil, errors.New(`missing "sync" parameter`)
		}

		var asyncStores []gitkv.Store
		if _, ok := conf["async"]; ok {
			list, err := createList(ctx, conf, "async")
			if err != nil {
				return nil, err
			}
			for _, s := range list {
				asyncStores = append(asyncStores, s)
			}
		}

		queueLen := 10
		if _, ok := conf["queuelen"]; ok {
			queueLen, err = store.IntParam(conf, "queuelen")
			if err != nil {
				return nil, err
			}
		}

		return New(ctx, syncStores, asyncStores, queueLen)
	})
}
