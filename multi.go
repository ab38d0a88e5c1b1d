package gitkv

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"
)

// MultiConcurrency limits the number of concurrent Get or Put calls
// made by GetMulti and PutMulti.
var MultiConcurrency = 32

// MultiGetter is a Getter that can fetch many objects in one call.
type MultiGetter interface {
	GetMulti(context.Context, []Addr) (map[Addr][]byte, error)
}

// MultiPutter is a Store that can store many objects in one call.
type MultiPutter interface {
	PutMulti(context.Context, [][]byte) (map[Addr]bool, error)
}

// GetMulti gets multiple objects with a single call.
// By default this is implemented as concurrent individual Get calls,
// at most MultiConcurrency at a time.
// However, if g implements MultiGetter, its GetMulti method is used instead.
// The return value is a mapping of input addresses to the objects that were found in g.
// The returned error may be a MultiErr,
// mapping input addresses to errors encountered retrieving those specific objects.
// This function may return a successful partial result even in case of error.
// In particular, when the error return is a MultiErr,
// every input address appears in either the result map or the MultiErr map.
func GetMulti(ctx context.Context, g Getter, addrs []Addr) (map[Addr][]byte, error) {
	if m, ok := g.(MultiGetter); ok {
		return m.GetMulti(ctx, addrs)
	}

	type triple struct {
		addr Addr
		obj  []byte
		err  error
	}

	p := pool.NewWithResults[triple]().WithMaxGoroutines(MultiConcurrency)
	for _, addr := range addrs {
		addr := addr
		p.Go(func() triple {
			obj, err := g.Get(ctx, addr)
			return triple{addr: addr, obj: obj, err: err}
		})
	}

	var (
		res    = make(map[Addr][]byte)
		errmap MultiErr
	)
	for _, trip := range p.Wait() {
		if trip.err != nil {
			if errmap == nil {
				errmap = make(MultiErr)
			}
			errmap[trip.addr] = trip.err
			continue
		}
		res[trip.addr] = trip.obj
	}

	if errmap != nil {
		return res, errmap
	}
	return res, nil
}

// MultiErr is a type of error returned by GetMulti and PutMulti.
// It maps individual addresses to errors encountered trying to Get or Put them.
type MultiErr map[Addr]error

// Error implements the error interface.
func (e MultiErr) Error() string {
	strs := make([]string, 0, len(e))
	for addr, err := range e {
		strs = append(strs, fmt.Sprintf("%s: %s", addr, err))
	}
	sort.Strings(strs)
	return "error(s): " + strings.Join(strs, "; ")
}

// PutMulti stores multiple objects with a single call.
// By default this is implemented as concurrent individual Put calls,
// at most MultiConcurrency at a time.
// However, if s implements MultiPutter, its PutMulti method is used instead.
// The return value is a mapping of input objects' addresses to a boolean indicating whether each was a new addition to s.
// The returned error may be a MultiErr,
// mapping input objects' addresses to errors encountered writing those specific objects.
func PutMulti(ctx context.Context, s Store, objs [][]byte) (map[Addr]bool, error) {
	if m, ok := s.(MultiPutter); ok {
		return m.PutMulti(ctx, objs)
	}

	type triple struct {
		addr  Addr
		added bool
		err   error
	}

	p := pool.NewWithResults[triple]().WithMaxGoroutines(MultiConcurrency)
	for _, obj := range objs {
		obj := obj
		p.Go(func() triple {
			addr, added, err := s.Put(ctx, obj)
			if err != nil {
				addr = Hash(obj)
			}
			return triple{addr: addr, added: added, err: err}
		})
	}

	var (
		res    = make(map[Addr]bool)
		errmap MultiErr
	)
	for _, trip := range p.Wait() {
		if trip.err != nil {
			if errmap == nil {
				errmap = make(MultiErr)
			}
			errmap[trip.addr] = trip.err
			continue
		}
		res[trip.addr] = trip.added
	}

	if errmap != nil {
		return res, errmap
	}
	return res, nil
}
