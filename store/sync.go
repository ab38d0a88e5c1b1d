package store

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/gitkv"
)

// SyncBatchSize is the number of objects Sync copies with each GetMulti/PutMulti call.
var SyncBatchSize = 256

// Sync synchronizes two or more stores.
// It runs ListAddrs on all input stores concurrently.
// When an object is found to be in some but not all stores,
// it is copied to the stores where it's missing.
//
// Refs are not synchronized.
func Sync(ctx context.Context, stores []gitkv.Store) error {
	if len(stores) < 2 {
		return nil
	}

	sets := make([]map[gitkv.Addr]struct{}, len(stores))

	eg, ctx2 := errgroup.WithContext(ctx)
	for i, s := range stores {
		i, s := i, s
		eg.Go(func() error {
			set := make(map[gitkv.Addr]struct{})
			err := s.ListAddrs(ctx2, gitkv.Zero, func(addr gitkv.Addr) error {
				set[addr] = struct{}{}
				return ctx2.Err()
			})
			sets[i] = set
			return errors.Wrapf(err, "listing store %d", i)
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	// For each object, the index of one store that has it.
	haver := make(map[gitkv.Addr]int)
	for i, set := range sets {
		for addr := range set {
			if _, ok := haver[addr]; !ok {
				haver[addr] = i
			}
		}
	}

	eg, ctx2 = errgroup.WithContext(ctx)
	for i, s := range stores {
		i, s := i, s

		// Missing objects, grouped by the store to copy them from.
		needs := make(map[int][]gitkv.Addr)
		for addr, src := range haver {
			if _, ok := sets[i][addr]; !ok {
				needs[src] = append(needs[src], addr)
			}
		}
		if len(needs) == 0 {
			continue
		}

		eg.Go(func() error {
			for src, addrs := range needs {
				sort.Slice(addrs, func(a, b int) bool { return addrs[a].Less(addrs[b]) })
				if err := copyObjects(ctx2, stores[src], s, addrs); err != nil {
					return errors.Wrapf(err, "copying from store %d to store %d", src, i)
				}
			}
			return nil
		})
	}
	return eg.Wait()
}

func copyObjects(ctx context.Context, src gitkv.Getter, dst gitkv.Store, addrs []gitkv.Addr) error {
	for len(addrs) > 0 {
		n := SyncBatchSize
		if n > len(addrs) {
			n = len(addrs)
		}
		batch := addrs[:n]
		addrs = addrs[n:]

		got, err := gitkv.GetMulti(ctx, src, batch)
		if err != nil {
			return errors.Wrap(err, "getting objects")
		}
		objs := make([][]byte, 0, len(got))
		for _, addr := range batch {
			objs = append(objs, got[addr])
		}
		if _, err = gitkv.PutMulti(ctx, dst, objs); err != nil {
			return errors.Wrap(err, "storing objects")
		}
	}
	return nil
}
