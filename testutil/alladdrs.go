// Package testutil holds conformance checks shared by the store implementations' tests.
package testutil

import (
	"context"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/gitkv"
)

// AllAddrs writes a random set of random objects to an empty store
// and makes sure that the right set of addresses comes back in a call to ListAddrs.
func AllAddrs(ctx context.Context, t *testing.T, storeFactory func() gitkv.Store) {
	if err := quick.Check(allAddrsHelper(ctx, t, storeFactory), &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func allAddrsHelper(ctx context.Context, t *testing.T, storeFactory func() gitkv.Store) func([][]byte) bool {
	return func(objs [][]byte) bool {
		var (
			store = storeFactory()
			want  []gitkv.Addr
		)
		for _, obj := range objs {
			addr, added, err := store.Put(ctx, obj)
			if err != nil {
				t.Fatal(err)
			}
			if added {
				want = append(want, addr)
			}
		}
		var got []gitkv.Addr
		err := store.ListAddrs(ctx, gitkv.Zero, func(a gitkv.Addr) error {
			got = append(got, a)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}
