package replica

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store"
	"github.com/bobg/gitkv/store/mem"
	"github.com/bobg/gitkv/testutil"
)

func TestReplicaSets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		m1 = mem.New()
		m2 = mem.New()
	)
	s, err := New(ctx, []gitkv.RefStore{m1, m2}, nil, 1)
	if err != nil {
		t.Fatal(err)
	}

	addr1, _, err := m1.Put(ctx, gitkv.Frame(gitkv.KindBlob, []byte("foo")))
	if err != nil {
		t.Fatal(err)
	}
	addr2, _, err := m2.Put(ctx, gitkv.Frame(gitkv.KindBlob, []byte("bar")))
	if err != nil {
		t.Fatal(err)
	}
	addr3, _, err := s.Put(ctx, gitkv.Frame(gitkv.KindBlob, []byte("baz")))
	if err != nil {
		t.Fatal(err)
	}

	checkReplica(ctx, t, "m1", m1, addr1, addr3)
	checkReplica(ctx, t, "m2", m2, addr2, addr3)
	checkReplica(ctx, t, "replica", s, addr1, addr2, addr3)

	// Each object is readable through the replica, whichever store holds it.
	for _, addr := range []gitkv.Addr{addr1, addr2, addr3} {
		if _, err := s.Get(ctx, addr); err != nil {
			t.Errorf("getting %s: %s", addr, err)
		}
	}
}

func checkReplica(ctx context.Context, t *testing.T, name string, s gitkv.Getter, want ...gitkv.Addr) {
	t.Run(name, func(t *testing.T) {
		var got []gitkv.Addr
		err := s.ListAddrs(ctx, gitkv.Zero, func(addr gitkv.Addr) error {
			got = append(got, addr)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestAsync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		primary = mem.New()
		backup  = mem.New()
	)
	s, err := New(ctx, []gitkv.RefStore{primary}, []gitkv.Store{backup}, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	addr, _, err := s.Put(ctx, gitkv.Frame(gitkv.KindBlob, []byte("eventually")))
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err = backup.Get(ctx, addr); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("object never reached the async store: %s", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAllAddrs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testutil.AllAddrs(ctx, t, func() gitkv.Store {
		s, err := New(ctx, []gitkv.RefStore{mem.New(), mem.New()}, nil, 1)
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestReadWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, []gitkv.RefStore{mem.New(), mem.New()}, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	testutil.ReadWrite(ctx, t, s, []byte("Hello, World!\n"))
}

func TestRefs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	primary := mem.New()
	s, err := New(ctx, []gitkv.RefStore{primary, mem.New()}, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Refs(ctx, t, s)

	// Refs live in the primary.
	var n int
	err = primary.ListRefs(ctx, func(string, gitkv.Addr) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("no refs in the primary store")
	}
}

func TestRegistry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := store.Create(ctx, "replica", map[string]interface{}{
		"sync": []interface{}{
			map[string]interface{}{"type": "mem"},
			map[string]interface{}{"type": "mem"},
		},
		"async": []interface{}{
			map[string]interface{}{"type": "mem"},
		},
		"queuelen": 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	r, ok := s.(*Store)
	if !ok {
		t.Fatalf("got %T, want *Store", s)
	}
	defer r.Close()
	if len(r.sync) != 2 || len(r.async) != 1 {
		t.Errorf("got %d sync and %d async stores, want 2 and 1", len(r.sync), len(r.async))
	}
}
