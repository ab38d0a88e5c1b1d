package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/gitkv"
	. "github.com/bobg/gitkv/store"
	"github.com/bobg/gitkv/store/mem"
)

func TestSync(t *testing.T) {
	const text = `abc def ghi jkl mno pqr stu`

	var (
		ctx    = context.Background()
		words  = strings.Fields(text)
		stores = make([]gitkv.Store, 0, len(words))
	)
	for i := range words {
		s := mem.New()
		stores = append(stores, s)
		for j, word := range words {
			if i == j {
				continue
			}
			if _, err := gitkv.PutObject(ctx, s, gitkv.KindBlob, []byte(word)); err != nil {
				t.Fatal(err)
			}
		}
	}

	// Force more than one batch.
	defer func(n int) { SyncBatchSize = n }(SyncBatchSize)
	SyncBatchSize = 2

	if err := Sync(ctx, stores); err != nil {
		t.Fatal(err)
	}

	want := listAddrs(ctx, t, stores[0])
	if len(want) != len(words) {
		t.Fatalf("got %d objects after sync, want %d", len(want), len(words))
	}
	for i := 1; i < len(stores); i++ {
		if diff := cmp.Diff(want, listAddrs(ctx, t, stores[i])); diff != "" {
			t.Errorf("store %d mismatch (-want +got):\n%s", i, diff)
		}
	}

	for _, word := range words {
		got, err := gitkv.GetObject(ctx, stores[len(stores)-1], gitkv.ObjectAddr(gitkv.KindBlob, []byte(word)), gitkv.KindBlob)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != word {
			t.Errorf("got %q, want %q", got, word)
		}
	}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	if _, err := Create(ctx, "nonesuch", nil); err == nil {
		t.Error("creating an unregistered store type succeeded")
	} else if !strings.Contains(err.Error(), "mem") {
		t.Errorf("error %q does not list the known types", err)
	}
	if diff := cmp.Diff([]string{"mem"}, Types()); diff != "" {
		t.Errorf("types mismatch (-want +got):\n%s", diff)
	}
	s, err := Create(ctx, "mem", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*mem.Store); !ok {
		t.Errorf("got %T, want *mem.Store", s)
	}

	if _, err = CreateNested(ctx, map[string]interface{}{}); err == nil {
		t.Error("CreateNested with no nested config succeeded")
	}

	n, err := IntParam(map[string]interface{}{"size": "12"}, "size")
	if err != nil {
		t.Fatal(err)
	}
	if n != 12 {
		t.Errorf("got %d, want 12", n)
	}
	if _, err = StringParam(map[string]interface{}{}, "conn"); err == nil {
		t.Error("missing string parameter gave no error")
	}
	b, err := BoolParam(map[string]interface{}{"on": "true"}, "on")
	if err != nil {
		t.Fatal(err)
	}
	if !b {
		t.Error("got false, want true")
	}
}

func listAddrs(ctx context.Context, t *testing.T, s gitkv.Getter) []gitkv.Addr {
	t.Helper()

	var addrs []gitkv.Addr
	err := s.ListAddrs(ctx, gitkv.Zero, func(addr gitkv.Addr) error {
		addrs = append(addrs, addr)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return addrs
}
