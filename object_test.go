package gitkv_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"testing/quick"

	. "github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store/mem"
)

func TestWellKnownAddrs(t *testing.T) {
	cases := []struct {
		name string
		addr Addr
		want string
	}{
		{name: "empty tree", addr: EmptyTreeAddr, want: "6ef19b41225c5369f1c104d45d8d85efa9b057b53b14b4b9b939dd74decc5321"},
		{name: "empty blob", addr: EmptyBlobAddr, want: "473a0f4c3be8a93681a267e3b1e9a7dcda1185436fe141f7749120a303721813"},
		{name: "blob b", addr: ObjectAddr(KindBlob, []byte("b")), want: "a0bcd9a45d24c6a0e3748aa53f02e3a2c4cea32e0392feeb304a71a08a193e9b"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.addr.String(); got != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}
		})
	}
}

func TestFrame(t *testing.T) {
	if got := string(Frame(KindTree, nil)); got != "tree 0\x00" {
		t.Errorf("got %q, want %q", got, "tree 0\x00")
	}

	f := func(kindN uint8, content []byte) bool {
		kind := Kind(kindN%3) + KindBlob
		gotKind, gotContent, err := Unframe(Frame(kind, content))
		if err != nil {
			t.Log(err)
			return false
		}
		return gotKind == kind && bytes.Equal(gotContent, content)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestUnframeErrors(t *testing.T) {
	cases := []string{
		"",
		"blob 3",
		"blob3\x00abc",
		"frob 3\x00abc",
		"blob x\x00abc",
		"blob 4\x00abc",
	}
	for _, c := range cases {
		if _, _, err := Unframe([]byte(c)); err == nil {
			t.Errorf("Unframe(%q) succeeded, want error", c)
		}
	}
}

func TestGetObject(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
	)

	addr, err := PutObject(ctx, s, KindBlob, []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if addr != ObjectAddr(KindBlob, []byte("hello")) {
		t.Errorf("PutObject returned %s, want %s", addr, ObjectAddr(KindBlob, []byte("hello")))
	}

	got, err := GetObject(ctx, s, addr, KindBlob)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want hello", got)
	}

	if _, err = GetObject(ctx, s, addr, KindTree); !errors.Is(err, ErrWrongKind) {
		t.Errorf("got error %v, want %v", err, ErrWrongKind)
	}
	if _, err = GetObject(ctx, s, EmptyTreeAddr, KindTree); !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v, want %v", err, ErrNotFound)
	}
}
