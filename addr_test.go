package gitkv_test

import (
	"testing"
	"testing/quick"

	. "github.com/bobg/gitkv"
)

func TestAddrHex(t *testing.T) {
	f := func(b [32]byte) bool {
		a := Addr(b)
		got, err := AddrFromHex(a.String())
		if err != nil {
			t.Log(err)
			return false
		}
		return got == a
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}

	for _, bad := range []string{"", "abc", EmptyTreeAddr.String() + "00", "zz" + EmptyTreeAddr.String()[2:]} {
		if _, err := AddrFromHex(bad); err == nil {
			t.Errorf("AddrFromHex(%q) succeeded, want error", bad)
		}
	}
}

func TestAddrSQL(t *testing.T) {
	v, err := EmptyBlobAddr.Value()
	if err != nil {
		t.Fatal(err)
	}

	var got Addr
	if err = got.Scan(v); err != nil {
		t.Fatal(err)
	}
	if got != EmptyBlobAddr {
		t.Errorf("got %s, want %s", got, EmptyBlobAddr)
	}

	if err = got.Scan("not bytes"); err == nil {
		t.Error("scanning a string succeeded, want error")
	}
	if err = got.Scan([]byte{1, 2, 3}); err == nil {
		t.Error("scanning a short value succeeded, want error")
	}
}

func TestAddrLess(t *testing.T) {
	var a, b Addr
	b[31] = 1
	if !a.Less(b) || b.Less(a) || a.Less(a) {
		t.Error("Less is not a strict order")
	}
	if !a.IsZero() || b.IsZero() {
		t.Error("IsZero is wrong")
	}
}
