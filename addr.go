package gitkv

import (
	"bytes"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// Addr is the address of an object: the sha256 hash of its framed bytes.
type Addr [sha256.Size]byte

// Zero is the zero value of an Addr.
var Zero Addr

// Hash computes the Addr of a byte sequence.
func Hash(b []byte) Addr {
	return sha256.Sum256(b)
}

func (a Addr) String() string {
	return hex.EncodeToString(a[:])
}

// Less tells whether a sorts before other.
func (a Addr) Less(other Addr) bool {
	return bytes.Compare(a[:], other[:]) < 0
}

// IsZero tells whether a is the zero Addr.
func (a Addr) IsZero() bool {
	return a == Zero
}

// FromHex parses the hex string s into a.
func (a *Addr) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return errors.New("wrong length")
	}
	_, err := hex.Decode(a[:], []byte(s))
	return err
}

// AddrFromBytes copies b into a new Addr.
func AddrFromBytes(b []byte) Addr {
	var out Addr
	copy(out[:], b)
	return out
}

// AddrFromHex parses a hex string into an Addr.
func AddrFromHex(s string) (Addr, error) {
	var out Addr
	err := out.FromHex(s)
	return out, err
}

// Value implements driver.Valuer.
func (a Addr) Value() (driver.Value, error) {
	return a[:], nil
}

// Scan implements sql.Scanner.
func (a *Addr) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into Addr", src)
	}
	if len(b) != len(a) {
		return fmt.Errorf("cannot scan %d bytes into Addr", len(b))
	}
	*a = AddrFromBytes(b)
	return nil
}
