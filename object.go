package gitkv

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
)

// Kind is the type of a stored object.
type Kind int

const (
	KindBlob Kind = iota + 1
	KindTree
	KindCommit
)

func (k Kind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindTree:
		return "tree"
	case KindCommit:
		return "commit"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func kindFromString(s string) (Kind, bool) {
	switch s {
	case "blob":
		return KindBlob, true
	case "tree":
		return KindTree, true
	case "commit":
		return KindCommit, true
	}
	return 0, false
}

// Frame produces the serialized form of an object:
// "<kind> <length>\x00<content>".
// An object's Addr is the hash of this.
func Frame(kind Kind, content []byte) []byte {
	header := fmt.Sprintf("%s %d\x00", kind, len(content))
	out := make([]byte, 0, len(header)+len(content))
	out = append(out, header...)
	return append(out, content...)
}

// Unframe parses the output of Frame.
// The returned content aliases b.
func Unframe(b []byte) (Kind, []byte, error) {
	nul := bytes.IndexByte(b, 0)
	if nul < 0 {
		return 0, nil, errors.New("missing object header")
	}
	header := string(b[:nul])
	sp := bytes.IndexByte(b[:nul], ' ')
	if sp < 0 {
		return 0, nil, fmt.Errorf("malformed object header %q", header)
	}
	kind, ok := kindFromString(header[:sp])
	if !ok {
		return 0, nil, fmt.Errorf("unknown object kind in header %q", header)
	}
	size, err := strconv.Atoi(header[sp+1:])
	if err != nil {
		return 0, nil, errors.Wrapf(err, "parsing size in header %q", header)
	}
	content := b[nul+1:]
	if size != len(content) {
		return 0, nil, fmt.Errorf("%s object has %d content bytes, header says %d", kind, len(content), size)
	}
	return kind, content, nil
}

// ObjectAddr computes the Addr of an object without storing it.
func ObjectAddr(kind Kind, content []byte) Addr {
	return Hash(Frame(kind, content))
}

var (
	// EmptyTreeAddr is the address of the tree with no entries:
	// 6ef19b41225c5369f1c104d45d8d85efa9b057b53b14b4b9b939dd74decc5321.
	EmptyTreeAddr = ObjectAddr(KindTree, nil)

	// EmptyBlobAddr is the address of the zero-length blob:
	// 473a0f4c3be8a93681a267e3b1e9a7dcda1185436fe141f7749120a303721813.
	EmptyBlobAddr = ObjectAddr(KindBlob, nil)
)

// PutObject frames content as an object of the given kind and stores it.
func PutObject(ctx context.Context, s Store, kind Kind, content []byte) (Addr, error) {
	addr, _, err := s.Put(ctx, Frame(kind, content))
	return addr, errors.Wrapf(err, "storing %s", kind)
}

// GetObject reads the object at addr and returns its content.
// It returns ErrWrongKind if the object is not of the wanted kind.
func GetObject(ctx context.Context, g Getter, addr Addr, want Kind) ([]byte, error) {
	b, err := g.Get(ctx, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "getting %s %s", want, addr)
	}
	kind, content, err := Unframe(b)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding object %s", addr)
	}
	if kind != want {
		return nil, errors.Wrapf(ErrWrongKind, "object %s is a %s, not a %s", addr, kind, want)
	}
	return content, nil
}
