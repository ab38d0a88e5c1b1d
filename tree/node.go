package tree

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/gitkv"
)

const (
	modeBlob = "100644"
	modeTree = "40000"
)

// Entry is one named member of a tree node.
type Entry struct {
	Name string
	Kind gitkv.Kind
	Addr gitkv.Addr
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %s", e.Kind, e.Addr, e.Name)
}

// sortKey orders entries the way git does:
// subtree names compare as if they ended in a slash.
func (e Entry) sortKey() string {
	if e.Kind == gitkv.KindTree {
		return e.Name + "/"
	}
	return e.Name
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].sortKey() < entries[j].sortKey()
	})
}

// encode produces the content of a tree object.
// Entries must already be sorted.
func encode(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		if e.Kind == gitkv.KindTree {
			buf.WriteString(modeTree)
		} else {
			buf.WriteString(modeBlob)
		}
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.Addr[:])
	}
	return buf.Bytes()
}

func decode(content []byte) ([]Entry, error) {
	var entries []Entry
	for len(content) > 0 {
		sp := bytes.IndexByte(content, ' ')
		if sp < 0 {
			return nil, errors.New("tree entry missing mode")
		}
		var kind gitkv.Kind
		switch mode := string(content[:sp]); mode {
		case modeTree:
			kind = gitkv.KindTree
		case modeBlob, "100755":
			kind = gitkv.KindBlob
		default:
			return nil, fmt.Errorf("unsupported tree entry mode %s", mode)
		}
		content = content[sp+1:]

		nul := bytes.IndexByte(content, 0)
		if nul < 0 {
			return nil, errors.New("tree entry missing name terminator")
		}
		name := string(content[:nul])
		content = content[nul+1:]

		if len(content) < len(gitkv.Zero) {
			return nil, fmt.Errorf("tree entry %s truncated", name)
		}
		addr := gitkv.AddrFromBytes(content[:len(gitkv.Zero)])
		content = content[len(gitkv.Zero):]

		entries = append(entries, Entry{Name: name, Kind: kind, Addr: addr})
	}
	return entries, nil
}

func validName(name string) bool {
	switch name {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsAny(name, "/\x00")
}

// splitPath parses a slash-delimited path.
// The empty path yields no segments.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	segs := strings.Split(path, "/")
	for _, seg := range segs {
		if !validName(seg) {
			return nil, errors.Wrapf(gitkv.ErrInvalidPath, "path %q", path)
		}
	}
	return segs, nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
