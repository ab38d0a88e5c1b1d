// Package repo implements commits, their history, and branches:
// named refs that move from commit to commit.
package repo

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/tree"
)

// Signature identifies the author or committer of a commit.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// ErrInvalidSignature is the error returned when writing a commit
// whose author or committer cannot be encoded in a commit header.
var ErrInvalidSignature = errors.New("invalid signature")

// check ensures sig survives encoding and decoding.
// Name and email may not contain angle brackets, newlines, or NULs.
func (sig Signature) check() error {
	for _, field := range []string{sig.Name, sig.Email} {
		if strings.ContainsAny(field, "<>\n\x00") {
			return errors.Wrapf(ErrInvalidSignature, "%q", field)
		}
	}
	return nil
}

func (sig Signature) String() string {
	_, offset := sig.When.Zone()
	return fmt.Sprintf("%s <%s> %d %s", sig.Name, sig.Email, sig.When.Unix(), formatZone(offset))
}

// formatZone renders a UTC offset in seconds as ±hhmm.
func formatZone(offset int) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d%02d", sign, offset/3600, (offset%3600)/60)
}

func parseSignature(s string) (Signature, error) {
	lt := strings.LastIndexByte(s, '<')
	gt := strings.LastIndexByte(s, '>')
	if lt < 0 || gt < lt {
		return Signature{}, fmt.Errorf("malformed signature %q", s)
	}
	sig := Signature{
		Name:  strings.TrimSuffix(s[:lt], " "),
		Email: s[lt+1 : gt],
	}

	fields := strings.Fields(s[gt+1:])
	if len(fields) != 2 {
		return Signature{}, fmt.Errorf("malformed signature time %q", s[gt+1:])
	}
	secs, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, errors.Wrapf(err, "parsing signature time %q", fields[0])
	}
	zone := fields[1]
	if len(zone) != 5 || (zone[0] != '+' && zone[0] != '-') {
		return Signature{}, fmt.Errorf("malformed signature zone %q", zone)
	}
	hh, err := strconv.Atoi(zone[1:3])
	if err != nil {
		return Signature{}, errors.Wrapf(err, "parsing signature zone %q", zone)
	}
	mm, err := strconv.Atoi(zone[3:])
	if err != nil {
		return Signature{}, errors.Wrapf(err, "parsing signature zone %q", zone)
	}
	offset := hh*3600 + mm*60
	if zone[0] == '-' {
		offset = -offset
	}
	sig.When = time.Unix(secs, 0).In(time.FixedZone("", offset))
	return sig, nil
}

// Commit is an immutable record of a tree,
// the commits it descends from,
// and who made it and why.
//
// The With methods return modified copies.
// A Commit produced by LoadCommit or Write knows its own address;
// any modification forgets it.
type Commit struct {
	addr      gitkv.Addr
	tree      gitkv.Addr
	parents   []gitkv.Addr
	author    Signature
	committer Signature
	message   string
}

// NewCommit produces an unwritten Commit of the given tree,
// with no parents.
func NewCommit(treeAddr gitkv.Addr, author, committer Signature, message string) *Commit {
	return &Commit{
		tree:      treeAddr,
		author:    author,
		committer: committer,
		message:   message,
	}
}

func (c *Commit) clone() *Commit {
	out := *c
	out.addr = gitkv.Zero
	out.parents = append([]gitkv.Addr(nil), c.parents...)
	return &out
}

// WithMessage returns a copy of c with a different message.
func (c *Commit) WithMessage(msg string) *Commit {
	out := c.clone()
	out.message = msg
	return out
}

// WithParents returns a copy of c with different parents.
func (c *Commit) WithParents(parents ...gitkv.Addr) *Commit {
	out := c.clone()
	out.parents = append([]gitkv.Addr(nil), parents...)
	return out
}

// WithAuthor returns a copy of c with a different author.
func (c *Commit) WithAuthor(sig Signature) *Commit {
	out := c.clone()
	out.author = sig
	return out
}

// WithCommitter returns a copy of c with a different committer.
func (c *Commit) WithCommitter(sig Signature) *Commit {
	out := c.clone()
	out.committer = sig
	return out
}

// WithTree returns a copy of c with a different tree.
func (c *Commit) WithTree(treeAddr gitkv.Addr) *Commit {
	out := c.clone()
	out.tree = treeAddr
	return out
}

// Addr is the address of c.
// It is the zero Addr if c has not been written or loaded.
func (c *Commit) Addr() gitkv.Addr { return c.addr }

// TreeAddr is the address of c's root tree.
func (c *Commit) TreeAddr() gitkv.Addr { return c.tree }

// Parents returns the addresses of c's parent commits.
func (c *Commit) Parents() []gitkv.Addr {
	return append([]gitkv.Addr(nil), c.parents...)
}

// Author returns the author of c.
func (c *Commit) Author() Signature { return c.author }

// Committer returns the committer of c.
func (c *Commit) Committer() Signature { return c.committer }

// Message returns the commit message of c.
func (c *Commit) Message() string { return c.message }

func (c *Commit) String() string {
	return fmt.Sprintf("Commit{addr: %s, tree: %s, parents: %d, message: %q}", c.addr, c.tree, len(c.parents), c.message)
}

// Tree loads the root tree of c.
func (c *Commit) Tree(ctx context.Context, s gitkv.Store) (*tree.Tree, error) {
	return tree.Load(ctx, s, c.tree)
}

// Write stores c and returns a copy that knows its address.
// It returns ErrInvalidSignature,
// without storing anything,
// if the author or committer cannot be encoded.
func (c *Commit) Write(ctx context.Context, s gitkv.Store) (*Commit, error) {
	if err := c.author.check(); err != nil {
		return nil, errors.Wrap(err, "author")
	}
	if err := c.committer.check(); err != nil {
		return nil, errors.Wrap(err, "committer")
	}
	addr, err := gitkv.PutObject(ctx, s, gitkv.KindCommit, c.encode())
	if err != nil {
		return nil, err
	}
	out := c.clone()
	out.addr = addr
	return out, nil
}

func (c *Commit) encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.tree)
	for _, p := range c.parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.author)
	fmt.Fprintf(&buf, "committer %s\n", c.committer)
	buf.WriteByte('\n')
	buf.WriteString(c.message)
	return buf.Bytes()
}

// LoadCommit loads the commit at addr.
func LoadCommit(ctx context.Context, g gitkv.Getter, addr gitkv.Addr) (*Commit, error) {
	content, err := gitkv.GetObject(ctx, g, addr, gitkv.KindCommit)
	if err != nil {
		return nil, err
	}
	c, err := decodeCommit(content)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding commit %s", addr)
	}
	c.addr = addr
	return c, nil
}

func decodeCommit(content []byte) (*Commit, error) {
	var (
		c       = new(Commit)
		sawTree bool
	)

	for {
		nl := bytes.IndexByte(content, '\n')
		if nl < 0 {
			return nil, errors.New("commit header not terminated")
		}
		line := string(content[:nl])
		content = content[nl+1:]
		if line == "" {
			break
		}

		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("malformed commit header line %q", line)
		}

		var err error
		switch key {
		case "tree":
			err = errors.Wrap(c.tree.FromHex(val), "parsing tree address")
			sawTree = true
		case "parent":
			var p gitkv.Addr
			err = errors.Wrap(p.FromHex(val), "parsing parent address")
			c.parents = append(c.parents, p)
		case "author":
			c.author, err = parseSignature(val)
			err = errors.Wrap(err, "parsing author")
		case "committer":
			c.committer, err = parseSignature(val)
			err = errors.Wrap(err, "parsing committer")
		}
		if err != nil {
			return nil, err
		}
	}
	if !sawTree {
		return nil, errors.New("commit has no tree")
	}

	c.message = string(content)
	return c, nil
}
