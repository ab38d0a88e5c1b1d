package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/gitkv/repo"
	"github.com/bobg/gitkv/tree"
)

func (c maincmd) log(ctx context.Context, limit int, args []string) error {
	rev := c.branch
	if len(args) > 0 {
		rev = args[0]
	}
	addr, err := c.resolve(ctx, rev)
	if err != nil {
		return err
	}

	var n int
	return repo.Log(ctx, c.s, addr, func(commit *repo.Commit) error {
		if limit > 0 && n >= limit {
			return repo.ErrStop
		}
		n++

		author := commit.Author()
		fmt.Printf("commit %s\n", commit.Addr())
		fmt.Printf("Author: %s <%s>\n", author.Name, author.Email)
		fmt.Printf("Date:   %s\n\n", author.When.Format("Mon Jan 2 15:04:05 2006 -0700"))
		for _, line := range strings.Split(strings.TrimRight(commit.Message(), "\n"), "\n") {
			fmt.Printf("    %s\n", line)
		}
		fmt.Println()
		return nil
	})
}

func (c maincmd) diff(ctx context.Context, args []string) error {
	var a, b *tree.Tree
	switch len(args) {
	case 0:
		head, err := c.commitTree(ctx, c.branch)
		if err != nil {
			return err
		}
		b = head
		a, err = c.parentTree(ctx, c.branch)
		if err != nil {
			return err
		}

	case 1, 2:
		var err error
		a, err = c.commitTree(ctx, args[0])
		if err != nil {
			return err
		}
		other := c.branch
		if len(args) == 2 {
			other = args[1]
		}
		b, err = c.commitTree(ctx, other)
		if err != nil {
			return err
		}

	default:
		return errors.New("usage: diff [A [B]]")
	}

	changes, err := tree.Changes(ctx, a, b)
	if err != nil {
		return errors.Wrap(err, "computing diff")
	}
	for _, ch := range changes {
		switch {
		case ch.A == nil:
			fmt.Printf("+ %s\n", ch.Path)
		case ch.B == nil:
			fmt.Printf("- %s\n", ch.Path)
		default:
			fmt.Printf("M %s\n", ch.Path)
		}
	}
	return nil
}

// commitTree loads the tree of the commit that rev names.
func (c maincmd) commitTree(ctx context.Context, rev string) (*tree.Tree, error) {
	addr, err := c.resolve(ctx, rev)
	if err != nil {
		return nil, err
	}
	commit, err := repo.LoadCommit(ctx, c.s, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "loading commit %s", addr)
	}
	t, err := commit.Tree(ctx, c.s)
	return t, errors.Wrapf(err, "loading tree of %s", addr)
}

// parentTree loads the tree of the first parent of the commit that rev names,
// or the empty tree for a root commit.
func (c maincmd) parentTree(ctx context.Context, rev string) (*tree.Tree, error) {
	addr, err := c.resolve(ctx, rev)
	if err != nil {
		return nil, err
	}
	commit, err := repo.LoadCommit(ctx, c.s, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "loading commit %s", addr)
	}
	parents := commit.Parents()
	if len(parents) == 0 {
		return tree.Empty(c.s), nil
	}
	return c.commitTree(ctx, parents[0].String())
}

