package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/gitkv/repo"
)

// commit applies f to the branch and commits the result.
func (c maincmd) commit(ctx context.Context, msg, author, email string, f func(*repo.Branch) error) error {
	sig, err := c.signature(author, email)
	if err != nil {
		return err
	}

	b, err := repo.OpenBranch(ctx, c.s, c.branch)
	if err != nil {
		return errors.Wrapf(err, "opening branch %s", c.branch)
	}
	if err = f(b); err != nil {
		return err
	}
	if !b.Dirty() {
		fmt.Println("no changes")
		return nil
	}

	commit, err := b.Commit(ctx, msg, sig, sig)
	if err != nil {
		return errors.Wrap(err, "committing")
	}
	fmt.Println(commit.Addr())
	return nil
}

func (c maincmd) get(ctx context.Context, rev string, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: get [-rev REV] PATH")
	}
	if rev == "" {
		rev = c.branch
	}

	t, err := c.commitTree(ctx, rev)
	if err != nil {
		return err
	}
	data, err := t.Get(ctx, args[0])
	if err != nil {
		return errors.Wrapf(err, "getting %s", args[0])
	}
	_, err = os.Stdout.Write(data)
	return errors.Wrap(err, "writing to stdout")
}

func (c maincmd) set(ctx context.Context, msg, author, email string, args []string) error {
	var data []byte
	switch len(args) {
	case 1:
		var err error
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return errors.Wrap(err, "reading stdin")
		}
	case 2:
		data = []byte(args[1])
	default:
		return errors.New("usage: set [-m MSG] PATH [VALUE] (VALUE defaults to stdin)")
	}
	if data == nil {
		data = []byte{}
	}

	return c.commit(ctx, msg, author, email, func(b *repo.Branch) error {
		return b.Set(ctx, args[0], data)
	})
}

func (c maincmd) rm(ctx context.Context, msg, author, email string, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: rm [-m MSG] PATH...")
	}

	return c.commit(ctx, msg, author, email, func(b *repo.Branch) error {
		for _, path := range args {
			if err := b.Delete(ctx, path); err != nil {
				return errors.Wrapf(err, "deleting %s", path)
			}
		}
		return nil
	})
}

func (c maincmd) ls(ctx context.Context, args []string) error {
	var path string
	if len(args) > 0 {
		path = args[0]
	}

	b, err := repo.OpenBranch(ctx, c.s, c.branch)
	if err != nil {
		return errors.Wrapf(err, "opening branch %s", c.branch)
	}
	entries, err := b.Tree().List(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "listing %s", path)
	}
	for _, e := range entries {
		fmt.Println(e)
	}
	return nil
}
