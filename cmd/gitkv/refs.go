package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/repo"
)

func (c maincmd) init(ctx context.Context, msg, author, email string, _ []string) error {
	sig, err := c.signature(author, email)
	if err != nil {
		return err
	}
	commit, err := repo.Init(ctx, c.s, c.branch, sig, msg)
	if err != nil {
		return errors.Wrapf(err, "initializing %s", c.branch)
	}
	fmt.Println(commit.Addr())
	return nil
}

func (c maincmd) createBranch(ctx context.Context, from string, force bool, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: branch [-from REV] [-force] NAME")
	}

	src := from
	if src == "" {
		src = c.branch
	}
	addr, err := c.resolve(ctx, src)
	if err != nil {
		return err
	}

	b, err := repo.CreateBranch(ctx, c.s, branchRef(args[0]), addr, force)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", b.Name(), b.Base())
	return nil
}

// branchRef qualifies a bare branch name with refs/heads/.
func branchRef(name string) string {
	if strings.HasPrefix(name, "refs/") {
		return name
	}
	return "refs/heads/" + name
}

func (c maincmd) refs(ctx context.Context, _ []string) error {
	return c.s.ListRefs(ctx, func(name string, addr gitkv.Addr) error {
		fmt.Printf("%s %s\n", addr, name)
		return nil
	})
}
