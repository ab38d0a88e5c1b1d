// Command gitkv reads and writes a gitkv namespace from the command line.
//
// Usage:
//
//	gitkv [-config FILE] [-branch REF] [-v] SUBCOMMAND ARGS...
//
// Subcommands are init, get, set, rm, ls, log, diff, branch, refs, and sync.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/bobg/subcmd"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/bobg/gitkv"
	_ "github.com/bobg/gitkv/store/bt"
	_ "github.com/bobg/gitkv/store/file"
	_ "github.com/bobg/gitkv/store/gcs"
	_ "github.com/bobg/gitkv/store/logging"
	_ "github.com/bobg/gitkv/store/lru"
	_ "github.com/bobg/gitkv/store/mem"
	_ "github.com/bobg/gitkv/store/pg"
	_ "github.com/bobg/gitkv/store/replica"
	_ "github.com/bobg/gitkv/store/sqlite3"
)

type maincmd struct {
	s      gitkv.RefStore
	branch string
	v      *viper.Viper
}

func main() {
	var (
		config  = flag.String("config", "", "path to config file (default: gitkv.yaml in the current directory)")
		branch  = flag.String("branch", "", "ref to operate on (default: the branch config setting, or refs/heads/main)")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	v, err := loadConfig(*config)
	if err != nil {
		logrus.WithError(err).Fatal("loading config")
	}
	if *branch != "" {
		v.Set("branch", *branch)
	}

	ctx := context.Background()

	s, err := storeFromConfig(ctx, v)
	if err != nil {
		logrus.WithError(err).Fatal("creating store")
	}

	c := maincmd{s: s, branch: v.GetString("branch"), v: v}
	if err = subcmd.Run(ctx, c, flag.Args()); err != nil {
		logrus.WithError(err).Error("gitkv")
		os.Exit(1)
	}
}

const (
	authorDoc = "author name (default: author.name config setting)"
	emailDoc  = "author email (default: author.email config setting)"
)

func (c maincmd) Subcmds() subcmd.Map {
	return subcmd.Commands(
		"branch", c.createBranch, subcmd.Params(
			"from", subcmd.String, "", "commit or ref to start from (default: the current branch)",
			"force", subcmd.Bool, false, "repoint the branch if it already exists",
		),
		"diff", c.diff, nil,
		"get", c.get, subcmd.Params(
			"rev", subcmd.String, "", "commit or ref to read from (default: the branch)",
		),
		"init", c.init, subcmd.Params(
			"m", subcmd.String, "init", "commit message",
			"author", subcmd.String, "", authorDoc,
			"email", subcmd.String, "", emailDoc,
		),
		"log", c.log, subcmd.Params(
			"n", subcmd.Int, 0, "show at most this many commits (0 for all)",
		),
		"ls", c.ls, nil,
		"refs", c.refs, nil,
		"rm", c.rm, subcmd.Params(
			"m", subcmd.String, "rm", "commit message",
			"author", subcmd.String, "", authorDoc,
			"email", subcmd.String, "", emailDoc,
		),
		"set", c.set, subcmd.Params(
			"m", subcmd.String, "set", "commit message",
			"author", subcmd.String, "", authorDoc,
			"email", subcmd.String, "", emailDoc,
		),
		"sync", c.sync, nil,
	)
}
