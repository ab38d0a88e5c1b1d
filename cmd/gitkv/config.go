package main

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/repo"
	"github.com/bobg/gitkv/store"
)

// loadConfig reads the config file,
// which looks like this (in YAML; JSON and TOML work too):
//
//	branch: refs/heads/main
//	author:
//	  name: Alice Author
//	  email: alice@authors.tld
//	store:
//	  type: sqlite3
//	  conn: gitkv.db
//
// Any setting can be overridden with an environment variable,
// e.g. GITKV_STORE_ROOT for store.root.
func loadConfig(filename string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("branch", "refs/heads/main")
	v.SetDefault("store.type", "file")
	v.SetDefault("store.root", ".gitkv")

	v.SetEnvPrefix("GITKV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading %s", filename)
		}
		return v, nil
	}

	v.AddConfigPath(".")
	v.SetConfigName("gitkv")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config")
		}
	}
	return v, nil
}

// storeFromConfig creates the store described by the "store" section of v.
func storeFromConfig(ctx context.Context, v *viper.Viper) (gitkv.RefStore, error) {
	sub := v.Sub("store")
	if sub == nil {
		return nil, errors.New("no store configured")
	}
	conf := sub.AllSettings()

	// Look each key up through v so environment overrides apply.
	for k := range conf {
		conf[k] = v.Get("store." + k)
	}

	typ, ok := conf["type"].(string)
	if !ok || typ == "" {
		return nil, errors.New("store config missing `type` parameter")
	}
	s, err := store.Create(ctx, typ, conf)
	return s, errors.Wrapf(err, "creating %s-type store", typ)
}

// storeFromFile creates the store described by a config file.
func storeFromFile(ctx context.Context, filename string) (gitkv.RefStore, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", filename)
	}
	return storeFromConfig(ctx, v)
}

// signature builds an author or committer signature,
// preferring flag values to the author settings in the config.
func (c maincmd) signature(name, email string) (repo.Signature, error) {
	if name == "" {
		name = c.v.GetString("author.name")
	}
	if email == "" {
		email = c.v.GetString("author.email")
	}
	if name == "" || email == "" {
		return repo.Signature{}, errors.New("author name and email required (set author.name and author.email, or use -author and -email)")
	}
	return repo.Signature{Name: name, Email: email}, nil
}

// resolve turns a hex commit address or a ref name into a commit address.
// A bare branch name like "main" is looked up as refs/heads/main.
func (c maincmd) resolve(ctx context.Context, rev string) (gitkv.Addr, error) {
	if addr, err := gitkv.AddrFromHex(rev); err == nil {
		return addr, nil
	}
	for _, name := range []string{rev, "refs/heads/" + rev} {
		addr, err := c.s.ReadRef(ctx, name)
		if err == nil {
			return addr, nil
		}
		if !errors.Is(err, gitkv.ErrDanglingRef) {
			return gitkv.Zero, err
		}
	}
	return gitkv.Zero, errors.Wrapf(gitkv.ErrDanglingRef, "cannot resolve %s", rev)
}
