package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store"
)

// sync copies objects among the configured store and the stores described by the given config files
// until each has every object.
// Refs are not copied.
func (c maincmd) sync(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: sync CONFIGFILE...")
	}

	stores := []gitkv.Store{c.s}
	for _, filename := range args {
		s, err := storeFromFile(ctx, filename)
		if err != nil {
			return err
		}
		stores = append(stores, s)
	}

	return store.Sync(ctx, stores)
}
