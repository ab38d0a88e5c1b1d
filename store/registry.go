// Package store holds a registry of object-store backends
// and utilities that operate on any of them.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/bobg/gitkv"
)

// Factory creates a store from a configuration map.
type Factory func(context.Context, map[string]interface{}) (gitkv.RefStore, error)

var registry = make(map[string]Factory)

// Register makes a store type available to Create.
// Backend packages call it from their init functions.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create creates a store of the registered type key.
func Create(ctx context.Context, key string, conf map[string]interface{}) (gitkv.RefStore, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("unknown store type %q (known types: %s)", key, strings.Join(Types(), ", "))
	}
	return f(ctx, conf)
}

// Types lists the registered store types.
func Types() []string {
	var out []string
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CreateNested creates the store described by conf["nested"],
// for store types that wrap another store.
func CreateNested(ctx context.Context, conf map[string]interface{}) (gitkv.RefStore, error) {
	nested, err := cast.ToStringMapE(conf["nested"])
	if err != nil {
		return nil, errors.Wrap(err, `parsing "nested" parameter`)
	}
	if len(nested) == 0 {
		return nil, errors.New(`missing "nested" parameter`)
	}
	nestedType, ok := nested["type"].(string)
	if !ok {
		return nil, errors.New(`"nested" parameter missing "type"`)
	}
	s, err := Create(ctx, nestedType, nested)
	return s, errors.Wrap(err, "creating nested store")
}

// StringParam gets a required string value from a configuration map.
func StringParam(conf map[string]interface{}, key string) (string, error) {
	v, ok := conf[key]
	if !ok {
		return "", fmt.Errorf("missing %q parameter", key)
	}
	s, err := cast.ToStringE(v)
	return s, errors.Wrapf(err, "parsing %q parameter", key)
}

// IntParam gets a required integer value from a configuration map.
// JSON numbers, YAML integers, and numeric strings are all accepted.
func IntParam(conf map[string]interface{}, key string) (int, error) {
	v, ok := conf[key]
	if !ok {
		return 0, fmt.Errorf("missing %q parameter", key)
	}
	n, err := cast.ToIntE(v)
	return n, errors.Wrapf(err, "parsing %q parameter", key)
}

// BoolParam gets an optional boolean value from a configuration map.
func BoolParam(conf map[string]interface{}, key string) (bool, error) {
	v, ok := conf[key]
	if !ok {
		return false, nil
	}
	b, err := cast.ToBoolE(v)
	return b, errors.Wrapf(err, "parsing %q parameter", key)
}
