// Package bt implements a gitkv store on Google Cloud Bigtable.
package bt

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigtable"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store"
)

var _ gitkv.RefStore = &Store{}

// Store is a Google Cloud Bigtable-backed implementation of a gitkv store.
//
// The object with address A is in row "o:<hex A>".
// The ref named N is in row "r:N",
// holding the hex address it points to.
// Ref updates are conditional mutations on the row's current value.
type Store struct {
	t *bigtable.Table
}

// Column families (and columns) used by Store.
// The table must have both families.
const (
	ObjFamily = "obj"
	RefFamily = "ref"

	objcol = "data"
	refcol = "addr"
)

var errEmptyItems = errors.New("empty items")

// New produces a new Store.
func New(t *bigtable.Table) *Store {
	return &Store{t: t}
}

// Get implements gitkv.Getter.
func (s *Store) Get(ctx context.Context, addr gitkv.Addr) ([]byte, error) {
	row, err := s.t.ReadRow(ctx, objKey(addr), bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return nil, errors.Wrapf(err, "reading row %s", addr)
	}
	if len(row) == 0 {
		return nil, gitkv.ErrNotFound
	}
	items := row[ObjFamily]
	if len(items) == 0 {
		return nil, errEmptyItems
	}
	return items[0].Value, nil
}

// GetMulti implements gitkv.MultiGetter.
func (s *Store) GetMulti(ctx context.Context, addrs []gitkv.Addr) (map[gitkv.Addr][]byte, error) {
	rowKeys := make(bigtable.RowList, len(addrs))
	for i, addr := range addrs {
		rowKeys[i] = objKey(addr)
	}

	var (
		result = make(map[gitkv.Addr][]byte)
		errmap gitkv.MultiErr
	)
	fail := func(addr gitkv.Addr, err error) {
		if errmap == nil {
			errmap = make(gitkv.MultiErr)
		}
		errmap[addr] = err
	}

	err := s.t.ReadRows(ctx, rowKeys, func(row bigtable.Row) bool {
		addr, err := addrFromKey(row.Key())
		if err != nil {
			return true
		}
		items := row[ObjFamily]
		if len(items) == 0 {
			fail(addr, errEmptyItems)
			return true
		}
		result[addr] = items[0].Value
		return true
	}, bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return nil, errors.Wrap(err, "reading rows")
	}

	for _, addr := range addrs {
		if _, ok := result[addr]; ok {
			continue
		}
		if _, ok := errmap[addr]; ok {
			continue
		}
		fail(addr, gitkv.ErrNotFound)
	}
	if errmap != nil {
		return result, errmap
	}
	return result, nil
}

// ListAddrs implements gitkv.Getter.
func (s *Store) ListAddrs(ctx context.Context, start gitkv.Addr, f func(gitkv.Addr) error) error {
	var innerErr error
	rowFn := func(row bigtable.Row) bool {
		key := row.Key()
		addr, err := addrFromKey(key)
		if err != nil {
			innerErr = errors.Wrapf(err, "extracting address from key %s", key)
			return false
		}
		if err = f(addr); err != nil {
			innerErr = err
			return false
		}
		return true
	}

	// "o;" is the first key after all "o:..." keys.
	rowRange := bigtable.NewRange(objKey(start)+"0", "o;")
	filter := bigtable.ChainFilters(bigtable.LatestNFilter(1), bigtable.StripValueFilter())
	if err := s.t.ReadRows(ctx, rowRange, rowFn, bigtable.RowFilter(filter)); err != nil {
		return errors.Wrap(err, "reading rows")
	}
	return innerErr
}

// Put implements gitkv.Store.
func (s *Store) Put(ctx context.Context, b []byte) (gitkv.Addr, bool, error) {
	mut := bigtable.NewMutation()
	mut.Set(ObjFamily, objcol, bigtable.Now(), b)

	cmut := bigtable.NewCondMutation(bigtable.LatestNFilter(1), nil, mut)

	var (
		alreadyPresent bool
		addr           = gitkv.Hash(b)
	)
	err := s.t.Apply(ctx, objKey(addr), cmut, bigtable.GetCondMutationResult(&alreadyPresent))
	if err != nil {
		return gitkv.Zero, false, errors.Wrapf(err, "writing %s", addr)
	}
	return addr, !alreadyPresent, nil
}

// CreateRef implements gitkv.RefStore.
func (s *Store) CreateRef(ctx context.Context, name string, addr gitkv.Addr) error {
	mut := bigtable.NewMutation()
	mut.Set(RefFamily, refcol, bigtable.Now(), []byte(addr.String()))

	cmut := bigtable.NewCondMutation(bigtable.FamilyFilter(RefFamily), nil, mut)

	var exists bool
	if err := s.t.Apply(ctx, refKey(name), cmut, bigtable.GetCondMutationResult(&exists)); err != nil {
		return errors.Wrapf(err, "creating ref %s", name)
	}
	if exists {
		return errors.Wrapf(gitkv.ErrRefExists, "ref %s", name)
	}
	return nil
}

// ReadRef implements gitkv.RefGetter.
func (s *Store) ReadRef(ctx context.Context, name string) (gitkv.Addr, error) {
	row, err := s.t.ReadRow(ctx, refKey(name), bigtable.RowFilter(refFilter()))
	if err != nil {
		return gitkv.Zero, errors.Wrapf(err, "reading ref %s", name)
	}
	items := row[RefFamily]
	if len(items) == 0 {
		return gitkv.Zero, errors.Wrapf(gitkv.ErrDanglingRef, "ref %s", name)
	}
	addr, err := gitkv.AddrFromHex(string(items[0].Value))
	return addr, errors.Wrapf(err, "parsing ref %s", name)
}

// CompareAndSetRef implements gitkv.RefStore.
func (s *Store) CompareAndSetRef(ctx context.Context, name string, expected, next gitkv.Addr) (bool, error) {
	mut := bigtable.NewMutation()
	mut.DeleteCellsInColumn(RefFamily, refcol)
	mut.Set(RefFamily, refcol, bigtable.Now(), []byte(next.String()))

	// Hex addresses contain no regexp metacharacters.
	cond := bigtable.ChainFilters(refFilter(), bigtable.ValueFilter(expected.String()))
	cmut := bigtable.NewCondMutation(cond, mut, nil)

	var matched bool
	if err := s.t.Apply(ctx, refKey(name), cmut, bigtable.GetCondMutationResult(&matched)); err != nil {
		return false, errors.Wrapf(err, "updating ref %s", name)
	}
	if matched {
		return true, nil
	}

	// Distinguish a stale expectation from a missing ref.
	if _, err := s.ReadRef(ctx, name); err != nil {
		return false, err
	}
	return false, nil
}

// ListRefs implements gitkv.RefGetter.
func (s *Store) ListRefs(ctx context.Context, f func(string, gitkv.Addr) error) error {
	var innerErr error
	rowFn := func(row bigtable.Row) bool {
		key := row.Key()
		items := row[RefFamily]
		if len(items) == 0 {
			return true
		}
		addr, err := gitkv.AddrFromHex(string(items[0].Value))
		if err != nil {
			innerErr = errors.Wrapf(err, "parsing ref in row %s", key)
			return false
		}
		if err = f(key[len(refPrefix):], addr); err != nil {
			innerErr = err
			return false
		}
		return true
	}

	err := s.t.ReadRows(ctx, bigtable.PrefixRange(refPrefix), rowFn, bigtable.RowFilter(refFilter()))
	if err != nil {
		return errors.Wrap(err, "reading rows")
	}
	return innerErr
}

func refFilter() bigtable.Filter {
	return bigtable.ChainFilters(
		bigtable.FamilyFilter(RefFamily),
		bigtable.ColumnFilter(refcol),
		bigtable.LatestNFilter(1),
	)
}

const (
	objPrefix = "o:"
	refPrefix = "r:"
)

func objKey(addr gitkv.Addr) string {
	return fmt.Sprintf("%s%x", objPrefix, addr[:])
}

func addrFromKey(key string) (gitkv.Addr, error) {
	if len(key) < len(objPrefix) || key[:len(objPrefix)] != objPrefix {
		return gitkv.Zero, errors.Errorf("not an object key: %s", key)
	}
	return gitkv.AddrFromHex(key[len(objPrefix):])
}

func refKey(name string) string {
	return refPrefix + name
}

func init() {
	store.Register("bt", func(ctx context.Context, conf map[string]interface{}) (gitkv.RefStore, error) {
		project, err := store.StringParam(conf, "project")
		if err != nil {
			return nil, err
		}
		instance, err := store.StringParam(conf, "instance")
		if err != nil {
			return nil, err
		}
		table, err := store.StringParam(conf, "table")
		if err != nil {
			return nil, err
		}
		creds, err := store.StringParam(conf, "creds")
		if err != nil {
			return nil, err
		}

		c, err := bigtable.NewClient(ctx, project, instance, option.WithCredentialsFile(creds))
		if err != nil {
			return nil, errors.Wrap(err, "creating bigtable client")
		}
		return New(c.Open(table)), nil
	})
}
