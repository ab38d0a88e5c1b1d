// Package sqlite3 implements a gitkv store in a Sqlite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/gitkv"
	"github.com/bobg/gitkv/store"
)

var _ gitkv.RefStore = &Store{}

// Store is a Sqlite-based object store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `objects` and `refs` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS objects (
  addr BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS refs (
  name TEXT PRIMARY KEY NOT NULL,
  addr BLOB NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create tables `objects` and `refs`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, errors.Wrap(err, "creating schema")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get gets the object with address `addr`.
func (s *Store) Get(ctx context.Context, addr gitkv.Addr) ([]byte, error) {
	const q = `SELECT data FROM objects WHERE addr = $1`

	var b []byte
	err := s.db.QueryRowContext(ctx, q, addr).Scan(&b)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, gitkv.ErrNotFound
	}
	return b, errors.Wrapf(err, "getting object %s", addr)
}

// Put adds an object to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b []byte) (gitkv.Addr, bool, error) {
	const q = `INSERT INTO objects (addr, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	addr := gitkv.Hash(b)
	res, err := s.db.ExecContext(ctx, q, addr, b)
	if err != nil {
		return gitkv.Zero, false, errors.Wrap(err, "inserting object")
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return gitkv.Zero, false, errors.Wrap(err, "counting affected rows")
	}

	return addr, aff > 0, nil
}

// ListAddrs produces all object addresses in the store, in lexicographic order.
func (s *Store) ListAddrs(ctx context.Context, start gitkv.Addr, f func(gitkv.Addr) error) error {
	const q = `SELECT addr FROM objects WHERE addr > $1 ORDER BY addr`
	return sqlutil.ForQueryRows(ctx, s.db, q, start, f)
}

// CreateRef implements gitkv.RefStore.
func (s *Store) CreateRef(ctx context.Context, name string, addr gitkv.Addr) error {
	const q = `INSERT INTO refs (name, addr) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	res, err := s.db.ExecContext(ctx, q, name, addr)
	if err != nil {
		return errors.Wrapf(err, "inserting ref %s", name)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if aff == 0 {
		return errors.Wrapf(gitkv.ErrRefExists, "ref %s", name)
	}
	return nil
}

// ReadRef implements gitkv.RefGetter.
func (s *Store) ReadRef(ctx context.Context, name string) (gitkv.Addr, error) {
	const q = `SELECT addr FROM refs WHERE name = $1`

	var addr gitkv.Addr
	err := s.db.QueryRowContext(ctx, q, name).Scan(&addr)
	if stderrs.Is(err, sql.ErrNoRows) {
		return gitkv.Zero, errors.Wrapf(gitkv.ErrDanglingRef, "ref %s", name)
	}
	return addr, errors.Wrapf(err, "reading ref %s", name)
}

// CompareAndSetRef implements gitkv.RefStore.
// The conditional UPDATE is atomic in Sqlite.
func (s *Store) CompareAndSetRef(ctx context.Context, name string, expected, next gitkv.Addr) (bool, error) {
	const q = `UPDATE refs SET addr = $1 WHERE name = $2 AND addr = $3`

	res, err := s.db.ExecContext(ctx, q, next, name, expected)
	if err != nil {
		return false, errors.Wrapf(err, "updating ref %s", name)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "counting affected rows")
	}
	if aff > 0 {
		return true, nil
	}

	// Distinguish a stale expectation from a missing ref.
	if _, err = s.ReadRef(ctx, name); err != nil {
		return false, err
	}
	return false, nil
}

// ListRefs implements gitkv.RefGetter.
func (s *Store) ListRefs(ctx context.Context, f func(string, gitkv.Addr) error) error {
	const q = `SELECT name, addr FROM refs ORDER BY name`
	return sqlutil.ForQueryRows(ctx, s.db, q, f)
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (gitkv.RefStore, error) {
		conn, err := store.StringParam(conf, "conn")
		if err != nil {
			return nil, err
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
