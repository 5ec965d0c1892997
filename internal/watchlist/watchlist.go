// Package watchlist is a local sqlite registry of ledger keys whose
// expiration the user wants checked alongside the pool's own storage. It
// stores how to derive each key, never ledger state.
package watchlist

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/dotandev/sorolend/internal/keys"
)

type Kind string

const (
	// KindSymbol is Vec[Symbol(Name)] in Contract's storage.
	KindSymbol Kind = "symbol"
	// KindNamedAddress is Vec[Symbol(Name), Address(Address)].
	KindNamedAddress Kind = "named-address"
	KindInstance     Kind = "instance"
	KindCode         Kind = "code"
	// KindRaw is a base64 XDR ledger key kept verbatim in RawKey.
	KindRaw Kind = "raw"
)

var (
	ErrDuplicateLabel = errors.New("label already watched")
	ErrNotFound       = errors.New("label not watched")
)

const schema = `
CREATE TABLE IF NOT EXISTS watched_keys (
	label      TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	contract   TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	address    TEXT NOT NULL DEFAULT '',
	raw_key    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
)`

type Entry struct {
	Label     string
	Kind      Kind
	Contract  string
	Name      string
	Address   string
	RawKey    string
	CreatedAt time.Time
}

// Validate checks that e carries the fields its kind needs.
func (e Entry) Validate() error {
	if e.Label == "" {
		return errors.New("entry has no label")
	}
	switch e.Kind {
	case KindSymbol:
		if e.Contract == "" || e.Name == "" {
			return errors.Errorf("%s entry needs a contract and a name", e.Kind)
		}
	case KindNamedAddress:
		if e.Contract == "" || e.Name == "" || e.Address == "" {
			return errors.Errorf("%s entry needs a contract, a name and an address", e.Kind)
		}
	case KindInstance, KindCode:
		if e.Contract == "" {
			return errors.Errorf("%s entry needs a contract", e.Kind)
		}
	case KindRaw:
		if e.RawKey == "" {
			return errors.New("raw entry needs a key")
		}
	default:
		return errors.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

// Descriptor derives the ledger key e names. Only code entries read from r.
func (e Entry) Descriptor(ctx context.Context, r keys.EntryReader) (keys.Descriptor, error) {
	switch e.Kind {
	case KindSymbol, KindNamedAddress:
		codec, err := keys.NewCodec(e.Contract)
		if err != nil {
			return keys.Descriptor{}, err
		}
		if e.Kind == KindSymbol {
			return codec.Symbol(e.Name)
		}
		return codec.NamedAddress(e.Name, e.Address)
	case KindInstance:
		return keys.Instance(e.Contract)
	case KindCode:
		return keys.Code(ctx, r, e.Contract)
	case KindRaw:
		return keys.Parse(e.RawKey)
	default:
		return keys.Descriptor{}, errors.Errorf("unknown kind %q", e.Kind)
	}
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening watch list %s", path)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating watch list schema")
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Add(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Kind == KindRaw {
		if _, err := keys.Parse(e.RawKey); err != nil {
			return err
		}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO watched_keys (label, kind, contract, name, address, raw_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Label, string(e.Kind), e.Contract, e.Name, e.Address, e.RawKey, s.now().Unix(),
	)
	if err != nil {
		return errors.Wrapf(err, "adding %q", e.Label)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return errors.Wrapf(ErrDuplicateLabel, "%q", e.Label)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, label string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM watched_keys WHERE label = ?`, label)
	if err != nil {
		return errors.Wrapf(err, "removing %q", label)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%q", label)
	}
	return nil
}

// List returns all entries ordered by label.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, kind, contract, name, address, raw_key, created_at FROM watched_keys ORDER BY label`)
	if err != nil {
		return nil, errors.Wrap(err, "listing watch list")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			kind    string
			created int64
		)
		if err := rows.Scan(&e.Label, &kind, &e.Contract, &e.Name, &e.Address, &e.RawKey, &created); err != nil {
			return nil, errors.Wrap(err, "scanning watch list row")
		}
		e.Kind = Kind(kind)
		e.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterating watch list")
}

// Descriptors derives the key of every entry, labeled as stored.
func (s *Store) Descriptors(ctx context.Context, r keys.EntryReader) (map[string]keys.Descriptor, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]keys.Descriptor, len(entries))
	for _, e := range entries {
		d, err := e.Descriptor(ctx, r)
		if err != nil {
			return nil, errors.Wrapf(err, "deriving key for %q", e.Label)
		}
		out[e.Label] = d
	}
	return out, nil
}
