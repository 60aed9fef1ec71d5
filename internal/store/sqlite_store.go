package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phautamaki/orchard/internal/wire"
	"github.com/phautamaki/orchard/pkg/api"
)

// Object life cycle in the objects table.
const (
	classPending = 0
	classRaw     = 1
	classValue   = 2
	classAlias   = 3
)

// sqlitePollInterval bounds how stale a blocked reader's view of the
// database can be. SQLite has no cross-connection notification, so blocked
// reads poll.
const sqlitePollInterval = 20 * time.Millisecond

// SQLiteStore is a Store backed by SQLite, for clusters whose workers live
// in separate processes on one machine.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db    *sql.DB
	codec wire.Codec
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore. Structural values are persisted with codec.
func NewSQLiteStore(db *sql.DB, codec wire.Codec) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, codec: codec}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS objects (
			ref INTEGER PRIMARY KEY AUTOINCREMENT,
			class INTEGER NOT NULL DEFAULT 0,
			payload BLOB,
			alias_to INTEGER,
			requested INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS contained_refs (
			ref INTEGER NOT NULL,
			pos INTEGER NOT NULL,
			contained INTEGER NOT NULL,
			PRIMARY KEY (ref, pos)
		);`,
	)
	return err
}

func (s *SQLiteStore) NewRef(ctx context.Context) (api.ObjectRef, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO objects (class) VALUES (?)`, classPending)
	if err != nil {
		return api.NilRef, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return api.NilRef, err
	}
	return api.ObjectRef(id), nil
}

func (s *SQLiteStore) PutRaw(ctx context.Context, ref api.ObjectRef, data []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE objects SET class = ?, payload = ? WHERE ref = ? AND class = ?`,
		classRaw, data, uint64(ref), classPending,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return putConflict(ctx, s.db, ref)
	}
	return nil
}

func (s *SQLiteStore) PutValue(ctx context.Context, ref api.ObjectRef, val *api.Value, contained []api.ObjectRef) error {
	if val == nil {
		return fmt.Errorf("storing %s: nil value", ref)
	}
	payload, err := s.codec.Marshal(val)
	if err != nil {
		return fmt.Errorf("storing %s: %w", ref, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE objects SET class = ?, payload = ? WHERE ref = ? AND class = ?`,
		classValue, payload, uint64(ref), classPending,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Diagnose on the open transaction; the pool may not have a
		// second connection to give out.
		return putConflict(ctx, tx, ref)
	}

	for i, c := range contained {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contained_refs (ref, pos, contained) VALUES (?, ?, ?)`,
			uint64(ref), i, uint64(c),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// rowQuerier is the part of *sql.DB and *sql.Tx putConflict needs.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// putConflict turns a failed conditional write into the matching error.
func putConflict(ctx context.Context, q rowQuerier, ref api.ObjectRef) error {
	var class int
	err := q.QueryRowContext(ctx, `SELECT class FROM objects WHERE ref = ?`, uint64(ref)).Scan(&class)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("storing %s: %w", ref, ErrUnknownRef)
	}
	if err != nil {
		return err
	}
	if class == classAlias {
		return fmt.Errorf("storing %s: %w", ref, ErrRefAlreadyAliased)
	}
	return fmt.Errorf("storing %s: %w", ref, ErrRefAlreadyWritten)
}

func (s *SQLiteStore) GetRaw(ctx context.Context, ref api.ObjectRef) ([]byte, error) {
	_, class, payload, err := s.await(ctx, ref)
	if err != nil {
		return nil, err
	}
	if class != classRaw {
		return nil, fmt.Errorf("reading %s raw: %w", ref, ErrWrongClass)
	}
	return payload, nil
}

func (s *SQLiteStore) GetValue(ctx context.Context, ref api.ObjectRef) (*api.Value, error) {
	_, class, payload, err := s.await(ctx, ref)
	if err != nil {
		return nil, err
	}
	if class != classValue {
		return nil, fmt.Errorf("reading %s: %w", ref, ErrWrongClass)
	}
	var val api.Value
	if err := s.codec.Unmarshal(payload, &val); err != nil {
		return nil, fmt.Errorf("reading %s: %w", ref, err)
	}
	return &val, nil
}

func (s *SQLiteStore) IsRaw(ctx context.Context, ref api.ObjectRef) (bool, error) {
	_, class, _, err := s.await(ctx, ref)
	if err != nil {
		return false, err
	}
	return class == classRaw, nil
}

func (s *SQLiteStore) Contained(ctx context.Context, ref api.ObjectRef) ([]api.ObjectRef, error) {
	term, class, _, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if class == classPending {
		return nil, fmt.Errorf("reading %s: not resolved", ref)
	}
	if class != classValue {
		return nil, fmt.Errorf("reading %s contained refs: %w", ref, ErrWrongClass)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT contained FROM contained_refs WHERE ref = ? ORDER BY pos`,
		uint64(term),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contained []api.ObjectRef
	for rows.Next() {
		var c uint64
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		contained = append(contained, api.ObjectRef(c))
	}
	return contained, rows.Err()
}

func (s *SQLiteStore) Alias(ctx context.Context, alias, target api.ObjectRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var class int
	err = tx.QueryRowContext(ctx, `SELECT class FROM objects WHERE ref = ?`, uint64(alias)).Scan(&class)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("aliasing %s: %w", alias, ErrUnknownRef)
	}
	if err != nil {
		return err
	}
	switch class {
	case classAlias:
		return fmt.Errorf("aliasing %s: %w", alias, ErrRefAlreadyAliased)
	case classRaw, classValue:
		return fmt.Errorf("aliasing %s: %w", alias, ErrRefAlreadyWritten)
	}

	// Walk the target's chain inside the transaction; reaching the alias
	// means the new edge would close a loop.
	for r, hops := target, 0; ; hops++ {
		if hops > maxAliasHops {
			return fmt.Errorf("aliasing %s to %s: %w", alias, target, ErrAliasCycle)
		}
		if r == alias {
			return fmt.Errorf("aliasing %s to %s: %w", alias, target, ErrAliasCycle)
		}
		var class int
		var next sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT class, alias_to FROM objects WHERE ref = ?`, uint64(r)).Scan(&class, &next)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("aliasing %s to %s: %w", alias, target, ErrUnknownRef)
		}
		if err != nil {
			return err
		}
		if class != classAlias {
			break
		}
		r = api.ObjectRef(next.Int64)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE objects SET class = ?, alias_to = ? WHERE ref = ?`,
		classAlias, uint64(target), uint64(alias),
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) RequestRef(ctx context.Context, ref api.ObjectRef) error {
	res, err := s.db.ExecContext(ctx, `UPDATE objects SET requested = 1 WHERE ref = ?`, uint64(ref))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("requesting %s: %w", ref, ErrUnknownRef)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM objects),
			(SELECT COUNT(*) FROM objects WHERE class IN (?, ?)),
			(SELECT COUNT(*) FROM objects WHERE class = ?),
			(SELECT COUNT(*) FROM objects WHERE class = ?),
			(SELECT COUNT(*) FROM objects WHERE requested = 1)`,
		classRaw, classValue, classRaw, classAlias,
	).Scan(&st.Allocated, &st.Objects, &st.Raw, &st.Aliases, &st.Requested)
	return st, err
}

// await polls until ref's alias chain ends in a written object.
func (s *SQLiteStore) await(ctx context.Context, ref api.ObjectRef) (api.ObjectRef, int, []byte, error) {
	ticker := time.NewTicker(sqlitePollInterval)
	defer ticker.Stop()

	for {
		term, class, payload, err := s.resolve(ctx, ref)
		if err != nil {
			return api.NilRef, 0, nil, err
		}
		if class != classPending {
			return term, class, payload, nil
		}

		select {
		case <-ctx.Done():
			return api.NilRef, 0, nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// resolve follows ref's alias chain once. classPending means the chain is
// intact but its end is not written yet.
func (s *SQLiteStore) resolve(ctx context.Context, ref api.ObjectRef) (api.ObjectRef, int, []byte, error) {
	for hops := 0; ; hops++ {
		if hops > maxAliasHops {
			return api.NilRef, 0, nil, fmt.Errorf("resolving %s: %w", ref, ErrAliasCycle)
		}
		var class int
		var payload []byte
		var next sql.NullInt64
		err := s.db.QueryRowContext(ctx, `
			SELECT class, payload, alias_to FROM objects WHERE ref = ?`,
			uint64(ref),
		).Scan(&class, &payload, &next)
		if errors.Is(err, sql.ErrNoRows) {
			return api.NilRef, 0, nil, fmt.Errorf("resolving %s: %w", ref, ErrUnknownRef)
		}
		if err != nil {
			return api.NilRef, 0, nil, err
		}
		if class != classAlias {
			return ref, class, payload, nil
		}
		ref = api.ObjectRef(next.Int64)
	}
}
