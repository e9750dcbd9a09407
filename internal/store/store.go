// Package store persists temperature readings to a local SQLite database:
// append-only, WAL-journaled so external readers never block on the
// collector's single writer, with bounded retention.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aldyh/tmon/internal/protocol"
)

const numChannels = 4

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	ts     INTEGER NOT NULL,
	addr   INTEGER NOT NULL,
	temp_0 INTEGER,
	temp_1 INTEGER,
	temp_2 INTEGER,
	temp_3 INTEGER
);
CREATE INDEX IF NOT EXISTS idx_readings_addr_ts ON readings (addr, ts);
`

const insertSQL = `INSERT INTO readings (ts, addr, temp_0, temp_1, temp_2, temp_3) VALUES (?, ?, ?, ?, ?, ?)`

const fetchSQL = `SELECT id, ts, addr, temp_0, temp_1, temp_2, temp_3 FROM readings ORDER BY id DESC LIMIT ?`

const purgeSQL = `DELETE FROM readings WHERE ts < ?`

// ErrBadChannelCount is returned by Insert when samples does not have
// exactly four elements.
var ErrBadChannelCount = errors.New("store: samples must have exactly 4 channels")

// Row is one persisted reading.
type Row struct {
	ID      int64
	Ts      int64
	Addr    int
	Samples [numChannels]protocol.Sample
}

// Store owns the lifetime of one SQLite connection. A row becomes visible
// to external readers only after Commit; a crash between Insert and
// Commit loses at most the in-flight cycle.
type Store struct {
	db  *sql.DB
	tx  *sql.Tx
	now func() time.Time
}

// Open creates (or reuses) the database at path, ensures the schema
// exists, and enables WAL journaling for concurrent-read safety.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enabling WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Insert stages one row with the current wall-clock arrival time. It does
// not commit; the caller batches inserts within a cycle and calls Commit
// once, bounding write amplification and avoiding a half-committed cycle
// on crash. samples must have exactly 4 elements.
func (s *Store) Insert(addr int, samples []protocol.Sample) error {
	if len(samples) != numChannels {
		return fmt.Errorf("%w: got %d", ErrBadChannelCount, len(samples))
	}

	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("store: beginning transaction: %w", err)
		}
		s.tx = tx
	}

	ts := s.now().Unix()
	args := make([]interface{}, 0, 2+numChannels)
	args = append(args, ts, addr)
	for _, smp := range samples {
		if smp.Valid {
			args = append(args, smp.Value)
		} else {
			args = append(args, nil)
		}
	}

	if _, err := s.tx.Exec(insertSQL, args...); err != nil {
		return fmt.Errorf("store: inserting row: %w", err)
	}
	return nil
}

// Commit flushes the pending writes started since the last Commit. It is
// a no-op if nothing has been inserted.
func (s *Store) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing: %w", err)
	}
	return nil
}

// Fetch returns the newest n committed rows, ordered by id descending.
func (s *Store) Fetch(n int) ([]Row, error) {
	rows, err := s.db.Query(fetchSQL, n)
	if err != nil {
		return nil, fmt.Errorf("store: fetching rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var temps [numChannels]sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Ts, &r.Addr, &temps[0], &temps[1], &temps[2], &temps[3]); err != nil {
			return nil, fmt.Errorf("store: scanning row: %w", err)
		}
		for i, t := range temps {
			if t.Valid {
				r.Samples[i] = protocol.Sample{Value: int16(t.Int64), Valid: true}
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Purge deletes rows older than now-days*86400 seconds and reclaims space
// if any rows were removed. It returns the number of rows deleted.
func (s *Store) Purge(days int) (int64, error) {
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour).Unix()

	result, err := s.db.Exec(purgeSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: purging: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: reading purge result: %w", err)
	}
	if count > 0 {
		if _, err := s.db.Exec("VACUUM"); err != nil {
			return count, fmt.Errorf("store: reclaiming space: %w", err)
		}
	}
	return count, nil
}

// Close flushes any pending transaction and releases the handle.
func (s *Store) Close() error {
	if err := s.Commit(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
