package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/ess/core/statestore"
)

// SQLiteStore persists battery snapshots in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS battery_state (
        location TEXT PRIMARY KEY,
        soc REAL,
        phase TEXT,
        snapshot TEXT,
        updated_at INTEGER
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces the record for its location.
func (s *SQLiteStore) Save(r statestore.Record) error {
	payload, err := json.Marshal(r.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO battery_state (location, soc, phase, snapshot, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(location) DO UPDATE SET
            soc = excluded.soc,
            phase = excluded.phase,
            snapshot = excluded.snapshot,
            updated_at = excluded.updated_at`,
		r.Location, r.Snapshot.SOC, r.Snapshot.Phase.String(), string(payload), r.UpdatedAt.UnixMilli())
	return err
}

// Load returns the record saved for location.
func (s *SQLiteStore) Load(location string) (statestore.Record, bool, error) {
	row := s.db.QueryRow(`SELECT location, snapshot, updated_at FROM battery_state WHERE location = ?`, location)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return statestore.Record{}, false, nil
	}
	if err != nil {
		return statestore.Record{}, false, err
	}
	return r, true, nil
}

// List returns all records ordered by location.
func (s *SQLiteStore) List() ([]statestore.Record, error) {
	rows, err := s.db.Query(`SELECT location, snapshot, updated_at FROM battery_state ORDER BY location`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []statestore.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (statestore.Record, error) {
	var (
		r       statestore.Record
		payload string
		ts      int64
	)
	if err := sc.Scan(&r.Location, &payload, &ts); err != nil {
		return statestore.Record{}, err
	}
	if err := json.Unmarshal([]byte(payload), &r.Snapshot); err != nil {
		return statestore.Record{}, fmt.Errorf("decode snapshot for %s: %w", r.Location, err)
	}
	r.UpdatedAt = time.UnixMilli(ts).UTC()
	return r, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
