package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath
// and runs the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open process db: %w", err)
	}
	// Session goroutines write concurrently; WAL keeps readers unblocked.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate process db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS process (
			id         TEXT PRIMARY KEY,
			uuid       TEXT NOT NULL,
			proc       TEXT NOT NULL,
			date       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS process_uuid_date ON process (uuid, date);
		CREATE TABLE IF NOT EXISTS samples (
			id               TEXT PRIMARY KEY,
			uuid             TEXT NOT NULL,
			start_index      INTEGER NOT NULL,
			last_entry_index INTEGER NOT NULL,
			firmware_version TEXT NOT NULL DEFAULT '',
			hardware_version TEXT NOT NULL DEFAULT '',
			buffer           BLOB,
			fetched_at       TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS samples_uuid ON samples (uuid, id);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert appends a process record
func (s *SQLiteStore) Insert(ctx context.Context, rec ProcessRecord) error {
	if rec.ID == "" {
		rec.ID = NewID(rec.Timestamp)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO process (id, uuid, proc, date) VALUES (?, ?, ?, ?)",
		rec.ID, rec.Identifier, rec.Status, rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert process record: %w", err)
	}
	return nil
}

// History returns the most recent records for identifier, newest first
func (s *SQLiteStore) History(ctx context.Context, identifier string, limit int) ([]ProcessRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, uuid, proc, date FROM process WHERE uuid = ? ORDER BY id DESC LIMIT ?",
		identifier, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ProcessRecord
	for rows.Next() {
		var rec ProcessRecord
		var date string
		if err := rows.Scan(&rec.ID, &rec.Identifier, &rec.Status, &date); err != nil {
			return nil, err
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, date); err != nil {
			return nil, fmt.Errorf("parse process date %q: %w", date, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveSamples archives a harvested batch
func (s *SQLiteStore) SaveSamples(ctx context.Context, rec SampleRecord) error {
	if rec.ID == "" {
		rec.ID = NewID(rec.FetchedAt)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (id, uuid, start_index, last_entry_index, firmware_version, hardware_version, buffer, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Identifier, rec.StartIndex, rec.LastEntryIndex,
		rec.FirmwareVersion, rec.HardwareVersion, rec.Buffer,
		rec.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert sample record: %w", err)
	}
	return nil
}

// LastSamples returns the newest archived batch for identifier
func (s *SQLiteStore) LastSamples(ctx context.Context, identifier string) (SampleRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, uuid, start_index, last_entry_index, firmware_version, hardware_version, buffer, fetched_at
		 FROM samples WHERE uuid = ? ORDER BY id DESC LIMIT 1`,
		identifier,
	)

	var rec SampleRecord
	var fetched string
	err := row.Scan(&rec.ID, &rec.Identifier, &rec.StartIndex, &rec.LastEntryIndex,
		&rec.FirmwareVersion, &rec.HardwareVersion, &rec.Buffer, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return SampleRecord{}, ErrNoSamples
	}
	if err != nil {
		return SampleRecord{}, err
	}
	if rec.FetchedAt, err = time.Parse(time.RFC3339Nano, fetched); err != nil {
		return SampleRecord{}, fmt.Errorf("parse fetch date %q: %w", fetched, err)
	}
	return rec, nil
}

// Open creates the store selected by driver ("sqlite" or "memory")
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q (must be sqlite or memory)", driver)
	}
}
