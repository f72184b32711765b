package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const schemaDevices = `
CREATE TABLE IF NOT EXISTS devices (
    id TEXT PRIMARY KEY,
    unit INTEGER NOT NULL,
    name TEXT NOT NULL,
    class TEXT NOT NULL,
    nvalue INTEGER NOT NULL DEFAULT 0,
    svalue TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP NOT NULL
);
`

const (
	insertDeviceSQL = `
		INSERT INTO devices (id, unit, name, class, nvalue, svalue, updated_at)
		VALUES (?, ?, ?, ?, 0, '', ?)
		ON CONFLICT(id) DO NOTHING
	`

	selectDeviceSQL = `SELECT nvalue, svalue FROM devices WHERE id = ?`

	updateDeviceSQL = `UPDATE devices SET nvalue = ?, svalue = ?, updated_at = ? WHERE id = ?`

	existsDeviceSQL = `SELECT 1 FROM devices WHERE id = ?`
)

// SQLite persists device records in a single SQLite file so published state
// survives process restarts.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the device database and ensures the schema
// exists.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// SQLite tolerates a single writer best.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaDevices); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply devices schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Ensure creates the device record when missing and leaves an existing
// record untouched.
func (s *SQLite) Ensure(ctx context.Context, device Device) error {
	_, err := s.db.ExecContext(ctx, insertDeviceSQL,
		device.ID, device.Unit, device.Name, string(device.Class), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ensure device %s: %w", device.ID, err)
	}
	return nil
}

// Exists reports whether a device record is present.
func (s *SQLite) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, existsDeviceSQL, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query device %s: %w", id, err)
	}
	return true, nil
}

// Read returns the last published state of a device.
func (s *SQLite) Read(ctx context.Context, id string) (State, error) {
	var state State
	err := s.db.QueryRowContext(ctx, selectDeviceSQL, id).Scan(&state.Numeric, &state.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, ErrUnknownDevice
	}
	if err != nil {
		return State{}, fmt.Errorf("read device %s: %w", id, err)
	}
	return state, nil
}

// Update overwrites the published state of a device.
func (s *SQLite) Update(ctx context.Context, id string, numeric int, text string) error {
	res, err := s.db.ExecContext(ctx, updateDeviceSQL, numeric, text, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update device %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update device %s: %w", id, err)
	}
	if affected == 0 {
		return ErrUnknownDevice
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}
