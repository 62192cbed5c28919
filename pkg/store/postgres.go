// PostgreSQL result mirror
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/errors"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS speed_measurements (
	id BIGSERIAL PRIMARY KEY,
	measured_at TIMESTAMPTZ NOT NULL,
	method TEXT NOT NULL,
	frequency_hz DOUBLE PRECISION NOT NULL,
	rpm DOUBLE PRECISION NOT NULL,
	rad_per_sec DOUBLE PRECISION NOT NULL
)`
	createIndexSQL = `CREATE INDEX IF NOT EXISTS speed_measurements_measured_at_idx ON speed_measurements (measured_at)`

	insertSQL = `INSERT INTO speed_measurements (measured_at, method, frequency_hz, rpm, rad_per_sec) VALUES ($1, $2, $3, $4, $5)`
	latestSQL = `SELECT measured_at, method, frequency_hz, rpm, rad_per_sec FROM speed_measurements ORDER BY measured_at DESC, id DESC LIMIT $1`
)

// pq error code for a missing relation.
const undefinedTable = "42P01"

// SQLMirror copies appended records into a Postgres table.
type SQLMirror struct {
	db  *sql.DB
	dsn string
}

// OpenPostgres connects to dsn with the lib/pq driver and checks the
// connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxOpenConns(2)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// NewSQLMirror wraps an open database. dsn is only used in error context.
func NewSQLMirror(db *sql.DB, dsn string) (*SQLMirror, error) {
	if db == nil {
		return nil, stderrors.New("sql mirror requires db instance")
	}
	return &SQLMirror{db: db, dsn: redact(dsn)}, nil
}

// Name identifies the sink in logs and metrics.
func (m *SQLMirror) Name() string { return "postgres" }

// Migrate creates the measurement table if needed.
func (m *SQLMirror) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createTableSQL, createIndexSQL} {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return errors.StoreWriteError(m.dsn, fmt.Errorf("migrate: %w", err))
		}
	}
	return nil
}

// Append inserts one record.
func (m *SQLMirror) Append(ctx context.Context, rec encoder.Record) error {
	_, err := m.db.ExecContext(ctx, insertSQL,
		rec.Timestamp, rec.Method.String(),
		rec.Rate.FrequencyHz, rec.Rate.RPM, rec.Rate.RadPerSec)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code == undefinedTable {
			return errors.StoreWriteError(m.dsn, err).SetContext("hint", "run the migration first")
		}
		return errors.StoreWriteError(m.dsn, err)
	}
	return nil
}

// Latest returns up to limit records, newest first.
func (m *SQLMirror) Latest(ctx context.Context, limit int) ([]encoder.Record, error) {
	rows, err := m.db.QueryContext(ctx, latestSQL, limit)
	if err != nil {
		return nil, errors.StoreReadError(m.dsn, err)
	}
	defer rows.Close()

	var out []encoder.Record
	for rows.Next() {
		var (
			rec   encoder.Record
			label string
		)
		if err := rows.Scan(&rec.Timestamp, &label, &rec.Rate.FrequencyHz, &rec.Rate.RPM, &rec.Rate.RadPerSec); err != nil {
			return nil, errors.StoreReadError(m.dsn, err)
		}
		if rec.Method, err = encoder.ParseMethod(label); err != nil {
			return nil, errors.StoreReadError(m.dsn, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreReadError(m.dsn, err)
	}
	return out, nil
}

// Close closes the database.
func (m *SQLMirror) Close() error {
	return m.db.Close()
}

// redact strips the password from a postgres URL for logging.
func redact(dsn string) string {
	if dsn == "" {
		return "postgres"
	}
	parsed, err := pq.ParseURL(dsn)
	if err != nil {
		// Key/value form or unparsable; never echo it.
		return "postgres"
	}
	var kept []string
	for _, kv := range strings.Fields(parsed) {
		if !strings.HasPrefix(kv, "password=") {
			kept = append(kept, kv)
		}
	}
	return "postgres(" + strings.Join(kept, " ") + ")"
}
