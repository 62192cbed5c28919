// CSV result store
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/errors"
	"shaft-speed-meter/pkg/log"
)

// CSVStore appends records to a CSV file shared with concurrent readers.
//
// Each append is one write(2) on an O_APPEND descriptor under an exclusive
// flock, so a reader holding the shared lock never sees half a row.
type CSVStore struct {
	path   string
	logger *log.Logger
}

// NewCSVStore creates a store at path. The file is created on first use.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path, logger: log.GetLogger("store")}
}

// Path returns the file location.
func (s *CSVStore) Path() string { return s.path }

// Name identifies the sink in logs and metrics.
func (s *CSVStore) Name() string { return "csv" }

func (s *CSVStore) open() (*os.File, error) {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// Initialize truncates the store and writes only the header. It destroys
// all previous records.
func (s *CSVStore) Initialize() error {
	f, err := s.open()
	if err != nil {
		return errors.StoreWriteError(s.path, err)
	}
	defer f.Close()

	if err := lockFile(f, true); err != nil {
		return errors.StoreWriteError(s.path, err)
	}
	defer unlockFile(f)

	if err := f.Truncate(0); err != nil {
		return errors.StoreWriteError(s.path, err)
	}
	buf, err := encodeRows(Header)
	if err != nil {
		return errors.StoreWriteError(s.path, err)
	}
	if _, err := f.Write(buf); err != nil {
		return errors.StoreWriteError(s.path, err)
	}

	s.logger.WithField("path", s.path).Warn("store initialized, previous records discarded")
	return nil
}

// Append adds one record. The header is written first when the file is
// missing or empty.
func (s *CSVStore) Append(ctx context.Context, rec encoder.Record) error {
	if err := ctx.Err(); err != nil {
		return errors.StoreWriteError(s.path, err)
	}

	f, err := s.open()
	if err != nil {
		return errors.StoreWriteError(s.path, err)
	}
	defer f.Close()

	if err := lockFile(f, true); err != nil {
		return errors.StoreWriteError(s.path, err)
	}
	defer unlockFile(f)

	info, err := f.Stat()
	if err != nil {
		return errors.StoreWriteError(s.path, err)
	}

	rows := [][]string{FormatRow(rec)}
	if info.Size() == 0 {
		rows = [][]string{Header, rows[0]}
	}
	buf, err := encodeRows(rows...)
	if err != nil {
		return errors.StoreWriteError(s.path, err)
	}
	if _, err := f.Write(buf); err != nil {
		return errors.StoreWriteError(s.path, err)
	}
	return nil
}

// ReadAll returns every well-formed record and the number of data rows that
// could not be parsed. A missing file holds no records.
func (s *CSVStore) ReadAll() ([]encoder.Record, int, error) {
	t := NewTailer(s.path)
	batch, err := t.Next()
	if err != nil {
		return nil, 0, err
	}
	return batch.Records, batch.Skipped, nil
}

// encodeRows renders rows with CRLF terminators, matching files written by
// earlier versions of the meter.
func encodeRows(rows ...[]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
