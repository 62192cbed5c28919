// Incremental CSV reader
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package store

import (
	"bytes"
	"encoding/csv"
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"time"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/errors"
)

// Batch is what one Tailer.Next call found.
type Batch struct {
	Records []encoder.Record
	// Skipped counts malformed data rows.
	Skipped int
	// Reset is set when the file shrank since the previous read, so
	// previously returned records no longer exist.
	Reset bool
}

// Tailer reads records appended to a CSV store since its previous call.
// Only complete, newline-terminated lines are consumed; a trailing partial
// line is left for the next call.
type Tailer struct {
	path   string
	offset int64
	loc    *time.Location
}

// NewTailer creates a tailer positioned at the start of path.
func NewTailer(path string) *Tailer {
	return &Tailer{path: path, loc: time.Local}
}

// Offset returns the number of bytes consumed so far.
func (t *Tailer) Offset() int64 { return t.offset }

// Next returns the records completed since the previous call. A missing
// file is an empty store.
func (t *Tailer) Next() (Batch, error) {
	var batch Batch

	f, err := os.Open(t.path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			if t.offset > 0 {
				batch.Reset = true
				t.offset = 0
			}
			return batch, nil
		}
		return batch, errors.StoreReadError(t.path, err)
	}
	defer f.Close()

	if err := lockFile(f, false); err != nil {
		return batch, errors.StoreReadError(t.path, err)
	}
	defer unlockFile(f)

	info, err := f.Stat()
	if err != nil {
		return batch, errors.StoreReadError(t.path, err)
	}
	if info.Size() < t.offset {
		batch.Reset = true
		t.offset = 0
	}
	if info.Size() == t.offset {
		return batch, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return batch, errors.StoreReadError(t.path, err)
	}
	chunk, err := io.ReadAll(io.LimitReader(f, info.Size()-t.offset))
	if err != nil {
		return batch, errors.StoreReadError(t.path, err)
	}

	end := bytes.LastIndexByte(chunk, '\n')
	if end < 0 {
		return batch, nil
	}
	chunk = chunk[:end+1]
	t.offset += int64(len(chunk))

	for _, line := range bytes.Split(chunk[:end], []byte{'\n'}) {
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		row, err := csv.NewReader(bytes.NewReader(line)).Read()
		if err != nil {
			batch.Skipped++
			continue
		}
		if isHeader(row) {
			continue
		}
		rec, err := ParseRow(row, t.loc)
		if err != nil {
			batch.Skipped++
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}
