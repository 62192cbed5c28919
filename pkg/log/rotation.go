// Log file rotation
//
// Rotates the meter's log file by size, keeping a bounded number of
// numbered backups (meter.log.1 is the newest).
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	// Filename is the path to the log file.
	Filename string

	// MaxSize is the maximum size in megabytes before rotation.
	// Default is 10 MB.
	MaxSize int

	// MaxBackups is the number of rotated files to keep. Default is 3.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool
}

// RotatingFileWriter is an io.Writer that rotates its file by size.
type RotatingFileWriter struct {
	mu         sync.Mutex
	cfg        RotationConfig
	maxBytes   int64
	size       int64
	file       *os.File
	compressWG sync.WaitGroup
}

// NewRotatingFileWriter opens (or creates) the log file for appending.
func NewRotatingFileWriter(cfg RotationConfig) (*RotatingFileWriter, error) {
	if cfg.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}

	w := &RotatingFileWriter{
		cfg:      cfg,
		maxBytes: int64(cfg.MaxSize) * 1024 * 1024,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingFileWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.cfg.Filename), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(w.cfg.Filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer.
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log file: %w", err)
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingFileWriter) backupName(i int) string {
	name := fmt.Sprintf("%s.%d", w.cfg.Filename, i)
	if w.cfg.Compress {
		name += ".gz"
	}
	return name
}

// rotate shifts name.N-1 to name.N, moves the live file to name.1 and
// reopens. Called with w.mu held.
func (w *RotatingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close current file: %w", err)
	}
	w.file = nil

	// Wait for a previous compression so the shift sees its output.
	w.compressWG.Wait()

	os.Remove(w.backupName(w.cfg.MaxBackups))
	for i := w.cfg.MaxBackups - 1; i >= 1; i-- {
		os.Rename(w.backupName(i), w.backupName(i+1))
	}

	first := fmt.Sprintf("%s.1", w.cfg.Filename)
	if err := os.Rename(w.cfg.Filename, first); err != nil {
		w.open()
		return fmt.Errorf("rename log file: %w", err)
	}
	if w.cfg.Compress {
		w.compressWG.Add(1)
		go func() {
			defer w.compressWG.Done()
			compressFile(first)
		}()
	}
	return w.open()
}

func compressFile(name string) {
	src, err := os.Open(name)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(name + ".gz")
	if err != nil {
		return
	}
	gz := gzip.NewWriter(dst)
	_, err = io.Copy(gz, src)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(name + ".gz")
		return
	}
	os.Remove(name)
}

// Close waits for pending compression and closes the file.
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.compressWG.Wait()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// CurrentSize returns the size of the live file.
func (w *RotatingFileWriter) CurrentSize() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Filename returns the live log filename.
func (w *RotatingFileWriter) Filename() string {
	return w.cfg.Filename
}

// NewConsoleAndFileLogger creates a logger writing to stderr and a rotating
// file. Colors are disabled since both outputs share one formatter.
func NewConsoleAndFileLogger(prefix string, cfg RotationConfig) (*Logger, *RotatingFileWriter, error) {
	fw, err := NewRotatingFileWriter(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger := New(prefix)
	logger.SetWriter(io.MultiWriter(os.Stderr, fw))
	logger.SetColorize(false)
	return logger, fw, nil
}
