// Advisory file lock stub
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build !unix

package store

import "os"

// Without flock, appends still rely on O_APPEND single writes.
func lockFile(f *os.File, exclusive bool) error { return nil }

func unlockFile(f *os.File) error { return nil }
