// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package record

import (
	"sync"

	"github.com/lsmkv/lsmkv/vfs"
)

// LogWriter layers fsync-after-unlock semantics on top of Writer for the
// database's write-ahead log: the log writer is mutex-guarded for record
// framing but fsync happens with the mutex released. Callers serialize
// calls to WriteRecord themselves (under the database mutex); Sync may be
// called concurrently with the next
// WriteRecord since file.Sync on a POSIX file is safe to interleave with
// writes to the same fd.
type LogWriter struct {
	mu     sync.Mutex
	w      *Writer
	file   vfs.File
	closed bool
}

// NewLogWriter returns a LogWriter appending framed records to file.
func NewLogWriter(file vfs.File) *LogWriter {
	return &LogWriter{w: NewWriter(file), file: file}
}

// WriteRecord frames and writes data as a single logical record.
func (lw *LogWriter) WriteRecord(data []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.closed {
		return errClosed
	}
	return lw.w.WriteRecord(data)
}

// Sync fsyncs the underlying file. It deliberately does not hold lw.mu for
// the duration of the syscall, only to snapshot the file handle, matching
// "fsync happens with the mutex released."
func (lw *LogWriter) Sync() error {
	lw.mu.Lock()
	file := lw.file
	closed := lw.closed
	lw.mu.Unlock()
	if closed {
		return errClosed
	}
	return file.Sync()
}

// Close closes the underlying file.
func (lw *LogWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.closed {
		return nil
	}
	lw.closed = true
	return lw.file.Close()
}

var errClosed = &closedError{}

type closedError struct{}

func (*closedError) Error() string { return "lsmkv: log writer closed" }
