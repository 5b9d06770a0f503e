// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package vfs implements the filesystem abstraction the
// database facade is built against. Grounded on the
// github.com/cockroachdb/pebble/vfs interface shape referenced by
// _examples/darshanime-pebble/data_test.go (vfs.FS, vfs.NewMem,
// fs.Create(path, vfs.WriteCategoryUnspecified)): an FS interface with an
// OS-backed implementation and an in-memory implementation usable
// interchangeably by the database and by tests.
package vfs

import "io"

// WriteCategory classifies a file for I/O accounting purposes. The OS and
// memory FS implementations ignore it; it exists so callers and tests
// written against the richer pebble-style FS signature carry over without
// change.
type WriteCategory int

// WriteCategoryUnspecified is the zero value, used by callers that don't
// distinguish write traffic.
const WriteCategoryUnspecified WriteCategory = 0

// File is the subset of *os.File behavior the database depends on: reads,
// writes, syncing, and stat, plus the byte-range reads random-access table
// lookups need.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	Sync() error
	Stat() (FileInfo, error)
}

// FileInfo is the subset of os.FileInfo the database consults.
type FileInfo interface {
	Size() int64
	IsDir() bool
}

// FS abstracts the filesystem operations the database needs, so tests can
// substitute an in-memory implementation and production can use the real
// OS filesystem with file locking and mmap-backed table reads.
type FS interface {
	// Create creates the named file for writing, truncating it if it
	// already exists.
	Create(name string, category WriteCategory) (File, error)
	// Open opens the named file for reading.
	Open(name string) (File, error)
	// OpenTable opens the named file for read-only, random-access table
	// reads. The OS-backed implementation mmaps it; the in-memory
	// implementation used by tests behaves like Open.
	OpenTable(name string) (File, error)
	// OpenForAppend opens an existing file positioned for subsequent
	// writes to land after its current contents, used to resume
	// appending to a recovered manifest or log file.
	OpenForAppend(name string) (File, error)
	// OpenDir opens a directory for later use with Syncer-style fsync of
	// directory entries (rename durability).
	OpenDir(name string) (File, error)
	// Remove removes the named file or empty directory.
	Remove(name string) error
	// RemoveAll removes name and any children it contains.
	RemoveAll(name string) error
	// Rename renames oldname to newname, replacing newname if it exists.
	Rename(oldname, newname string) error
	// MkdirAll creates a directory and any missing parents.
	MkdirAll(dir string) error
	// List returns the names of the entries in dir, in no particular
	// order.
	List(dir string) ([]string, error)
	// Stat returns file info for the named file.
	Stat(name string) (FileInfo, error)
	// PathJoin joins path components using the FS's separator.
	PathJoin(elem ...string) string
	// PathDir returns the directory portion of path.
	PathDir(path string) string
	// PathBase returns the final path component.
	PathBase(path string) string
	// Lock acquires an exclusive lock on the named file, creating it if
	// necessary, and returns a closer that releases the lock.
	Lock(name string) (io.Closer, error)
}
