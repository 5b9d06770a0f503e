// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/exp/mmap"
	"golang.org/x/sys/unix"
)

// Default is the OS-backed FS used by production Open calls.
var Default FS = diskFS{}

type diskFS struct{}

func (diskFS) Create(name string, _ WriteCategory) (File, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return diskFile{f}, nil
}

func (diskFS) Open(name string) (File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return diskFile{f}, nil
}

// OpenTable opens name read-only and maps it into memory via
// golang.org/x/exp/mmap, so repeated random-access reads of an sstable's
// blocks don't round-trip through read(2) once the pages are resident.
func (diskFS) OpenTable(name string) (File, error) {
	r, err := mmap.Open(name)
	if err != nil {
		return nil, err
	}
	return &mmapFile{r: r}, nil
}

func (diskFS) OpenForAppend(name string) (File, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return diskFile{f}, nil
}

func (diskFS) OpenDir(name string) (File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	return diskFile{f}, nil
}

func (diskFS) Remove(name string) error    { return os.Remove(name) }
func (diskFS) RemoveAll(name string) error { return os.RemoveAll(name) }
func (diskFS) Rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}
func (diskFS) MkdirAll(dir string) error { return os.MkdirAll(dir, 0755) }

func (diskFS) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

func (diskFS) Stat(name string) (FileInfo, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return nil, err
	}
	return fi, nil
}

func (diskFS) PathJoin(elem ...string) string { return filepath.Join(elem...) }
func (diskFS) PathDir(path string) string      { return filepath.Dir(path) }
func (diskFS) PathBase(path string) string     { return filepath.Base(path) }

// Lock acquires an exclusive, advisory flock(2) on name, enforcing that
// only one process owns the database's LOCK file at a time. Grounded on
// golang.org/x/sys/unix.Flock for the underlying OS locking primitive.
func (diskFS) Lock(name string) (io.Closer, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, err
	}
	return &fileLock{f: f}, nil
}

type fileLock struct{ f *os.File }

func (l *fileLock) Close() error {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}

type diskFile struct{ *os.File }

func (f diskFile) Stat() (FileInfo, error) { return f.File.Stat() }

// mmapFile adapts an mmap.ReaderAt to the File interface. It is read-only;
// Write always fails.
type mmapFile struct {
	r   *mmap.ReaderAt
	pos int64
}

func (f *mmapFile) Read(p []byte) (int, error) {
	n, err := f.r.ReadAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *mmapFile) ReadAt(p []byte, off int64) (int, error) { return f.r.ReadAt(p, off) }

func (f *mmapFile) Write([]byte) (int, error) {
	return 0, errors.New("lsmkv: mmap-backed table file is read-only")
}

func (f *mmapFile) Close() error { return f.r.Close() }

func (f *mmapFile) Sync() error { return nil }

func (f *mmapFile) Stat() (FileInfo, error) { return mmapFileInfo{size: int64(f.r.Len())}, nil }

type mmapFileInfo struct{ size int64 }

func (fi mmapFileInfo) Size() int64 { return fi.size }
func (fi mmapFileInfo) IsDir() bool { return false }
