// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/vfs"
)

// memTableSize is the default threshold (bytes) at which a memtable is
// rotated and scheduled for flush, "rotating memtables when
// they exceed a size threshold".
const memTableSize = 4 << 20

// largeValueThreshold is the default size (bytes) past which a Set's value
// is stored out of line as a large-value reference,
const largeValueThreshold = 64 << 10

// tableCacheSize is the default number of open sstable readers the table
// cache retains.
const tableCacheSize = 500

// Options configures Open. The zero value is not directly usable; call
// (*Options).withDefaults or pass through Open, which does so itself.
type Options struct {
	// Comparer orders user keys. Defaults to base.DefaultComparer
	// (bytewise),
	Comparer *base.Comparer

	// FS abstracts all filesystem access. Defaults to the OS-backed
	// implementation.
	FS vfs.FS

	// Logger receives diagnostic messages (flush/compaction progress,
	// repair corruption reports).
	Logger base.Logger

	// MemTableSize is the threshold, in bytes, past which a memtable is
	// rotated.
	MemTableSize uint32

	// LargeValueThreshold is the value size, in bytes, past which a Set
	// stores a large-value reference instead of an inline value.
	LargeValueThreshold int

	// LargeValueCompression is the compression applied to large-value file
	// contents.
	LargeValueCompression base.CompressionType

	// BlockCompression is the compression applied to sstable data/index
	// blocks.
	BlockCompression base.CompressionType

	// BlockSize is the target uncompressed size of an sstable data block.
	BlockSize int

	// TableCacheSize bounds the number of open sstable readers the table
	// cache retains concurrently.
	TableCacheSize int

	// CompactionBytesPerSec throttles compaction and flush I/O. Zero or
	// negative means unlimited.
	CompactionBytesPerSec int64

	// CompactionBurstBytes bounds how far CompactionBytesPerSec may burst
	// above its steady-state rate.
	CompactionBurstBytes int64

	// CreateIfMissing creates the database directory and an empty database
	// when the named directory doesn't already hold one.
	CreateIfMissing bool

	// ErrorIfExists causes Open to fail if the named directory already
	// holds a database.
	ErrorIfExists bool
}

// withDefaults returns a copy of o with every zero-valued field replaced by
// its default, grounded on
// _examples/ariesdevil-pebble/open.go's opts.EnsureDefaults pattern.
func (o *Options) withDefaults() *Options {
	opts := *o
	if opts.Comparer == nil {
		opts.Comparer = base.DefaultComparer
	}
	if opts.FS == nil {
		opts.FS = vfs.Default
	}
	if opts.Logger == nil {
		opts.Logger = base.DefaultLogger
	}
	if opts.MemTableSize == 0 {
		opts.MemTableSize = memTableSize
	}
	if opts.LargeValueThreshold == 0 {
		opts.LargeValueThreshold = largeValueThreshold
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = 4096
	}
	if opts.TableCacheSize == 0 {
		opts.TableCacheSize = tableCacheSize
	}
	if opts.CompactionBurstBytes == 0 {
		opts.CompactionBurstBytes = 4 << 20
	}
	return &opts
}

// WriteOptions controls a single Put/Delete/Write call.
type WriteOptions struct {
	// Sync requires the write-ahead log record to be fsynced before the
	// call returns, "sync flushes log to disk".
	Sync bool
}

// ReadOptions controls a single Get or NewIterator call.
type ReadOptions struct {
	// Snapshot, if non-nil, pins visibility to the sequence number the
	// snapshot captured ("Honors snapshot if present").
	Snapshot *Snapshot
}
