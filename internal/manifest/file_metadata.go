// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package manifest implements the descriptor edit and the version set:
// the in-memory catalog of live tables per level, the
// tag-based edit format that mutates it, and the log that persists the
// sequence of edits. Grounded on
// _examples/hopkings2008-pebble/version.go and
// _examples/hopkings2008-pebble/internal/manifest/version_edit.go, trimmed
// of RocksDB/column-family concerns and extended with a large-value-ref
// vector.
package manifest

import (
	"sync/atomic"

	"github.com/lsmkv/lsmkv/internal/base"
)

// NumLevels is the number of on-disk levels, matching the classic leveldb
// layout carried over by every example in the pack.
const NumLevels = 7

// FileNum identifies a file on disk; it is also the shared counter used for
// log, manifest, and table files ("a single counter is used to assign file
// numbers"). Large-value files are named by their content ref instead.
type FileNum uint64

// FileMetadata describes one on-disk table file.
type FileMetadata struct {
	FileNum FileNum
	Size    uint64

	Smallest base.InternalKey
	Largest  base.InternalKey

	SmallestSeqNum base.SeqNum
	LargestSeqNum  base.SeqNum

	MarkedForCompaction bool

	refs int32
}

// Ref increments the file's reference count. Held by every Version that
// includes the file; the file becomes a candidate for physical deletion
// only once its count reaches zero.
func (m *FileMetadata) Ref() { atomic.AddInt32(&m.refs, 1) }

// Unref decrements the file's reference count and reports whether it
// reached zero.
func (m *FileMetadata) Unref() bool { return atomic.AddInt32(&m.refs, -1) == 0 }

// TableInfo projects a FileMetadata into the public base.TableInfo shape.
func (m *FileMetadata) TableInfo() base.TableInfo {
	return base.TableInfo{
		FileNum:        uint64(m.FileNum),
		Size:           m.Size,
		Smallest:       m.Smallest,
		Largest:        m.Largest,
		SmallestSeqNum: m.SmallestSeqNum,
		LargestSeqNum:  m.LargestSeqNum,
	}
}

// DeletedFileEntry names a file removed from a level by an edit.
type DeletedFileEntry struct {
	Level   int
	FileNum FileNum
}

// NewFileEntry names a file added to a level by an edit.
type NewFileEntry struct {
	Level int
	Meta  *FileMetadata
}

// SortBySmallest orders files by their smallest internal key, used to keep
// level ≥ 1 files sorted and non-overlapping.
func SortBySmallest(files []*FileMetadata, cmp base.Compare) {
	less := func(i, j int) bool {
		return base.InternalCompare(cmp, files[i].Smallest, files[j].Smallest) < 0
	}
	insertionSort(files, less)
}

// SortByFileNum orders level-0 files by increasing file number, which is
// also their arrival order.
func SortByFileNum(files []*FileMetadata) {
	less := func(i, j int) bool { return files[i].FileNum < files[j].FileNum }
	insertionSort(files, less)
}

func insertionSort(files []*FileMetadata, less func(i, j int) bool) {
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			files[j], files[j-1] = files[j-1], files[j]
		}
	}
}
