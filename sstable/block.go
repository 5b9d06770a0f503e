// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package sstable implements the block-based sorted table format:
// restart-point-compressed data blocks topped by
// an index block and a fixed-size footer. Grounded on
// _examples/ariesdevil-pebble/sstable/raw_block.go's shared/unshared/value
// varint-triple block layout, reworked without unsafe.Pointer arithmetic
// in favor of plain byte-slice decoding.
package sstable

import (
	"encoding/binary"
	"sort"

	"github.com/lsmkv/lsmkv/internal/base"
)

// restartInterval is the number of entries between restart points, after
// which the next entry resets prefix compression. 16 matches the classic
// leveldb default.
const restartInterval = 16

// blockWriter accumulates internal-key/value pairs into a single block,
// sharing key prefixes with the previous entry except at restart points.
type blockWriter struct {
	restartInterval int
	buf             []byte
	restarts        []uint32
	counter         int
	curKey          []byte
	prevKey         []byte
}

func newBlockWriter() *blockWriter {
	return &blockWriter{restartInterval: restartInterval}
}

// add appends an internal key and its value to the block.
func (w *blockWriter) add(key base.InternalKey, value []byte) {
	w.prevKey, w.curKey = w.curKey, append(w.prevKey[:0], key.Encode(nil)...)

	var shared int
	if w.counter < w.restartInterval {
		shared = sharedPrefixLen(w.prevKey, w.curKey)
	} else {
		w.restarts = append(w.restarts, uint32(len(w.buf)))
		w.counter = 0
	}
	unshared := w.curKey[shared:]

	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(shared))
	w.buf = append(w.buf, tmp[:n]...)
	n = binary.PutUvarint(tmp[:], uint64(len(unshared)))
	w.buf = append(w.buf, tmp[:n]...)
	n = binary.PutUvarint(tmp[:], uint64(len(value)))
	w.buf = append(w.buf, tmp[:n]...)
	w.buf = append(w.buf, unshared...)
	w.buf = append(w.buf, value...)
	w.counter++
}

func sharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// empty reports whether any entries have been added since the last reset.
func (w *blockWriter) empty() bool { return len(w.buf) == 0 }

// finish serializes the block: entries, followed by the restart point
// table, followed by a trailing restart-point count.
func (w *blockWriter) finish() []byte {
	if len(w.restarts) == 0 || w.restarts[0] != 0 {
		w.restarts = append([]uint32{0}, w.restarts...)
	}
	n := len(w.buf)
	out := make([]byte, n+4*len(w.restarts)+4)
	copy(out, w.buf)
	for i, r := range w.restarts {
		binary.LittleEndian.PutUint32(out[n+4*i:], r)
	}
	binary.LittleEndian.PutUint32(out[len(out)-4:], uint32(len(w.restarts)))
	return out
}

// reset clears the writer for reuse by the next block.
func (w *blockWriter) reset() {
	w.buf = w.buf[:0]
	w.restarts = w.restarts[:0]
	w.counter = 0
	w.curKey = w.curKey[:0]
}

// blockIter iterates the restart-point-compressed entries of a single
// decompressed block, implementing base.InternalIterator.
type blockIter struct {
	cmp         base.Compare
	data        []byte
	restarts int // byte offset where the restart table begins
	numRestarts int
	offset      int
	nextOffset  int
	key         []byte
	ikey        base.InternalKey
	val         []byte
	err         error
}

var _ base.InternalIterator = (*blockIter)(nil)

func newBlockIter(cmp base.Compare, data []byte) (*blockIter, error) {
	i := &blockIter{}
	if err := i.init(cmp, data); err != nil {
		return nil, err
	}
	return i, nil
}

func (i *blockIter) init(cmp base.Compare, data []byte) error {
	if len(data) < 4 {
		return base.CorruptionErrorf("lsmkv: block too short")
	}
	numRestarts := int(binary.LittleEndian.Uint32(data[len(data)-4:]))
	if numRestarts == 0 {
		return base.CorruptionErrorf("lsmkv: block has no restart points")
	}
	i.cmp = cmp
	i.data = data
	i.numRestarts = numRestarts
	i.restarts = len(data) - 4*(1+numRestarts)
	if i.restarts < 0 {
		return base.CorruptionErrorf("lsmkv: block restart table out of range")
	}
	i.offset = -1
	return nil
}

func (i *blockIter) restartOffset(idx int) int {
	return int(binary.LittleEndian.Uint32(i.data[i.restarts+4*idx:]))
}

// readEntryAt decodes the (shared, unshared, value) triple at byte offset
// off, given the key that preceded it (kept in i.key across calls).
func (i *blockIter) readEntryAt(off int) (nextOff int, ok bool) {
	p := i.data[off:]
	shared, n1 := binary.Uvarint(p)
	p = p[n1:]
	unshared, n2 := binary.Uvarint(p)
	p = p[n2:]
	valLen, n3 := binary.Uvarint(p)
	p = p[n3:]
	if int(shared) > len(i.key) || int(unshared) > len(p) {
		i.err = base.CorruptionErrorf("lsmkv: corrupt block entry")
		return 0, false
	}
	i.key = append(i.key[:shared], p[:unshared]...)
	p = p[unshared:]
	if int(valLen) > len(p) {
		i.err = base.CorruptionErrorf("lsmkv: corrupt block entry")
		return 0, false
	}
	i.val = p[:valLen]
	consumed := off + (len(i.data[off:]) - len(p)) + int(valLen)
	ikey, err := base.DecodeInternalKey(i.key)
	if err != nil {
		i.err = err
		return 0, false
	}
	i.ikey = ikey
	return consumed, true
}

func (i *blockIter) First() {
	i.key = i.key[:0]
	next, ok := i.readEntryAt(0)
	if !ok {
		i.offset = -1
		return
	}
	i.offset = 0
	i.nextOffset = next
}

func (i *blockIter) Last() {
	off := i.restartOffset(i.numRestarts - 1)
	i.key = i.key[:0]
	for {
		next, ok := i.readEntryAt(off)
		if !ok {
			i.offset = -1
			return
		}
		i.offset = off
		i.nextOffset = next
		if next >= i.restarts {
			return
		}
		off = next
	}
}

func (i *blockIter) Next() bool {
	if i.offset < 0 || i.nextOffset >= i.restarts {
		i.offset = -1
		return false
	}
	next, ok := i.readEntryAt(i.nextOffset)
	if !ok {
		i.offset = -1
		return false
	}
	i.offset = i.nextOffset
	i.nextOffset = next
	return true
}

// Prev re-walks from the preceding restart point, since entries are only
// prefix-decodable moving forward. Acceptable: table iteration in this
// engine is overwhelmingly forward (compaction, range scans); backward
// iteration within a block is rare enough that O(restart interval) is fine.
func (i *blockIter) Prev() bool {
	if i.offset <= 0 {
		i.offset = -1
		return false
	}
	target := i.offset
	idx := sort.Search(i.numRestarts, func(j int) bool {
		return i.restartOffset(j) >= target
	})
	off := 0
	if idx > 0 {
		off = i.restartOffset(idx - 1)
	}
	i.key = i.key[:0]
	var lastOff int
	for {
		next, ok := i.readEntryAt(off)
		if !ok {
			i.offset = -1
			return false
		}
		lastOff = off
		if next >= target {
			break
		}
		off = next
	}
	i.offset = lastOff
	i.nextOffset = target
	return true
}

// SeekGE positions the iterator at the first entry whose key is >= target.
func (i *blockIter) SeekGE(target []byte) {
	index := sort.Search(i.numRestarts, func(j int) bool {
		off := i.restartOffset(j)
		// Restart-point entries carry shared=0, so the key starts right
		// after the three one-byte-minimum varints; decode defensively
		// instead of assuming single-byte varints.
		p := i.data[off:]
		_, n1 := binary.Uvarint(p)
		p = p[n1:]
		unshared, n2 := binary.Uvarint(p)
		p = p[n2:]
		_, n3 := binary.Uvarint(p)
		p = p[n3:]
		restartKey := p[:unshared]
		return i.cmp(target, base.ExtractUserKey(restartKey)) <= 0
	})
	off := 0
	if index > 0 {
		off = i.restartOffset(index - 1)
	}
	i.key = i.key[:0]
	for {
		next, ok := i.readEntryAt(off)
		if !ok {
			i.offset = -1
			return
		}
		i.offset = off
		i.nextOffset = next
		if i.cmp(target, base.ExtractUserKey(i.key)) <= 0 {
			return
		}
		if next >= i.restarts {
			i.offset = -1
			return
		}
		off = next
	}
}

// SeekLT positions the iterator at the last entry whose key is < target.
func (i *blockIter) SeekLT(target []byte) {
	i.SeekGE(target)
	if !i.Valid() {
		i.Last()
		return
	}
	i.Prev()
}

func (i *blockIter) Key() base.InternalKey { return i.ikey }
func (i *blockIter) Value() []byte         { return i.val }
func (i *blockIter) Valid() bool           { return i.offset >= 0 }
func (i *blockIter) Error() error          { return i.err }
func (i *blockIter) Close() error          { return i.err }
