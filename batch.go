// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"encoding/binary"

	"github.com/lsmkv/lsmkv/internal/base"
)

// batchHeaderLen is the batch wire format's header size,
// grounded on _examples/ariesdevil-pebble/batch.go's batchHeaderLen = 12:
// an 8-byte sequence number of the batch's first operation followed by a
// 4-byte count.
const batchHeaderLen = 12

// Batch is a sequence of Sets and/or Deletes applied atomically. A Batch is
// itself a Writer, so Put/Delete/Write all funnel through one.
type Batch struct {
	// data is the wire format of the batch's eventual log record:
	//   seqNum(8) || count(4) || count x (kind(1) || varstring(key) || varstring(value)?)
	// seqNum is zero until the batch is about to be committed.
	data []byte
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	b := &Batch{}
	b.data = make([]byte, batchHeaderLen)
	return b
}

// Set appends a Set operation.
func (b *Batch) Set(key, value []byte) {
	b.prepare()
	b.data = append(b.data, byte(base.InternalKeyKindSet))
	b.appendStr(key)
	b.appendStr(value)
	b.incrementCount()
}

// Delete appends a Delete (tombstone) operation.
func (b *Batch) Delete(key []byte) {
	b.prepare()
	b.data = append(b.data, byte(base.InternalKeyKindDelete))
	b.appendStr(key)
	b.incrementCount()
}

// setLargeValueRef appends an operation that stores key pointing at a
// large-value reference rather than an inline value; used internally by the
// database facade when a Set's value exceeds the large-value threshold.
func (b *Batch) setLargeValueRef(key []byte, ref []byte) {
	b.prepare()
	b.data = append(b.data, byte(base.InternalKeyKindLargeValueRef))
	b.appendStr(key)
	b.appendStr(ref)
	b.incrementCount()
}

func (b *Batch) prepare() {
	if len(b.data) == 0 {
		b.data = make([]byte, batchHeaderLen)
	}
}

// Count returns the number of operations in the batch.
func (b *Batch) Count() uint32 {
	if len(b.data) < batchHeaderLen {
		return 0
	}
	return binary.LittleEndian.Uint32(b.data[8:12])
}

func (b *Batch) incrementCount() {
	binary.LittleEndian.PutUint32(b.data[8:12], b.Count()+1)
}

func (b *Batch) setSeqNum(seq base.SeqNum) {
	binary.LittleEndian.PutUint64(b.data[:8], uint64(seq))
}

func (b *Batch) seqNum() base.SeqNum {
	return base.SeqNum(binary.LittleEndian.Uint64(b.data[:8]))
}

func (b *Batch) appendStr(s []byte) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], uint64(len(s)))
	b.data = append(b.data, buf[:n]...)
	b.data = append(b.data, s...)
}

// Repr returns the batch's on-the-wire representation, the same bytes
// written as a single log record.
func (b *Batch) Repr() []byte {
	return b.data
}

// Reset empties the batch for reuse.
func (b *Batch) Reset() {
	b.data = b.data[:batchHeaderLen]
	binary.LittleEndian.PutUint64(b.data[:8], 0)
	binary.LittleEndian.PutUint32(b.data[8:12], 0)
}

// batchEntry decodes the operations a batch carries, in order, assigning
// each successive sequence number starting at the batch's base seqNum.
type batchEntry struct {
	kind  base.InternalKeyKind
	key   []byte
	value []byte
	seq   base.SeqNum
}

// decodeBatch parses repr (a batch's Repr(), or a raw record read back from
// the write-ahead log) into its ordered entries.
func decodeBatch(repr []byte) ([]batchEntry, error) {
	if len(repr) < batchHeaderLen {
		return nil, base.CorruptionErrorf("lsmkv: batch too short")
	}
	baseSeq := base.SeqNum(binary.LittleEndian.Uint64(repr[:8]))
	count := binary.LittleEndian.Uint32(repr[8:12])

	entries := make([]batchEntry, 0, count)
	p := repr[batchHeaderLen:]
	for i := uint32(0); i < count; i++ {
		if len(p) == 0 {
			return nil, base.CorruptionErrorf("lsmkv: batch entry count mismatch")
		}
		kind := base.InternalKeyKind(p[0])
		p = p[1:]
		key, rest, ok := decodeVarstring(p)
		if !ok {
			return nil, base.CorruptionErrorf("lsmkv: corrupt batch key")
		}
		p = rest
		var value []byte
		switch kind {
		case base.InternalKeyKindSet, base.InternalKeyKindLargeValueRef:
			value, rest, ok = decodeVarstring(p)
			if !ok {
				return nil, base.CorruptionErrorf("lsmkv: corrupt batch value")
			}
			p = rest
		case base.InternalKeyKindDelete:
		default:
			return nil, base.CorruptionErrorf("lsmkv: unknown batch entry kind %d", kind)
		}
		entries = append(entries, batchEntry{kind: kind, key: key, value: value, seq: baseSeq + base.SeqNum(i)})
	}
	return entries, nil
}

func decodeVarstring(p []byte) (s []byte, rest []byte, ok bool) {
	v, n := binary.Uvarint(p)
	if n <= 0 {
		return nil, nil, false
	}
	p = p[n:]
	if v > uint64(len(p)) {
		return nil, nil, false
	}
	return p[:v], p[v:], true
}
