// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/lsmkv/lsmkv/internal/base"
)

// blockTrailerLen is the per-block trailer: a 1-byte compression type
// followed by an 8-byte xxhash64 checksum over (compressed payload ||
// type byte), "Block checksums use cespare/xxhash/v2".
const blockTrailerLen = 1 + 8

// WriterOptions configures table construction.
type WriterOptions struct {
	Compare         base.Compare
	Comparer        *base.Comparer
	BlockSize       int
	CompressionType base.CompressionType
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.BlockSize == 0 {
		o.BlockSize = 4096
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.Compare == nil {
		o.Compare = o.Comparer.Compare
	}
	return o
}

// Writer builds a single sstable: a sequence of data blocks, an index
// block mapping each data block's largest key to a blockHandle, and a
// footer.
type Writer struct {
	w    writeCloser
	opts WriterOptions

	dataBlock  *blockWriter
	indexBlock *blockWriter

	offset uint64

	pendingIndexEntry bool
	lastKey           base.InternalKey
	pendingHandle     blockHandle

	smallest, largest base.InternalKey
	haveKeys          bool
	smallestSeq       base.SeqNum
	largestSeq        base.SeqNum

	zstdEncoder *zstd.Encoder

	closed bool
	err    error
}

// writeCloser is the subset of vfs.File the writer needs; kept narrow so
// tests can pass a plain io-backed fake without pulling in the vfs
// package's full File surface.
type writeCloser interface {
	Write(p []byte) (int, error)
}

// NewWriter returns a Writer appending a table to w.
func NewWriter(w writeCloser, opts WriterOptions) *Writer {
	opts = opts.withDefaults()
	return &Writer{
		w:          w,
		opts:       opts,
		dataBlock:  newBlockWriter(),
		indexBlock: newBlockWriter(),
	}
}

// Add appends the next key/value pair. Keys must be added in ascending
// internal-key order.
func (wr *Writer) Add(key base.InternalKey, value []byte) error {
	if wr.err != nil {
		return wr.err
	}
	if wr.pendingIndexEntry {
		sep := (&base.InternalKeyComparer{User: wr.opts.Comparer}).FindShortestSeparator(wr.lastKey, key)
		wr.indexBlock.add(sep, wr.pendingHandle.encodeTo(nil))
		wr.pendingIndexEntry = false
	}

	wr.dataBlock.add(key, value)
	wr.lastKey = key.Clone()

	seq := key.SeqNum()
	if !wr.haveKeys {
		wr.smallest = key.Clone()
		wr.smallestSeq = seq
		wr.largestSeq = seq
		wr.haveKeys = true
	} else {
		if seq < wr.smallestSeq {
			wr.smallestSeq = seq
		}
		if seq > wr.largestSeq {
			wr.largestSeq = seq
		}
	}
	wr.largest = key.Clone()

	if len(wr.dataBlock.buf) >= wr.opts.BlockSize {
		return wr.flushDataBlock()
	}
	return nil
}

func (wr *Writer) flushDataBlock() error {
	if wr.dataBlock.empty() {
		return nil
	}
	handle, err := wr.writeBlock(wr.dataBlock.finish())
	if err != nil {
		return err
	}
	wr.dataBlock.reset()
	wr.pendingHandle = handle
	wr.pendingIndexEntry = true
	return nil
}

// writeBlock compresses (if configured), appends the trailer, writes it,
// and returns a handle to it.
func (wr *Writer) writeBlock(raw []byte) (blockHandle, error) {
	payload, err := wr.compress(raw)
	if err != nil {
		wr.err = err
		return blockHandle{}, err
	}
	trailer := make([]byte, blockTrailerLen)
	trailer[0] = byte(wr.opts.CompressionType)
	h := xxhash.New()
	h.Write(payload)
	h.Write(trailer[:1])
	checksum := h.Sum64()
	for i := 0; i < 8; i++ {
		trailer[1+i] = byte(checksum >> (8 * i))
	}

	handle := blockHandle{Offset: wr.offset, Length: uint64(len(payload))}
	if _, err := wr.w.Write(payload); err != nil {
		wr.err = err
		return blockHandle{}, err
	}
	if _, err := wr.w.Write(trailer); err != nil {
		wr.err = err
		return blockHandle{}, err
	}
	wr.offset += uint64(len(payload) + blockTrailerLen)
	return handle, nil
}

func (wr *Writer) compress(raw []byte) ([]byte, error) {
	switch wr.opts.CompressionType {
	case base.NoCompression:
		return raw, nil
	case base.ZstdCompression:
		if wr.zstdEncoder == nil {
			enc, err := zstd.NewWriter(nil)
			if err != nil {
				return nil, err
			}
			wr.zstdEncoder = enc
		}
		return wr.zstdEncoder.EncodeAll(raw, nil), nil
	default:
		// Snappy is reserved for large-value payloads ; an
		// sstable's own block compression is NoCompression or Zstd.
		return nil, base.ErrInvalidArgument
	}
}

// Close flushes the final data block, the index block, and the footer.
func (wr *Writer) Close() (*Properties, error) {
	if wr.closed {
		return nil, base.ErrClosed
	}
	wr.closed = true
	if wr.err != nil {
		return nil, wr.err
	}
	if err := wr.flushDataBlock(); err != nil {
		return nil, err
	}
	if wr.pendingIndexEntry {
		succ := (&base.InternalKeyComparer{User: wr.opts.Comparer}).FindShortSuccessor(wr.lastKey)
		wr.indexBlock.add(succ, wr.pendingHandle.encodeTo(nil))
		wr.pendingIndexEntry = false
	}

	indexHandle, err := wr.writeBlock(wr.indexBlock.finish())
	if err != nil {
		return nil, err
	}

	// The metaindex block is reserved for future per-table properties; an
	// empty block is written so the footer format is stable even before
	// anything occupies it.
	metaBlock := newBlockWriter()
	metaHandle, err := wr.writeBlock(metaBlock.finish())
	if err != nil {
		return nil, err
	}

	f := footer{metaindexHandle: metaHandle, indexHandle: indexHandle}
	if _, err := wr.w.Write(f.encode()); err != nil {
		return nil, err
	}

	return &Properties{
		Smallest:    wr.smallest,
		Largest:     wr.largest,
		SmallestSeq: wr.smallestSeq,
		LargestSeq:  wr.largestSeq,
	}, nil
}

// Properties summarizes a just-written table, enough for the caller to
// populate a manifest.FileMetadata entry.
type Properties struct {
	Smallest, Largest       base.InternalKey
	SmallestSeq, LargestSeq base.SeqNum
}
