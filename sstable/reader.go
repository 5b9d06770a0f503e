// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/lsmkv/lsmkv/internal/base"
)

// readerAt is the subset of vfs.File a Reader needs: random-access reads.
// The file's size is passed to the Reader separately.
type readerAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

// Reader opens an existing table for point lookups and iteration.
type Reader struct {
	r        readerAt
	size     int64
	opts     WriterOptions
	index    footer
	zstdDec  *zstd.Decoder
}

// NewReader opens a table backed by r, whose total size is size.
func NewReader(r readerAt, size int64, opts WriterOptions) (*Reader, error) {
	opts = opts.withDefaults()
	if size < footerLen {
		return nil, base.CorruptionErrorf("lsmkv: table too small to hold a footer")
	}
	buf := make([]byte, footerLen)
	if _, err := r.ReadAt(buf, size-footerLen); err != nil {
		return nil, base.IOErrorf(err, "lsmkv: reading table footer")
	}
	f, err := decodeFooter(buf)
	if err != nil {
		return nil, err
	}
	return &Reader{r: r, size: size, opts: opts, index: f}, nil
}

// readBlock reads, verifies the checksum of, and decompresses the block at
// handle.
func (rd *Reader) readBlock(handle blockHandle) ([]byte, error) {
	buf := make([]byte, handle.Length+blockTrailerLen)
	if _, err := rd.r.ReadAt(buf, int64(handle.Offset)); err != nil {
		return nil, base.IOErrorf(err, "lsmkv: reading block at offset %d", handle.Offset)
	}
	payload := buf[:handle.Length]
	trailer := buf[handle.Length:]
	ctype := base.CompressionType(trailer[0])
	if !ctype.IsValid() {
		return nil, base.CorruptionErrorf("lsmkv: invalid block compression type %d", trailer[0])
	}

	h := xxhash.New()
	h.Write(payload)
	h.Write(trailer[:1])
	var want uint64
	for i := 0; i < 8; i++ {
		want |= uint64(trailer[1+i]) << (8 * i)
	}
	if h.Sum64() != want {
		return nil, base.CorruptionErrorf("lsmkv: block checksum mismatch at offset %d", handle.Offset)
	}

	switch ctype {
	case base.NoCompression:
		return payload, nil
	case base.ZstdCompression:
		if rd.zstdDec == nil {
			dec, err := zstd.NewReader(nil)
			if err != nil {
				return nil, err
			}
			rd.zstdDec = dec
		}
		return rd.zstdDec.DecodeAll(payload, nil)
	default:
		return nil, base.CorruptionErrorf("lsmkv: unsupported block compression type %d", ctype)
	}
}

// NewIter returns a two-level iterator over the table's data blocks,
// grounded on the two-level index/data iterator in
// _examples/ariesdevil-pebble/sstable/reader.go.
func (rd *Reader) NewIter() (base.InternalIterator, error) {
	indexData, err := rd.readBlock(rd.index.indexHandle)
	if err != nil {
		return nil, err
	}
	indexIter, err := newBlockIter(rd.opts.Compare, indexData)
	if err != nil {
		return nil, err
	}
	return &tableIter{rd: rd, index: indexIter}, nil
}

// tableIter is the two-level iterator: index block entries name the
// blockHandle of the data block that might contain the sought key; the
// data block is only decoded when positioned over.
type tableIter struct {
	rd    *Reader
	index *blockIter
	data  *blockIter
	err   error
}

var _ base.InternalIterator = (*tableIter)(nil)

func (t *tableIter) loadDataBlock() bool {
	if !t.index.Valid() {
		t.data = nil
		return false
	}
	handle, _, err := decodeBlockHandle(t.index.Value())
	if err != nil {
		t.err = err
		return false
	}
	raw, err := t.rd.readBlock(handle)
	if err != nil {
		t.err = err
		return false
	}
	di, err := newBlockIter(t.rd.opts.Compare, raw)
	if err != nil {
		t.err = err
		return false
	}
	t.data = di
	return true
}

func (t *tableIter) SeekGE(target []byte) {
	t.index.SeekGE(target)
	if !t.loadDataBlock() {
		return
	}
	t.data.SeekGE(target)
	for !t.data.Valid() {
		t.index.Next()
		if !t.loadDataBlock() {
			return
		}
		t.data.First()
	}
}

func (t *tableIter) SeekLT(target []byte) {
	t.index.SeekGE(target)
	if !t.index.Valid() {
		t.index.Last()
	}
	if !t.loadDataBlock() {
		return
	}
	t.data.SeekLT(target)
	for !t.data.Valid() {
		if !t.index.Prev() {
			t.data = nil
			return
		}
		if !t.loadDataBlock() {
			return
		}
		t.data.Last()
	}
}

func (t *tableIter) First() {
	t.index.First()
	if !t.loadDataBlock() {
		return
	}
	t.data.First()
	for !t.data.Valid() {
		if !t.index.Next() {
			t.data = nil
			return
		}
		if !t.loadDataBlock() {
			return
		}
		t.data.First()
	}
}

func (t *tableIter) Last() {
	t.index.Last()
	if !t.loadDataBlock() {
		return
	}
	t.data.Last()
	for !t.data.Valid() {
		if !t.index.Prev() {
			t.data = nil
			return
		}
		if !t.loadDataBlock() {
			return
		}
		t.data.Last()
	}
}

func (t *tableIter) Next() bool {
	if t.data == nil {
		return false
	}
	if t.data.Next() {
		return true
	}
	for t.index.Next() {
		if !t.loadDataBlock() {
			return false
		}
		if t.data.First(); t.data.Valid() {
			return true
		}
	}
	t.data = nil
	return false
}

func (t *tableIter) Prev() bool {
	if t.data == nil {
		return false
	}
	if t.data.Prev() {
		return true
	}
	for t.index.Prev() {
		if !t.loadDataBlock() {
			return false
		}
		if t.data.Last(); t.data.Valid() {
			return true
		}
	}
	t.data = nil
	return false
}

func (t *tableIter) Key() base.InternalKey {
	return t.data.Key()
}

func (t *tableIter) Value() []byte {
	return t.data.Value()
}

func (t *tableIter) Valid() bool {
	return t.data != nil && t.data.Valid()
}

func (t *tableIter) Error() error {
	if t.err != nil {
		return t.err
	}
	if t.data != nil {
		return t.data.Error()
	}
	return nil
}

func (t *tableIter) Close() error {
	return t.Error()
}
