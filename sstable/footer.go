// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"

	"github.com/lsmkv/lsmkv/internal/base"
)

// magic identifies an lsmkv table file; it is checked on open so a
// truncated or unrelated file is rejected with Corruption rather than
// silently misread, "a fixed-size footer... an 8-byte magic
// number".
const magic uint64 = 0xf09a9e4d2c7b1a5e

// blockHandleMaxLen is the maximum varint-encoded size of a blockHandle:
// two uint64 varints.
const blockHandleMaxLen = 2 * binary.MaxVarintLen64

// footerLen is the fixed on-disk size of the trailing footer: two block
// handles, padded, followed by the 8-byte magic.
const footerLen = 2*blockHandleMaxLen + 8

// blockHandle is a pointer to a block within the table file.
type blockHandle struct {
	Offset, Length uint64
}

func (h blockHandle) encodeTo(dst []byte) []byte {
	dst = base.PutVarint64(dst, h.Offset)
	dst = base.PutVarint64(dst, h.Length)
	return dst
}

func decodeBlockHandle(src []byte) (blockHandle, int, error) {
	c := base.NewCursor(src)
	off, err := c.Varint64()
	if err != nil {
		return blockHandle{}, 0, base.CorruptionErrorf("lsmkv: invalid block handle")
	}
	length, err := c.Varint64()
	if err != nil {
		return blockHandle{}, 0, base.CorruptionErrorf("lsmkv: invalid block handle")
	}
	return blockHandle{Offset: off, Length: length}, len(src) - len(c.Rest()), nil
}

// footer is the table trailer: handles to the index block and the
// metaindex block (which Writer always writes empty — reserved the way
// leveldb reserves it), plus the magic.
type footer struct {
	metaindexHandle blockHandle
	indexHandle     blockHandle
}

func (f footer) encode() []byte {
	buf := make([]byte, footerLen)
	n := 0
	n += copy(buf[n:], f.metaindexHandle.encodeTo(nil))
	n += copy(buf[n:], f.indexHandle.encodeTo(nil))
	binary.LittleEndian.PutUint64(buf[footerLen-8:], magic)
	return buf
}

func decodeFooter(buf []byte) (footer, error) {
	if len(buf) != footerLen {
		return footer{}, base.CorruptionErrorf("lsmkv: invalid footer length %d", len(buf))
	}
	if got := binary.LittleEndian.Uint64(buf[footerLen-8:]); got != magic {
		return footer{}, base.CorruptionErrorf("lsmkv: bad table magic number")
	}
	metaindex, n, err := decodeBlockHandle(buf)
	if err != nil {
		return footer{}, err
	}
	index, _, err := decodeBlockHandle(buf[n:])
	if err != nil {
		return footer{}, err
	}
	return footer{metaindexHandle: metaindex, indexHandle: index}, nil
}
