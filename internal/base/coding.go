// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "encoding/binary"

// This file implements byte coding: fixed- and variable-length integer
// codecs, and length-prefixed byte strings. Varint encoding is delegated to
// encoding/binary's Uvarint/PutUvarint, which implement the same
// 7-bits-per-byte continuation scheme as the original leveldb
// util/coding.h; no corpus dependency offers a varint codec, so the
// standard library is used directly (see DESIGN.md).

// Cursor walks an encoded byte buffer, both decoding values and advancing
// past them. A zero Cursor is not valid; use NewCursor.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor returns a Cursor positioned at the start of buf.
func NewCursor(buf []byte) Cursor {
	return Cursor{buf: buf}
}

// Remaining returns the number of unconsumed bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// Rest returns the unconsumed suffix of the underlying buffer.
func (c *Cursor) Rest() []byte {
	return c.buf[c.pos:]
}

// Varint32 decodes a varint-encoded uint32, advancing the cursor. 32-bit
// decoders accept any valid-sized encoding whose value fits; values that
// overflow 32 bits are reported as Corruption.
func (c *Cursor) Varint32() (uint32, error) {
	v, n := binary.Uvarint(c.buf[c.pos:])
	if n <= 0 {
		return 0, CorruptionErrorf("lsmkv: invalid varint32")
	}
	if v > 1<<32-1 {
		return 0, CorruptionErrorf("lsmkv: varint32 overflow")
	}
	c.pos += n
	return uint32(v), nil
}

// Varint64 decodes a varint-encoded uint64, advancing the cursor.
func (c *Cursor) Varint64() (uint64, error) {
	v, n := binary.Uvarint(c.buf[c.pos:])
	if n <= 0 {
		return 0, CorruptionErrorf("lsmkv: invalid varint64")
	}
	c.pos += n
	return v, nil
}

// Fixed32 decodes a little-endian fixed uint32, advancing the cursor.
func (c *Cursor) Fixed32() (uint32, error) {
	if c.Remaining() < 4 {
		return 0, CorruptionErrorf("lsmkv: truncated fixed32")
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// Fixed64 decodes a little-endian fixed uint64, advancing the cursor.
func (c *Cursor) Fixed64() (uint64, error) {
	if c.Remaining() < 8 {
		return 0, CorruptionErrorf("lsmkv: truncated fixed64")
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

// Bytes decodes a varint32(len) || bytes length-prefixed string, advancing
// the cursor. The returned slice aliases the cursor's backing array.
func (c *Cursor) Bytes() ([]byte, error) {
	n, err := c.Varint32()
	if err != nil {
		return nil, err
	}
	if c.Remaining() < int(n) {
		return nil, CorruptionErrorf("lsmkv: truncated length-prefixed bytes")
	}
	b := c.buf[c.pos : c.pos+int(n)]
	c.pos += int(n)
	return b, nil
}

// PutFixed32 appends a little-endian uint32 to dst.
func PutFixed32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// PutFixed64 appends a little-endian uint64 to dst.
func PutFixed64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// PutVarint32 appends a varint-encoded uint32 to dst.
func PutVarint32(dst []byte, v uint32) []byte {
	var b [binary.MaxVarintLen32]byte
	n := binary.PutUvarint(b[:], uint64(v))
	return append(dst, b[:n]...)
}

// PutVarint64 appends a varint-encoded uint64 to dst.
func PutVarint64(dst []byte, v uint64) []byte {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	return append(dst, b[:n]...)
}

// PutBytes appends a varint32(len) || bytes length-prefixed string to dst.
func PutBytes(dst []byte, v []byte) []byte {
	dst = PutVarint32(dst, uint32(len(v)))
	return append(dst, v...)
}

// VarintLen64 returns the number of bytes the varint encoding of v occupies.
func VarintLen64(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
