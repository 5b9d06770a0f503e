// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package record implements the framed record stream underlying both
// the write-ahead log and the manifest. Grounded in
// the classic leveldb log format and in the usage pattern visible in
// _examples/ariesdevil-pebble/open.go (record.NewWriter, record.NewReader,
// record.NewLogWriter).
package record

import (
	"bufio"
	"hash/crc32"
	"io"

	"github.com/lsmkv/lsmkv/internal/base"
)

// blockSize is the alignment unit records are framed into: block-aligned
// to 32 KiB.
const blockSize = 32 * 1024

// headerSize is the fixed per-fragment header: checksum32 || length16 ||
// type8.
const headerSize = 4 + 2 + 1

// recordType enumerates the fragment types used to carry a logical record
// across block boundaries.
type recordType byte

const (
	fullType   recordType = 1
	firstType  recordType = 2
	middleType recordType = 3
	lastType   recordType = 4
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Writer frames a stream of logical records into blockSize-aligned
// physical blocks. It is not safe for concurrent use.
type Writer struct {
	w io.Writer
	// off is the write offset within the current conceptual 32 KiB block;
	// every call to writeRaw is sized to fit entirely within one block, so
	// writes are passed straight through to w without additional
	// buffering here.
	off int
}

// NewWriter returns a Writer that frames records onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Next returns a writer for the next logical record. The caller must
// Write the full record body to the returned writer before calling Next
// or Close again.
func (w *Writer) Next() (io.Writer, error) {
	return recordWriter{w}, nil
}

// WriteRecord is a convenience wrapper that writes a single logical record
// in one call.
func (w *Writer) WriteRecord(data []byte) error {
	rw, err := w.Next()
	if err != nil {
		return err
	}
	_, err = rw.Write(data)
	return err
}

// Close flushes any buffered state. Writer doesn't buffer beyond the
// current physical block, so Close is a no-op reserved for interface
// symmetry with Reader.
func (w *Writer) Close() error { return nil }

type recordWriter struct{ w *Writer }

// Write frames data as one or more physical fragments, splitting across
// block boundaries as needed.
func (rw recordWriter) Write(data []byte) (int, error) {
	w := rw.w
	total := len(data)
	first := true
	for {
		leftover := blockSize - w.off
		if leftover < headerSize {
			// Not enough room in this block for even a header; pad with
			// zeroes and move to the next block.
			if leftover > 0 {
				var zero [headerSize]byte
				if err := w.writeRaw(zero[:leftover]); err != nil {
					return 0, err
				}
			}
			w.off = 0
		}
		avail := blockSize - w.off - headerSize
		n := len(data)
		if n > avail {
			n = avail
		}
		last := n == len(data)

		var typ recordType
		switch {
		case first && last:
			typ = fullType
		case first && !last:
			typ = firstType
		case !first && last:
			typ = lastType
		default:
			typ = middleType
		}

		if err := w.writePhysicalRecord(typ, data[:n]); err != nil {
			return 0, err
		}
		data = data[n:]
		first = false
		if len(data) == 0 {
			break
		}
	}
	return total, nil
}

func (w *Writer) writePhysicalRecord(typ recordType, data []byte) error {
	var header [headerSize]byte
	checksum := crc32.Update(0, crcTable, []byte{byte(typ)})
	checksum = crc32.Update(checksum, crcTable, data)
	header[0] = byte(checksum)
	header[1] = byte(checksum >> 8)
	header[2] = byte(checksum >> 16)
	header[3] = byte(checksum >> 24)
	header[4] = byte(len(data))
	header[5] = byte(len(data) >> 8)
	header[6] = byte(typ)
	if err := w.writeRaw(header[:]); err != nil {
		return err
	}
	return w.writeRaw(data)
}

// writeRaw writes p straight through to the underlying writer. Every
// caller sizes p so that it fits within the remaining space of the
// current conceptual 32 KiB block, so no buffering or splitting is
// needed here; off is updated (and wrapped) to track the position within
// that conceptual block for the next caller's padding decision.
func (w *Writer) writeRaw(p []byte) error {
	if _, err := w.w.Write(p); err != nil {
		return err
	}
	w.off += len(p)
	if w.off >= blockSize {
		w.off -= blockSize
	}
	return nil
}

// Reader reconstructs logical records from a stream framed by Writer.
type Reader struct {
	r   *bufio.Reader
	buf []byte
	// off is the position within the current 32 KiB block, used to skip
	// the zero padding Writer leaves at a block's tail.
	off int
	// reportCorruption, if non-nil, is called for dropped fragments
	// (checksum mismatch, truncated input), matching db/repair.cc's
	// LogReporter: "print error messages for corruption, but continue
	// repairing." Next still returns its error for the dropped record.
	reportCorruption func(reason string)
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, blockSize)}
}

// SetCorruptionReporter installs a callback invoked whenever a fragment is
// dropped due to a checksum mismatch or truncation; Next still returns an
// error for that record. Used by internal/repair's log-to-table conversion.
func (r *Reader) SetCorruptionReporter(f func(reason string)) {
	r.reportCorruption = f
}

// Next returns the next logical record, or io.EOF when the stream is
// exhausted.
func (r *Reader) Next() ([]byte, error) {
	r.buf = r.buf[:0]
	inFragment := false
	for {
		if left := blockSize - r.off; left < headerSize {
			r.r.Discard(left)
			r.off = 0
		}
		var header [headerSize]byte
		n, err := io.ReadFull(r.r, header[:])
		if err == io.EOF && n == 0 {
			if inFragment {
				r.corrupt("unexpected EOF mid-record")
				return nil, io.ErrUnexpectedEOF
			}
			return nil, io.EOF
		}
		if err != nil {
			if inFragment {
				r.corrupt("truncated header")
				return nil, io.ErrUnexpectedEOF
			}
			return nil, io.EOF
		}
		checksum := uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16 | uint32(header[3])<<24
		length := int(header[4]) | int(header[5])<<8
		typ := recordType(header[6])

		payload := make([]byte, length)
		if _, err := io.ReadFull(r.r, payload); err != nil {
			r.corrupt("truncated payload")
			return nil, io.ErrUnexpectedEOF
		}
		r.off = (r.off + headerSize + length) % blockSize
		want := crc32.Update(0, crcTable, []byte{byte(typ)})
		want = crc32.Update(want, crcTable, payload)
		if want != checksum {
			r.corrupt("checksum mismatch")
			return nil, base.CorruptionErrorf("lsmkv: record checksum mismatch")
		}

		switch typ {
		case fullType:
			if inFragment {
				r.corrupt("unexpected full fragment mid-record")
			}
			return payload, nil
		case firstType:
			r.buf = append(r.buf[:0], payload...)
			inFragment = true
		case middleType:
			if !inFragment {
				r.corrupt("middle fragment with no predecessor")
				continue
			}
			r.buf = append(r.buf, payload...)
		case lastType:
			if !inFragment {
				r.corrupt("last fragment with no predecessor")
				continue
			}
			r.buf = append(r.buf, payload...)
			return append([]byte(nil), r.buf...), nil
		default:
			r.corrupt("unknown fragment type")
		}
	}
}

func (r *Reader) corrupt(reason string) {
	if r.reportCorruption != nil {
		r.reportCorruption(reason)
	}
}
