// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package manifest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/internal/lvref"
)

// Tags for the VersionEdit disk format: a sequence of (tag, payload)
// records where each tag is a varint; an unknown tag is a corruption.
const (
	tagComparator     = 1
	tagLogNumber      = 2
	tagNextFileNumber = 3
	tagLastSequence   = 4
	tagDeletedFile    = 6
	tagNewFile        = 7
	tagLargeValueRef  = 8
)

// VersionEdit is the descriptor edit: an optional-fields struct plus
// three vectors (new files, deleted files, large-value refs).
type VersionEdit struct {
	// ComparatorName is set only on the first edit of a fresh manifest, and
	// checked against the configured comparator on Recover.
	ComparatorName string

	// MinUnflushedLogNum is the smallest WAL log number not yet flushed.
	MinUnflushedLogNum FileNum

	// NextFileNum is the next file number to hand out.
	NextFileNum FileNum

	// LastSequence is an upper bound on assigned sequence numbers.
	LastSequence base.SeqNum

	DeletedFiles map[DeletedFileEntry]bool
	NewFiles     []NewFileEntry

	// LargeValueRefs records large-value files this edit introduces, the
	// edit's third vector.
	LargeValueRefs []lvref.Ref
}

// Encode appends the tag-based wire form of v to w. An edit with no
// fields encodes to the empty byte string.
func (v *VersionEdit) Encode(w io.Writer) error {
	e := versionEditEncoder{new(bytes.Buffer)}

	if v.ComparatorName != "" {
		e.writeUvarint(tagComparator)
		e.writeString(v.ComparatorName)
	}
	if v.MinUnflushedLogNum != 0 {
		e.writeUvarint(tagLogNumber)
		e.writeUvarint(uint64(v.MinUnflushedLogNum))
	}
	if v.NextFileNum != 0 {
		e.writeUvarint(tagNextFileNumber)
		e.writeUvarint(uint64(v.NextFileNum))
	}
	if v.LastSequence != 0 || v.ComparatorName != "" {
		e.writeUvarint(tagLastSequence)
		e.writeUvarint(uint64(v.LastSequence))
	}
	for x := range v.DeletedFiles {
		e.writeUvarint(tagDeletedFile)
		e.writeUvarint(uint64(x.Level))
		e.writeUvarint(uint64(x.FileNum))
	}
	for _, x := range v.NewFiles {
		e.writeUvarint(tagNewFile)
		e.writeUvarint(uint64(x.Level))
		e.writeUvarint(uint64(x.Meta.FileNum))
		e.writeUvarint(x.Meta.Size)
		e.writeKey(x.Meta.Smallest)
		e.writeKey(x.Meta.Largest)
		e.writeUvarint(uint64(x.Meta.SmallestSeqNum))
		e.writeUvarint(uint64(x.Meta.LargestSeqNum))
		e.writeBool(x.Meta.MarkedForCompaction)
	}
	for _, ref := range v.LargeValueRefs {
		e.writeUvarint(tagLargeValueRef)
		e.writeBytes(ref.Encode(nil))
	}
	_, err := w.Write(e.Bytes())
	return err
}

// byteReader is the minimal interface Decode needs from its source.
type byteReader interface {
	io.ByteReader
	io.Reader
}

// Decode parses the tag-based wire form produced by Encode. Any tag it
// doesn't recognize is treated as corruption.
func (v *VersionEdit) Decode(r io.Reader) error {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	d := versionEditDecoder{br}
	for {
		tag, err := binary.ReadUvarint(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch tag {
		case tagComparator:
			s, err := d.readBytes()
			if err != nil {
				return err
			}
			v.ComparatorName = string(s)

		case tagLogNumber:
			n, err := d.readUvarint()
			if err != nil {
				return err
			}
			v.MinUnflushedLogNum = FileNum(n)

		case tagNextFileNumber:
			n, err := d.readUvarint()
			if err != nil {
				return err
			}
			v.NextFileNum = FileNum(n)

		case tagLastSequence:
			n, err := d.readUvarint()
			if err != nil {
				return err
			}
			v.LastSequence = base.SeqNum(n)

		case tagDeletedFile:
			level, err := d.readLevel()
			if err != nil {
				return err
			}
			fileNum, err := d.readUvarint()
			if err != nil {
				return err
			}
			if v.DeletedFiles == nil {
				v.DeletedFiles = make(map[DeletedFileEntry]bool)
			}
			v.DeletedFiles[DeletedFileEntry{level, FileNum(fileNum)}] = true

		case tagNewFile:
			level, err := d.readLevel()
			if err != nil {
				return err
			}
			fileNum, err := d.readUvarint()
			if err != nil {
				return err
			}
			size, err := d.readUvarint()
			if err != nil {
				return err
			}
			smallest, err := d.readBytes()
			if err != nil {
				return err
			}
			largest, err := d.readBytes()
			if err != nil {
				return err
			}
			smallestSeq, err := d.readUvarint()
			if err != nil {
				return err
			}
			largestSeq, err := d.readUvarint()
			if err != nil {
				return err
			}
			marked, err := d.readBool()
			if err != nil {
				return err
			}
			smallestKey, err := base.DecodeInternalKey(smallest)
			if err != nil {
				return err
			}
			largestKey, err := base.DecodeInternalKey(largest)
			if err != nil {
				return err
			}
			v.NewFiles = append(v.NewFiles, NewFileEntry{
				Level: level,
				Meta: &FileMetadata{
					FileNum:             FileNum(fileNum),
					Size:                size,
					Smallest:            smallestKey,
					Largest:             largestKey,
					SmallestSeqNum:      base.SeqNum(smallestSeq),
					LargestSeqNum:       base.SeqNum(largestSeq),
					MarkedForCompaction: marked,
				},
			})

		case tagLargeValueRef:
			buf, err := d.readBytes()
			if err != nil {
				return err
			}
			ref, err := lvref.DecodeRef(buf)
			if err != nil {
				return err
			}
			v.LargeValueRefs = append(v.LargeValueRefs, ref)

		default:
			return base.CorruptionErrorf("lsmkv: unknown version edit tag %d", tag)
		}
	}
}

type versionEditDecoder struct {
	byteReader
}

func (d versionEditDecoder) readBytes() ([]byte, error) {
	n, err := d.readUvarint()
	if err != nil {
		return nil, err
	}
	s := make([]byte, n)
	if _, err := io.ReadFull(d, s); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, base.CorruptionErrorf("lsmkv: truncated version edit")
		}
		return nil, err
	}
	return s, nil
}

func (d versionEditDecoder) readLevel() (int, error) {
	u, err := d.readUvarint()
	if err != nil {
		return 0, err
	}
	if u >= NumLevels {
		return 0, base.CorruptionErrorf("lsmkv: invalid level %d in version edit", u)
	}
	return int(u), nil
}

func (d versionEditDecoder) readUvarint() (uint64, error) {
	u, err := binary.ReadUvarint(d)
	if err != nil {
		if err == io.EOF {
			return 0, base.CorruptionErrorf("lsmkv: truncated version edit")
		}
		return 0, err
	}
	return u, nil
}

func (d versionEditDecoder) readBool() (bool, error) {
	u, err := d.readUvarint()
	if err != nil {
		return false, err
	}
	return u != 0, nil
}

type versionEditEncoder struct {
	*bytes.Buffer
}

func (e versionEditEncoder) writeBytes(p []byte) {
	e.writeUvarint(uint64(len(p)))
	e.Write(p)
}

func (e versionEditEncoder) writeKey(k base.InternalKey) {
	e.writeBytes(k.Encode(nil))
}

func (e versionEditEncoder) writeString(s string) {
	e.writeUvarint(uint64(len(s)))
	e.WriteString(s)
}

func (e versionEditEncoder) writeBool(b bool) {
	if b {
		e.writeUvarint(1)
	} else {
		e.writeUvarint(0)
	}
}

func (e versionEditEncoder) writeUvarint(u uint64) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], u)
	e.Write(buf[:n])
}
