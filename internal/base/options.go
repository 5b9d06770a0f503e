// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

// Range is a half-open key range [Start, Limit), used by
// GetApproximateSizes.
type Range struct {
	Start []byte
	Limit []byte
}

// TableInfo summarizes an on-disk table for diagnostics and the CLI.
type TableInfo struct {
	Path           string
	FileNum        uint64
	Size           uint64
	Smallest       InternalKey
	Largest        InternalKey
	SmallestSeqNum SeqNum
	LargestSeqNum  SeqNum
}

// CompressionType names the set a large value or sstable block may be
// compressed with. The original leveldb encoding checked
// `ctype <= kLightweightCompression`, a fragility against future
// compression types; validation here always switches over the named
// constants explicitly.
type CompressionType uint8

const (
	// NoCompression stores the payload unmodified.
	NoCompression CompressionType = 0
	// SnappyCompression corresponds to the original kLightweightCompression.
	SnappyCompression CompressionType = 1
	// ZstdCompression is an engine addition beyond the original two-member
	// enum.
	ZstdCompression CompressionType = 2
)

// IsValid reports whether ctype is a known compression type.
func (ctype CompressionType) IsValid() bool {
	switch ctype {
	case NoCompression, SnappyCompression, ZstdCompression:
		return true
	default:
		return false
	}
}

func (ctype CompressionType) String() string {
	switch ctype {
	case NoCompression:
		return "none"
	case SnappyCompression:
		return "snappy"
	case ZstdCompression:
		return "zstd"
	default:
		return "unknown"
	}
}
