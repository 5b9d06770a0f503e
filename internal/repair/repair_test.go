// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package repair

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/internal/manifest"
	"github.com/lsmkv/lsmkv/vfs"
	"github.com/stretchr/testify/require"
)

var testCrcTable = crc32.MakeTable(crc32.Castagnoli)

type testLogger struct {
	infof func(format string, args ...interface{})
}

func (l testLogger) Infof(format string, args ...interface{}) { l.infof(format, args...) }
func (l testLogger) Fatalf(format string, args ...interface{}) {
	panic("repair_test: Fatalf called")
}

// appendVarstring appends p's uvarint-prefixed length followed by p
// itself, matching the wire form insertBatch's decodeVarstring expects.
func appendVarstring(dst, p []byte) []byte {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(p)))
	dst = append(dst, lenBuf[:n]...)
	return append(dst, p...)
}

// makeBatch builds a single-entry Set batch (seq, key -> value) in the
// wire format sortedEntries.insertBatch decodes.
func makeBatch(seq uint64, key, value []byte) []byte {
	var hdr [batchHeaderLen]byte
	binary.LittleEndian.PutUint64(hdr[:8], seq)
	binary.LittleEndian.PutUint32(hdr[8:12], 1)
	b := append([]byte{}, hdr[:]...)
	b = append(b, byte(base.InternalKeyKindSet))
	b = appendVarstring(b, key)
	b = appendVarstring(b, value)
	return b
}

// appendPhysicalRecord appends one full-type physical record framing
// payload, in internal/record's header format (checksum32 LE, length16
// LE, type8). corrupt flips the checksum so the reader drops the record.
func appendPhysicalRecord(dst, payload []byte, corrupt bool) []byte {
	const fullType = 1
	checksum := crc32.Update(0, testCrcTable, []byte{byte(fullType)})
	checksum = crc32.Update(checksum, testCrcTable, payload)
	if corrupt {
		checksum ^= 0xffffffff
	}
	var hdr [7]byte
	hdr[0] = byte(checksum)
	hdr[1] = byte(checksum >> 8)
	hdr[2] = byte(checksum >> 16)
	hdr[3] = byte(checksum >> 24)
	hdr[4] = byte(len(payload))
	hdr[5] = byte(len(payload) >> 8)
	hdr[6] = byte(fullType)
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// TestRepairDropsCorruptLogRecordButKeepsRest feeds Repair a log with a
// clean record, a corrupted record, and a second clean record, and checks
// that the two clean entries survive into the rebuilt table while the
// corrupt record is dropped rather than aborting the whole file, and
// that the source log is archived under lost/ regardless of outcome.
func TestRepairDropsCorruptLogRecordButKeepsRest(t *testing.T) {
	fs := vfs.NewMem()
	icmp := &base.InternalKeyComparer{User: base.DefaultComparer}
	require.NoError(t, fs.MkdirAll("db"))

	var buf []byte
	buf = appendPhysicalRecord(buf, makeBatch(1, []byte("a"), []byte("a-value")), false)
	buf = appendPhysicalRecord(buf, makeBatch(2, []byte("b"), []byte("b-value")), true)
	buf = appendPhysicalRecord(buf, makeBatch(3, []byte("c"), []byte("c-value")), false)

	logPath := base.MakeFilename(base.FileTypeLog, "db", 1)
	f, err := fs.Create(logPath, vfs.WriteCategoryUnspecified)
	require.NoError(t, err)
	_, err = f.Write(buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var diagnostics []string
	logger := testLogger{infof: func(format string, args ...interface{}) {
		diagnostics = append(diagnostics, format)
	}}

	require.NoError(t, Repair("db", fs, icmp, logger))

	// The source log is archived, not left in place and not deleted.
	_, err = fs.Stat(logPath)
	require.Error(t, err)
	_, err = fs.Stat(fs.PathJoin("db", "lost", "000001.log"))
	require.NoError(t, err)

	require.NotEmpty(t, diagnostics)

	vs := manifest.NewVersionSet("db", fs, icmp)
	require.NoError(t, vs.Recover(icmp.Name()))
	v := vs.Current()
	var gotKeys []string
	for level := 0; level < manifest.NumLevels; level++ {
		for _, file := range v.Levels[level] {
			gotKeys = append(gotKeys, string(file.Smallest.UserKey), string(file.Largest.UserKey))
		}
	}
	require.Contains(t, gotKeys, "a")
	require.Contains(t, gotKeys, "c")
	require.NotContains(t, gotKeys, "b")
}

// TestRepairArchivesUnreadableTable checks that a table file Repair
// cannot open as a valid sstable is quarantined under lost/ rather than
// left in place or causing Repair to fail outright.
func TestRepairArchivesUnreadableTable(t *testing.T) {
	fs := vfs.NewMem()
	icmp := &base.InternalKeyComparer{User: base.DefaultComparer}
	require.NoError(t, fs.MkdirAll("db"))

	tablePath := base.MakeFilename(base.FileTypeTable, "db", 5)
	f, err := fs.Create(tablePath, vfs.WriteCategoryUnspecified)
	require.NoError(t, err)
	_, err = f.Write([]byte("not a valid sstable"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	logger := testLogger{infof: func(string, ...interface{}) {}}
	require.NoError(t, Repair("db", fs, icmp, logger))

	_, err = fs.Stat(tablePath)
	require.Error(t, err)
	_, err = fs.Stat(fs.PathJoin("db", "lost", "000005.sst"))
	require.NoError(t, err)
}
