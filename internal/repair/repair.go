// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package repair implements the repairer: it
// runs when a database's manifest is absent or unusable, reconstructing a
// fresh descriptor from whatever log and table files survive on disk.
// Grounded on _examples/original_source/db/repair.cc's RepairState
// machine (FindFiles/ConvertLogFilesToTables/ExtractMetaData/
// WriteDescriptor/ArchiveFile), reimplemented against this engine's own
// record/sstable/manifest packages rather than translated line-by-line.
package repair

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/internal/lvref"
	"github.com/lsmkv/lsmkv/internal/manifest"
	"github.com/lsmkv/lsmkv/internal/record"
	"github.com/lsmkv/lsmkv/internal/skiplist"
	"github.com/lsmkv/lsmkv/sstable"
	"github.com/lsmkv/lsmkv/vfs"
)

// batchHeaderLen matches the wire format batch.go defines in the root
// package (batch format: 8-byte seqNum, 4-byte count). The
// repairer duplicates the decode here rather than importing the root
// package, which in turn depends on internal/repair for RepairDB.
const batchHeaderLen = 12

// sortedEntries accumulates a log file's decoded batches into an
// internal-key-ordered map, built by inserting each batch's updates in
// turn.
type sortedEntries struct {
	skl *skiplist.Skiplist
}

func newSortedEntries(cmp *base.InternalKeyComparer) *sortedEntries {
	return &sortedEntries{skl: skiplist.New(cmp)}
}

func (s *sortedEntries) empty() bool { return s.skl.Len() == 0 }

// insertBatch decodes one log record's batch wire form and inserts every
// entry; a malformed batch is reported as a single error so the caller can
// drop the whole record with a diagnostic, per step 2.
func (s *sortedEntries) insertBatch(rec []byte) error {
	if len(rec) < batchHeaderLen {
		return base.CorruptionErrorf("lsmkv: batch too short")
	}
	seq := base.SeqNum(binary.LittleEndian.Uint64(rec[:8]))
	count := binary.LittleEndian.Uint32(rec[8:12])

	p := rec[batchHeaderLen:]
	for i := uint32(0); i < count; i++ {
		if len(p) == 0 {
			return base.CorruptionErrorf("lsmkv: batch entry count mismatch")
		}
		kind := base.InternalKeyKind(p[0])
		p = p[1:]
		key, rest, ok := decodeVarstring(p)
		if !ok {
			return base.CorruptionErrorf("lsmkv: corrupt batch key")
		}
		p = rest
		var value []byte
		switch kind {
		case base.InternalKeyKindSet, base.InternalKeyKindLargeValueRef:
			value, rest, ok = decodeVarstring(p)
			if !ok {
				return base.CorruptionErrorf("lsmkv: corrupt batch value")
			}
			p = rest
		case base.InternalKeyKindDelete:
		default:
			return base.CorruptionErrorf("lsmkv: unknown batch entry kind %d", kind)
		}
		ikey := base.MakeInternalKey(key, seq+base.SeqNum(i), kind)
		s.skl.Insert(ikey, value)
	}
	return nil
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

// writeTo drains the accumulated entries, in order, into w.
func (s *sortedEntries) writeTo(w *sstable.Writer) error {
	it := skiplist.NewIterator(s.skl)
	for it.First(); it.Valid(); it.Next() {
		if err := w.Add(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	return nil
}

// Repair reconstructs dirname's manifest, per four-step
// procedure. It never deletes input: suspect log and table files are
// moved under dirname/lost/, never removed outright.
func Repair(dirname string, fs vfs.FS, cmp *base.InternalKeyComparer, logger base.Logger) error {
	if err := fs.MkdirAll(fs.PathJoin(dirname, "lost")); err != nil {
		return base.IOErrorf(err, "lsmkv: creating %s/lost", dirname)
	}

	logFiles, tableFiles, maxFileNum, err := findFiles(dirname, fs)
	if err != nil {
		return err
	}

	nextFileNum := maxFileNum + 1
	for _, lognum := range logFiles {
		tablenum, err := convertLogToTable(dirname, fs, cmp, logger, lognum, &nextFileNum)
		if err != nil {
			return err
		}
		if tablenum != 0 {
			tableFiles = append(tableFiles, tablenum)
		}
	}

	var metas []*manifest.FileMetadata
	var refs []lvref.Ref
	for _, tablenum := range tableFiles {
		meta, tableRefs, ok, err := extractTableMetadata(dirname, fs, cmp, logger, tablenum)
		if err != nil {
			return err
		}
		if ok {
			metas = append(metas, meta)
			refs = append(refs, tableRefs...)
		}
	}

	return writeDescriptor(dirname, fs, cmp, metas, refs, nextFileNum)
}

// findFiles classifies every name in dirname, tracking log and table
// files plus the highest file number seen anywhere (the lower bound for
// next_file_number).
func findFiles(dirname string, fs vfs.FS) (logFiles, tableFiles []manifest.FileNum, maxFileNum manifest.FileNum, err error) {
	names, err := fs.List(dirname)
	if err != nil {
		return nil, nil, 0, base.IOErrorf(err, "lsmkv: listing %s", dirname)
	}
	for _, name := range names {
		ft, fn, ok := base.ParseFilename(name)
		if !ok {
			continue
		}
		if manifest.FileNum(fn) > maxFileNum {
			maxFileNum = manifest.FileNum(fn)
		}
		switch ft {
		case base.FileTypeLog:
			logFiles = append(logFiles, manifest.FileNum(fn))
		case base.FileTypeTable:
			tableFiles = append(tableFiles, manifest.FileNum(fn))
		}
	}
	sort.Slice(logFiles, func(i, j int) bool { return logFiles[i] < logFiles[j] })
	sort.Slice(tableFiles, func(i, j int) bool { return tableFiles[i] < tableFiles[j] })
	return logFiles, tableFiles, maxFileNum, nil
}

// convertLogToTable implements step 2: replay lognum's batches into an
// in-memory sorted map, write the result as a new table under a freshly
// allocated file number, then archive the source log regardless of
// outcome. A checksum failure drops just the affected record, with a
// diagnostic, per step 2.
func convertLogToTable(dirname string, fs vfs.FS, cmp *base.InternalKeyComparer, logger base.Logger, lognum manifest.FileNum, nextFileNum *manifest.FileNum) (tablenum manifest.FileNum, err error) {
	logPath := base.MakeFilename(base.FileTypeLog, dirname, uint64(lognum))
	defer func() {
		archiveErr := archiveFile(dirname, fs, logPath)
		if err == nil {
			err = archiveErr
		}
	}()

	f, openErr := fs.Open(logPath)
	if openErr != nil {
		logger.Infof("repair: could not open log %s: %v, archiving", logPath, openErr)
		return 0, nil
	}
	defer f.Close()

	entries := newSortedEntries(cmp)
	rr := record.NewReader(f)
	rr.SetCorruptionReporter(func(reason string) {
		logger.Infof("repair: dropping corrupt record in %s: %s", logPath, reason)
	})
	for {
		rec, readErr := rr.Next()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			logger.Infof("repair: dropping record in %s: %v", logPath, readErr)
			continue
		}
		if decodeErr := entries.insertBatch(rec); decodeErr != nil {
			logger.Infof("repair: dropping corrupt batch in %s: %v", logPath, decodeErr)
			continue
		}
	}

	if entries.empty() {
		return 0, nil
	}

	tablenum = *nextFileNum
	*nextFileNum++
	tablePath := base.MakeFilename(base.FileTypeTable, dirname, uint64(tablenum))
	tf, createErr := fs.Create(tablePath, vfs.WriteCategoryUnspecified)
	if createErr != nil {
		return 0, base.IOErrorf(createErr, "lsmkv: creating table %q", tablePath)
	}
	w := sstable.NewWriter(tf, sstable.WriterOptions{Comparer: cmp.User, Compare: cmp.User.Compare})
	writeErr := entries.writeTo(w)
	if writeErr != nil {
		tf.Close()
		return 0, writeErr
	}
	if _, closeErr := w.Close(); closeErr != nil {
		tf.Close()
		return 0, closeErr
	}
	if syncErr := tf.Sync(); syncErr != nil {
		tf.Close()
		return 0, syncErr
	}
	if closeErr := tf.Close(); closeErr != nil {
		return 0, closeErr
	}
	logger.Infof("repair: converted log %s into table %06d", logPath, tablenum)
	return tablenum, nil
}

// extractTableMetadata implements step 3: scan a table's entries to
// recover its smallest/largest internal key, its sequence number range,
// and any large-value references it carries (step 3). A
// table that fails to open or iterate is archived rather than included.
func extractTableMetadata(dirname string, fs vfs.FS, cmp *base.InternalKeyComparer, logger base.Logger, tablenum manifest.FileNum) (*manifest.FileMetadata, []lvref.Ref, bool, error) {
	tablePath := base.MakeFilename(base.FileTypeTable, dirname, uint64(tablenum))
	info, statErr := fs.Stat(tablePath)
	if statErr != nil {
		logger.Infof("repair: could not stat table %s: %v, archiving", tablePath, statErr)
		return nil, nil, false, archiveFile(dirname, fs, tablePath)
	}

	f, openErr := fs.OpenTable(tablePath)
	if openErr != nil {
		logger.Infof("repair: could not open table %s: %v, archiving", tablePath, openErr)
		return nil, nil, false, archiveFile(dirname, fs, tablePath)
	}
	defer f.Close()

	rd, readerErr := sstable.NewReader(f, info.Size(), sstable.WriterOptions{Comparer: cmp.User, Compare: cmp.User.Compare})
	if readerErr != nil {
		logger.Infof("repair: could not read table %s: %v, archiving", tablePath, readerErr)
		return nil, nil, false, archiveFile(dirname, fs, tablePath)
	}

	it, iterErr := rd.NewIter()
	if iterErr != nil {
		logger.Infof("repair: could not iterate table %s: %v, archiving", tablePath, iterErr)
		return nil, nil, false, archiveFile(dirname, fs, tablePath)
	}

	var smallest, largest base.InternalKey
	var minSeq, maxSeq base.SeqNum
	var haveEntry bool
	var refs []lvref.Ref
	for it.First(); it.Valid(); it.Next() {
		k := it.Key()
		if !haveEntry {
			smallest, largest = k, k
			minSeq, maxSeq = k.SeqNum(), k.SeqNum()
			haveEntry = true
		} else {
			largest = k
			if s := k.SeqNum(); s < minSeq {
				minSeq = s
			} else if s > maxSeq {
				maxSeq = s
			}
		}
		if k.Kind() == base.InternalKeyKindLargeValueRef {
			if ref, err := lvref.DecodeRef(it.Value()); err == nil {
				refs = append(refs, ref)
			}
		}
	}
	if iterErr := it.Error(); iterErr != nil {
		it.Close()
		logger.Infof("repair: iteration error on table %s: %v, archiving", tablePath, iterErr)
		return nil, nil, false, archiveFile(dirname, fs, tablePath)
	}
	it.Close()

	if !haveEntry {
		return nil, nil, false, nil
	}
	return &manifest.FileMetadata{
		FileNum:        tablenum,
		Size:           uint64(info.Size()),
		Smallest:       smallest,
		Largest:        largest,
		SmallestSeqNum: minSeq,
		LargestSeqNum:  maxSeq,
	}, refs, true, nil
}

// writeDescriptor implements step 4: emit a single edit placing every
// surviving table at level 0, publishing it as manifest file 1 by
// writing to a temp file, fsyncing, then atomically publishing via
// CURRENT pointing at that manifest file.
func writeDescriptor(dirname string, fs vfs.FS, cmp *base.InternalKeyComparer, metas []*manifest.FileMetadata, refs []lvref.Ref, nextFileNum manifest.FileNum) error {
	var lastSeq base.SeqNum
	newFiles := make([]manifest.NewFileEntry, 0, len(metas))
	for _, m := range metas {
		newFiles = append(newFiles, manifest.NewFileEntry{Level: 0, Meta: m})
		if m.SmallestSeqNum > lastSeq {
			lastSeq = m.SmallestSeqNum
		}
		if m.LargestSeqNum > lastSeq {
			lastSeq = m.LargestSeqNum
		}
	}

	vs := manifest.NewVersionSet(dirname, fs, cmp)
	if err := vs.Create(cmp.Name()); err != nil {
		return err
	}
	if nextFileNum > 1 {
		for n := manifest.FileNum(2); n < nextFileNum; n++ {
			vs.MarkFileNumberUsed(n)
		}
	}
	edit := &manifest.VersionEdit{
		MinUnflushedLogNum: 0,
		LastSequence:       lastSeq,
		NewFiles:           newFiles,
		LargeValueRefs:     refs,
	}
	return vs.LogAndApply(edit)
}

// archiveFile moves path under dirname/lost/ rather than deleting it: the
// repairer never deletes data, it only quarantines suspect files. Carried
// over from _examples/original_source/db/repair.cc's ArchiveFile.
func archiveFile(dirname string, fs vfs.FS, path string) error {
	name := fs.PathBase(path)
	dest := fs.PathJoin(dirname, "lost", name)
	if err := fs.Rename(path, dest); err != nil {
		return err
	}
	return nil
}
