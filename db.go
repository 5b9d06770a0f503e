// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/internal/cache"
	"github.com/lsmkv/lsmkv/internal/lvref"
	"github.com/lsmkv/lsmkv/internal/manifest"
	"github.com/lsmkv/lsmkv/internal/metrics"
	"github.com/lsmkv/lsmkv/internal/ratelimit"
	"github.com/lsmkv/lsmkv/internal/record"
	"github.com/lsmkv/lsmkv/sstable"
	"github.com/lsmkv/lsmkv/vfs"
	"golang.org/x/sync/errgroup"
)

// DB is the database facade: Put/Delete/Write/
// Get/NewIterator/GetSnapshot/ReleaseSnapshot/GetProperty/
// GetApproximateSizes over a single on-disk directory. Grounded
// structurally on _examples/ariesdevil-pebble/open.go's *DB (a single
// d.mu.Mutex serializing everything), simplified to this engine's smaller
// vtype domain and closed set of background tasks.
type DB struct {
	dirname string
	fs      vfs.FS
	opts    *Options
	cmp      *base.InternalKeyComparer
	cache    *cache.Cache
	fileLock io.Closer
	limiter  *ratelimit.Controller
	metrics  *metrics.Metrics

	// bg runs backgroundWorker, "single lightweight
	// background worker" — an errgroup.Group rather than a bare `go`
	// statement so Close can wait for it to actually exit instead of
	// leaking it.
	bg *errgroup.Group

	mu struct {
		sync.Mutex

		closed bool

		versions *manifest.VersionSet

		log       *record.LogWriter
		logNum    manifest.FileNum
		mem       *memTable
		imm []*memTable // immutable, queued for flush, oldest first

		snapshots snapshotList

		// cond wakes backgroundWorker whenever there may be flush or
		// compaction work to do, or the database is closing; signaled by
		// makeRoomForWriteLocked, Close, and backgroundWorker itself.
		cond *sync.Cond

		// flushing/compacting serialize background work so at most one of
		// each runs at a time; this engine never requires concurrent
		// compactions.
		flushing   bool
		compacting bool
	}
}

// Snapshot pins a sequence number, giving every Get/NewIterator made
// against it a stable, MVCC-consistent view ("A snapshot pins a
// specific sequence number").
type Snapshot struct {
	seq base.SeqNum
	db  *DB
}

type snapshotList struct {
	seqs []base.SeqNum
}

func (l *snapshotList) add(seq base.SeqNum) {
	l.seqs = append(l.seqs, seq)
}

func (l *snapshotList) remove(seq base.SeqNum) {
	for i, s := range l.seqs {
		if s == seq {
			l.seqs = append(l.seqs[:i], l.seqs[i+1:]...)
			return
		}
	}
}

// oldestActive returns the smallest sequence number any live snapshot
// pins, or base.SeqNumMax if there are none — used by compaction to decide
// which tombstones are safe to drop (no snapshot could still need the
// shadowed entry).
func (l *snapshotList) oldestActive() base.SeqNum {
	oldest := base.SeqNumMax
	for _, s := range l.seqs {
		if s < oldest {
			oldest = s
		}
	}
	return oldest
}

// Put applies a single Set operation as a one-entry batch.
func (d *DB) Put(key, value []byte, opts WriteOptions) error {
	start := time.Now()
	b := NewBatch()
	if err := d.prepareSet(b, key, value); err != nil {
		return err
	}
	err := d.Write(b, opts)
	d.metrics.RecordPut(time.Since(start))
	return err
}

// Delete applies a single tombstone as a one-entry batch.
func (d *DB) Delete(key []byte, opts WriteOptions) error {
	start := time.Now()
	b := NewBatch()
	b.Delete(key)
	err := d.Write(b, opts)
	d.metrics.RecordDelete(time.Since(start))
	return err
}

// prepareSet appends either a Set or, once value exceeds the configured
// threshold, a large-value reference to b, writing the referenced file as
// a side effect (large-value path).
func (d *DB) prepareSet(b *Batch, key, value []byte) error {
	if len(value) <= d.opts.LargeValueThreshold {
		b.Set(key, value)
		return nil
	}
	ref, err := d.writeLargeValue(value)
	if err != nil {
		return err
	}
	b.setLargeValueRef(key, ref.Encode(nil))
	return nil
}

// writeLargeValue compresses value and writes it to its content-addressed
// file if no file with that name already exists — identical bytes and
// compression type collapse onto one file.
func (d *DB) writeLargeValue(value []byte) (lvref.Ref, error) {
	ref := lvref.Make(value, d.opts.LargeValueCompression)
	path := base.LargeValueFilename(d.dirname, ref.String())
	if _, err := d.fs.Stat(path); err == nil {
		return ref, nil
	}
	compressed, err := lvref.Compress(value, d.opts.LargeValueCompression)
	if err != nil {
		return lvref.Ref{}, err
	}
	f, err := d.fs.Create(path, vfs.WriteCategoryUnspecified)
	if err != nil {
		return lvref.Ref{}, base.IOErrorf(err, "lsmkv: creating large value file %q", path)
	}
	if _, err := f.Write(compressed); err != nil {
		f.Close()
		return lvref.Ref{}, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return lvref.Ref{}, err
	}
	if err := f.Close(); err != nil {
		return lvref.Ref{}, err
	}
	return ref, nil
}

// readLargeValue reads and decompresses the file ref names.
func (d *DB) readLargeValue(ref lvref.Ref) ([]byte, error) {
	path := base.LargeValueFilename(d.dirname, ref.String())
	f, err := d.fs.Open(path)
	if err != nil {
		return nil, base.IOErrorf(err, "lsmkv: opening large value file %q", path)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	compressed := make([]byte, info.Size())
	if _, err := io.ReadFull(f, compressed); err != nil {
		return nil, err
	}
	return lvref.Decompress(compressed, ref.CompressionType, int(ref.ValueSize))
}

// resolveValue is installed on every Iterator/Get path: for a Set it
// returns the value unchanged, for a LargeValueRef it decodes the ref and
// follows it to the file.
func (d *DB) resolveValue(kind base.InternalKeyKind, value []byte) ([]byte, error) {
	if kind != base.InternalKeyKindLargeValueRef {
		return value, nil
	}
	ref, err := lvref.DecodeRef(value)
	if err != nil {
		return nil, err
	}
	return d.readLargeValue(ref)
}

// Write applies b atomically: every operation in b becomes visible to
// readers at once. The write path is: assign
// sequence numbers, append the batch's wire form as one WAL record, fsync
// if requested, then insert each entry into the memtable — mirroring
// _examples/ariesdevil-pebble/batch.go's commit pipeline without its
// separate goroutine-based commit queue, since this engine's single mutex
// already serializes writers.
func (d *DB) Write(b *Batch, opts WriteOptions) error {
	if b.Count() == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mu.closed {
		return base.ErrClosed
	}

	if err := d.makeRoomForWriteLocked(b); err != nil {
		return err
	}

	baseSeq := d.mu.versions.LastSequence() + 1
	b.setSeqNum(baseSeq)
	d.mu.versions.SetLastSequence(baseSeq + base.SeqNum(b.Count()) - 1)

	if err := d.mu.log.WriteRecord(b.Repr()); err != nil {
		return base.IOErrorf(err, "lsmkv: appending write-ahead log record")
	}
	if opts.Sync {
		if err := d.mu.log.Sync(); err != nil {
			return base.IOErrorf(err, "lsmkv: syncing write-ahead log")
		}
	}

	entries, err := decodeBatch(b.Repr())
	if err != nil {
		return err
	}
	for _, e := range entries {
		ikey := base.MakeInternalKey(e.key, e.seq, e.kind)
		d.mu.mem.set(ikey, e.value)
	}
	return nil
}

// makeRoomForWriteLocked rotates the mutable memtable to the immutable
// queue once it exceeds its size threshold and wakes backgroundWorker to
// flush it. d.mu must be held.
func (d *DB) makeRoomForWriteLocked(b *Batch) error {
	if d.mu.mem.approximateSize() < d.opts.MemTableSize {
		return nil
	}
	logNum := d.mu.versions.NewFileNumber()
	logFilename := base.MakeFilename(base.FileTypeLog, d.dirname, uint64(logNum))
	logFile, err := d.fs.Create(logFilename, vfs.WriteCategoryUnspecified)
	if err != nil {
		return base.IOErrorf(err, "lsmkv: creating log file %q", logFilename)
	}

	if err := d.mu.log.Close(); err != nil {
		logFile.Close()
		return err
	}

	d.mu.imm = append(d.mu.imm, d.mu.mem)
	d.mu.mem = newMemTable(d.cmp)
	d.mu.mem.logNum = logNum
	d.mu.log = record.NewLogWriter(logFile)
	d.mu.logNum = logNum

	d.mu.cond.Broadcast()
	return nil
}

// backgroundWorker is the single lightweight background worker:
// it alternates flushing queued immutable memtables and running one
// compaction pass at a time, sleeping on d.mu.cond whenever neither is
// needed, until the database closes. Grounded on
// _examples/ariesdevil-pebble/compaction.go's maybeScheduleFlush/
// maybeScheduleCompaction pair, collapsed from one-goroutine-per-job into a
// single persistent loop.
func (d *DB) backgroundWorker() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		if d.mu.closed {
			return
		}
		if len(d.mu.imm) > 0 {
			d.mu.flushing = true
			if err := d.flushImmLocked(); err != nil {
				d.opts.Logger.Infof("lsmkv: flush: %v", err)
			} else {
				d.metrics.RecordFlush()
			}
			d.mu.flushing = false
			d.mu.cond.Broadcast()
			continue
		}
		if c := d.pickCompactionLocked(); c != nil {
			d.mu.compacting = true
			bytesBefore := totalSize(c.inputs[0]) + totalSize(c.inputs[1])
			if err := d.runCompactionLocked(c); err != nil {
				d.opts.Logger.Infof("lsmkv: compaction: %v", err)
			} else {
				d.metrics.RecordCompaction(int64(bytesBefore))
			}
			d.mu.compacting = false
			d.mu.cond.Broadcast()
			continue
		}
		d.mu.cond.Wait()
	}
}

// flushImmLocked writes every queued immutable memtable out as a level-0
// table, installing each memtable's file with its own LogAndApply call.
// d.mu must be held, including across the I/O — the single-mutex model
// this engine settled on for its background work.
func (d *DB) flushImmLocked() error {
	for len(d.mu.imm) > 0 {
		m := d.mu.imm[0]
		if m.empty() {
			d.mu.imm = d.mu.imm[1:]
			continue
		}
		meta, err := d.writeLevel0TableLocked(m)
		if err != nil {
			return err
		}
		ve := &manifest.VersionEdit{
			MinUnflushedLogNum: d.mu.logNum,
			NewFiles:           []manifest.NewFileEntry{{Level: 0, Meta: meta}},
		}
		if err := d.mu.versions.LogAndApply(ve); err != nil {
			return err
		}
		d.mu.imm = d.mu.imm[1:]
	}
	return nil
}

// writeLevel0TableLocked drains m's entries into a new sstable at level 0,
// grounded on _examples/ariesdevil-pebble/open.go's writeLevel0Table.
func (d *DB) writeLevel0TableLocked(m *memTable) (*manifest.FileMetadata, error) {
	fileNum := d.mu.versions.NewFileNumber()
	filename := base.MakeFilename(base.FileTypeTable, d.dirname, uint64(fileNum))
	f, err := d.fs.Create(filename, vfs.WriteCategoryUnspecified)
	if err != nil {
		return nil, base.IOErrorf(err, "lsmkv: creating table %q", filename)
	}

	wopts := sstable.WriterOptions{
		Comparer:        d.opts.Comparer,
		Compare:         d.opts.Comparer.Compare,
		BlockSize:       d.opts.BlockSize,
		CompressionType: d.opts.BlockCompression,
	}
	w := sstable.NewWriter(f, wopts)
	it := m.newIter()
	for it.First(); it.Valid(); it.Next() {
		if err := w.Add(it.Key(), it.Value()); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := it.Error(); err != nil {
		f.Close()
		return nil, err
	}
	props, err := w.Close()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	if err := d.limiter.WaitN(context.Background(), info.Size()); err != nil {
		return nil, err
	}

	return &manifest.FileMetadata{
		FileNum:        fileNum,
		Size:           uint64(info.Size()),
		Smallest:       props.Smallest,
		Largest:        props.Largest,
		SmallestSeqNum: props.SmallestSeq,
		LargestSeqNum:  props.LargestSeq,
	}, nil
}

// Get returns the value stored for key, honoring opts.Snapshot if present.
// It never returns a Deletion, a value shadowed by a later Deletion, or a
// value shadowed by a newer version above the visibility bound.
func (d *DB) Get(key []byte, opts ReadOptions) ([]byte, error) {
	d.metrics.RecordGet()
	d.mu.Lock()
	seq := d.visibilitySeqLocked(opts)
	mem := d.mu.mem
	imm := append([]*memTable(nil), d.mu.imm...)
	mem.ref()
	for _, m := range imm {
		m.ref()
	}
	current := d.mu.versions.Current()
	current.Ref()
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		mem.unref()
		for _, m := range imm {
			m.unref()
		}
		d.mu.Unlock()
	}()

	if value, kind, found := mem.get(key, seq); found {
		return d.resolveGetResult(value, kind)
	}
	for i := len(imm) - 1; i >= 0; i-- {
		if value, kind, found := imm[i].get(key, seq); found {
			return d.resolveGetResult(value, kind)
		}
	}

	for level := 0; level < manifest.NumLevels; level++ {
		for i := len(current.Levels[level]) - 1; i >= 0; i-- {
			f := current.Levels[level][i]
			if level == 0 {
				// Level 0 files may overlap; every one must be checked, newest
				// first (highest file number last in the slice).
			} else if d.cmp.User.Compare(key, f.Smallest.UserKey) < 0 ||
				d.cmp.User.Compare(key, f.Largest.UserKey) > 0 {
				continue
			}
			value, kind, found, err := d.getFromTable(f, key, seq)
			if err != nil {
				return nil, err
			}
			if found {
				return d.resolveGetResult(value, kind)
			}
		}
	}
	return nil, base.ErrNotFound
}

func (d *DB) resolveGetResult(value []byte, kind base.InternalKeyKind) ([]byte, error) {
	if kind == base.InternalKeyKindDelete {
		return nil, base.ErrNotFound
	}
	return d.resolveValue(kind, value)
}

// getFromTable opens (through the table cache) the sstable named by f and
// looks up the newest entry for key visible at seq.
func (d *DB) getFromTable(f *manifest.FileMetadata, key []byte, seq base.SeqNum) (value []byte, kind base.InternalKeyKind, found bool, err error) {
	rd, err := d.cache.Get(d.dirname, f.FileNum, f.Size)
	if err != nil {
		return nil, 0, false, err
	}
	defer d.cache.Unref(f.FileNum)

	it, err := rd.NewIter()
	if err != nil {
		return nil, 0, false, err
	}
	defer it.Close()

	it.SeekGE(key)
	for ; it.Valid(); it.Next() {
		k := it.Key()
		if d.cmp.User.Compare(k.UserKey, key) != 0 {
			break
		}
		if k.SeqNum() <= seq {
			return append([]byte(nil), it.Value()...), k.Kind(), true, nil
		}
	}
	return nil, 0, false, it.Error()
}

// visibilitySeqLocked returns the sequence number bounding visibility for a
// read: the snapshot's, if one is given, else the database's current last
// sequence. d.mu must be held.
func (d *DB) visibilitySeqLocked(opts ReadOptions) base.SeqNum {
	if opts.Snapshot != nil {
		return opts.Snapshot.seq
	}
	return d.mu.versions.LastSequence()
}

// NewIterator returns a snapshot-isolated iterator over the database. It
// starts out invalid; the caller must position it with
// SeekToFirst/SeekToLast/Seek before use, and Close it when done.
func (d *DB) NewIterator(opts ReadOptions) *Iterator {
	d.mu.Lock()
	seq := d.visibilitySeqLocked(opts)
	children := []base.InternalIterator{d.mu.mem.newIter()}
	for _, m := range d.mu.imm {
		children = append(children, m.newIter())
	}
	current := d.mu.versions.Current()
	current.Ref()
	for level := 0; level < manifest.NumLevels; level++ {
		for _, f := range current.Levels[level] {
			children = append(children, d.newTableIter(f))
		}
	}
	d.mu.Unlock()

	merged := newMergingIter(d.cmp, children...)
	return newIterator(d.cmp, &refReleasingIter{InternalIterator: merged, release: func() {
		d.mu.Lock()
		for _, fn := range current.Unref() {
			d.cache.Evict(fn)
			d.fs.Remove(base.MakeFilename(base.FileTypeTable, d.dirname, uint64(fn)))
		}
		d.mu.Unlock()
	}}, seq, d.resolveValue)
}

// refReleasingIter wraps an InternalIterator so that Close also runs an
// arbitrary release callback — used to drop the Version reference an
// iterator's table children pin for their lifetime, since an open
// iterator holds a strong reference to the version it observes.
type refReleasingIter struct {
	base.InternalIterator
	release func()
	once    sync.Once
}

func (r *refReleasingIter) Close() error {
	err := r.InternalIterator.Close()
	r.once.Do(r.release)
	return err
}

// newTableIter pins f's table open in the cache for the iterator's
// lifetime, releasing the pin when the returned iterator is closed.
func (d *DB) newTableIter(f *manifest.FileMetadata) base.InternalIterator {
	rd, err := d.cache.Get(d.dirname, f.FileNum, f.Size)
	if err != nil {
		return &errIter{err: err}
	}
	it, err := rd.NewIter()
	if err != nil {
		d.cache.Unref(f.FileNum)
		return &errIter{err: err}
	}
	return &pinnedTableIter{InternalIterator: it, unref: func() { d.cache.Unref(f.FileNum) }}
}

type pinnedTableIter struct {
	base.InternalIterator
	unref func()
	once  sync.Once
}

func (p *pinnedTableIter) Close() error {
	err := p.InternalIterator.Close()
	p.once.Do(p.unref)
	return err
}

// errIter is a degenerate, always-invalid iterator that surfaces err,
// used when opening a table for iteration fails.
type errIter struct{ err error }

func (errIter) SeekGE(target []byte) {}
func (errIter) SeekLT(target []byte) {}
func (errIter) First()               {}
func (errIter) Last()                {}
func (errIter) Next() bool           { return false }
func (errIter) Prev() bool           { return false }
func (errIter) Key() base.InternalKey {
	panic("lsmkv: Key called on invalid iterator")
}
func (errIter) Value() []byte { panic("lsmkv: Value called on invalid iterator") }
func (errIter) Valid() bool   { return false }
func (e *errIter) Error() error { return e.err }
func (errIter) Close() error    { return nil }

// GetSnapshot pins the database's current sequence number.
func (d *DB) GetSnapshot() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	seq := d.mu.versions.LastSequence()
	d.mu.snapshots.add(seq)
	return &Snapshot{seq: seq, db: d}
}

// ReleaseSnapshot releases a snapshot obtained from GetSnapshot.
func (d *DB) ReleaseSnapshot(s *Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mu.snapshots.remove(s.seq)
}

// Metrics returns a point-in-time snapshot of the engine's counters: total puts,
// gets, deletes, flushes, compactions, bytes compacted, and commit latency
// percentiles. Safe to call concurrently with any other DB method.
func (d *DB) Metrics() metrics.Snapshot {
	return d.metrics.Snapshot()
}

// GetProperty returns the value of a recognized introspection property;
// currently just "num-files-at-level<N>".
func (d *DB) GetProperty(name string) (uint64, bool) {
	level, ok := parseLevelProperty(name)
	if !ok {
		return 0, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(d.mu.versions.NumLevelFiles(level)), true
}

// GetApproximateSizes sums, for each range, the bytes of every table, at
// any level, whose user-key range overlaps [Start, Limit). Each overlapping
// table is counted in full: sizes are not prorated by where the range's
// keys fall within a table, and memtable contents are not counted.
func (d *DB) GetApproximateSizes(ranges []base.Range) []uint64 {
	d.mu.Lock()
	current := d.mu.versions.Current()
	current.Ref()
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		current.Unref()
		d.mu.Unlock()
	}()

	sizes := make([]uint64, len(ranges))
	for i, r := range ranges {
		for level := 0; level < manifest.NumLevels; level++ {
			for _, f := range current.Levels[level] {
				if d.cmp.User.Compare(r.Limit, f.Smallest.UserKey) <= 0 ||
					d.cmp.User.Compare(r.Start, f.Largest.UserKey) > 0 {
					continue
				}
				sizes[i] += f.Size
			}
		}
	}
	return sizes
}

// Close stops backgroundWorker, flushes any pending data, releases the
// file lock, and closes the underlying files. Concurrent calls to Close
// are not supported.
func (d *DB) Close() error {
	d.mu.Lock()
	if d.mu.closed {
		d.mu.Unlock()
		return base.ErrClosed
	}
	d.mu.closed = true
	d.mu.cond.Broadcast()
	d.mu.Unlock()

	// backgroundWorker observes mu.closed and returns.
	if err := d.bg.Wait(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.flushImmLocked(); err != nil {
		return err
	}
	if err := d.mu.log.Close(); err != nil {
		return err
	}
	if d.fileLock != nil {
		return d.fileLock.Close()
	}
	return nil
}

func parseLevelProperty(name string) (int, bool) {
	const prefix = "num-files-at-level"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return 0, false
	}
	n := 0
	for _, c := range name[len(prefix):] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n < 0 || n >= manifest.NumLevels {
		return 0, false
	}
	return n, true
}
