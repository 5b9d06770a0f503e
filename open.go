// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"io"
	"os"
	"sort"
	"sync"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/internal/cache"
	"github.com/lsmkv/lsmkv/internal/manifest"
	"github.com/lsmkv/lsmkv/internal/metrics"
	"github.com/lsmkv/lsmkv/internal/ratelimit"
	"github.com/lsmkv/lsmkv/internal/record"
	"github.com/lsmkv/lsmkv/sstable"
	"github.com/lsmkv/lsmkv/vfs"
	"golang.org/x/sync/errgroup"
)

// Open opens the database stored in the named directory, creating it if
// CreateIfMissing is set and none exists. Grounded on
// _examples/ariesdevil-pebble/open.go's Open:
// lock the directory, create-or-recover the version set, replay any WAL
// files at or after the manifest's recorded log number, then start a fresh
// log and publish it via LogAndApply.
func Open(name string, o *Options) (*DB, error) {
	if o == nil {
		o = &Options{}
	}
	opts := o.withDefaults()

	cmp := &base.InternalKeyComparer{User: opts.Comparer}

	if err := opts.FS.MkdirAll(name); err != nil {
		return nil, base.IOErrorf(err, "lsmkv: creating database directory %q", name)
	}
	fileLock, err := opts.FS.Lock(base.MakeFilename(base.FileTypeLock, name, 0))
	if err != nil {
		return nil, base.IOErrorf(err, "lsmkv: locking database directory %q", name)
	}
	releaseLock := fileLock
	defer func() {
		if releaseLock != nil {
			releaseLock.Close()
		}
	}()

	versions := manifest.NewVersionSet(name, opts.FS, cmp)

	currentName := base.MakeFilename(base.FileTypeCurrent, name, 0)
	_, statErr := opts.FS.Stat(currentName)
	exists := statErr == nil
	if !exists && !os.IsNotExist(statErr) {
		return nil, base.IOErrorf(statErr, "lsmkv: statting %q", currentName)
	}

	switch {
	case !exists:
		if !opts.CreateIfMissing {
			return nil, base.CorruptionErrorf("lsmkv: database %q does not exist", name)
		}
		if err := versions.Create(cmp.Name()); err != nil {
			return nil, err
		}
	case opts.ErrorIfExists:
		return nil, base.CorruptionErrorf("lsmkv: database %q already exists", name)
	default:
		if err := versions.Recover(cmp.Name()); err != nil {
			return nil, err
		}
	}

	m, _ := metrics.New()
	d := &DB{
		dirname: name,
		fs:      opts.FS,
		opts:    opts,
		cmp:     cmp,
		cache: cache.New(opts.FS, sstable.WriterOptions{
			Comparer: opts.Comparer,
			Compare:  opts.Comparer.Compare,
		}, opts.TableCacheSize),
		limiter: ratelimit.NewController(opts.CompactionBytesPerSec, opts.CompactionBurstBytes),
		metrics: m,
	}
	d.mu.versions = versions
	d.mu.mem = newMemTable(cmp)
	d.mu.cond = sync.NewCond(&d.mu)

	if err := d.replayOutstandingWAL(); err != nil {
		return nil, err
	}

	logNum := versions.NewFileNumber()
	logFilename := base.MakeFilename(base.FileTypeLog, name, uint64(logNum))
	logFile, err := opts.FS.Create(logFilename, vfs.WriteCategoryUnspecified)
	if err != nil {
		return nil, base.IOErrorf(err, "lsmkv: creating log file %q", logFilename)
	}
	d.mu.log = record.NewLogWriter(logFile)
	d.mu.logNum = logNum
	d.mu.mem.logNum = logNum

	if err := versions.LogAndApply(&manifest.VersionEdit{MinUnflushedLogNum: logNum}); err != nil {
		return nil, err
	}

	d.fileLock = fileLock
	releaseLock = nil
	d.bg = &errgroup.Group{}
	d.bg.Go(func() error {
		d.backgroundWorker()
		return nil
	})
	return d, nil
}

// replayOutstandingWAL replays every.log file at or after the version
// set's recorded MinUnflushedLogNum, rebuilding and flushing an immutable
// memtable per file — "On Open, any WAL entries not yet
// reflected in a table are replayed into a fresh memtable." d is not yet
// exposed to any other goroutine at this point, so no lock is held.
func (d *DB) replayOutstandingWAL() error {
	names, err := d.fs.List(d.dirname)
	if err != nil {
		return base.IOErrorf(err, "lsmkv: listing database directory %q", d.dirname)
	}

	type numberedLog struct {
		num  manifest.FileNum
		name string
	}
	minLogNum := d.mu.versions.MinUnflushedLogNum()
	var logs []numberedLog
	for _, n := range names {
		ft, fn, ok := base.ParseFilename(n)
		if ok && ft == base.FileTypeLog && manifest.FileNum(fn) >= minLogNum {
			logs = append(logs, numberedLog{manifest.FileNum(fn), n})
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].num < logs[j].num })

	for _, lf := range logs {
		if err := d.replayWALFile(lf.name); err != nil {
			return err
		}
		d.mu.versions.MarkFileNumberUsed(lf.num)
	}
	return nil
}

// replayWALFile replays a single log file's batches into a fresh memtable
// and, if it held any writes, flushes it straight to a level-0 table —
// grounded on _examples/ariesdevil-pebble/open.go's replayWAL.
func (d *DB) replayWALFile(name string) error {
	path := d.fs.PathJoin(d.dirname, name)
	f, err := d.fs.Open(path)
	if err != nil {
		return base.IOErrorf(err, "lsmkv: opening log file %q", path)
	}
	defer f.Close()

	mem := newMemTable(d.cmp)
	rr := record.NewReader(f)
	var maxSeq base.SeqNum
	for {
		rec, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		entries, err := decodeBatch(rec)
		if err != nil {
			return err
		}
		for _, e := range entries {
			ikey := base.MakeInternalKey(e.key, e.seq, e.kind)
			mem.set(ikey, e.value)
			if e.seq > maxSeq {
				maxSeq = e.seq
			}
		}
	}

	if d.mu.versions.LastSequence() < maxSeq {
		d.mu.versions.SetLastSequence(maxSeq)
	}

	if mem.empty() {
		return nil
	}
	meta, err := d.writeLevel0TableLocked(mem)
	if err != nil {
		return err
	}
	return d.mu.versions.LogAndApply(&manifest.VersionEdit{
		NewFiles: []manifest.NewFileEntry{{Level: 0, Meta: meta}},
	})
}

// DestroyDB removes every file belonging to the database at name,
// "Destroy." It does not lock the directory first; callers
// must ensure no DB is open against name.
func DestroyDB(name string, o *Options) error {
	opts := (&Options{}).withDefaults()
	if o != nil {
		opts = o.withDefaults()
	}
	names, err := opts.FS.List(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return base.IOErrorf(err, "lsmkv: listing database directory %q", name)
	}
	for _, n := range names {
		if _, _, ok := base.ParseFilename(n); !ok {
			continue
		}
		if err := opts.FS.Remove(opts.FS.PathJoin(name, n)); err != nil {
			return err
		}
	}
	return opts.FS.Remove(name)
}
