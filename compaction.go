// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"context"

	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/internal/manifest"
	"github.com/lsmkv/lsmkv/sstable"
	"github.com/lsmkv/lsmkv/vfs"
)

// level0CompactionTrigger is the number of level-0 files that schedules a
// compaction merging all of them into level 1. names
// PickCompaction as "out of scope... except for its consumed interface
// (reads the live version)" — the trigger count itself is this engine's
// own policy choice, set to classic leveldb's kL0_CompactionTrigger.
const level0CompactionTrigger = 4

// baseLevelMaxBytes is level 1's target size; each following level's target
// grows by levelSizeMultiplier, grounded on
// _examples/ariesdevil-pebble/compaction.go's TargetFileSize-derived
// thresholds, simplified to a fixed schedule since this engine has no
// per-level Options.
const (
	baseLevelMaxBytes   = 10 << 20
	levelSizeMultiplier = 10
)

func levelMaxBytes(level int) uint64 {
	max := uint64(baseLevelMaxBytes)
	for i := 1; i < level; i++ {
		max *= levelSizeMultiplier
	}
	return max
}

func totalSize(files []*manifest.FileMetadata) uint64 {
	var n uint64
	for _, f := range files {
		n += f.Size
	}
	return n
}

// compaction describes merging its level inputs (every level-0 file, or the
// first file of a deeper level) and every level+1 file they overlap into a
// new set of level+1 files, grounded on
// _examples/ariesdevil-pebble/compaction.go's compaction, trimmed of its
// grandparent-overlap (inputs[2]) and grow input-expansion machinery —
// this engine accepts the simpler, occasionally-less-optimal compaction
// those refinements exist to avoid.
type compaction struct {
	level  int
	inputs [2][]*manifest.FileMetadata // inputs[0] = level, inputs[1] = level+1
}

// pickCompactionLocked chooses the level most in need of compaction, or nil
// if none qualifies for one right now. d.mu must be held.
func (d *DB) pickCompactionLocked() *compaction {
	current := d.mu.versions.Current()

	bestLevel := -1
	bestScore := 1.0
	for level := 0; level < manifest.NumLevels-1; level++ {
		files := current.Levels[level]
		if len(files) == 0 {
			continue
		}
		var score float64
		if level == 0 {
			score = float64(len(files)) / level0CompactionTrigger
		} else {
			score = float64(totalSize(files)) / float64(levelMaxBytes(level))
		}
		if score >= bestScore {
			bestScore = score
			bestLevel = level
		}
	}
	if bestLevel == -1 {
		return nil
	}

	c := &compaction{level: bestLevel}
	if bestLevel == 0 {
		// Level-0 files may overlap arbitrarily; compacting all of them at
		// once sidesteps computing their transitive overlap closure.
		c.inputs[0] = append([]*manifest.FileMetadata(nil), current.Levels[0]...)
	} else {
		c.inputs[0] = current.Levels[bestLevel][:1:1]
	}
	smallest, largest := keyRange(d.cmp.User.Compare, c.inputs[0], nil)
	c.inputs[1] = current.Overlaps(bestLevel+1, d.cmp.User.Compare, smallest, largest)
	return c
}

// keyRange returns the smallest and largest user keys spanned by a and b
// together.
func keyRange(cmp base.Compare, a, b []*manifest.FileMetadata) (smallest, largest []byte) {
	var have bool
	for _, files := range [2][]*manifest.FileMetadata{a, b} {
		for _, f := range files {
			if !have {
				smallest, largest = f.Smallest.UserKey, f.Largest.UserKey
				have = true
				continue
			}
			if cmp(f.Smallest.UserKey, smallest) < 0 {
				smallest = f.Smallest.UserKey
			}
			if cmp(f.Largest.UserKey, largest) > 0 {
				largest = f.Largest.UserKey
			}
		}
	}
	return smallest, largest
}

// isBaseLevelForUkey reports whether no data for ukey can exist at
// c.level+2 or deeper in current, meaning a tombstone for ukey reaching
// c.level+1 has nothing left to shadow and can be dropped.
func (c *compaction) isBaseLevelForUkey(current *manifest.Version, cmp base.Compare, ukey []byte) bool {
	for level := c.level + 2; level < manifest.NumLevels; level++ {
		for _, f := range current.Levels[level] {
			if cmp(ukey, f.Largest.UserKey) <= 0 {
				if cmp(ukey, f.Smallest.UserKey) >= 0 {
					return false
				}
				break
			}
		}
	}
	return true
}

// runCompactionLocked executes c, installing the result via a single
// LogAndApply call. d.mu must be held for the duration, including the I/O —
// the same single-mutex simplification flushImmLocked already documents
// (resolved Open Question).
func (d *DB) runCompactionLocked(c *compaction) error {
	current := d.mu.versions.Current()

	// A trivial move: one level>=1 input file with no level+1 overlap can
	// just change its level without rewriting any bytes.
	if c.level > 0 && len(c.inputs[0]) == 1 && len(c.inputs[1]) == 0 {
		meta := c.inputs[0][0]
		ve := &manifest.VersionEdit{
			DeletedFiles: map[manifest.DeletedFileEntry]bool{
				{Level: c.level, FileNum: meta.FileNum}: true,
			},
			NewFiles: []manifest.NewFileEntry{{Level: c.level + 1, Meta: meta}},
		}
		return d.mu.versions.LogAndApply(ve)
	}

	children := make([]base.InternalIterator, 0, len(c.inputs[0])+len(c.inputs[1]))
	for _, group := range c.inputs {
		for _, f := range group {
			children = append(children, d.newTableIter(f))
		}
	}
	defer func() {
		for _, it := range children {
			it.Close()
		}
	}()

	merged := newMergingIter(d.cmp, children...)
	iter := newCompactionIter(d.cmp, merged)

	fileNum := d.mu.versions.NewFileNumber()
	filename := base.MakeFilename(base.FileTypeTable, d.dirname, uint64(fileNum))
	f, err := d.fs.Create(filename, vfs.WriteCategoryUnspecified)
	if err != nil {
		return base.IOErrorf(err, "lsmkv: creating table %q", filename)
	}

	wopts := sstable.WriterOptions{
		Comparer:        d.opts.Comparer,
		Compare:         d.opts.Comparer.Compare,
		BlockSize:       d.opts.BlockSize,
		CompressionType: d.opts.BlockCompression,
	}
	w := sstable.NewWriter(f, wopts)

	var wrote bool
	for iter.First(); iter.Valid(); iter.Next() {
		k := iter.Key()
		if k.Kind() == base.InternalKeyKindDelete && c.isBaseLevelForUkey(current, d.cmp.User.Compare, k.UserKey) {
			continue
		}
		if err := w.Add(k, iter.Value()); err != nil {
			w.Close()
			f.Close()
			return err
		}
		wrote = true
	}
	if err := iter.Error(); err != nil {
		w.Close()
		f.Close()
		return err
	}

	props, err := w.Close()
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := d.limiter.WaitN(context.Background(), info.Size()); err != nil {
		return err
	}

	ve := &manifest.VersionEdit{DeletedFiles: map[manifest.DeletedFileEntry]bool{}}
	for _, f := range c.inputs[0] {
		ve.DeletedFiles[manifest.DeletedFileEntry{Level: c.level, FileNum: f.FileNum}] = true
	}
	for _, f := range c.inputs[1] {
		ve.DeletedFiles[manifest.DeletedFileEntry{Level: c.level + 1, FileNum: f.FileNum}] = true
	}
	if wrote {
		ve.NewFiles = []manifest.NewFileEntry{{
			Level: c.level + 1,
			Meta: &manifest.FileMetadata{
				FileNum:        fileNum,
				Size:           uint64(info.Size()),
				Smallest:       props.Smallest,
				Largest:        props.Largest,
				SmallestSeqNum: props.SmallestSeq,
				LargestSeqNum:  props.LargestSeq,
			},
		}}
	} else {
		d.fs.Remove(filename)
	}

	if err := d.mu.versions.LogAndApply(ve); err != nil {
		return err
	}
	d.deleteObsoleteFilesLocked()
	return nil
}

// deleteObsoleteFilesLocked removes on-disk files no longer referenced by
// the live version or needed by the active log, grounded on
// _examples/ariesdevil-pebble/compaction.go's deleteObsoleteFiles. d.mu must
// be held.
func (d *DB) deleteObsoleteFilesLocked() {
	live := map[manifest.FileNum]bool{}
	for _, files := range d.mu.versions.Current().Levels {
		for _, f := range files {
			live[f.FileNum] = true
		}
	}

	names, err := d.fs.List(d.dirname)
	if err != nil {
		return
	}
	for _, n := range names {
		ft, fn, ok := base.ParseFilename(n)
		if !ok {
			continue
		}
		num := manifest.FileNum(fn)
		keep := true
		switch ft {
		case base.FileTypeLog:
			keep = num >= d.mu.logNum
		case base.FileTypeTable:
			keep = live[num]
		}
		if keep {
			continue
		}
		if ft == base.FileTypeTable {
			d.cache.Evict(num)
		}
		d.fs.Remove(d.fs.PathJoin(d.dirname, n))
	}
}
