// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package lsmkv

import (
	"github.com/lsmkv/lsmkv/internal/base"
	"github.com/lsmkv/lsmkv/internal/repair"
)

// RepairDB reconstructs a manifest for the database at name from whatever
// log and table files survive on disk. It runs when the
// manifest is absent or unusable, and is safe to call on a database that
// already has a valid manifest, though doing so discards any compaction
// state (everything surviving lands back at level 0).
func RepairDB(name string, o *Options) error {
	opts := (&Options{}).withDefaults()
	if o != nil {
		opts = o.withDefaults()
	}
	cmp := &base.InternalKeyComparer{User: opts.Comparer}
	if err := opts.FS.MkdirAll(name); err != nil {
		return base.IOErrorf(err, "lsmkv: creating database directory %q", name)
	}
	return repair.Repair(name, opts.FS, cmp, opts.Logger)
}
