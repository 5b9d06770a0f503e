// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command ldb is a cobra-based CLI over the lsmkv store: get/put/delete/
// scan/repair/destroy/stats/manifest-dump. Grounded on
// _examples/other_examples/b7c7874a_patrick-ogrady-pebble__tool-wal.go.go's
// cobra.Command-per-subcommand structure, collapsed into a single flat
// command tree since this tool has far fewer knobs than upstream Pebble's
// wal/sstable/manifest tool suite.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/guptarohit/asciigraph"
	"github.com/lsmkv/lsmkv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var dbPath string

func main() {
	root := &cobra.Command{
		Use:   "ldb",
		Short: "inspect and operate on an lsmkv database",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "database directory (required)")

	root.AddCommand(
		newGetCmd(),
		newPutCmd(),
		newDeleteCmd(),
		newScanCmd(),
		newRepairCmd(),
		newDestroyCmd(),
		newStatsCmd(),
		newManifestDumpCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func requireDBPath() error {
	if dbPath == "" {
		return fmt.Errorf("ldb: --db is required")
	}
	return nil
}

func openDB() (*lsmkv.DB, error) {
	if err := requireDBPath(); err != nil {
		return nil, err
	}
	return lsmkv.Open(dbPath, &lsmkv.Options{CreateIfMissing: true})
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "print the value stored for key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			v, err := db.Get([]byte(args[0]), lsmkv.ReadOptions{})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(v))
			return nil
		},
	}
}

func newPutCmd() *cobra.Command {
	var sync bool
	cmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "set key to value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Put([]byte(args[0]), []byte(args[1]), lsmkv.WriteOptions{Sync: sync})
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "fsync the write-ahead log before returning")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var sync bool
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "remove key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return db.Delete([]byte(args[0]), lsmkv.WriteOptions{Sync: sync})
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "fsync the write-ahead log before returning")
	return cmd
}

func newScanCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "scan [start]",
		Short: "print key/value pairs in order, optionally from a starting key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			it := db.NewIterator(lsmkv.ReadOptions{})
			defer it.Close()

			if len(args) == 1 {
				it.Seek([]byte(args[0]))
			} else {
				it.SeekToFirst()
			}
			out := cmd.OutOrStdout()
			for n := 0; it.Valid() && (limit <= 0 || n < limit); it.Next() {
				fmt.Fprintf(out, "%s=%s\n", it.Key(), it.Value())
				n++
			}
			return it.Status()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries to print (0 = unlimited)")
	return cmd
}

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "reconstruct a manifest from surviving log and table files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDBPath(); err != nil {
				return err
			}
			return lsmkv.RepairDB(dbPath, nil)
		},
	}
}

func newDestroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy",
		Short: "remove every file belonging to the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDBPath(); err != nil {
				return err
			}
			return lsmkv.DestroyDB(dbPath, nil)
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print commit-latency and operation counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			m := db.Metrics()

			out := cmd.OutOrStdout()
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"metric", "value"})
			table.Append([]string{"puts", strconv.FormatInt(m.Puts, 10)})
			table.Append([]string{"gets", strconv.FormatInt(m.Gets, 10)})
			table.Append([]string{"deletes", strconv.FormatInt(m.Deletes, 10)})
			table.Append([]string{"flushes", strconv.FormatInt(m.Flushes, 10)})
			table.Append([]string{"compactions", strconv.FormatInt(m.Compactions, 10)})
			table.Append([]string{"bytes compacted", strconv.FormatInt(m.BytesCompacted, 10)})
			table.Append([]string{"commit p50", m.CommitLatencyP50.String()})
			table.Append([]string{"commit p99", m.CommitLatencyP99.String()})
			table.Append([]string{"commit max", m.CommitLatencyMax.String()})
			table.Render()

			series := []float64{
				float64(m.CommitLatencyP50),
				float64(m.CommitLatencyP99),
				float64(m.CommitLatencyMax),
			}
			fmt.Fprintln(out, asciigraph.Plot(series, asciigraph.Height(8), asciigraph.Caption("commit latency: p50 / p99 / max (ns)")))
			return nil
		},
	}
}

func newManifestDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "manifest-dump",
		Short: "list every live sstable, grouped by level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"level", "file", "size", "smallest", "largest"})
			for level, files := range db.ManifestDump() {
				for _, f := range files {
					table.Append([]string{
						strconv.Itoa(level),
						strconv.FormatUint(f.FileNum, 10),
						strconv.FormatUint(f.Size, 10),
						f.Smallest,
						f.Largest,
					})
				}
			}
			table.Render()
			return nil
		},
	}
}
