// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package metrics provides Prometheus counters for puts, gets,
// flushes, compactions and bytes compacted, plus an HdrHistogram of commit
// latency, grounded on
// _examples/other_examples/c9ac9aeb_CyberFlameGO-pebble-1__metrics.go.go's
// Metrics type (trimmed to the subset this engine tracks: no per-level
// breakdown, no cache/filter metrics, since the table cache and this
// engine's vtype domain don't expose the richer numbers that file reports).
package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Metrics holds the live Prometheus collectors a DB registers on Open, plus
// the HdrHistogram backing CommitLatency. It is unexported-field-only so
// that callers only ever see the Snapshot DB.Metrics produces, keeping the
// Prometheus dependency out of the public API.
type Metrics struct {
	puts           prometheus.Counter
	gets           prometheus.Counter
	deletes        prometheus.Counter
	flushes        prometheus.Counter
	compactions    prometheus.Counter
	bytesCompacted prometheus.Counter

	mu struct {
		sync.Mutex
		commitLatency *hdrhistogram.Histogram
	}
}

// New builds a Metrics instance with its own prometheus.Registry — lsmkv
// embeds one instance per DB rather than registering into the global
// default registry, so that multiple DBs in one process don't collide.
func New() (*Metrics, *prometheus.Registry) {
	m := &Metrics{
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsmkv_puts_total", Help: "Total number of Put calls.",
		}),
		gets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsmkv_gets_total", Help: "Total number of Get calls.",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsmkv_deletes_total", Help: "Total number of Delete calls.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsmkv_flushes_total", Help: "Total number of memtable flushes.",
		}),
		compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsmkv_compactions_total", Help: "Total number of compactions run.",
		}),
		bytesCompacted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lsmkv_bytes_compacted_total", Help: "Total bytes written by compactions.",
		}),
	}
	m.mu.commitLatency = hdrhistogram.New(1, int64(10*time.Second), 3)

	reg := prometheus.NewRegistry()
	reg.MustRegister(m.puts, m.gets, m.deletes, m.flushes, m.compactions, m.bytesCompacted)
	return m, reg
}

// RecordPut increments the put counter and records commit latency.
func (m *Metrics) RecordPut(latency time.Duration) {
	m.puts.Inc()
	m.recordLatency(latency)
}

// RecordDelete increments the delete counter and records commit latency.
func (m *Metrics) RecordDelete(latency time.Duration) {
	m.deletes.Inc()
	m.recordLatency(latency)
}

// RecordGet increments the get counter.
func (m *Metrics) RecordGet() { m.gets.Inc() }

// RecordFlush increments the flush counter.
func (m *Metrics) RecordFlush() { m.flushes.Inc() }

// RecordCompaction increments the compaction counter and adds bytesWritten
// to the cumulative bytes-compacted counter.
func (m *Metrics) RecordCompaction(bytesWritten int64) {
	m.compactions.Inc()
	m.bytesCompacted.Add(float64(bytesWritten))
}

func (m *Metrics) recordLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mu.commitLatency.RecordValue(int64(d))
}

// Snapshot is the plain-struct view of Metrics returned by DB.Metrics.
type Snapshot struct {
	Puts               int64
	Gets               int64
	Deletes            int64
	Flushes            int64
	Compactions        int64
	BytesCompacted     int64
	CommitLatencyP50   time.Duration
	CommitLatencyP99   time.Duration
	CommitLatencyMax   time.Duration
}

// Snapshot reads the current metric values.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	h := m.mu.commitLatency
	p50 := h.ValueAtQuantile(50)
	p99 := h.ValueAtQuantile(99)
	max := h.Max()
	m.mu.Unlock()

	return Snapshot{
		Puts:             int64(testutil.ToFloat64(m.puts)),
		Gets:             int64(testutil.ToFloat64(m.gets)),
		Deletes:          int64(testutil.ToFloat64(m.deletes)),
		Flushes:          int64(testutil.ToFloat64(m.flushes)),
		Compactions:      int64(testutil.ToFloat64(m.compactions)),
		BytesCompacted:   int64(testutil.ToFloat64(m.bytesCompacted)),
		CommitLatencyP50: time.Duration(p50),
		CommitLatencyP99: time.Duration(p99),
		CommitLatencyMax: time.Duration(max),
	}
}
