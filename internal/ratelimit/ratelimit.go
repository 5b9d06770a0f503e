// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package ratelimit throttles background flush and compaction I/O using
// cockroachdb/tokenbucket.
package ratelimit

import (
	"context"

	"github.com/cockroachdb/tokenbucket"
)

// Controller throttles a stream of byte-sized operations — flush writes or
// compaction reads/writes — against a configured bytes-per-second rate with
// burst headroom: callers wait before each chunk of I/O, then proceed once
// the wait returns. Backed by tokenbucket.TokenBucket rather than
// golang.org/x/time/rate.
type Controller struct {
	tb tokenbucket.TokenBucket
}

// NewController returns a Controller allowing ratePerSec bytes/sec on
// average, with bursts up to burst bytes. A non-positive ratePerSec means
// unlimited.
func NewController(ratePerSec, burst int64) *Controller {
	c := &Controller{}
	if ratePerSec <= 0 {
		c.tb.Init(tokenbucket.Rate(1<<62), tokenbucket.Tokens(1<<62))
		return c
	}
	c.tb.Init(tokenbucket.Rate(ratePerSec), tokenbucket.Tokens(burst))
	return c
}

// WaitN blocks until n bytes' worth of budget is available, or ctx is done.
func (c *Controller) WaitN(ctx context.Context, n int64) error {
	return c.tb.Wait(ctx, tokenbucket.Tokens(n))
}

// UpdateRate changes the controller's steady-state rate and burst.
func (c *Controller) UpdateRate(ratePerSec, burst int64) {
	c.tb.UpdateConfig(tokenbucket.Rate(ratePerSec), tokenbucket.Tokens(burst))
}
