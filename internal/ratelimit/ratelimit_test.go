// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUnlimitedControllerDoesNotBlock(t *testing.T) {
	c := NewController(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.WaitN(ctx, 1<<30))
}

func TestLimitedControllerAllowsBurst(t *testing.T) {
	c := NewController(1<<20, 1<<20)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.WaitN(ctx, 1<<19))
}

func TestUpdateRate(t *testing.T) {
	c := NewController(1, 1)
	c.UpdateRate(1<<20, 1<<20)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.WaitN(ctx, 1<<19))
}
