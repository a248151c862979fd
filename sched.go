// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import (
	"context"
	"runtime/debug"

	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"
)

// Tile size bounds applied by the analytic cost model. Tiles below
// minTileSize amortize scheduling poorly; tiles above maxTileSize
// defeat load balancing.
const (
	minTileSize = 256
	maxTileSize = 1 << 16
)

// tileSize returns the tile length for a domain of n elements: the
// configured manual size when one was set, otherwise a size chosen so
// that each worker receives several tiles while respecting the bounds
// above. Tile sizes are rounded up to a multiple of 64 so that tile
// boundaries never split a word of a container's assigned bitmap;
// tile bodies may then write their bitmap ranges without
// synchronization.
func (rt *Runtime) tileSize(n int) int {
	ts := rt.tile
	if ts <= 0 {
		ts = n / (8 * rt.p)
		if ts < minTileSize {
			ts = minTileSize
		}
		if ts > maxTileSize {
			ts = maxTileSize
		}
	}
	return (ts + 63) &^ 63
}

// runNode executes a single (possibly fused) node: it partitions the
// node's index space into tiles and distributes them across worker
// goroutines, then runs the node's finish commit. A panic inside a
// tile body is arrested at the node boundary and surfaces as Panic.
func (rt *Runtime) runNode(ctx context.Context, nd *node) RC {
	nd.set(nodeRunning)
	tiled := nd.tiled
	if tiled == nil {
		apply := nd.apply
		tiled = func(_, lo, hi int) {
			for i := lo; i < hi; i++ {
				apply(i)
			}
		}
	}
	if rc := rt.runTiles(ctx, nd, tiled); rc != Success {
		return rc
	}
	if nd.finish != nil {
		return nd.finish()
	}
	return Success
}

// runTiles drives the tile bodies. Single-worker runtimes and small
// domains run inline; otherwise tiles are distributed over an
// errgroup with admission bounded by the runtime's worker limiter.
func (rt *Runtime) runTiles(ctx context.Context, nd *node, tiled func(tile, lo, hi int)) (rc RC) {
	n := nd.n
	ts := rt.tileSize(n)
	if nd.serial && n > 0 {
		ts = n
	}
	ntiles := (n + ts - 1) / ts
	if n == 0 {
		ntiles = 0
	}
	if nd.prepare != nil {
		nd.prepare(ntiles)
	}
	rt.engineStats().Int("tiles").Add(int64(ntiles))

	run := func(tile int) (rc RC) {
		defer func() {
			if e := recover(); e != nil {
				stack := debug.Stack()
				log.Error.Printf("alp: panic in %s tile %d: %v\n%s", nd.op, tile, e, stack)
				rc = Panic
			}
		}()
		lo := tile * ts
		hi := lo + ts
		if hi > n {
			hi = n
		}
		tiled(tile, lo, hi)
		return Success
	}

	if rt.p == 1 || ntiles <= 1 {
		for tile := 0; tile < ntiles; tile++ {
			if rc := run(tile); rc != Success {
				return rc
			}
		}
		return Success
	}

	g, ctx := errgroup.WithContext(ctx)
	for tile := 0; tile < ntiles; tile++ {
		tile := tile
		g.Go(func() error {
			if err := rt.lim.Acquire(ctx, 1); err != nil {
				return err
			}
			defer rt.lim.Release(1)
			if rc := run(tile); rc != Success {
				return rc.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Panic
	}
	return Success
}
