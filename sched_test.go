// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import (
	"context"
	"testing"
)

// Tiles run on worker goroutines and write their output's assigned
// bitmap without synchronization, so a tile boundary must never fall
// inside a 64-bit bitmap word. This holds for manual sizes too: a
// requested size is rounded up, never taken verbatim.
func TestTileSizeWordAligned(t *testing.T) {
	for _, c := range []struct {
		manual int
		n      int
		want   int
	}{
		{96, 192, 128},
		{64, 192, 64},
		{1, 1 << 20, 64},
		{0, 1 << 20, 0}, // cost model; want only checks alignment
		{0, 100, 0},
		{0, 1 << 30, 0},
	} {
		opts := []Option{WithBackend(ReferenceOMP), Parallelism(8)}
		if c.manual > 0 {
			opts = append(opts, TileSize(c.manual))
		}
		rt, rc := Init(opts...)
		if rc != Success {
			t.Fatalf("Init: %s", rc)
		}
		ts := rt.tileSize(c.n)
		if ts%64 != 0 {
			t.Errorf("tileSize(manual=%d, n=%d) = %d, not a multiple of 64", c.manual, c.n, ts)
		}
		if c.want > 0 && ts != c.want {
			t.Errorf("tileSize(manual=%d, n=%d) = %d, want %d", c.manual, c.n, ts, c.want)
		}
		rt.Finalize()
	}
}

// Adjacent tiles land on distinct bitmap words, so a dense write over
// many small tiles must account for every element. The domain length
// is chosen so the last word is partial.
func TestParallelTilesDenseBitmap(t *testing.T) {
	ctx := context.Background()
	rt, rc := Init(WithBackend(ReferenceOMP), Parallelism(8), TileSize(96))
	if rc != Success {
		t.Fatalf("Init: %s", rc)
	}
	defer rt.Finalize()
	const n = 8*1024 + 33
	for round := 0; round < 20; round++ {
		w, rc := NewVector[int](rt, n)
		if rc != Success {
			t.Fatalf("NewVector: %s", rc)
		}
		if rc := Set(w, nil, round, NoOperation); rc != Success {
			t.Fatalf("Set: %s", rc)
		}
		nnz, rc := Nnz(ctx, w)
		if rc != Success {
			t.Fatalf("Nnz: %s", rc)
		}
		if nnz != n {
			t.Fatalf("round %d: nnz = %d, want %d; assigned bits lost", round, nnz, n)
		}
	}
}

// Parallel build shards split the input stream, not the index space,
// so neighboring coordinates from different shards can land in the
// same bitmap word.
func TestParallelBuildSharedWords(t *testing.T) {
	ctx := context.Background()
	rt, rc := Init(WithBackend(ReferenceOMP), Parallelism(8))
	if rc != Success {
		t.Fatalf("Init: %s", rc)
	}
	defer rt.Finalize()
	// 1000 coordinates over 8 shards puts every shard boundary inside
	// a bitmap word.
	const n = 1000
	idx := make([]int, n)
	vals := make([]int, n)
	for k := range idx {
		idx[k] = k
		vals[k] = k * 3
	}
	for round := 0; round < 20; round++ {
		v, rc := NewVector[int](rt, n)
		if rc != Success {
			t.Fatalf("NewVector: %s", rc)
		}
		if rc := v.Build(idx, vals, Parallel); rc != Success {
			t.Fatalf("Build: %s", rc)
		}
		nnz, rc := Nnz(ctx, v)
		if rc != Success {
			t.Fatalf("Nnz: %s", rc)
		}
		if nnz != n {
			t.Fatalf("round %d: nnz = %d, want %d; assigned bits lost", round, nnz, n)
		}
	}
}
