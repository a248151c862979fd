// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dist

import (
	"context"
	"testing"

	alp "github.com/Algebraic-Programming/ALP-sub013"
	"github.com/Algebraic-Programming/ALP-sub013/ops"
	"github.com/Algebraic-Programming/ALP-sub013/spmd"
	"golang.org/x/sync/errgroup"
)

// group runs f as every rank of an n-process loopback group with a
// fresh distributed context per rank.
func group(t *testing.T, n int, f func(c *Context) error) {
	t.Helper()
	comms := spmd.NewLoopback(n)
	g, _ := errgroup.WithContext(context.Background())
	for r := 0; r < n; r++ {
		comm := comms[r]
		g.Go(func() error {
			c, rc := New(comm, alp.Reference)
			if rc != alp.Success {
				t.Errorf("New: %s", rc)
				return nil
			}
			defer c.Finalize()
			return f(c)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestBlockRange(t *testing.T) {
	// 10 elements over 3 processes: 4 + 3 + 3.
	for _, c := range []struct {
		n, p, r, lo, hi int
	}{
		{10, 3, 0, 0, 4},
		{10, 3, 1, 4, 7},
		{10, 3, 2, 7, 10},
		{4, 4, 3, 3, 4},
		{2, 4, 0, 0, 1},
		{2, 4, 3, 2, 2},
		{0, 3, 1, 0, 0},
	} {
		lo, hi := blockRange(c.n, c.p, c.r)
		if lo != c.lo || hi != c.hi {
			t.Errorf("blockRange(%d, %d, %d): got [%d, %d), want [%d, %d)",
				c.n, c.p, c.r, lo, hi, c.lo, c.hi)
		}
	}
}

// Every global index must be owned by exactly the rank whose block
// contains it.
func TestOwnerOf(t *testing.T) {
	for _, c := range []struct{ n, p int }{{10, 3}, {7, 7}, {3, 5}, {100, 8}, {1, 1}} {
		for r := 0; r < c.p; r++ {
			lo, hi := blockRange(c.n, c.p, r)
			for i := lo; i < hi; i++ {
				if got := ownerOf(i, c.n, c.p); got != r {
					t.Errorf("ownerOf(%d, %d, %d): got %d, want %d", i, c.n, c.p, got, r)
				}
			}
		}
	}
}

func TestNewRejectsNonblockingLocal(t *testing.T) {
	if _, rc := New(spmd.Single{}, alp.Nonblocking); rc != alp.Unsupported {
		t.Errorf("got %s, want %s", rc, alp.Unsupported)
	}
}

func TestDistributedBuildSequential(t *testing.T) {
	ctx := context.Background()
	const n = 10
	group(t, 3, func(c *Context) error {
		v, rc := NewVector[int](c, n)
		if rc != alp.Success {
			t.Errorf("NewVector: %s", rc)
			return nil
		}
		// Only the root supplies input; the scatter routes each
		// coordinate to its owner.
		var idx []int
		var vals []int
		if c.Comm().Rank() == 0 {
			idx = []int{0, 5, 9, 3}
			vals = []int{10, 50, 90, 30}
		}
		if rc := v.Build(ctx, idx, vals, alp.Sequential); rc != alp.Success {
			t.Errorf("Build: %s", rc)
			return nil
		}
		nnz, rc := v.Nnz(ctx)
		if rc != alp.Success || nnz != 4 {
			t.Errorf("Nnz: got (%d, %s), want (4, SUCCESS)", nnz, rc)
		}
		want := map[int]int{0: 10, 5: 50, 9: 90, 3: 30}
		v.Scan(ctx, func(i, x int) bool {
			if want[i] != x {
				t.Errorf("rank %d: v[%d] = %d, want %d", c.Comm().Rank(), i, x, want[i])
			}
			delete(want, i)
			return true
		})
		return nil
	})
}

func TestDistributedBuildParallel(t *testing.T) {
	ctx := context.Background()
	const n = 9
	group(t, 3, func(c *Context) error {
		v, rc := NewVector[int](c, n)
		if rc != alp.Success {
			t.Errorf("NewVector: %s", rc)
			return nil
		}
		// Each rank ingests one coordinate of its own block.
		i := c.Comm().Rank() * 3
		if rc := v.Build(ctx, []int{i}, []int{i * 100}, alp.Parallel); rc != alp.Success {
			t.Errorf("Build: %s", rc)
			return nil
		}
		nnz, rc := v.Nnz(ctx)
		if rc != alp.Success || nnz != 3 {
			t.Errorf("Nnz: got (%d, %s), want (3, SUCCESS)", nnz, rc)
		}
		return nil
	})
}

// Parallel build input naming an index outside the caller's block is a
// fault of this process, and the whole group must agree on the
// escalated outcome.
func TestDistributedBuildWrongBlock(t *testing.T) {
	ctx := context.Background()
	group(t, 3, func(c *Context) error {
		v, _ := NewVector[int](c, 9)
		var idx, vals []int
		if c.Comm().Rank() == 1 {
			idx, vals = []int{0}, []int{1} // owned by rank 0
		}
		rc := v.Build(ctx, idx, vals, alp.Parallel)
		if rc != alp.Panic {
			t.Errorf("rank %d: got %s, want %s", c.Comm().Rank(), rc, alp.Panic)
		}
		return nil
	})
}

func TestDistributedSetUseIndex(t *testing.T) {
	ctx := context.Background()
	const n = 10
	group(t, 4, func(c *Context) error {
		w, _ := NewVector[int](c, n)
		if rc := Set(ctx, w, 0, alp.UseIndex); rc != alp.Success {
			t.Errorf("Set: %s", rc)
			return nil
		}
		w.Scan(ctx, func(i, x int) bool {
			if x != i {
				t.Errorf("w[%d] = %d, want the global index", i, x)
			}
			return true
		})
		nnz, rc := w.Nnz(ctx)
		if rc != alp.Success || nnz != n {
			t.Errorf("Nnz: got (%d, %s), want (%d, SUCCESS)", nnz, rc, n)
		}
		return nil
	})
}

func TestDistributedDotReduce(t *testing.T) {
	ctx := context.Background()
	const n = 12
	group(t, 3, func(c *Context) error {
		a, _ := NewVector[int64](c, n)
		b, _ := NewVector[int64](c, n)
		if rc := Set(ctx, a, 2, alp.NoOperation); rc != alp.Success {
			t.Errorf("Set a: %s", rc)
			return nil
		}
		if rc := Set(ctx, b, 3, alp.NoOperation); rc != alp.Success {
			t.Errorf("Set b: %s", rc)
			return nil
		}
		var z int64
		if rc := Dot(ctx, &z, a, b, ops.PlusTimes[int64]{}, ops.Add[int64]{}); rc != alp.Success {
			t.Errorf("Dot: %s", rc)
			return nil
		}
		if z != 6*n {
			t.Errorf("dot: got %d, want %d", z, 6*n)
		}
		var sum int64
		if rc := Reduce(ctx, &sum, a, ops.Add[int64]{}, alp.NoOperation); rc != alp.Success {
			t.Errorf("Reduce: %s", rc)
			return nil
		}
		if sum != 2*n {
			t.Errorf("reduce: got %d, want %d", sum, 2*n)
		}
		return nil
	})
}

func TestDistributedEWiseAdd(t *testing.T) {
	ctx := context.Background()
	const n = 8
	group(t, 2, func(c *Context) error {
		a, _ := NewVector[uint64](c, n)
		b, _ := NewVector[uint64](c, n)
		w, _ := NewVector[uint64](c, n)
		Set(ctx, a, 3, alp.NoOperation)
		Set(ctx, b, 5, alp.NoOperation)
		if rc := EWiseAdd(ctx, w, a, b, ops.MaxMonoid[uint64]{}, alp.NoOperation); rc != alp.Success {
			t.Errorf("EWiseAdd: %s", rc)
			return nil
		}
		w.Scan(ctx, func(i int, x uint64) bool {
			if x != 5 {
				t.Errorf("w[%d] = %d, want 5", i, x)
			}
			return true
		})
		return nil
	})
}

func TestDistributedShapeMismatch(t *testing.T) {
	ctx := context.Background()
	group(t, 2, func(c *Context) error {
		a, _ := NewVector[int64](c, 4)
		b, _ := NewVector[int64](c, 5)
		var z int64
		if rc := Dot(ctx, &z, a, b, ops.PlusTimes[int64]{}, ops.Add[int64]{}); rc != alp.Mismatch {
			t.Errorf("got %s, want %s", rc, alp.Mismatch)
		}
		return nil
	})
}
