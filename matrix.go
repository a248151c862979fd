// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import (
	"context"
	"math"
	"sort"
)

// A Matrix is a typed container over an m x n index space with a set
// of assigned coordinates, stored in compressed row form. Row, column,
// and nonzero-count indices are stored 32-bit wide when the dimensions
// and nonzero count permit, and 64-bit wide otherwise, so large
// matrices can be encoded compactly without threading index-width type
// parameters through every primitive.
//
// Matrices are read-only to primitives once built; BuildUnique is the
// only mutator.
type Matrix[T any] struct {
	rt   *Runtime
	m, n int
	nz   int

	// Exactly one of the 32- and 64-bit index pairs is populated.
	rowPtr32 []uint32
	col32    []uint32
	rowPtr64 []uint64
	col64    []uint64
	values   []T

	meta containerMeta
}

// NewMatrix allocates an empty m x n matrix.
func NewMatrix[T any](rt *Runtime, m, n int) (*Matrix[T], RC) {
	if rc := rt.check(); rc != Success {
		return nil, rc
	}
	if m < 0 || n < 0 {
		return nil, Illegal
	}
	return &Matrix[T]{rt: rt, m: m, n: n}, Success
}

// Nrows returns the number of rows. O(1).
func (a *Matrix[T]) Nrows() int { return a.m }

// Ncols returns the number of columns. O(1).
func (a *Matrix[T]) Ncols() int { return a.n }

// Nnz returns the number of assigned coordinates, forcing pending
// reads of a first.
func (a *Matrix[T]) Nnz(ctx context.Context) (int, RC) {
	if rc := a.sync(ctx); rc != Success {
		return 0, rc
	}
	return a.nz, Success
}

// Resize hints at the expected nonzero capacity.
func (a *Matrix[T]) Resize(cap int) RC {
	if rc := a.rt.check(); rc != Success {
		return rc
	}
	if cap < 0 || (a.m > 0 && a.n > 0 && cap > a.m*a.n) {
		return Illegal
	}
	return Success
}

// BuildUnique bulk-ingests the given coordinate triples. The caller
// asserts that no coordinate appears twice: a duplicate is Illegal.
// Out-of-range coordinates are Mismatch. In Parallel mode the input
// ranges are assumed pre-split across callers; process-local runtimes
// ingest them identically to Sequential mode.
func (a *Matrix[T]) BuildUnique(rows, cols []int, values []T, mode IOMode) RC {
	if len(rows) != len(cols) || len(rows) != len(values) {
		return Mismatch
	}
	if rc := a.sync(backgroundContext()); rc != Success {
		return rc
	}
	for k := range rows {
		if rows[k] < 0 || rows[k] >= a.m || cols[k] < 0 || cols[k] >= a.n {
			return Mismatch
		}
	}
	nz := len(rows)
	wide := a.m > math.MaxUint32-1 || a.n > math.MaxUint32-1 || nz > math.MaxUint32-1

	// Counting sort into row buckets.
	rowCount := make([]int, a.m+1)
	for _, r := range rows {
		rowCount[r+1]++
	}
	for r := 0; r < a.m; r++ {
		rowCount[r+1] += rowCount[r]
	}
	colOut := make([]int, nz)
	valOut := make([]T, nz)
	next := append([]int(nil), rowCount...)
	for k, r := range rows {
		at := next[r]
		next[r]++
		colOut[at] = cols[k]
		valOut[at] = values[k]
	}
	// Order each row by column and reject duplicates.
	for r := 0; r < a.m; r++ {
		lo, hi := rowCount[r], rowCount[r+1]
		seg := colOut[lo:hi]
		vseg := valOut[lo:hi]
		sort.Sort(&rowSorter[T]{cols: seg, vals: vseg})
		for k := 1; k < len(seg); k++ {
			if seg[k] == seg[k-1] {
				return Illegal
			}
		}
	}

	a.nz = nz
	a.values = valOut
	if wide {
		a.rowPtr64 = make([]uint64, a.m+1)
		a.col64 = make([]uint64, nz)
		for r := range rowCount {
			a.rowPtr64[r] = uint64(rowCount[r])
		}
		for k, c := range colOut {
			a.col64[k] = uint64(c)
		}
		a.rowPtr32, a.col32 = nil, nil
	} else {
		a.rowPtr32 = make([]uint32, a.m+1)
		a.col32 = make([]uint32, nz)
		for r := range rowCount {
			a.rowPtr32[r] = uint32(rowCount[r])
		}
		for k, c := range colOut {
			a.col32[k] = uint32(c)
		}
		a.rowPtr64, a.col64 = nil, nil
	}
	return Success
}

// Scan calls f for each assigned ((row, col), value) triple until f
// returns false. Order is unspecified; this implementation scans rows
// in ascending order.
func (a *Matrix[T]) Scan(ctx context.Context, f func(r, c int, x T) bool) RC {
	if rc := a.sync(ctx); rc != Success {
		return rc
	}
	for r := 0; r < a.m; r++ {
		lo, hi := a.rowRange(r)
		for k := lo; k < hi; k++ {
			if !f(r, a.col(k), a.values[k]) {
				return Success
			}
		}
	}
	return Success
}

// rowRange returns the [lo, hi) extent of row r in the value array.
func (a *Matrix[T]) rowRange(r int) (int, int) {
	if a.rowPtr64 != nil {
		return int(a.rowPtr64[r]), int(a.rowPtr64[r+1])
	}
	if a.rowPtr32 != nil {
		return int(a.rowPtr32[r]), int(a.rowPtr32[r+1])
	}
	return 0, 0
}

// col returns the column index of the k'th stored value.
func (a *Matrix[T]) col(k int) int {
	if a.col64 != nil {
		return int(a.col64[k])
	}
	return int(a.col32[k])
}

func (a *Matrix[T]) sync(ctx context.Context) RC {
	if rc := a.rt.check(); rc != Success {
		return rc
	}
	if a.meta.err != Success {
		return a.meta.err
	}
	if p := a.rt.pipe; p != nil && a.meta.pending() {
		if rc := p.wait(ctx, []*containerMeta{&a.meta}); rc != Success {
			return a.rt.observe(rc)
		}
	}
	return Success
}

// rowSorter orders one row segment by column, carrying values along.
type rowSorter[T any] struct {
	cols []int
	vals []T
}

func (s *rowSorter[T]) Len() int           { return len(s.cols) }
func (s *rowSorter[T]) Less(i, j int) bool { return s.cols[i] < s.cols[j] }
func (s *rowSorter[T]) Swap(i, j int) {
	s.cols[i], s.cols[j] = s.cols[j], s.cols[i]
	s.vals[i], s.vals[j] = s.vals[j], s.vals[i]
}
