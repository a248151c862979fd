// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import (
	"context"
	"math/bits"
	"sync/atomic"

	"github.com/grailbio/base/traverse"
)

// Void is the element type of pattern containers: containers that
// record membership only and carry no values.
type Void struct{}

// IOMode describes how bulk-ingest input is laid out. Sequential input
// is a single stream owned by one caller; Parallel input has already
// been split, and each caller (or process, in distributed runs)
// ingests only its own range.
type IOMode int

const (
	Sequential IOMode = iota
	Parallel
)

// bitset tracks assigned coordinates of a dense index space.
type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) set(i int)      { b[i>>6] |= 1 << (uint(i) & 63) }
func (b bitset) clear(i int)    { b[i>>6] &^= 1 << (uint(i) & 63) }
func (b bitset) has(i int) bool { return b[i>>6]&(1<<(uint(i)&63)) != 0 }

// setAtomic sets bit i with a compare-and-swap loop, for writers whose
// index ranges may share bitmap words with other goroutines.
func (b bitset) setAtomic(i int) {
	w, mask := i>>6, uint64(1)<<(uint(i)&63)
	for {
		old := atomic.LoadUint64(&b[w])
		if old&mask != 0 || atomic.CompareAndSwapUint64(&b[w], old, old|mask) {
			return
		}
	}
}

// count returns the number of set bits.
func (b bitset) count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

// A Vector is a typed container over the ordered index space [0, n)
// with a set of assigned indices. Iteration yields (index, value)
// pairs in unspecified order; this implementation scans in ascending
// index order. The invariant nnz(v) <= size(v) always holds.
//
// Vectors belong to the runtime that created them. Under the
// nonblocking backend, reads that expose user-visible state (Nnz,
// Scan, Build, Clear) force any pending operations on the vector
// first.
type Vector[T any] struct {
	rt       *Runtime
	n        int
	values   []T
	assigned bitset
	nnz      int

	meta containerMeta
}

// NewVector allocates a vector of size n with no assigned indices.
func NewVector[T any](rt *Runtime, n int) (*Vector[T], RC) {
	if rc := rt.check(); rc != Success {
		return nil, rc
	}
	if n < 0 {
		return nil, Illegal
	}
	v := &Vector[T]{
		rt:       rt,
		n:        n,
		values:   make([]T, n),
		assigned: newBitset(n),
	}
	return v, Success
}

// Size returns the length of the vector's index space. O(1) and never
// forces pending operations: the size of a container is immutable.
func (v *Vector[T]) Size() int { return v.n }

// Nnz returns the number of assigned indices, forcing pending
// operations on v first.
func (v *Vector[T]) Nnz(ctx context.Context) (int, RC) {
	if rc := v.sync(ctx); rc != Success {
		return 0, rc
	}
	return v.nnz, Success
}

// Resize hints that the vector should reserve storage for up to cap
// nonzeroes. Dense storage is preallocated, so the hint only
// validates its argument.
func (v *Vector[T]) Resize(cap int) RC {
	if rc := v.rt.check(); rc != Success {
		return rc
	}
	if cap < 0 || cap > v.n {
		return Illegal
	}
	return Success
}

// Build bulk-ingests the given coordinates. Later duplicates overwrite
// earlier ones. In Parallel mode the input is assumed pre-split and is
// ingested with chunked workers; in Sequential mode it is ingested in
// order. Build forces pending operations on v first.
func (v *Vector[T]) Build(indices []int, values []T, mode IOMode) RC {
	if len(indices) != len(values) {
		return Mismatch
	}
	if rc := v.sync(backgroundContext()); rc != Success {
		return rc
	}
	for _, i := range indices {
		if i < 0 || i >= v.n {
			return Mismatch
		}
	}
	if mode == Parallel && v.rt.p > 1 {
		nshard := v.rt.p
		err := traverse.Each(nshard, func(shard int) error {
			lo := shard * len(indices) / nshard
			hi := (shard + 1) * len(indices) / nshard
			for k := lo; k < hi; k++ {
				// Pre-split input carries disjoint coordinates per
				// shard, so value writes are exclusive; bitmap words
				// may still be shared between shards.
				v.values[indices[k]] = values[k]
				v.assigned.setAtomic(indices[k])
			}
			return nil
		})
		if err != nil {
			return Failed
		}
	} else {
		for k, i := range indices {
			v.values[i] = values[k]
			v.assigned.set(i)
		}
	}
	v.nnz = v.assigned.count()
	return Success
}

// Scan calls f for each assigned (index, value) pair until f returns
// false. Pending operations on v are forced first.
func (v *Vector[T]) Scan(ctx context.Context, f func(i int, x T) bool) RC {
	if rc := v.sync(ctx); rc != Success {
		return rc
	}
	for i := 0; i < v.n; i++ {
		if v.assigned.has(i) && !f(i, v.values[i]) {
			break
		}
	}
	return Success
}

// Clear unassigns every index. Pending operations that read v are
// forced first, mirroring destruction of a container with pending
// writes.
func (v *Vector[T]) Clear() RC {
	if rc := v.sync(backgroundContext()); rc != Success {
		return rc
	}
	for i := range v.assigned {
		v.assigned[i] = 0
	}
	var zero T
	for i := range v.values {
		v.values[i] = zero
	}
	v.nnz = 0
	return Success
}

// Drop forces pending operations involving v, then releases its
// storage. The container must not be used afterwards.
func (v *Vector[T]) Drop() RC {
	rc := v.sync(backgroundContext())
	v.values = nil
	v.assigned = nil
	v.nnz = 0
	v.n = 0
	return rc
}

// sync forces pending operations on v and surfaces any error stamped
// on the container by a failed producer.
func (v *Vector[T]) sync(ctx context.Context) RC {
	if rc := v.rt.check(); rc != Success {
		return rc
	}
	if v.meta.err != Success {
		return v.meta.err
	}
	if p := v.rt.pipe; p != nil && v.meta.pending() {
		if rc := p.wait(ctx, []*containerMeta{&v.meta}); rc != Success {
			return v.rt.observe(rc)
		}
	}
	return Success
}

// recount recomputes the assigned-index count after a traversal wrote
// the bitmap.
func (v *Vector[T]) recount() RC {
	v.nnz = v.assigned.count()
	return Success
}
