// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dist composes a blocking process-local runtime with a
// message-passing substrate (package spmd) into a 1-D block-distributed
// backend. Containers are split into contiguous blocks across the
// process group; primitives run a local phase on each block and finish
// with collectives. Every primitive reconciles its return code across
// the group, so all processes observe the same outcome.
package dist

import (
	"context"

	alp "github.com/Algebraic-Programming/ALP-sub013"
	"github.com/Algebraic-Programming/ALP-sub013/ops"
	"github.com/Algebraic-Programming/ALP-sub013/spmd"
	"github.com/grailbio/base/log"
)

// A Context pairs one process's local runtime with its process group.
// All distributed containers are created against a context.
type Context struct {
	comm spmd.Comm
	rt   *alp.Runtime
}

// New builds a distributed context over comm using the given
// process-local backend. The local backend must be blocking: the
// distributed layer inserts collectives between local phases and a
// deferred local phase would break the bulk-synchronous contract.
func New(comm spmd.Comm, local alp.Backend) (*Context, alp.RC) {
	if !alp.PropertiesOf(local).Blocking {
		return nil, alp.Unsupported
	}
	rt, rc := alp.Init(alp.WithBackend(local))
	if rc != alp.Success {
		return nil, rc
	}
	log.Debug.Printf("dist: process %d/%d using local backend %s", comm.Rank(), comm.Size(), local)
	return &Context{comm: comm, rt: rt}, alp.Success
}

// Finalize releases the local runtime. The group itself is owned by
// the launcher that created it.
func (c *Context) Finalize() alp.RC { return c.rt.Finalize() }

// Runtime returns the process-local runtime.
func (c *Context) Runtime() *alp.Runtime { return c.rt }

// Comm returns the process group.
func (c *Context) Comm() spmd.Comm { return c.comm }

// blockRange returns the [lo, hi) block of a length-n index space
// owned by rank r among p processes. Blocks differ in size by at most
// one element.
func blockRange(n, p, r int) (int, int) {
	base, rem := n/p, n%p
	lo := r*base + min(r, rem)
	size := base
	if r < rem {
		size++
	}
	return lo, lo + size
}

// A Vector is a block-distributed vector: each process owns the block
// [lo, hi) of the global index space [0, n).
type Vector[T any] struct {
	c      *Context
	n      int
	lo, hi int
	local  *alp.Vector[T]
}

// NewVector allocates a distributed vector of global size n.
func NewVector[T any](c *Context, n int) (*Vector[T], alp.RC) {
	if n < 0 {
		return nil, alp.Illegal
	}
	lo, hi := blockRange(n, c.comm.Size(), c.comm.Rank())
	local, rc := alp.NewVector[T](c.rt, hi-lo)
	if rc != alp.Success {
		return nil, rc
	}
	return &Vector[T]{c: c, n: n, lo: lo, hi: hi, local: local}, alp.Success
}

// Size returns the global size.
func (v *Vector[T]) Size() int { return v.n }

// Local returns the process-local block.
func (v *Vector[T]) Local() *alp.Vector[T] { return v.local }

// Nnz returns the global number of assigned indices by summing block
// counts across the group.
func (v *Vector[T]) Nnz(ctx context.Context) (int, alp.RC) {
	local, rc := v.local.Nnz(ctx)
	rc = spmd.SyncRC(ctx, v.c.comm, rc)
	if rc != alp.Success {
		return 0, rc
	}
	total, rc := spmd.AllReduce(ctx, v.c.comm, ops.Add[int]{}, local)
	if rc != alp.Success {
		return 0, rc
	}
	return total, alp.Success
}

// tagBuild is the message tag used to scatter build input.
const tagBuild = 64

// buildBlock carries one process's slice of a scattered build.
type buildBlock[T any] struct {
	Indices []int
	Values  []T
}

// Build ingests coordinates into the distributed vector. In Sequential
// mode the root process holds the whole input and scatters each block
// to its owner; in Parallel mode every process passes only the
// coordinates it owns. Indices are global in both modes.
func (v *Vector[T]) Build(ctx context.Context, indices []int, values []T, mode alp.IOMode) alp.RC {
	rc := v.build(ctx, indices, values, mode)
	return spmd.SyncRC(ctx, v.c.comm, rc)
}

func (v *Vector[T]) build(ctx context.Context, indices []int, values []T, mode alp.IOMode) alp.RC {
	if len(indices) != len(values) {
		return alp.Mismatch
	}
	comm := v.c.comm
	if mode == alp.Parallel || comm.Size() == 1 {
		return v.ingest(indices, values)
	}
	// Sequential: the root owns the stream and scatters blocks.
	if comm.Rank() == 0 {
		blocks := make([]buildBlock[T], comm.Size())
		for k, i := range indices {
			if i < 0 || i >= v.n {
				return alp.Mismatch
			}
			owner := ownerOf(i, v.n, comm.Size())
			blocks[owner].Indices = append(blocks[owner].Indices, i)
			blocks[owner].Values = append(blocks[owner].Values, values[k])
		}
		for r := 1; r < comm.Size(); r++ {
			if rc := comm.Send(ctx, r, tagBuild, blocks[r]); rc != alp.Success {
				return rc
			}
		}
		return v.ingest(blocks[0].Indices, blocks[0].Values)
	}
	payload, rc := comm.Recv(ctx, 0, tagBuild)
	if rc != alp.Success {
		return rc
	}
	block, ok := payload.(buildBlock[T])
	if !ok {
		return alp.Panic
	}
	return v.ingest(block.Indices, block.Values)
}

// ingest writes globally-indexed coordinates into the local block.
func (v *Vector[T]) ingest(indices []int, values []T) alp.RC {
	localIdx := make([]int, 0, len(indices))
	localVal := make([]T, 0, len(values))
	for k, i := range indices {
		if i < 0 || i >= v.n {
			return alp.Mismatch
		}
		if i < v.lo || i >= v.hi {
			return alp.Illegal
		}
		localIdx = append(localIdx, i-v.lo)
		localVal = append(localVal, values[k])
	}
	return v.local.Build(localIdx, localVal, alp.Sequential)
}

// ownerOf returns the rank owning global index i.
func ownerOf(i, n, p int) int {
	// Blocks differ in size by at most one; the first n%p blocks are
	// one longer.
	base, rem := n/p, n%p
	longSpan := (base + 1) * rem
	if i < longSpan {
		return i / (base + 1)
	}
	if base == 0 {
		return rem
	}
	return rem + (i-longSpan)/base
}

// Scan calls f with global (index, value) pairs of the local block.
func (v *Vector[T]) Scan(ctx context.Context, f func(i int, x T) bool) alp.RC {
	return v.local.Scan(ctx, func(i int, x T) bool {
		return f(v.lo+i, x)
	})
}

// Set assigns x densely across the distributed vector. Under UseIndex
// each element receives its global index.
func Set[T ops.Real](ctx context.Context, w *Vector[T], x T, desc alp.Descriptor) alp.RC {
	var rc alp.RC
	if desc.Has(alp.UseIndex) {
		// Local UseIndex yields block-relative indices; shift them to
		// the global space.
		rc = alp.Set(w.local, nil, x, desc)
		if rc == alp.Success {
			rc = alp.Apply(w.local, nil, T(w.lo), w.local, ops.Add[T]{}, alp.NoOperation)
		}
	} else {
		rc = alp.Set(w.local, nil, x, desc)
	}
	return spmd.SyncRC(ctx, w.c.comm, rc)
}

// EWiseAdd computes the element-wise union of a and b under monoid m.
func EWiseAdd[T any, M ops.Monoid[T]](ctx context.Context, w, a, b *Vector[T], m M, desc alp.Descriptor) alp.RC {
	rc := alp.Mismatch
	if w.n == a.n && w.n == b.n {
		rc = alp.EWiseAdd(w.local, nil, a.local, b.local, m, desc)
	}
	return spmd.SyncRC(ctx, w.c.comm, rc)
}

// Apply computes w[i] = op(alpha, v[i]) over the assigned indices of v.
func Apply[D1, D2, DOut any, Op ops.BinaryOp[D1, D2, DOut]](
	ctx context.Context, w *Vector[DOut], alpha D1, v *Vector[D2], op Op, desc alp.Descriptor,
) alp.RC {
	rc := alp.Mismatch
	if w.n == v.n {
		rc = alp.Apply(w.local, nil, alpha, v.local, op, desc)
	}
	return spmd.SyncRC(ctx, w.c.comm, rc)
}

// Dot computes the semiring dot product of a and b into *z. The local
// phase reduces each block; block partials combine across the group
// with the additive operator in rank order.
func Dot[T any, S ops.Semiring[T, T, T], Op spmd.AssociativeOp[T]](
	ctx context.Context, z *T, a, b *Vector[T], s S, add Op,
) alp.RC {
	rc := alp.Mismatch
	local := s.AddIdentity()
	if a.n == b.n {
		rc = alp.Dot(ctx, &local, a.local, b.local, s)
	}
	if rc = spmd.SyncRC(ctx, a.c.comm, rc); rc != alp.Success {
		return rc
	}
	total, rc := spmd.AllReduce(ctx, a.c.comm, add, local)
	if rc = spmd.SyncRC(ctx, a.c.comm, rc); rc != alp.Success {
		return rc
	}
	*z = s.AddOp(*z, total)
	return alp.Success
}

// Reduce folds the assigned elements of v into *alpha under monoid m
// on every process.
func Reduce[T any, M interface {
	ops.Monoid[T]
	Associative()
}](ctx context.Context, alpha *T, v *Vector[T], m M, desc alp.Descriptor) alp.RC {
	local := m.Identity()
	rc := alp.Reduce(ctx, &local, v.local, m, desc)
	if rc = spmd.SyncRC(ctx, v.c.comm, rc); rc != alp.Success {
		return rc
	}
	total, rc := spmd.AllReduce[T, M](ctx, v.c.comm, m, local)
	if rc = spmd.SyncRC(ctx, v.c.comm, rc); rc != alp.Success {
		return rc
	}
	*alpha = m.Apply(*alpha, total)
	return alp.Success
}
