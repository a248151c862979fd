// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package spmd

import (
	"context"

	alp "github.com/Algebraic-Programming/ALP-sub013"
	"github.com/Algebraic-Programming/ALP-sub013/ops"
	"github.com/grailbio/base/log"
)

// Collective message tags. Each collective round uses a dedicated tag
// so that protocol divergence across the group is caught at Recv.
const (
	tagGather = iota + 1
	tagBroadcast
	tagRC
)

// AssociativeOp constrains collective operators: associativity is
// required so the group may fold contributions in any valid order.
// This implementation folds in rank order at the root, which makes the
// result bitwise identical across processes for identical inputs,
// including floating-point lanes.
type AssociativeOp[T any] interface {
	ops.BinaryOp[T, T, T]
	Associative()
}

// AllReduce folds the group's contributions under op and returns the
// folded value on every process.
func AllReduce[T any, Op AssociativeOp[T]](ctx context.Context, c Comm, op Op, x T) (T, alp.RC) {
	acc, rc := gather(ctx, c, op, x, 0)
	if rc != alp.Success {
		var zero T
		return zero, rc
	}
	return Broadcast(ctx, c, acc, 0)
}

// Reduce folds the group's contributions under op at the root. The
// returned value is meaningful only on the root process; other
// processes receive their own contribution back.
func Reduce[T any, Op AssociativeOp[T]](ctx context.Context, c Comm, op Op, x T, root int) (T, alp.RC) {
	return gather(ctx, c, op, x, root)
}

// Broadcast distributes the root's value to every process.
func Broadcast[T any](ctx context.Context, c Comm, x T, root int) (T, alp.RC) {
	if root < 0 || root >= c.Size() {
		var zero T
		return zero, alp.Illegal
	}
	if c.Size() == 1 {
		return x, alp.Success
	}
	if c.Rank() == root {
		for r := 0; r < c.Size(); r++ {
			if r == root {
				continue
			}
			if rc := c.Send(ctx, r, tagBroadcast, x); rc != alp.Success {
				var zero T
				return zero, rc
			}
		}
		return x, alp.Success
	}
	payload, rc := c.Recv(ctx, root, tagBroadcast)
	if rc != alp.Success {
		var zero T
		return zero, rc
	}
	v, ok := payload.(T)
	if !ok {
		var zero T
		return zero, alp.Panic
	}
	return v, alp.Success
}

// gather folds contributions at root, in rank order.
func gather[T any, Op AssociativeOp[T]](ctx context.Context, c Comm, op Op, x T, root int) (T, alp.RC) {
	if root < 0 || root >= c.Size() {
		var zero T
		return zero, alp.Illegal
	}
	if c.Size() == 1 {
		return x, alp.Success
	}
	if c.Rank() != root {
		if rc := c.Send(ctx, root, tagGather, x); rc != alp.Success {
			var zero T
			return zero, rc
		}
		return x, alp.Success
	}
	// Fold in rank order, substituting the root's own contribution at
	// its position.
	var acc T
	for r := 0; r < c.Size(); r++ {
		v := x
		if r != root {
			payload, rc := c.Recv(ctx, r, tagGather)
			if rc != alp.Success {
				var zero T
				return zero, rc
			}
			var ok bool
			if v, ok = payload.(T); !ok {
				var zero T
				return zero, alp.Panic
			}
		}
		if r == 0 {
			acc = v
		} else {
			acc = op.Apply(acc, v)
		}
	}
	return acc, alp.Success
}

// SyncRC reconciles a return code across the group. All processes
// return the agreed code when they agree; a disagreement turns the run
// into Panic on every process, with a diagnostic emitted at the root.
// This is the any_or reduction applied at every distributed sync
// point.
func SyncRC(ctx context.Context, c Comm, rc alp.RC) alp.RC {
	if c.Size() == 1 {
		return rc
	}
	root := 0
	if c.Rank() != root {
		if src := c.Send(ctx, root, tagRC, rc); src != alp.Success {
			return src
		}
	} else {
		agreed := true
		merged := rc
		for r := 1; r < c.Size(); r++ {
			payload, rrc := c.Recv(ctx, r, tagRC)
			if rrc != alp.Success {
				return rrc
			}
			other, ok := payload.(alp.RC)
			if !ok {
				return alp.Panic
			}
			if other != rc {
				agreed = false
			}
			merged = merged.Merge(other)
		}
		if !agreed {
			log.Error.Printf("spmd: processes disagree on return code (merged %s); escalating to PANIC", merged)
			merged = alp.Panic
		}
		rc = merged
	}
	out, brc := Broadcast(ctx, c, rc, root)
	if brc != alp.Success {
		return brc
	}
	return out
}
