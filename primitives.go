// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import (
	"context"

	"github.com/Algebraic-Programming/ALP-sub013/ops"
)

// A Container is any runtime-owned operand: a Vector or a Matrix.
type Container interface {
	handle() *containerMeta
}

func (v *Vector[T]) handle() *containerMeta { return &v.meta }
func (a *Matrix[T]) handle() *containerMeta { return &a.meta }

// Wait forces execution of pending operations. With containers given,
// only the operations those containers transitively depend on are
// forced; with none, the whole pipeline is emptied. Wait returns the
// most severe code observed since the previous Wait and is idempotent:
// waiting twice equals waiting once. On blocking backends Wait always
// returns Success immediately.
func Wait(ctx context.Context, rt *Runtime, containers ...Container) RC {
	if rc := rt.check(); rc != Success {
		return rc
	}
	if rt.pipe == nil {
		return Success
	}
	var metas []*containerMeta
	for _, c := range containers {
		metas = append(metas, c.handle())
	}
	return rt.observe(rt.pipe.wait(ctx, metas))
}

// Nnz returns the number of assigned indices of v, forcing pending
// operations on v first. It is shorthand for v.Nnz.
func Nnz[T any](ctx context.Context, v *Vector[T]) (int, RC) {
	return v.Nnz(ctx)
}

// maskTest reports whether the mask admits index i under desc.
// A nil mask admits everything. Structural uses only membership;
// InvertMask complements the outcome.
func maskTest(mask *Vector[bool], i int, desc Descriptor) bool {
	ok := true
	if mask != nil {
		ok = mask.assigned.has(i)
		if ok && !desc.Has(Structural) {
			ok = mask.values[i]
		}
	}
	if desc.Has(InvertMask) {
		ok = !ok
	}
	return ok
}

// Set assigns x to every index of w, making w dense. Under the
// UseIndex descriptor each element receives its own index instead of
// x. Set honors InvertMask and Structural on the mask; all other
// descriptor bits are accepted as no-ops.
func Set[T ops.Real](w *Vector[T], mask *Vector[bool], x T, desc Descriptor) RC {
	if rc := w.rt.check(); rc != Success {
		return rc
	}
	if mask != nil && mask.Size() != w.Size() {
		return Mismatch
	}
	nd := newNode("set", kindMap, w.n)
	nd.outs = []*containerMeta{&w.meta}
	if mask != nil {
		nd.ins = append(nd.ins, &mask.meta)
	}
	useIndex := desc.Has(UseIndex)
	nd.apply = func(i int) {
		if !maskTest(mask, i, desc) {
			return
		}
		if useIndex {
			w.values[i] = T(i)
		} else {
			w.values[i] = x
		}
		w.assigned.set(i)
	}
	nd.finish = w.recount
	return w.rt.submit(backgroundContext(), nd)
}

// Apply computes w[i] = op(alpha, v[i]) for every assigned index i of
// v admitted by the mask. The output pattern is the admitted pattern
// of v.
func Apply[D1, D2, DOut any, Op ops.BinaryOp[D1, D2, DOut]](
	w *Vector[DOut], mask *Vector[bool], alpha D1, v *Vector[D2], op Op, desc Descriptor,
) RC {
	if rc := w.rt.check(); rc != Success {
		return rc
	}
	if v.Size() != w.Size() || (mask != nil && mask.Size() != w.Size()) {
		return Mismatch
	}
	nd := newNode("apply", kindMap, w.n)
	nd.outs = []*containerMeta{&w.meta}
	nd.ins = []*containerMeta{&v.meta}
	if mask != nil {
		nd.ins = append(nd.ins, &mask.meta)
	}
	nd.apply = func(i int) {
		if !v.assigned.has(i) || !maskTest(mask, i, desc) {
			return
		}
		w.values[i] = op.Apply(alpha, v.values[i])
		w.assigned.set(i)
	}
	nd.finish = w.recount
	return w.rt.submit(backgroundContext(), nd)
}

// EWiseAdd computes the element-wise union of a and b under monoid m:
// indices assigned in both receive m.Apply(a[i], b[i]); indices
// assigned in exactly one receive that operand's value.
func EWiseAdd[T any, M ops.Monoid[T]](
	w *Vector[T], mask *Vector[bool], a, b *Vector[T], m M, desc Descriptor,
) RC {
	if rc := w.rt.check(); rc != Success {
		return rc
	}
	if a.Size() != w.Size() || b.Size() != w.Size() || (mask != nil && mask.Size() != w.Size()) {
		return Mismatch
	}
	nd := newNode("eWiseAdd", kindMap, w.n)
	nd.outs = []*containerMeta{&w.meta}
	nd.ins = []*containerMeta{&a.meta, &b.meta}
	if mask != nil {
		nd.ins = append(nd.ins, &mask.meta)
	}
	nd.apply = func(i int) {
		if !maskTest(mask, i, desc) {
			return
		}
		ina, inb := a.assigned.has(i), b.assigned.has(i)
		switch {
		case ina && inb:
			w.values[i] = m.Apply(a.values[i], b.values[i])
		case ina:
			w.values[i] = a.values[i]
		case inb:
			w.values[i] = b.values[i]
		default:
			return
		}
		w.assigned.set(i)
	}
	nd.finish = w.recount
	return w.rt.submit(backgroundContext(), nd)
}

// EWiseMul computes the element-wise intersection of a and b under op:
// only indices assigned in both operands produce output.
func EWiseMul[D1, D2, DOut any, Op ops.BinaryOp[D1, D2, DOut]](
	w *Vector[DOut], mask *Vector[bool], a *Vector[D1], b *Vector[D2], op Op, desc Descriptor,
) RC {
	if rc := w.rt.check(); rc != Success {
		return rc
	}
	if a.Size() != w.Size() || b.Size() != w.Size() || (mask != nil && mask.Size() != w.Size()) {
		return Mismatch
	}
	nd := newNode("eWiseMul", kindMap, w.n)
	nd.outs = []*containerMeta{&w.meta}
	nd.ins = []*containerMeta{&a.meta, &b.meta}
	if mask != nil {
		nd.ins = append(nd.ins, &mask.meta)
	}
	nd.apply = func(i int) {
		if !maskTest(mask, i, desc) || !a.assigned.has(i) || !b.assigned.has(i) {
			return
		}
		w.values[i] = op.Apply(a.values[i], b.values[i])
		w.assigned.set(i)
	}
	nd.finish = w.recount
	return w.rt.submit(backgroundContext(), nd)
}

// SetVector copies the assigned elements of v into w at the indices
// admitted by the mask. Indices not written keep their prior state.
func SetVector[T any](w *Vector[T], mask *Vector[bool], v *Vector[T], desc Descriptor) RC {
	if rc := w.rt.check(); rc != Success {
		return rc
	}
	if v.Size() != w.Size() || (mask != nil && mask.Size() != w.Size()) {
		return Mismatch
	}
	nd := newNode("set-vector", kindMap, w.n)
	nd.outs = []*containerMeta{&w.meta}
	nd.ins = []*containerMeta{&v.meta}
	if mask != nil {
		nd.ins = append(nd.ins, &mask.meta)
	}
	nd.apply = func(i int) {
		if !v.assigned.has(i) || !maskTest(mask, i, desc) {
			return
		}
		w.values[i] = v.values[i]
		w.assigned.set(i)
	}
	nd.finish = w.recount
	return w.rt.submit(backgroundContext(), nd)
}

// Foldl folds beta into the scalar alpha: *alpha = op(*alpha, beta).
// A pure scalar operation; it never touches the pipeline.
func Foldl[D1, D2 any, Op ops.BinaryOp[D1, D2, D1]](alpha *D1, beta D2, op Op) RC {
	if alpha == nil {
		return Illegal
	}
	*alpha = op.Apply(*alpha, beta)
	return Success
}

// Foldr folds alpha into the scalar beta: *beta = op(alpha, *beta).
// The mirror of Foldl for non-commutative operators.
func Foldr[D1, D2 any, Op ops.BinaryOp[D1, D2, D2]](alpha D1, beta *D2, op Op) RC {
	if beta == nil {
		return Illegal
	}
	*beta = op.Apply(alpha, *beta)
	return Success
}

// Reduce folds every assigned element of v into *alpha under monoid m.
// Reduce exposes a user-visible scalar and is therefore a suspension
// point: pending operations that v depends on are forced first, fusing
// into the reduction traversal where possible.
func Reduce[T any, M ops.Monoid[T]](ctx context.Context, alpha *T, v *Vector[T], m M, desc Descriptor) RC {
	if rc := v.rt.check(); rc != Success {
		return rc
	}
	if alpha == nil {
		return Illegal
	}
	nd := foldNode("reduce", v.n, m.Identity(),
		func(i int) (T, bool) {
			return v.values[i], v.assigned.has(i)
		},
		m.Apply,
		func(acc T) RC {
			*alpha = m.Apply(*alpha, acc)
			return Success
		})
	nd.ins = []*containerMeta{&v.meta}
	return v.rt.submitScalar(ctx, nd)
}

// Dot computes the semiring dot product of a and b into *z:
// *z = s.AddOp(*z, sum_i s.MulOp(a[i], b[i])) over the intersection of
// the operand patterns. A suspension point like Reduce.
func Dot[D1, D2, DOut any, S ops.Semiring[D1, D2, DOut]](
	ctx context.Context, z *DOut, a *Vector[D1], b *Vector[D2], s S,
) RC {
	if rc := a.rt.check(); rc != Success {
		return rc
	}
	if z == nil {
		return Illegal
	}
	if a.Size() != b.Size() {
		return Mismatch
	}
	nd := foldNode("dot", a.n, s.AddIdentity(),
		func(i int) (DOut, bool) {
			if !a.assigned.has(i) || !b.assigned.has(i) {
				var zero DOut
				return zero, false
			}
			return s.MulOp(a.values[i], b.values[i]), true
		},
		s.AddOp,
		func(acc DOut) RC {
			*z = s.AddOp(*z, acc)
			return Success
		})
	nd.ins = []*containerMeta{&a.meta, &b.meta}
	return a.rt.submitScalar(ctx, nd)
}

// foldNode builds a reduction node: read yields the element at i (and
// whether it participates), fold accumulates, and publish commits the
// total. Per-tile partials combine in tile order; for floating-point
// lanes the reduction order is tile-major and deterministic for a
// fixed tile configuration.
func foldNode[T any](op string, n int, id T, read func(i int) (T, bool), fold func(x, y T) T, publish func(acc T) RC) *node {
	nd := newNode(op, kindFold, n)
	var parts []T
	nd.prepare = func(ntiles int) {
		parts = make([]T, ntiles)
		for i := range parts {
			parts[i] = id
		}
	}
	nd.makeTiled = func(pre func(i int)) func(tile, lo, hi int) {
		return func(tile, lo, hi int) {
			acc := parts[tile]
			for i := lo; i < hi; i++ {
				if pre != nil {
					pre(i)
				}
				if x, ok := read(i); ok {
					acc = fold(acc, x)
				}
			}
			parts[tile] = acc
		}
	}
	nd.tiled = nd.makeTiled(nil)
	nd.finish = func() RC {
		acc := id
		for _, p := range parts {
			acc = fold(acc, p)
		}
		return publish(acc)
	}
	return nd
}

// Mxv computes w = A v over semiring s: for each row r,
// w[r] = add-fold of s.MulOp(A[r,c], v[c]) over assigned columns c.
// Under TransposeMatrix the transpose is applied instead. Rows with no
// participating entries leave w[r] unassigned unless AddIdentity is
// set.
func Mxv[D1, D2, DOut any, S ops.Semiring[D1, D2, DOut]](
	w *Vector[DOut], mask *Vector[bool], a *Matrix[D1], v *Vector[D2], s S, desc Descriptor,
) RC {
	if rc := w.rt.check(); rc != Success {
		return rc
	}
	nrows, ncols := a.Nrows(), a.Ncols()
	if desc.Has(TransposeMatrix) {
		nrows, ncols = ncols, nrows
	}
	if w.Size() != nrows || v.Size() != ncols || (mask != nil && mask.Size() != nrows) {
		return Mismatch
	}
	nd := newNode("mxv", kindSweep, a.Nrows())
	nd.outs = []*containerMeta{&w.meta}
	nd.ins = []*containerMeta{&a.meta, &v.meta}
	if mask != nil {
		nd.ins = append(nd.ins, &mask.meta)
	}
	addIdentity := desc.Has(AddIdentity)
	if desc.Has(TransposeMatrix) {
		// The transposed sweep scatters into w and cannot be tiled
		// over rows without write conflicts.
		nd.serial = true
		nd.tiled = func(_, lo, hi int) {
			for r := lo; r < hi; r++ {
				if !v.assigned.has(r) {
					continue
				}
				klo, khi := a.rowRange(r)
				for k := klo; k < khi; k++ {
					c := a.col(k)
					if !maskTest(mask, c, desc) {
						continue
					}
					x := s.MulOp(a.values[k], v.values[r])
					if w.assigned.has(c) {
						w.values[c] = s.AddOp(w.values[c], x)
					} else {
						w.values[c] = s.AddOp(s.AddIdentity(), x)
						w.assigned.set(c)
					}
				}
			}
		}
	} else {
		nd.tiled = func(_, lo, hi int) {
			for r := lo; r < hi; r++ {
				if !maskTest(mask, r, desc) {
					continue
				}
				acc := s.AddIdentity()
				any := false
				klo, khi := a.rowRange(r)
				for k := klo; k < khi; k++ {
					c := a.col(k)
					if !v.assigned.has(c) {
						continue
					}
					acc = s.AddOp(acc, s.MulOp(a.values[k], v.values[c]))
					any = true
				}
				if any || addIdentity {
					w.values[r] = acc
					w.assigned.set(r)
				}
			}
		}
	}
	nd.finish = w.recount
	return w.rt.submit(backgroundContext(), nd)
}
