// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import (
	"context"
	"testing"

	"github.com/Algebraic-Programming/ALP-sub013/ops"
)

func vectorOf[T any](t *testing.T, rt *Runtime, n int, idx []int, vals []T) *Vector[T] {
	t.Helper()
	v, rc := NewVector[T](rt, n)
	if rc != Success {
		t.Fatalf("NewVector: %s", rc)
	}
	if len(idx) > 0 {
		if rc := v.Build(idx, vals, Sequential); rc != Success {
			t.Fatalf("Build: %s", rc)
		}
	}
	return v
}

func scanAll[T any](t *testing.T, v *Vector[T]) map[int]T {
	t.Helper()
	out := make(map[int]T)
	if rc := v.Scan(context.Background(), func(i int, x T) bool {
		out[i] = x
		return true
	}); rc != Success {
		t.Fatalf("Scan: %s", rc)
	}
	return out
}

func TestSet(t *testing.T) {
	rt := testRuntime(t, Reference)
	w, _ := NewVector[float64](rt, 5)
	if rc := Set(w, nil, 2.5, NoOperation); rc != Success {
		t.Fatalf("Set: %s", rc)
	}
	got := scanAll(t, w)
	if len(got) != 5 {
		t.Fatalf("Set made %d elements, want 5", len(got))
	}
	for i, x := range got {
		if x != 2.5 {
			t.Errorf("w[%d] = %v, want 2.5", i, x)
		}
	}
}

func TestSetUseIndex(t *testing.T) {
	rt := testRuntime(t, Reference)
	w, _ := NewVector[int](rt, 6)
	if rc := Set(w, nil, 99, UseIndex); rc != Success {
		t.Fatalf("Set: %s", rc)
	}
	for i, x := range scanAll(t, w) {
		if x != i {
			t.Errorf("w[%d] = %d, want %d", i, x, i)
		}
	}
}

func TestSetMasked(t *testing.T) {
	rt := testRuntime(t, Reference)
	mask := vectorOf(t, rt, 4, []int{0, 1, 2}, []bool{true, false, true})
	w, _ := NewVector[int](rt, 4)
	if rc := Set(w, mask, 7, NoOperation); rc != Success {
		t.Fatalf("Set: %s", rc)
	}
	got := scanAll(t, w)
	want := map[int]int{0: 7, 2: 7}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, x := range want {
		if got[i] != x {
			t.Errorf("w[%d] = %d, want %d", i, got[i], x)
		}
	}

	// Structural admits by membership regardless of value.
	w2, _ := NewVector[int](rt, 4)
	Set(w2, mask, 7, Structural)
	if got := scanAll(t, w2); len(got) != 3 {
		t.Errorf("structural: got %v, want 3 elements", got)
	}

	// InvertMask complements the admitted set.
	w3, _ := NewVector[int](rt, 4)
	Set(w3, mask, 7, InvertMask)
	got3 := scanAll(t, w3)
	if len(got3) != 2 || got3[1] != 7 || got3[3] != 7 {
		t.Errorf("inverted: got %v, want {1:7, 3:7}", got3)
	}
}

func TestApplySparse(t *testing.T) {
	rt := testRuntime(t, Reference)
	v := vectorOf(t, rt, 6, []int{1, 4}, []float64{10, 40})
	w, _ := NewVector[float64](rt, 6)
	if rc := Apply(w, nil, 1.5, v, ops.Add[float64]{}, NoOperation); rc != Success {
		t.Fatalf("Apply: %s", rc)
	}
	got := scanAll(t, w)
	// Output pattern follows the input pattern: unassigned indices of v
	// stay unassigned in w.
	want := map[int]float64{1: 11.5, 4: 41.5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, x := range want {
		if got[i] != x {
			t.Errorf("w[%d] = %v, want %v", i, got[i], x)
		}
	}
}

func TestApplyMismatch(t *testing.T) {
	rt := testRuntime(t, Reference)
	v, _ := NewVector[int](rt, 3)
	w, _ := NewVector[int](rt, 4)
	if rc := Apply(w, nil, 1, v, ops.Add[int]{}, NoOperation); rc != Mismatch {
		t.Errorf("size mismatch: got %s, want %s", rc, Mismatch)
	}
	mask, _ := NewVector[bool](rt, 3)
	v4, _ := NewVector[int](rt, 4)
	if rc := Apply(w, mask, 1, v4, ops.Add[int]{}, NoOperation); rc != Mismatch {
		t.Errorf("mask mismatch: got %s, want %s", rc, Mismatch)
	}
}

func TestEWiseAddUnion(t *testing.T) {
	rt := testRuntime(t, Reference)
	a := vectorOf(t, rt, 5, []int{0, 2}, []uint64{3, 5})
	b := vectorOf(t, rt, 5, []int{2, 4}, []uint64{9, 1})
	w, _ := NewVector[uint64](rt, 5)
	if rc := EWiseAdd(w, nil, a, b, ops.MaxMonoid[uint64]{}, NoOperation); rc != Success {
		t.Fatalf("EWiseAdd: %s", rc)
	}
	got := scanAll(t, w)
	want := map[int]uint64{0: 3, 2: 9, 4: 1}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, x := range want {
		if got[i] != x {
			t.Errorf("w[%d] = %d, want %d", i, got[i], x)
		}
	}
}

func TestEWiseMulIntersection(t *testing.T) {
	rt := testRuntime(t, Reference)
	a := vectorOf(t, rt, 5, []int{0, 2, 3}, []int{3, 5, 7})
	b := vectorOf(t, rt, 5, []int{2, 3, 4}, []int{9, 2, 1})
	w, _ := NewVector[int](rt, 5)
	if rc := EWiseMul(w, nil, a, b, ops.Mul[int]{}, NoOperation); rc != Success {
		t.Fatalf("EWiseMul: %s", rc)
	}
	got := scanAll(t, w)
	want := map[int]int{2: 45, 3: 14}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, x := range want {
		if got[i] != x {
			t.Errorf("w[%d] = %d, want %d", i, got[i], x)
		}
	}
}

func TestSetVector(t *testing.T) {
	rt := testRuntime(t, Reference)
	v := vectorOf(t, rt, 6, []int{0, 2, 4}, []int{10, 20, 30})
	w := vectorOf(t, rt, 6, []int{1}, []int{99})
	if rc := SetVector(w, nil, v, NoOperation); rc != Success {
		t.Fatalf("SetVector: %s", rc)
	}
	got := scanAll(t, w)
	want := map[int]int{0: 10, 1: 99, 2: 20, 4: 30}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, x := range want {
		if got[i] != x {
			t.Errorf("w[%d] = %d, want %d", i, got[i], x)
		}
	}
}

func TestSetVectorMasked(t *testing.T) {
	rt := testRuntime(t, Reference)
	v := vectorOf(t, rt, 4, []int{0, 1, 2, 3}, []int{1, 2, 3, 4})
	mask := vectorOf(t, rt, 4, []int{0, 2}, []bool{true, false})
	w, _ := NewVector[int](rt, 4)
	if rc := SetVector(w, mask, v, NoOperation); rc != Success {
		t.Fatalf("SetVector: %s", rc)
	}
	got := scanAll(t, w)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("got %v, want only index 0 = 1", got)
	}

	u, _ := NewVector[int](rt, 5)
	if rc := SetVector(u, nil, v, NoOperation); rc != Mismatch {
		t.Errorf("size mismatch: got %s, want %s", rc, Mismatch)
	}
}

func TestFoldl(t *testing.T) {
	acc := 10
	if rc := Foldl(&acc, 32, ops.Add[int]{}); rc != Success {
		t.Fatalf("Foldl: %s", rc)
	}
	if acc != 42 {
		t.Errorf("got %d, want 42", acc)
	}
	if rc := Foldl[int, int](nil, 1, ops.Add[int]{}); rc != Illegal {
		t.Errorf("nil alpha: got %s, want %s", rc, Illegal)
	}
}

func TestFoldr(t *testing.T) {
	acc := 7
	if rc := Foldr(5, &acc, ops.Left[int]{}); rc != Success {
		t.Fatalf("Foldr: %s", rc)
	}
	if acc != 5 {
		t.Errorf("got %d, want the left operand 5", acc)
	}
	if rc := Foldr[int, int](1, nil, ops.Add[int]{}); rc != Illegal {
		t.Errorf("nil beta: got %s, want %s", rc, Illegal)
	}
}

// Composed operators keep their zero-size token form: negating a
// conjunction is NAND.
func TestFoldlComposedOperator(t *testing.T) {
	acc := true
	if rc := Foldl(&acc, true, ops.Not[ops.LogicalAnd]{}); rc != Success {
		t.Fatalf("Foldl: %s", rc)
	}
	if acc != false {
		t.Error("NAND(true, true): got true, want false")
	}
	if rc := Foldl(&acc, true, ops.Not[ops.LogicalAnd]{}); rc != Success {
		t.Fatalf("Foldl: %s", rc)
	}
	if acc != true {
		t.Error("NAND(false, true): got false, want true")
	}
}

func TestReduce(t *testing.T) {
	rt := testRuntime(t, Reference)
	ctx := context.Background()
	v := vectorOf(t, rt, 100, []int{3, 50, 99}, []uint64{7, 2, 5})
	var m uint64
	if rc := Reduce(ctx, &m, v, ops.MaxMonoid[uint64]{}, NoOperation); rc != Success {
		t.Fatalf("Reduce: %s", rc)
	}
	if m != 7 {
		t.Errorf("max: got %d, want 7", m)
	}
	// The fold seeds from *alpha: reducing into a larger value keeps it.
	m = 100
	Reduce(ctx, &m, v, ops.MaxMonoid[uint64]{}, NoOperation)
	if m != 100 {
		t.Errorf("seeded max: got %d, want 100", m)
	}
	// Reducing an empty vector folds only the identity.
	empty, _ := NewVector[uint64](rt, 10)
	var sum uint64 = 3
	if rc := Reduce(ctx, &sum, empty, ops.Add[uint64]{}, NoOperation); rc != Success {
		t.Fatalf("Reduce empty: %s", rc)
	}
	if sum != 3 {
		t.Errorf("empty reduce: got %d, want 3", sum)
	}
}

func TestDot(t *testing.T) {
	rt := testRuntime(t, Reference)
	ctx := context.Background()
	a := vectorOf(t, rt, 4, []int{0, 1, 3}, []float64{1, 2, 3})
	b := vectorOf(t, rt, 4, []int{1, 2, 3}, []float64{10, 20, 30})
	var z float64
	if rc := Dot(ctx, &z, a, b, ops.PlusTimes[float64]{}); rc != Success {
		t.Fatalf("Dot: %s", rc)
	}
	// Only indices 1 and 3 intersect: 2*10 + 3*30.
	if z != 110 {
		t.Errorf("got %v, want 110", z)
	}
	short, _ := NewVector[float64](rt, 3)
	if rc := Dot(ctx, &z, a, short, ops.PlusTimes[float64]{}); rc != Mismatch {
		t.Errorf("size mismatch: got %s, want %s", rc, Mismatch)
	}
}

func TestMxv(t *testing.T) {
	rt := testRuntime(t, Reference)
	// 3x3 matrix:
	//   [ .  1  . ]
	//   [ 2  .  3 ]
	//   [ .  .  4 ]
	a, _ := NewMatrix[float64](rt, 3, 3)
	if rc := a.BuildUnique(
		[]int{0, 1, 1, 2},
		[]int{1, 0, 2, 2},
		[]float64{1, 2, 3, 4},
		Sequential,
	); rc != Success {
		t.Fatalf("BuildUnique: %s", rc)
	}
	v := vectorOf(t, rt, 3, []int{0, 1, 2}, []float64{1, 10, 100})
	w, _ := NewVector[float64](rt, 3)
	if rc := Mxv(w, nil, a, v, ops.PlusTimes[float64]{}, NoOperation); rc != Success {
		t.Fatalf("Mxv: %s", rc)
	}
	got := scanAll(t, w)
	want := map[int]float64{0: 10, 1: 302, 2: 400}
	for i, x := range want {
		if got[i] != x {
			t.Errorf("w[%d] = %v, want %v", i, got[i], x)
		}
	}
}

func TestMxvSparseInput(t *testing.T) {
	rt := testRuntime(t, Reference)
	a, _ := NewMatrix[float64](rt, 2, 3)
	a.BuildUnique([]int{0, 1}, []int{0, 2}, []float64{5, 7}, Sequential)
	// Only v[0] is assigned, so row 1 has no participating entries.
	v := vectorOf(t, rt, 3, []int{0}, []float64{2})
	w, _ := NewVector[float64](rt, 2)
	if rc := Mxv(w, nil, a, v, ops.PlusTimes[float64]{}, NoOperation); rc != Success {
		t.Fatalf("Mxv: %s", rc)
	}
	got := scanAll(t, w)
	if len(got) != 1 || got[0] != 10 {
		t.Errorf("got %v, want {0:10}", got)
	}

	// AddIdentity assigns untouched rows the additive identity.
	w2, _ := NewVector[float64](rt, 2)
	if rc := Mxv(w2, nil, a, v, ops.PlusTimes[float64]{}, AddIdentity); rc != Success {
		t.Fatalf("Mxv: %s", rc)
	}
	got2 := scanAll(t, w2)
	if len(got2) != 2 || got2[0] != 10 || got2[1] != 0 {
		t.Errorf("got %v, want {0:10, 1:0}", got2)
	}
}

func TestMxvTranspose(t *testing.T) {
	rt := testRuntime(t, Reference)
	// 2x3 matrix; the transpose is 3x2.
	a, _ := NewMatrix[float64](rt, 2, 3)
	a.BuildUnique([]int{0, 0, 1}, []int{0, 2, 1}, []float64{1, 2, 3}, Sequential)
	v := vectorOf(t, rt, 2, []int{0, 1}, []float64{10, 100})
	w, _ := NewVector[float64](rt, 3)
	if rc := Mxv(w, nil, a, v, ops.PlusTimes[float64]{}, TransposeMatrix); rc != Success {
		t.Fatalf("Mxv transpose: %s", rc)
	}
	got := scanAll(t, w)
	want := map[int]float64{0: 10, 1: 300, 2: 20}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, x := range want {
		if got[i] != x {
			t.Errorf("w[%d] = %v, want %v", i, got[i], x)
		}
	}
}

func TestMxvShapeMismatch(t *testing.T) {
	rt := testRuntime(t, Reference)
	a, _ := NewMatrix[float64](rt, 2, 3)
	v, _ := NewVector[float64](rt, 2) // needs size 3
	w, _ := NewVector[float64](rt, 2)
	if rc := Mxv(w, nil, a, v, ops.PlusTimes[float64]{}, NoOperation); rc != Mismatch {
		t.Errorf("got %s, want %s", rc, Mismatch)
	}
	// The same operands conform under TransposeMatrix.
	w3, _ := NewVector[float64](rt, 3)
	if rc := Mxv(w3, nil, a, v, ops.PlusTimes[float64]{}, TransposeMatrix); rc != Success {
		t.Errorf("transpose: got %s, want %s", rc, Success)
	}
}

func TestWaitBlockingBackend(t *testing.T) {
	rt := testRuntime(t, Reference)
	v, _ := NewVector[int](rt, 4)
	if rc := Wait(context.Background(), rt, v); rc != Success {
		t.Errorf("Wait: got %s, want %s", rc, Success)
	}
	if rc := Wait(context.Background(), rt); rc != Success {
		t.Errorf("Wait all: got %s, want %s", rc, Success)
	}
}
