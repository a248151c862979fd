// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package alp implements a sparse and dense linear-algebra runtime in the
// GraphBLAS tradition. Users express graph and numeric algorithms as
// operations over vectors and matrices parameterized by algebraic
// structures (operators, monoids, semirings, see package ops), and the
// runtime executes them on one of a sealed set of execution backends.
//
// A runtime is obtained from Init and selects its backend there:
//
//	rt, rc := alp.Init(alp.WithBackend(alp.Nonblocking))
//	if rc != alp.Success {
//		log.Fatal(rc)
//	}
//	defer rt.Finalize()
//
//	v, _ := alp.NewVector[float64](rt, 100)
//	alp.Apply(v, nil, 0.25, v, ops.Add[float64]{}, alp.NoOperation)
//	nnz, rc := alp.Nnz(ctx, v)
//
// Three backends execute in this repository: Reference (single-threaded,
// synchronous), ReferenceOMP (fork-join parallel inside each primitive),
// and Nonblocking (primitives are enqueued onto a lazy pipeline, fused
// where profitable, and forced at Wait or at any primitive that must
// observe user-visible state). The remaining backend identities exist for
// registry and capability purposes; the BSP1D identity is realized by
// package dist, which composes a blocking process-local runtime with a
// message-passing substrate (package spmd).
//
// Every primitive returns an RC. Primitives never panic across the user
// boundary; a Panic code poisons the runtime until it is re-initialized.
package alp
