// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

// A Backend identifies one implementation of the primitive surface.
// Backends are selected when a runtime is initialized and are never
// chosen dynamically afterwards; the set of backends is closed. Backend
// values appear in diagnostics only, never in data paths.
type Backend int

const (
	// Reference is the single-threaded reference backend. Every
	// primitive is synchronous and executes immediately.
	Reference Backend = iota

	// ReferenceOMP is the shared-memory parallel backend. Primitives
	// execute immediately, parallelized internally with fork-join
	// worker pools; user code runs single-threaded between primitives.
	ReferenceOMP

	// Nonblocking is the lazy backend. Primitives are recorded onto a
	// pipeline and executed at the first point that must observe
	// user-visible state.
	Nonblocking

	// BSP1D is the distributed backend: a 1-D block distribution of
	// containers over a process group, composed with a blocking
	// process-local backend. See package dist.
	BSP1D

	// Hybrid combines BSP1D process distribution with a shared-memory
	// parallel process-local backend.
	Hybrid

	// HyperDAGs records the dependence structure of a computation while
	// delegating execution to an underlying backend.
	HyperDAGs

	// Banshee targets the Banshee RISC-V simulator.
	Banshee

	// Ascend targets Ascend accelerators through generated kernels.
	Ascend

	// MLIR lowers primitives to MLIR for offline compilation.
	MLIR

	// Tutorial is a minimal delegating backend used for backend
	// development walkthroughs.
	Tutorial

	maxBackend
)

var backendNames = [...]string{
	Reference:    "reference",
	ReferenceOMP: "reference_omp",
	Nonblocking:  "nonblocking",
	BSP1D:        "bsp1d",
	Hybrid:       "hybrid",
	HyperDAGs:    "hyperdags",
	Banshee:      "banshee",
	Ascend:       "ascend",
	MLIR:         "mlir",
	Tutorial:     "tutorial",
}

// String returns the backend's canonical lower-case name.
func (b Backend) String() string {
	if !b.Valid() {
		return "invalid"
	}
	return backendNames[b]
}

// Valid reports whether b is a member of the closed backend set.
func (b Backend) Valid() bool {
	return 0 <= b && b < maxBackend
}

// Composed reports whether b is a composed backend: one that inherits
// properties, SPMD, collectives, allocation, launching, and benchmarking
// from an underlying backend and overrides only the primitive layer.
func (b Backend) Composed() bool {
	switch b {
	case HyperDAGs, Tutorial, Ascend:
		return true
	}
	return false
}

// Underlying returns the backend that b delegates to. For non-composed
// backends Underlying returns b itself.
//
// The underlying backends below are fixed at build time; a composed
// backend never re-binds its underlying backend at runtime.
func (b Backend) Underlying() Backend {
	switch b {
	case HyperDAGs, Tutorial:
		return Reference
	case Ascend:
		return ReferenceOMP
	}
	return b
}

// Executes reports whether this repository carries an execution engine
// for b. Identities without an engine participate in the registry and
// the properties table but cannot be passed to Init.
func (b Backend) Executes() bool {
	switch b.Underlying() {
	case Reference, ReferenceOMP, Nonblocking:
		return true
	}
	return false
}
