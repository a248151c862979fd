// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import (
	"context"
	"runtime"

	"github.com/Algebraic-Programming/ALP-sub013/stats"
	"github.com/grailbio/base/backgroundcontext"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
)

// A Runtime is the process-scoped state of one initialized backend:
// its identity and capabilities, its worker pool, and (for the
// nonblocking backend) its pipeline. All containers are created
// against a runtime and are valid until it is finalized.
type Runtime struct {
	backend Backend
	props   Properties

	p           int // worker parallelism
	tile        int // manual tile size; 0 selects the cost model
	pid, nprocs int

	lim  *limiter.Limiter
	pipe *pipeline

	estats *stats.Map

	budget    int
	poisoned  bool
	finalized bool
}

// An Option configures a runtime at Init.
type Option func(*Runtime)

// WithBackend selects the execution backend. The default is Reference.
func WithBackend(b Backend) Option {
	return func(rt *Runtime) { rt.backend = b }
}

// Parallelism sets the number of worker goroutines used by backends
// that parallelize primitives internally. The default is GOMAXPROCS.
func Parallelism(p int) Option {
	must.True(p > 0, "alp.Parallelism: p <= 0")
	return func(rt *Runtime) { rt.p = p }
}

// TileSize fixes the tile length used when partitioning index spaces
// across workers; the length is rounded up to a multiple of 64 to
// keep tile boundaries off shared bitmap words. Zero (the default)
// selects the analytic cost model.
func TileSize(n int) Option {
	must.True(n >= 0, "alp.TileSize: n < 0")
	return func(rt *Runtime) { rt.tile = n }
}

// PendingBudget bounds the number of deferred primitives the
// nonblocking backend holds before applying backpressure.
func PendingBudget(n int) Option {
	must.True(n > 0, "alp.PendingBudget: n <= 0")
	return func(rt *Runtime) { rt.budget = n }
}

// Process declares the SPMD coordinates of this process. Process-local
// backends accept only (0, 1); the distributed composition layer sets
// the true coordinates.
func Process(pid, nprocs int) Option {
	return func(rt *Runtime) { rt.pid, rt.nprocs = pid, nprocs }
}

// Init initializes a runtime for the selected backend. Single-process
// backends require pid == 0 and nprocs == 1 and return Unsupported
// otherwise. Identities without an execution engine in this repository
// also return Unsupported.
func Init(opts ...Option) (*Runtime, RC) {
	rt := &Runtime{
		backend: Reference,
		nprocs:  1,
		estats:  stats.NewMap(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if err := checkComposition(); err != nil {
		log.Error.Printf("alp: properties table violated: %v", err)
		return nil, Panic
	}
	if !rt.backend.Valid() || !rt.backend.Executes() {
		return nil, Unsupported
	}
	if rt.pid != 0 || rt.nprocs != 1 {
		return nil, Unsupported
	}
	rt.props = PropertiesOf(rt.backend)
	if rt.p == 0 {
		rt.p = runtime.GOMAXPROCS(0)
	}
	if rt.props.WritableCaptured {
		// Captured scalars stay writable only when primitive bodies
		// never leave the user's thread.
		rt.p = 1
	}
	rt.lim = limiter.New()
	rt.lim.Release(rt.p)
	if rt.props.NonblockingExec {
		rt.pipe = newPipeline(rt, rt.budget)
	}
	log.Debug.Printf("alp: initialized backend %s, parallelism %d", rt.backend, rt.p)
	return rt, Success
}

// Finalize flushes any pending work and releases backend-owned state.
// Using the runtime after Finalize panics.
func (rt *Runtime) Finalize() RC {
	must.True(!rt.finalized, "alp: Finalize called twice")
	rc := Success
	if rt.pipe != nil && !rt.poisoned {
		rc = rt.pipe.wait(backgroundContext(), nil)
	}
	rt.finalized = true
	rt.pipe = nil
	return rc
}

// Backend returns the runtime's backend identity.
func (rt *Runtime) Backend() Backend { return rt.backend }

// Properties returns the runtime backend's capability record.
func (rt *Runtime) Properties() Properties { return rt.props }

// EngineStats returns a snapshot of the runtime's execution counters:
// traversals, fused nodes, flushes, tiles.
func (rt *Runtime) EngineStats() stats.Values {
	vals := make(stats.Values)
	rt.estats.AddAll(vals)
	return vals
}

func (rt *Runtime) engineStats() *stats.Map { return rt.estats }

// check is the common eager prologue of every primitive.
func (rt *Runtime) check() RC {
	must.True(!rt.finalized, "alp: runtime used after Finalize")
	if rt.poisoned {
		return Panic
	}
	return Success
}

// poison places the runtime in its terminal state. Every subsequent
// primitive returns Panic until the process re-initializes.
func (rt *Runtime) poison() {
	rt.poisoned = true
}

// observe routes a primitive's result through the runtime's poisoning
// rule.
func (rt *Runtime) observe(rc RC) RC {
	if rc == Panic {
		rt.poison()
	}
	return rc
}

// SPMD identity of a process-local runtime: a single process with
// no-op synchronization. The distributed composition layer (package
// dist) provides the multi-process surface.

// NumProcs returns the number of SPMD processes.
func (rt *Runtime) NumProcs() int { return 1 }

// PID returns this process's SPMD identifier.
func (rt *Runtime) PID() int { return 0 }

// Sync is the bulk-synchronous step boundary. The message counts size
// registration in distributed backends; process-local runtimes ignore
// them.
func (rt *Runtime) Sync(msgsIn, msgsOut int) RC {
	if rc := rt.check(); rc != Success {
		return rc
	}
	return Success
}

// Barrier synchronizes all SPMD processes. A no-op for process-local
// runtimes.
func (rt *Runtime) Barrier() RC {
	if rc := rt.check(); rc != Success {
		return rc
	}
	return Success
}

func backgroundContext() context.Context {
	return backgroundcontext.Get()
}
