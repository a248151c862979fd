// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import (
	"context"

	"github.com/Algebraic-Programming/ALP-sub013/stats"
	"github.com/grailbio/base/log"
)

// defaultPendingBudget bounds the number of pending nodes held by a
// pipeline before enqueueing applies backpressure by flushing.
const defaultPendingBudget = 1024

// A pipeline is the lazy-evaluation engine of the nonblocking backend.
// It holds the DAG of pending nodes, assigns container versions, fuses
// adjacent nodes where profitable, and executes the DAG at explicit
// wait points or whenever a primitive must observe user-visible state.
//
// A pipeline is owned by a single runtime and driven from the user's
// goroutine; only tile bodies run on worker goroutines.
type pipeline struct {
	rt      *Runtime
	budget  int
	nextID  int
	pending []*node

	// observed accumulates the most severe code seen since the last
	// Wait.
	observed RC

	stats *stats.Map
}

func newPipeline(rt *Runtime, budget int) *pipeline {
	if budget <= 0 {
		budget = defaultPendingBudget
	}
	return &pipeline{rt: rt, budget: budget, stats: rt.engineStats()}
}

// enqueue wires nd into the pipeline: it records dependency edges from
// the latest writers of its inputs and from the previous writers and
// readers of its outputs, bumps the output versions, and returns
// without executing. Only preconditions that are cheap to check
// eagerly have been verified by the caller; stained containers are
// rejected here with their stamped error.
func (p *pipeline) enqueue(nd *node) RC {
	for _, m := range nd.ins {
		if m.err != Success {
			return m.err
		}
	}
	for _, m := range nd.outs {
		if m.err != Success {
			return m.err
		}
	}
	nd.id = p.nextID
	p.nextID++
	for _, m := range nd.ins {
		if m.latestWriter != nil {
			m.latestWriter.edge(nd)
		}
		m.readers = append(m.readers, nd)
	}
	for _, m := range nd.outs {
		if m.latestWriter != nil {
			m.latestWriter.edge(nd)
		}
		for _, r := range m.readers {
			r.edge(nd)
		}
		m.readers = nil
		m.version++
		m.latestWriter = nd
	}
	nd.set(nodePending)
	p.pending = append(p.pending, nd)
	p.stats.Int("nodes").Add(1)
	if len(p.pending) >= p.budget {
		log.Debug.Printf("pipeline: pending budget %d reached, flushing", p.budget)
		return p.flush(backgroundContext(), nil)
	}
	return Success
}

// wait forces execution of all pending nodes that the given containers
// transitively depend on; with no containers it empties the pipeline.
// It returns the most severe code observed since the previous wait.
// Waiting on an empty pipeline is a no-op returning the pending
// observation, so wait(); wait() is equivalent to wait().
func (p *pipeline) wait(ctx context.Context, metas []*containerMeta) RC {
	rc := p.flush(ctx, metas)
	rc = rc.Merge(p.observed)
	if len(metas) == 0 || len(p.pending) == 0 {
		p.observed = Success
	}
	return rc
}

// flush executes the pending subgraph reachable from metas (all
// pending nodes when metas is nil) in dependency order. Failed nodes
// propagate failure to their successors without running them.
func (p *pipeline) flush(ctx context.Context, metas []*containerMeta) RC {
	todo := p.collect(metas)
	if len(todo) == 0 {
		return Success
	}
	p.stats.Int("flushes").Add(1)
	p.fuse(todo)

	rc := Success
	for _, nd := range todo {
		if nd.fused || nd.done() {
			continue
		}
		if failed := p.failedDep(nd); failed != Success {
			// A predecessor failed: skip the node, stamping the error.
			nd.fail(failed.Merge(Failed))
			rc = rc.Merge(failed)
			continue
		}
		nd.set(nodeReady)
		nrc := p.rt.runNode(ctx, nd)
		if nrc != Success {
			nd.fail(nrc)
			rc = rc.Merge(nrc)
			continue
		}
		nd.retire()
		p.stats.Int("traversals").Add(1)
	}
	p.reap(todo)
	if rc != Success {
		p.observed = p.observed.Merge(rc)
	}
	return rc
}

// collect gathers, in enqueue order, every pending node reachable
// backwards from the latest writers and readers of metas. A nil metas
// selects the whole pipeline.
func (p *pipeline) collect(metas []*containerMeta) []*node {
	if metas == nil {
		out := p.pending
		return out
	}
	marked := make(map[*node]bool)
	var mark func(nd *node)
	mark = func(nd *node) {
		if nd == nil || marked[nd] || nd.done() {
			return
		}
		marked[nd] = true
		for _, dep := range nd.deps {
			mark(dep)
		}
	}
	for _, m := range metas {
		mark(m.latestWriter)
		for _, r := range m.readers {
			mark(r)
		}
	}
	var out []*node
	for _, nd := range p.pending {
		if marked[nd] {
			out = append(out, nd)
		}
	}
	return out
}

// failedDep returns the error of the most severe failed predecessor of
// nd, or Success if all predecessors retired.
func (p *pipeline) failedDep(nd *node) RC {
	rc := Success
	for _, dep := range nd.deps {
		dep.mu.Lock()
		if dep.state == nodeFailed {
			rc = rc.Merge(dep.err)
		}
		dep.mu.Unlock()
	}
	return rc
}

// reap removes retired and failed nodes from the pending set and
// unlinks them from container reader lists. Retired nodes release
// their input edges here.
func (p *pipeline) reap(executed []*node) {
	done := make(map[*node]bool, len(executed))
	for _, nd := range executed {
		if nd.done() {
			done[nd] = true
			for _, a := range nd.absorbed {
				done[a] = true
			}
		}
	}
	if len(done) == 0 {
		return
	}
	live := p.pending[:0]
	for _, nd := range p.pending {
		if !done[nd] {
			live = append(live, nd)
			continue
		}
		for _, m := range nd.ins {
			readers := m.readers[:0]
			for _, r := range m.readers {
				if r != nd {
					readers = append(readers, r)
				}
			}
			m.readers = readers
		}
	}
	p.pending = live
}

// values returns a snapshot of the engine counters. Tests use it to
// verify fusion behavior; it is also exposed for diagnostics through
// Runtime.EngineStats.
func (p *pipeline) values() stats.Values {
	vals := make(stats.Values)
	p.stats.AddAll(vals)
	return vals
}
