// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import (
	"fmt"
	"sync"
)

// nodeState represents the runtime state of a pending node. States are
// defined so that their magnitudes correspond with node progression.
type nodeState int

const (
	// nodeInit is the state of a node that has been allocated but not
	// yet wired into the pipeline.
	nodeInit nodeState = iota
	// nodePending indicates the node is enqueued and waiting for its
	// predecessors to retire.
	nodePending
	// nodeReady indicates all predecessors have retired; the node may
	// be scheduled.
	nodeReady
	// nodeRunning is the state of a node whose tiles are executing.
	nodeRunning
	// nodeRetired indicates successful completion; the node's output
	// versions are visible.
	//
	// All states greater than nodeRetired indicate failure.
	nodeRetired
	// nodeFailed indicates the node failed, or that a predecessor
	// failed and the node was skipped.
	nodeFailed

	maxNodeState
)

var nodeStates = [...]string{
	nodeInit:    "INIT",
	nodePending: "PENDING",
	nodeReady:   "READY",
	nodeRunning: "RUNNING",
	nodeRetired: "RETIRED",
	nodeFailed:  "FAILED",
}

func (s nodeState) String() string { return nodeStates[s] }

// nodeKind classifies the execution shape of a node. The fusion pass
// dispatches on kinds: map nodes compose per-index, fold nodes absorb a
// producing map into their tile body, and sweep nodes fuse with nothing.
type nodeKind int

const (
	// kindMap is an element-wise node: apply is invoked once per index
	// of the node's domain.
	kindMap nodeKind = iota
	// kindFold reduces its domain to a scalar through per-tile partials
	// combined in finish.
	kindFold
	// kindSweep traverses an irregular domain (for example the rows of
	// a matrix) with no per-index body to compose.
	kindSweep
)

// A node records one deferred primitive invocation: its tag, the
// containers whose versions it consumes and produces, and closures that
// perform the computation over tiles of the index space. The set of
// live nodes forms a DAG rooted at user-visible containers; a node's
// lifetime ends when the pipeline executes it.
type node struct {
	id   int
	op   string
	kind nodeKind
	// n is the length of the node's index domain.
	n int

	// apply is the per-index body of a kindMap node.
	apply func(i int)
	// prepare is invoked once the tile count is known, before any tile
	// runs. Fold nodes use it to size their partial accumulators.
	prepare func(ntiles int)
	// tiled is the per-tile body of kindFold and kindSweep nodes.
	tiled func(tile, lo, hi int)
	// makeTiled rebuilds the tile body of a kindFold node with a
	// per-index preamble; the fusion pass uses it to pull a producing
	// map node into the reduction traversal.
	makeTiled func(pre func(i int)) func(tile, lo, hi int)
	// finish commits the node after all tiles complete: combine
	// partials, publish scalars, recount output nonzeroes.
	finish func() RC
	// serial forces the node to run as a single tile; set by sweeps
	// that scatter into their output.
	serial bool

	ins  []*containerMeta
	outs []*containerMeta

	deps  []*node
	succs []*node

	// absorbed holds producer nodes fused into this node; they retire
	// or fail together with it.
	absorbed []*node
	fused    bool

	mu    sync.Mutex
	state nodeState
	err   RC
}

func newNode(op string, kind nodeKind, n int) *node {
	return &node{op: op, kind: kind, n: n}
}

// String returns a short human-readable description of the node.
func (nd *node) String() string {
	return fmt.Sprintf("node %d %s(n=%d) %s", nd.id, nd.op, nd.n, nd.state)
}

// set sets the node's state.
func (nd *node) set(state nodeState) {
	nd.mu.Lock()
	nd.state = state
	nd.mu.Unlock()
}

// fail moves the node to nodeFailed with the given code and stamps the
// code onto the node's output containers, so that subsequent
// operations on those containers observe the same error.
func (nd *node) fail(rc RC) {
	nd.mu.Lock()
	nd.state = nodeFailed
	nd.err = rc
	nd.mu.Unlock()
	for _, m := range nd.outs {
		m.stain(rc)
	}
	for _, a := range nd.absorbed {
		a.fail(rc)
	}
}

// retire moves the node to nodeRetired, retires any absorbed
// producers, and makes the new versions of its outputs visible.
func (nd *node) retire() {
	for _, a := range nd.absorbed {
		a.retire()
	}
	nd.set(nodeRetired)
	for _, m := range nd.outs {
		if m.latestWriter == nd {
			m.latestWriter = nil
		}
	}
}

// done reports whether the node has reached a terminal state.
func (nd *node) done() bool {
	nd.mu.Lock()
	defer nd.mu.Unlock()
	return nd.state >= nodeRetired
}

// edge wires a dependency from nd to succ, deduplicating repeats.
func (nd *node) edge(succ *node) {
	if nd == succ {
		return
	}
	for _, s := range nd.succs {
		if s == succ {
			return
		}
	}
	nd.succs = append(nd.succs, succ)
	succ.deps = append(succ.deps, nd)
}

// A containerMeta is the engine-side identity of a container: its
// logical version, the pending node that will produce the current
// version, the pending readers of it, and any error stamped by a
// failed producer. The meta's address serves as the container handle.
type containerMeta struct {
	version      uint64
	latestWriter *node
	readers      []*node
	err          RC
}

func (m *containerMeta) stain(rc RC) {
	if rc.severity() > m.err.severity() {
		m.err = rc
	}
}

// pending reports whether any enqueued node still reads or writes the
// container.
func (m *containerMeta) pending() bool {
	return m.latestWriter != nil || len(m.readers) > 0
}
