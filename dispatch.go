// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import "context"

// submit routes a primitive's node through the active backend: the
// nonblocking backend records it onto the pipeline and returns without
// executing, while blocking backends execute it immediately.
func (rt *Runtime) submit(ctx context.Context, nd *node) RC {
	if rt.pipe != nil {
		return rt.observe(rt.pipe.enqueue(nd))
	}
	return rt.runEager(ctx, nd)
}

// submitScalar routes a node whose result is a user-visible scalar.
// Such nodes are suspension points: under the nonblocking backend the
// node is enqueued and its dependencies are flushed through it before
// returning, which is what lets a producing traversal fuse into the
// reduction.
func (rt *Runtime) submitScalar(ctx context.Context, nd *node) RC {
	if rt.pipe != nil {
		if rc := rt.pipe.enqueue(nd); rc != Success {
			return rt.observe(rc)
		}
		return rt.observe(rt.pipe.flush(ctx, nd.ins))
	}
	return rt.runEager(ctx, nd)
}

// runEager executes a node synchronously for the blocking backends.
// Errors surface directly and are not stamped onto containers; only
// the nonblocking pipeline stains outputs, since only there can a
// failure be observed after the fact.
func (rt *Runtime) runEager(ctx context.Context, nd *node) RC {
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
	nd.set(nodeReady)
	rc := rt.runNode(ctx, nd)
	if rc != Success {
		nd.mu.Lock()
		nd.state = nodeFailed
		nd.err = rc
		nd.mu.Unlock()
		return rt.observe(rc)
	}
	nd.retire()
	rt.engineStats().Int("traversals").Add(1)
	return Success
}
