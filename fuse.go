// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import "github.com/grailbio/base/log"

// fuse applies fusion rewrites to the nodes scheduled for execution, in
// enqueue (topological) order:
//
//   - a chain of element-wise nodes over the same index domain
//     collapses into a single traversal applying the composed bodies
//     in order (this includes masked assignment followed by an
//     element-wise apply on the same output);
//   - a reduction whose input's latest writer is an element-wise node
//     absorbs the producer into its tile body.
//
// Fusion never crosses a node whose output is read by a different
// unfused consumer, and never absorbs a node that publishes a scalar.
func (p *pipeline) fuse(todo []*node) {
	for _, nd := range todo {
		if nd.fused || nd.done() {
			continue
		}
		switch nd.kind {
		case kindMap:
			p.fuseChain(nd)
		case kindFold:
			p.fuseReduce(nd)
		}
	}
}

// fuseChain folds every fusable map producer of nd into nd's apply
// body, innermost producer first.
func (p *pipeline) fuseChain(nd *node) {
	for {
		prod := p.fusableProducer(nd)
		if prod == nil {
			return
		}
		pre, post := prod.apply, nd.apply
		nd.apply = func(i int) {
			pre(i)
			post(i)
		}
		p.absorb(nd, prod)
	}
}

// fuseReduce pulls a single fusable map producer into the reduction's
// traversal, so that producing the intermediate and reducing it share
// one pass over the index space.
func (p *pipeline) fuseReduce(nd *node) {
	if nd.makeTiled == nil {
		return
	}
	prod := p.fusableProducer(nd)
	if prod == nil {
		return
	}
	// Collapse any chain feeding the producer first so the reduction
	// absorbs the whole traversal.
	p.fuseChain(prod)
	nd.tiled = nd.makeTiled(prod.apply)
	p.absorb(nd, prod)
}

// fusableProducer returns a pending map node that per-index produces an
// input of nd on the same domain and whose outputs are consumed by nd
// alone, or nil when no such producer exists.
func (p *pipeline) fusableProducer(nd *node) *node {
	for _, dep := range nd.deps {
		if dep.fused || dep.done() || dep.kind != kindMap || dep.n != nd.n {
			continue
		}
		if !soleConsumer(dep, nd) {
			continue
		}
		return dep
	}
	return nil
}

// soleConsumer reports whether every pending successor of prod is nd.
func soleConsumer(prod, nd *node) bool {
	for _, s := range prod.succs {
		if s != nd && !s.done() {
			return false
		}
	}
	return true
}

// absorb marks prod as fused into nd. The producer's own dependencies
// become dependencies of nd so ordering is preserved.
func (p *pipeline) absorb(nd, prod *node) {
	log.Debug.Printf("pipeline: fused %s into %s", prod, nd)
	prod.fused = true
	nd.absorbed = append(nd.absorbed, prod)
	for _, dep := range prod.deps {
		if dep != nd && !dep.fused {
			dep.edge(nd)
		}
	}
	// The producer's finish still runs so its output commit (for
	// example the nonzero recount) happens exactly once.
	if prod.finish != nil {
		finish, outer := prod.finish, nd.finish
		nd.finish = func() RC {
			rc := finish()
			if outer == nil {
				return rc
			}
			return rc.Merge(outer())
		}
	}
	p.stats.Int("fused").Add(1)
}
