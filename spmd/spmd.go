// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package spmd provides the process-group substrate of the runtime:
// the Comm surface every backend exposes, an in-process loopback group
// for single-binary SPMD runs and tests, and the collectives built on
// top of them. Distributed backends compose a Comm with a process-local
// runtime (see package dist).
package spmd

import (
	"context"
	"sync"

	alp "github.com/Algebraic-Programming/ALP-sub013"
	"github.com/grailbio/base/sync/ctxsync"
)

// Comm is the SPMD identity and message surface of one process within
// a group. Single-process backends expose a group of one with no-op
// synchronization.
type Comm interface {
	// Size returns the number of processes in the group.
	Size() int
	// Rank returns this process's identifier, 0 <= Rank < Size.
	Rank() int
	// Send delivers payload to the process with the given rank. The
	// tag pairs sends with receives; mismatched tags are a protocol
	// violation and yield Panic.
	Send(ctx context.Context, to, tag int, payload interface{}) alp.RC
	// Recv receives the next payload sent by rank from with the given
	// tag.
	Recv(ctx context.Context, from, tag int) (interface{}, alp.RC)
	// Barrier blocks until every process in the group has entered it.
	Barrier(ctx context.Context) alp.RC
	// Sync is the bulk-synchronous step boundary. The message counts
	// let message-passing substrates size their registration; the
	// loopback substrate ignores them.
	Sync(ctx context.Context, msgsIn, msgsOut int) alp.RC
}

// Single is the trivial group of one process. All synchronization is a
// no-op returning Success; point-to-point messaging is Illegal since
// there is no peer.
type Single struct{}

func (Single) Size() int { return 1 }
func (Single) Rank() int { return 0 }

func (Single) Send(ctx context.Context, to, tag int, payload interface{}) alp.RC {
	return alp.Illegal
}

func (Single) Recv(ctx context.Context, from, tag int) (interface{}, alp.RC) {
	return nil, alp.Illegal
}

func (Single) Barrier(ctx context.Context) alp.RC { return alp.Success }

func (Single) Sync(ctx context.Context, msgsIn, msgsOut int) alp.RC { return alp.Success }

// message is one in-flight loopback payload.
type message struct {
	tag     int
	payload interface{}
}

// loopbackGroup is the state shared by the endpoints of one loopback
// group: a channel per ordered process pair and a generation barrier.
type loopbackGroup struct {
	n     int
	chans []chan message // from*n + to

	mu      sync.Mutex
	cond    *ctxsync.Cond
	waiting int
	gen     int
}

// A Loopback is one endpoint of an in-process SPMD group whose
// processes are goroutines of the same binary. It implements Comm.
type Loopback struct {
	rank int
	g    *loopbackGroup
}

// NewLoopback returns the n endpoints of a fresh in-process group.
// Endpoint i must be used only by the goroutine acting as process i.
func NewLoopback(n int) []*Loopback {
	g := &loopbackGroup{
		n:     n,
		chans: make([]chan message, n*n),
	}
	g.cond = ctxsync.NewCond(&g.mu)
	for i := range g.chans {
		g.chans[i] = make(chan message, 128)
	}
	comms := make([]*Loopback, n)
	for r := range comms {
		comms[r] = &Loopback{rank: r, g: g}
	}
	return comms
}

func (l *Loopback) Size() int { return l.g.n }
func (l *Loopback) Rank() int { return l.rank }

func (l *Loopback) Send(ctx context.Context, to, tag int, payload interface{}) alp.RC {
	if to < 0 || to >= l.g.n {
		return alp.Illegal
	}
	select {
	case l.g.chans[l.rank*l.g.n+to] <- message{tag: tag, payload: payload}:
		return alp.Success
	case <-ctx.Done():
		return alp.Failed
	}
}

func (l *Loopback) Recv(ctx context.Context, from, tag int) (interface{}, alp.RC) {
	if from < 0 || from >= l.g.n {
		return nil, alp.Illegal
	}
	select {
	case msg := <-l.g.chans[from*l.g.n+l.rank]:
		if msg.tag != tag {
			// Sends and receives are issued in matching collective
			// order; a tag mismatch means the group diverged.
			return nil, alp.Panic
		}
		return msg.payload, alp.Success
	case <-ctx.Done():
		return nil, alp.Failed
	}
}

// Barrier implements a generation-counting barrier over the group.
func (l *Loopback) Barrier(ctx context.Context) alp.RC {
	g := l.g
	g.mu.Lock()
	defer g.mu.Unlock()
	gen := g.gen
	g.waiting++
	if g.waiting == g.n {
		g.waiting = 0
		g.gen++
		g.cond.Broadcast()
		return alp.Success
	}
	for g.gen == gen {
		if err := g.cond.Wait(ctx); err != nil {
			return alp.Failed
		}
	}
	return alp.Success
}

func (l *Loopback) Sync(ctx context.Context, msgsIn, msgsOut int) alp.RC {
	return l.Barrier(ctx)
}
