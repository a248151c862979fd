// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package launch

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	alp "github.com/Algebraic-Programming/ALP-sub013"
	"github.com/Algebraic-Programming/ALP-sub013/spmd"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/sync/ctxsync"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/bigmachine"
)

func init() {
	gob.Register(&worker{})
	gob.Register(alp.RC(0))
	gob.Register(benchInput{})
	gob.Register(benchOutput{})
}

// A box carries a payload of arbitrary concrete type across gob.
// Automatic-mode users must gob.Register their input, output, and
// message payload types.
type box struct {
	V interface{}
}

// A packet is one point-to-point message between worker processes.
type packet struct {
	From int
	Tag  int
	Data []byte
}

// procRequest asks a worker to run one process's share of a registered
// function.
type procRequest struct {
	Name    string
	Digest  uint64
	Rank    int
	Procs   int
	Addrs   []string
	Backend int
	Input   []byte
}

// procReply carries back the process's reconciled return code and, on
// the root, the encoded output.
type procReply struct {
	RC     alp.RC
	Output []byte
}

// cluster is a started Automatic-mode machine group.
type cluster struct {
	machines []*bigmachine.Machine
	addrs    []string
	worker   *worker
}

// worker is the bigmachine service hosting process execution and the
// inter-worker message inbox.
type worker struct {
	// Exported just satisfies gob's persnickety nature: we need at least
	// one exported field.
	Exported struct{}

	b *bigmachine.B

	mu      sync.Mutex
	cond    *ctxsync.Cond
	pending []packet
}

func (w *worker) Init(b *bigmachine.B) error {
	w.b = b
	w.cond = ctxsync.NewCond(&w.mu)
	return nil
}

// FuncDigest reports the worker's registry digest so the driver can
// verify deterministic registration before running anything.
func (w *worker) FuncDigest(ctx context.Context, _ struct{}, digest *uint64) error {
	*digest = registryDigest()
	return nil
}

// Push delivers a message from a peer worker into the local inbox.
func (w *worker) Push(ctx context.Context, p packet, _ *struct{}) error {
	w.mu.Lock()
	w.pending = append(w.pending, p)
	w.cond.Broadcast()
	w.mu.Unlock()
	return nil
}

// recv blocks until a message matching (from, tag) is in the inbox.
func (w *worker) recv(ctx context.Context, from, tag int) (packet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		for i, p := range w.pending {
			if p.From == from && p.Tag == tag {
				w.pending = append(w.pending[:i], w.pending[i+1:]...)
				return p, nil
			}
		}
		if err := w.cond.Wait(ctx); err != nil {
			return packet{}, err
		}
	}
}

// Run executes one process's share of the named registered function.
func (w *worker) Run(ctx context.Context, req procRequest, reply *procReply) error {
	if req.Digest != registryDigest() {
		return fmt.Errorf("launch: worker has different funcs; check for non-deterministic registration")
	}
	registryMu.Lock()
	entry, ok := registry[req.Name]
	registryMu.Unlock()
	if !ok {
		return fmt.Errorf("launch: func %q is not registered on worker", req.Name)
	}
	var in box
	if err := gobDecode(req.Input, &in); err != nil {
		return err
	}
	comm := &machineComm{w: w, rank: req.Rank, size: req.Procs, addrs: req.Addrs}
	rt, rc := alp.Init(alp.WithBackend(alp.Backend(req.Backend)))
	if rc != alp.Success {
		reply.RC = rc
		return nil
	}
	defer rt.Finalize()
	out, frc := entry(ctx, rt, comm, in.V)
	reply.RC = spmd.SyncRC(ctx, comm, frc)
	if reply.RC != alp.Success {
		return nil
	}
	var err error
	reply.Output, err = gobEncode(box{V: out})
	return err
}

// machineComm is the spmd.Comm of an Automatic-mode process group.
// Sends are pushed into the destination worker's inbox over RPC;
// receives drain the local inbox.
type machineComm struct {
	w     *worker
	rank  int
	size  int
	addrs []string

	mu    sync.Mutex
	peers map[int]*bigmachine.Machine
}

var _ spmd.Comm = (*machineComm)(nil)

func (c *machineComm) Size() int { return c.size }

func (c *machineComm) Rank() int { return c.rank }

func (c *machineComm) peer(ctx context.Context, rank int) (*bigmachine.Machine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.peers[rank]; ok {
		return m, nil
	}
	m, err := c.w.b.Dial(ctx, c.addrs[rank])
	if err != nil {
		return nil, err
	}
	if c.peers == nil {
		c.peers = make(map[int]*bigmachine.Machine)
	}
	c.peers[rank] = m
	return m, nil
}

func (c *machineComm) Send(ctx context.Context, to, tag int, payload interface{}) alp.RC {
	if to < 0 || to >= c.size {
		return alp.Illegal
	}
	data, err := gobEncode(box{V: payload})
	if err != nil {
		log.Error.Printf("launch: encode message to %d: %v", to, err)
		return alp.Panic
	}
	p := packet{From: c.rank, Tag: tag, Data: data}
	if to == c.rank {
		return errToRC(c.w.Push(ctx, p, nil))
	}
	m, err := c.peer(ctx, to)
	if err != nil {
		log.Error.Printf("launch: dial rank %d: %v", to, err)
		return alp.Failed
	}
	return errToRC(m.RetryCall(ctx, "Worker.Push", p, nil))
}

func (c *machineComm) Recv(ctx context.Context, from, tag int) (interface{}, alp.RC) {
	if from < 0 || from >= c.size {
		return nil, alp.Illegal
	}
	p, err := c.w.recv(ctx, from, tag)
	if err != nil {
		return nil, alp.Failed
	}
	var b box
	if err := gobDecode(p.Data, &b); err != nil {
		log.Error.Printf("launch: decode message from %d: %v", from, err)
		return nil, alp.Panic
	}
	return b.V, alp.Success
}

// tagBarrier is reserved for Barrier token exchange.
const tagBarrier = -1

// Barrier gathers a token at rank 0 and releases all ranks once every
// token has arrived.
func (c *machineComm) Barrier(ctx context.Context) alp.RC {
	if c.size == 1 {
		return alp.Success
	}
	if c.rank == 0 {
		for r := 1; r < c.size; r++ {
			if _, rc := c.Recv(ctx, r, tagBarrier); rc != alp.Success {
				return rc
			}
		}
		for r := 1; r < c.size; r++ {
			if rc := c.Send(ctx, r, tagBarrier, struct{}{}); rc != alp.Success {
				return rc
			}
		}
		return alp.Success
	}
	if rc := c.Send(ctx, 0, tagBarrier, struct{}{}); rc != alp.Success {
		return rc
	}
	_, rc := c.Recv(ctx, 0, tagBarrier)
	return rc
}

// Sync fences the communication phase. Messages are delivered eagerly,
// so the fence degenerates to a barrier.
func (c *machineComm) Sync(ctx context.Context, msgsIn, msgsOut int) alp.RC {
	return c.Barrier(ctx)
}

func errToRC(err error) alp.RC {
	if err == nil {
		return alp.Success
	}
	return alp.Failed
}

// startCluster boots the Automatic-mode machines and verifies that
// their func registries match the driver's.
func (l *Launcher) startCluster(ctx context.Context) error {
	if l.cluster != nil {
		return nil
	}
	w := &worker{}
	machines, err := l.b.Start(ctx, l.procs, bigmachine.Services{"Worker": w})
	if err != nil {
		return errors.E("launch: starting machines", err)
	}
	digest := registryDigest()
	addrs := make([]string, len(machines))
	err = traverse.Each(len(machines), func(i int) error {
		m := machines[i]
		<-m.Wait(bigmachine.Running)
		if err := m.Err(); err != nil {
			return errors.E(fmt.Sprintf("launch: machine %s failed to start", m.Addr), err)
		}
		var workerDigest uint64
		if err := m.RetryCall(ctx, "Worker.FuncDigest", struct{}{}, &workerDigest); err != nil {
			return errors.E(fmt.Sprintf("launch: machine %s digest check", m.Addr), err)
		}
		if workerDigest != digest {
			return fmt.Errorf("launch: machine %s has different funcs; check for non-deterministic registration", m.Addr)
		}
		addrs[i] = m.Addr
		log.Printf("launch: machine %v is ready", m.Addr)
		return nil
	})
	if err != nil {
		return err
	}
	l.cluster = &cluster{machines: machines, addrs: addrs, worker: w}
	return nil
}

// runMachines drives Automatic mode: one started machine per process.
func runMachines[In, Out any](ctx context.Context, l *Launcher, h *Handle[In, Out], in In) (Out, error) {
	var zero Out
	if err := l.startCluster(ctx); err != nil {
		return zero, err
	}
	input, err := gobEncode(box{V: in})
	if err != nil {
		return zero, errors.E("launch: encoding input", err)
	}
	var (
		n       = len(l.cluster.machines)
		digest  = registryDigest()
		replies = make([]procReply, n)
	)
	err = traverse.Each(n, func(r int) error {
		req := procRequest{
			Name:    h.name,
			Digest:  digest,
			Rank:    r,
			Procs:   n,
			Addrs:   l.cluster.addrs,
			Backend: int(l.local),
			Input:   input,
		}
		return l.cluster.machines[r].RetryCall(ctx, "Worker.Run", req, &replies[r])
	})
	if err != nil {
		return zero, errors.E("launch: remote run", err)
	}
	if rc := replies[0].RC; rc != alp.Success {
		return zero, rc.Err()
	}
	var out box
	if err := gobDecode(replies[0].Output, &out); err != nil {
		return zero, errors.E("launch: decoding output", err)
	}
	typed, ok := out.V.(Out)
	if !ok {
		return zero, fmt.Errorf("launch: func %q returned %T, not %T", h.name, out.V, zero)
	}
	return typed, nil
}

func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
