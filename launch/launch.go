// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package launch runs user functions across a process group. A
// Launcher starts (or adopts) a group, registers the input on the root
// process, broadcasts it to peers, invokes the function on every
// process, and collects the root's output. The Benchmarker extends the
// launcher with a repetition harness that aggregates wall-clock timing
// across processes.
//
// Functions are registered at package initialization, in the same
// deterministic order on every process of the binary:
//
//	var pageRank = launch.Register("pagerank", func(
//		ctx context.Context, rt *alp.Runtime, comm spmd.Comm, in Input,
//	) (Output, alp.RC) {
//		...
//	})
//
//	func main() {
//		l, err := launch.New(launch.Manual, launch.Procs(4))
//		...
//		out, err := launch.Run(context.Background(), l, pageRank, in)
//	}
package launch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	alp "github.com/Algebraic-Programming/ALP-sub013"
	"github.com/Algebraic-Programming/ALP-sub013/spmd"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"
)

// Process exit-code conventions shared by the command-line harnesses.
const (
	// ExitOK is returned on success.
	ExitOK = 0
	// ExitBadArgs is returned when command-line arguments do not parse.
	ExitBadArgs = 100
	// ExitLaunchFailed is returned when the launcher or the launched
	// function returned non-success.
	ExitLaunchFailed = 200
	// ExitHarness is the conventional failure code of test harnesses.
	ExitHarness = 255
)

// Mode selects how the launcher obtains its process group.
type Mode int

const (
	// Automatic spawns worker processes through bigmachine.
	Automatic Mode = iota
	// Manual adopts an in-binary group of goroutine processes.
	Manual
	// FromMPI adopts an existing message-passing context supplied by
	// the caller; every process of that context calls Run itself.
	FromMPI
)

var modeNames = [...]string{
	Automatic: "automatic",
	Manual:    "manual",
	FromMPI:   "from_mpi",
}

func (m Mode) String() string { return modeNames[m] }

// A Func is the user function executed on every process of the group.
// The input has already been broadcast from the root; the returned
// output is collected from the root process only.
type Func[In, Out any] func(ctx context.Context, rt *alp.Runtime, comm spmd.Comm, in In) (Out, alp.RC)

// A Handle names a registered Func. Handles are created by Register
// during package initialization so that driver and workers agree on
// the registered set.
type Handle[In, Out any] struct {
	name string
	f    Func[In, Out]
}

// Name returns the name under which the handle was registered.
func (h *Handle[In, Out]) Name() string { return h.name }

// registryEntry is the type-erased form of a registered Func used by
// worker processes.
type registryEntry func(ctx context.Context, rt *alp.Runtime, comm spmd.Comm, in interface{}) (interface{}, alp.RC)

var (
	registryMu sync.Mutex
	registry   = make(map[string]registryEntry)
)

// Register registers f under name and returns its handle. Register
// must be called during package initialization and names must be
// unique; workers verify that their registry digests match the
// driver's before running anything.
func Register[In, Out any](name string, f Func[In, Out]) *Handle[In, Out] {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		log.Panicf("launch.Register: duplicate func %q", name)
	}
	registry[name] = func(ctx context.Context, rt *alp.Runtime, comm spmd.Comm, in interface{}) (interface{}, alp.RC) {
		typed, ok := in.(In)
		if !ok {
			var zero In
			typed = zero
		}
		return f(ctx, rt, comm, typed)
	}
	h := &Handle[In, Out]{name: name, f: f}
	registerBench(h)
	return h
}

// registryDigest hashes the sorted registered names. Driver and
// workers compare digests to catch non-deterministic registration.
func registryDigest() uint64 {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	h := murmur3.New64()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// A Launcher owns one process group.
type Launcher struct {
	mode    Mode
	procs   int
	local   alp.Backend
	comm    spmd.Comm
	status  *status.Status
	system  bigmachine.System
	b       *bigmachine.B
	cluster *cluster
}

// An Option configures a Launcher.
type Option func(*Launcher)

// Procs sets the number of processes to start. Meaningful for
// Automatic and Manual modes; FromMPI adopts the context's size.
func Procs(n int) Option {
	return func(l *Launcher) { l.procs = n }
}

// LocalBackend selects the process-local backend initialized for each
// process. The default is Reference.
func LocalBackend(b alp.Backend) Option {
	return func(l *Launcher) { l.local = b }
}

// Comm supplies the adopted message-passing context for FromMPI mode.
func Comm(c spmd.Comm) Option {
	return func(l *Launcher) { l.comm = c }
}

// Status directs launch progress to the provided status object.
func Status(s *status.Status) Option {
	return func(l *Launcher) { l.status = s }
}

// System selects the bigmachine system backing Automatic mode. The
// default is bigmachine.Local.
func System(sys bigmachine.System) Option {
	return func(l *Launcher) { l.system = sys }
}

// New creates a launcher in the given mode. In Automatic mode New
// starts the bigmachine; on worker processes it does not return.
func New(mode Mode, opts ...Option) (*Launcher, error) {
	l := &Launcher{mode: mode, procs: 1, local: alp.Reference}
	for _, opt := range opts {
		opt(l)
	}
	switch mode {
	case Manual:
		if l.procs < 1 {
			return nil, errors.New("launch: Manual mode needs at least one process")
		}
	case FromMPI:
		if l.comm == nil {
			return nil, errors.New("launch: FromMPI mode needs a Comm")
		}
	case Automatic:
		if l.system == nil {
			l.system = bigmachine.Local
		}
		l.b = bigmachine.Start(l.system)
	default:
		return nil, fmt.Errorf("launch: invalid mode %d", mode)
	}
	return l, nil
}

// Finalize releases the process group's resources.
func (l *Launcher) Finalize() {
	if l.b != nil {
		l.b.Shutdown()
		l.b = nil
	}
	l.cluster = nil
}

// Run executes h on every process of the group, with in broadcast from
// the root, and returns the root's output. Launcher failures before
// invocation return a launch error; failures inside h are surfaced
// unchanged as the reconciled return code.
func Run[In, Out any](ctx context.Context, l *Launcher, h *Handle[In, Out], in In) (Out, error) {
	var zero Out
	switch l.mode {
	case Manual:
		return runGroup(ctx, l, h, in)
	case FromMPI:
		return runOn(ctx, l, h, l.comm, in)
	case Automatic:
		return runMachines(ctx, l, h, in)
	}
	return zero, fmt.Errorf("launch: invalid mode %d", l.mode)
}

// runGroup drives Manual mode: one goroutine per process over a fresh
// loopback group.
func runGroup[In, Out any](ctx context.Context, l *Launcher, h *Handle[In, Out], in In) (Out, error) {
	var (
		zero  Out
		comms = spmd.NewLoopback(l.procs)
		outs  = make([]Out, l.procs)
	)
	var group *status.Group
	if l.status != nil {
		group = l.status.Groupf("launch %s procs=%d", h.name, l.procs)
	}
	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < l.procs; r++ {
		r := r
		g.Go(func() error {
			var task *status.Task
			if group != nil {
				task = group.Start(fmt.Sprintf("proc %d", r))
				defer task.Done()
			}
			out, err := runOn(gctx, l, h, comms[r], in)
			if err != nil {
				return err
			}
			outs[r] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return zero, err
	}
	return outs[0], nil
}

// runOn executes one process's share: broadcast input, initialize the
// process-local runtime, invoke, reconcile.
func runOn[In, Out any](ctx context.Context, l *Launcher, h *Handle[In, Out], comm spmd.Comm, in In) (Out, error) {
	var zero Out
	in, rc := spmd.Broadcast(ctx, comm, in, 0)
	if rc != alp.Success {
		return zero, errors.E("launch: input broadcast failed", rc.Err())
	}
	rt, rc := alp.Init(alp.WithBackend(l.local))
	if rc != alp.Success {
		return zero, errors.E("launch: local runtime init failed", rc.Err())
	}
	defer rt.Finalize()
	out, frc := h.f(ctx, rt, comm, in)
	frc = spmd.SyncRC(ctx, comm, frc)
	if frc != alp.Success {
		return zero, frc.Err()
	}
	return out, nil
}
