// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package launch

import (
	"context"
	"fmt"
	"time"

	alp "github.com/Algebraic-Programming/ALP-sub013"
	"github.com/Algebraic-Programming/ALP-sub013/ops"
	"github.com/Algebraic-Programming/ALP-sub013/spmd"
	"github.com/Algebraic-Programming/ALP-sub013/stats"
	"github.com/grailbio/base/data"
	"github.com/grailbio/base/log"
)

// benchInput wraps a user input with the repetition counts.
type benchInput struct {
	V     interface{}
	Inner int
	Outer int
}

// benchOutput carries the last invocation's output and one sample per
// outer repetition, each averaged over the inner loop and maximized
// across processes.
type benchOutput struct {
	V     interface{}
	Times []time.Duration
}

// registerBench registers the timing harness of h under a derived
// name, so that Automatic-mode workers can run benchmarks too.
func registerBench[In, Out any](h *Handle[In, Out]) {
	name := h.name + "/bench"
	registry[name] = func(ctx context.Context, rt *alp.Runtime, comm spmd.Comm, in interface{}) (interface{}, alp.RC) {
		req, ok := in.(benchInput)
		if !ok {
			return benchOutput{}, alp.Illegal
		}
		typed, _ := req.V.(In)
		out, times, rc := benchLoop(ctx, rt, comm, h.f, typed, req.Inner, req.Outer)
		return benchOutput{V: out, Times: times}, rc
	}
}

// benchLoop runs f inner*outer times on one process. Each outer
// repetition starts from a barrier, times the inner loop as one block,
// and records the per-invocation average. The first outer repetition
// deliberately includes all cold-start effects.
func benchLoop[In, Out any](
	ctx context.Context,
	rt *alp.Runtime,
	comm spmd.Comm,
	f Func[In, Out],
	in In,
	inner, outer int,
) (Out, []time.Duration, alp.RC) {
	var out Out
	if inner < 1 || outer < 1 {
		return out, nil, alp.Illegal
	}
	times := make([]time.Duration, outer)
	for o := range times {
		if rc := comm.Barrier(ctx); rc != alp.Success {
			return out, nil, rc
		}
		start := time.Now()
		for i := 0; i < inner; i++ {
			var rc alp.RC
			out, rc = f(ctx, rt, comm, in)
			if rc != alp.Success {
				return out, nil, rc
			}
		}
		times[o] = time.Since(start) / time.Duration(inner)
	}
	// The slowest process bounds the phase, so report the elementwise
	// maximum. If aggregation itself fails, per-process times are
	// still meaningful; log and keep them.
	for o := range times {
		maxed, rc := spmd.AllReduce[int64, ops.Max[int64]](ctx, comm, ops.Max[int64]{}, int64(times[o]))
		if rc != alp.Success {
			log.Error.Printf("launch: timing aggregation failed (%s); reporting per-process times", rc)
			break
		}
		times[o] = time.Duration(maxed)
	}
	return out, times, alp.Success
}

// A Report summarizes one benchmark run. Cold is the first outer
// repetition; Warm holds the remaining ones.
type Report struct {
	Inner int
	Outer int
	Cold  time.Duration
	Warm  stats.Samples
}

func (r Report) String() string {
	if len(r.Warm) == 0 {
		return fmt.Sprintf("inner %d outer %d cold %v", r.Inner, r.Outer, r.Cold)
	}
	return fmt.Sprintf("inner %d outer %d cold %v warm %s", r.Inner, r.Outer, r.Cold, r.Warm)
}

// Throughput formats the sustained rate of processing b bytes per
// invocation, judged by the warm median.
func (r Report) Throughput(b int64) string {
	med := r.Warm.Median()
	if med <= 0 {
		med = r.Cold
	}
	if med <= 0 {
		return "n/a"
	}
	rate := float64(b) / med.Seconds()
	return data.Size(rate).String() + "/s"
}

// A Benchmarker runs registered functions repeatedly through a
// Launcher and reports aggregated wall-clock timings.
type Benchmarker struct {
	l     *Launcher
	inner int
	outer int
}

// NewBenchmarker wraps l. Each measurement runs inner invocations
// back to back and repeats the measurement outer times.
func NewBenchmarker(l *Launcher, inner, outer int) *Benchmarker {
	return &Benchmarker{l: l, inner: inner, outer: outer}
}

// Benchmark runs h under the repetition harness and returns the last
// output of the root process together with the timing report.
func Benchmark[In, Out any](ctx context.Context, b *Benchmarker, h *Handle[In, Out], in In) (Out, Report, error) {
	var zero Out
	bh := &Handle[benchInput, benchOutput]{
		name: h.name + "/bench",
		f: func(ctx context.Context, rt *alp.Runtime, comm spmd.Comm, req benchInput) (benchOutput, alp.RC) {
			typed, _ := req.V.(In)
			out, times, rc := benchLoop(ctx, rt, comm, h.f, typed, req.Inner, req.Outer)
			return benchOutput{V: out, Times: times}, rc
		},
	}
	res, err := Run(ctx, b.l, bh, benchInput{V: in, Inner: b.inner, Outer: b.outer})
	if err != nil {
		return zero, Report{}, err
	}
	out, ok := res.V.(Out)
	if !ok && res.V != nil {
		return zero, Report{}, fmt.Errorf("launch: benchmark of %q returned %T, not %T", h.name, res.V, zero)
	}
	report := Report{Inner: b.inner, Outer: b.outer}
	if len(res.Times) > 0 {
		report.Cold = res.Times[0]
		report.Warm = stats.Samples(res.Times[1:])
	}
	return out, report, nil
}
