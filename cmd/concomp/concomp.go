// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Concomp labels the connected components of an undirected graph by
// max-ID label propagation: every vertex starts with its own ID as
// label and repeatedly takes the maximum label over its neighborhood
// until no label changes. The propagation step is a sparse
// matrix-vector multiply over the (max, right) selection semiring.
//
// The graph is read as a whitespace-separated edge list, one "u v"
// pair per line, from the file named by the positional argument, or
// generated as a random graph with -gen.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	alp "github.com/Algebraic-Programming/ALP-sub013"
	"github.com/Algebraic-Programming/ALP-sub013/ops"
	"github.com/grailbio/base/log"
)

func main() {
	var (
		backendName = flag.String("backend", "nonblocking", "execution backend (reference, reference_omp, nonblocking)")
		gen         = flag.Int("gen", 0, "generate a random graph with this many vertices instead of reading a file")
		genEdges    = flag.Int("edges", 0, "edge count for -gen (default 4x vertices)")
		seed        = flag.Int64("seed", 1, "seed for -gen")
		maxIter     = flag.Int("maxiter", 0, "iteration limit (0 means run to convergence)")
		verbose     = flag.Bool("v", false, "log per-iteration progress")
	)
	log.AddFlags()
	flag.Parse()

	var rows, cols []int
	var n int
	switch {
	case *gen > 0:
		n = *gen
		m := *genEdges
		if m == 0 {
			m = 4 * n
		}
		rows, cols = randomGraph(n, m, *seed)
	case flag.NArg() == 1:
		var err error
		rows, cols, n, err = readEdges(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(100)
		}
	default:
		fmt.Fprintln(os.Stderr, "usage: concomp [flags] edgelist-file")
		flag.PrintDefaults()
		os.Exit(100)
	}

	backend, ok := parseBackend(*backendName)
	if !ok {
		fmt.Fprintf(os.Stderr, "concomp: unknown backend %q\n", *backendName)
		os.Exit(100)
	}
	rt, rc := alp.Init(alp.WithBackend(backend))
	if rc != alp.Success {
		log.Fatalf("initializing %s backend: %s", backend, rc)
	}
	defer rt.Finalize()

	components, iters, rc := run(rt, n, rows, cols, *maxIter, *verbose)
	if rc != alp.Success {
		log.Fatalf("label propagation failed: %s", rc)
	}
	fmt.Printf("%d vertices, %d edges, %d components, %d iterations\n",
		n, len(rows)/2, components, iters)
}

// run executes label propagation on rt and returns the component
// count. Labels are 1-based so that the semiring's additive identity
// never collides with a real label.
func run(rt *alp.Runtime, n int, rows, cols []int, maxIter int, verbose bool) (components, iters int, rc alp.RC) {
	ctx := context.Background()

	a, rc := alp.NewMatrix[uint64](rt, n, n)
	if rc != alp.Success {
		return 0, 0, rc
	}
	ones := make([]uint64, len(rows))
	for k := range ones {
		ones[k] = 1
	}
	if rc = a.BuildUnique(rows, cols, ones, alp.Parallel); rc != alp.Success {
		return 0, 0, rc
	}
	x, rc := alp.NewVector[uint64](rt, n)
	if rc != alp.Success {
		return 0, 0, rc
	}
	y, rc := alp.NewVector[uint64](rt, n)
	if rc != alp.Success {
		return 0, 0, rc
	}
	if rc = alp.Set(x, nil, 0, alp.UseIndex); rc != alp.Success {
		return 0, 0, rc
	}
	if rc = alp.Apply(x, nil, uint64(1), x, ops.Add[uint64]{}, alp.NoOperation); rc != alp.Success {
		return 0, 0, rc
	}

	// Labels only grow, so the label sum is strictly increasing until
	// the fixed point. An unchanged sum means convergence.
	var prev uint64
	for {
		iters++
		if rc = y.Clear(); rc != alp.Success {
			return 0, 0, rc
		}
		if rc = alp.Mxv(y, nil, a, x, ops.MaxRight[uint64]{}, alp.NoOperation); rc != alp.Success {
			return 0, 0, rc
		}
		if rc = alp.EWiseAdd(x, nil, x, y, ops.MaxMonoid[uint64]{}, alp.NoOperation); rc != alp.Success {
			return 0, 0, rc
		}
		var sum uint64
		if rc = alp.Reduce(ctx, &sum, x, ops.Add[uint64]{}, alp.NoOperation); rc != alp.Success {
			return 0, 0, rc
		}
		if verbose {
			log.Printf("iteration %d: label sum %d", iters, sum)
		}
		if sum == prev || (maxIter > 0 && iters >= maxIter) {
			break
		}
		prev = sum
	}

	seen := make(map[uint64]struct{})
	rc = x.Scan(ctx, func(i int, label uint64) bool {
		seen[label] = struct{}{}
		return true
	})
	if rc != alp.Success {
		return 0, 0, rc
	}
	return len(seen), iters, alp.Success
}

// randomGraph draws m undirected edges uniformly over n vertices and
// returns them in both orientations with duplicates removed.
func randomGraph(n, m int, seed int64) (rows, cols []int) {
	r := rand.New(rand.NewSource(seed))
	seen := make(map[[2]int]struct{})
	for len(seen) < m {
		u, v := r.Intn(n), r.Intn(n)
		if u == v {
			continue
		}
		if u > v {
			u, v = v, u
		}
		seen[[2]int{u, v}] = struct{}{}
	}
	rows = make([]int, 0, 2*len(seen))
	cols = make([]int, 0, 2*len(seen))
	for e := range seen {
		rows = append(rows, e[0], e[1])
		cols = append(cols, e[1], e[0])
	}
	return rows, cols
}

// readEdges parses a whitespace-separated edge list. The vertex count
// is one past the largest vertex mentioned.
func readEdges(path string) (rows, cols []int, n int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, err
	}
	defer f.Close()
	seen := make(map[[2]int]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, nil, 0, fmt.Errorf("%s: malformed edge %q", path, scanner.Text())
		}
		u, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, nil, 0, fmt.Errorf("%s: bad vertex %q", path, fields[0])
		}
		v, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, nil, 0, fmt.Errorf("%s: bad vertex %q", path, fields[1])
		}
		if u < 0 || v < 0 {
			return nil, nil, 0, fmt.Errorf("%s: negative vertex in edge %q", path, scanner.Text())
		}
		if u == v {
			continue
		}
		if u+1 > n {
			n = u + 1
		}
		if v+1 > n {
			n = v + 1
		}
		lo, hi := u, v
		if lo > hi {
			lo, hi = hi, lo
		}
		seen[[2]int{lo, hi}] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, 0, err
	}
	for e := range seen {
		rows = append(rows, e[0], e[1])
		cols = append(cols, e[1], e[0])
	}
	return rows, cols, n, nil
}

func parseBackend(name string) (alp.Backend, bool) {
	for b := alp.Backend(0); b.Valid(); b++ {
		if b.String() == name {
			return b, true
		}
	}
	return 0, false
}
