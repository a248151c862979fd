// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats provides collections of counters and timing samples.
// The execution engine counts traversals, fusions, and tiles in a Map;
// the benchmark harness aggregates wall-clock samples with Samples.
// Collections are snapshottable and snapshots can be aggregated.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Values is a snapshot of the counters in a Map.
type Values map[string]int64

// Copy returns a copy of the values v.
func (v Values) Copy() Values {
	w := make(Values)
	for k, val := range v {
		w[k] = val
	}
	return w
}

// String returns an abbreviated string with the values in this
// snapshot sorted by key.
func (v Values) String() string {
	var keys []string
	for key := range v {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for i, key := range keys {
		keys[i] = fmt.Sprintf("%s:%d", key, v[key])
	}
	return strings.Join(keys, " ")
}

// A Map is a set of counters keyed by name.
type Map struct {
	mu     sync.Mutex
	values map[string]*Int
}

// NewMap returns a fresh Map.
func NewMap() *Map {
	return &Map{
		values: make(map[string]*Int),
	}
}

// Int returns the counter with the provided name. The counter is
// created if it does not already exist.
func (m *Map) Int(name string) *Int {
	m.mu.Lock()
	v := m.values[name]
	if v == nil {
		v = new(Int)
		m.values[name] = v
	}
	m.mu.Unlock()
	return v
}

// AddAll adds all counters in the map to the provided snapshot.
func (m *Map) AddAll(vals Values) {
	m.mu.Lock()
	for k, v := range m.values {
		vals[k] += v.Get()
	}
	m.mu.Unlock()
}

// An Int is an integer counter. Ints can be atomically incremented and
// set.
type Int struct {
	val int64
}

// Add increments v by delta.
func (v *Int) Add(delta int64) {
	if v == nil {
		return
	}
	atomic.AddInt64(&v.val, delta)
}

// Set sets the counter's value to val.
func (v *Int) Set(val int64) {
	if v == nil {
		return
	}
	atomic.StoreInt64(&v.val, val)
}

// Get returns the current value of a counter.
func (v *Int) Get() int64 {
	if v == nil {
		return 0
	}
	return atomic.LoadInt64(&v.val)
}

// Samples aggregates a set of duration samples, as collected by the
// benchmark harness across repetitions.
type Samples []time.Duration

// Min returns the smallest sample, or zero for an empty set.
func (s Samples) Min() time.Duration {
	if len(s) == 0 {
		return 0
	}
	min := s[0]
	for _, d := range s[1:] {
		if d < min {
			min = d
		}
	}
	return min
}

// Max returns the largest sample, or zero for an empty set.
func (s Samples) Max() time.Duration {
	if len(s) == 0 {
		return 0
	}
	max := s[0]
	for _, d := range s[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// Mean returns the arithmetic mean of the samples.
func (s Samples) Mean() time.Duration {
	if len(s) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range s {
		sum += d
	}
	return sum / time.Duration(len(s))
}

// Median returns the median sample: the middle value for odd-sized
// sets, the mean of the middle two otherwise.
func (s Samples) Median() time.Duration {
	if len(s) == 0 {
		return 0
	}
	sorted := append(Samples(nil), s...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// String summarizes the samples as min/median/max/mean.
func (s Samples) String() string {
	return fmt.Sprintf("min %v median %v max %v mean %v", s.Min(), s.Median(), s.Max(), s.Mean())
}
