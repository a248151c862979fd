// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import "testing"

func TestBackendString(t *testing.T) {
	for b, want := range map[Backend]string{
		Reference:    "reference",
		ReferenceOMP: "reference_omp",
		Nonblocking:  "nonblocking",
		BSP1D:        "bsp1d",
		Hybrid:       "hybrid",
		HyperDAGs:    "hyperdags",
		Banshee:      "banshee",
		Ascend:       "ascend",
		MLIR:         "mlir",
		Tutorial:     "tutorial",
	} {
		if got := b.String(); got != want {
			t.Errorf("backend %d: got %q, want %q", int(b), got, want)
		}
	}
}

func TestBackendComposition(t *testing.T) {
	for _, c := range []struct {
		b          Backend
		composed   bool
		underlying Backend
	}{
		{Reference, false, Reference},
		{Nonblocking, false, Nonblocking},
		{HyperDAGs, true, Reference},
		{Tutorial, true, Reference},
		{Ascend, true, ReferenceOMP},
	} {
		if got := c.b.Composed(); got != c.composed {
			t.Errorf("%s.Composed(): got %v, want %v", c.b, got, c.composed)
		}
		if got := c.b.Underlying(); got != c.underlying {
			t.Errorf("%s.Underlying(): got %s, want %s", c.b, got, c.underlying)
		}
	}
}

func TestBackendExecutes(t *testing.T) {
	executable := map[Backend]bool{
		Reference:    true,
		ReferenceOMP: true,
		Nonblocking:  true,
		HyperDAGs:    true,
		Tutorial:     true,
		Ascend:       true,
	}
	for b := Backend(0); b.Valid(); b++ {
		if got := b.Executes(); got != executable[b] {
			t.Errorf("%s.Executes(): got %v, want %v", b, got, executable[b])
		}
	}
}

// Every valid backend must resolve to a consistent property record: a
// backend is either blocking or nonblocking, never both, and composed
// backends inherit their underlying backend's allocation policy.
func TestPropertiesConsistent(t *testing.T) {
	if err := checkComposition(); err != nil {
		t.Fatalf("checkComposition: %v", err)
	}
	for b := Backend(0); b.Valid(); b++ {
		p := PropertiesOf(b)
		if p.Blocking == p.NonblockingExec {
			t.Errorf("%s: Blocking=%v NonblockingExec=%v", b, p.Blocking, p.NonblockingExec)
		}
		if b.Composed() {
			u := PropertiesOf(b.Underlying())
			if p.Alloc != u.Alloc {
				t.Errorf("%s: alloc %v differs from underlying %v", b, p.Alloc, u.Alloc)
			}
			if p.WritableCaptured != u.WritableCaptured {
				t.Errorf("%s: WritableCaptured differs from underlying", b)
			}
		}
	}
}

func TestPropertiesNonblocking(t *testing.T) {
	p := PropertiesOf(Nonblocking)
	if !p.NonblockingExec || p.Blocking {
		t.Errorf("nonblocking: got %+v", p)
	}
	if p.WritableCaptured {
		t.Error("nonblocking: captured scalars must not be writable")
	}
	if !PropertiesOf(Reference).WritableCaptured {
		t.Error("reference: captured scalars must be writable")
	}
}
