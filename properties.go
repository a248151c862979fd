// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import "fmt"

// AllocMode describes the default allocation policy of a backend.
type AllocMode int

const (
	// AllocAligned allocates container storage with POSIX alignment.
	AllocAligned AllocMode = iota
	// AllocInterleaved interleaves container storage across NUMA
	// domains when the platform exposes them.
	AllocInterleaved
	// AllocPinned pins container storage to the NUMA domain of the
	// allocating thread.
	AllocPinned
)

var allocNames = [...]string{
	AllocAligned:     "aligned",
	AllocInterleaved: "interleaved",
	AllocPinned:      "pinned",
}

func (m AllocMode) String() string { return allocNames[m] }

// Properties is the capability record of a backend. It is purely a
// compile-time table: no entry ever changes after process start.
type Properties struct {
	// WritableCaptured reports whether a scalar captured by reference
	// in a user closure may be written concurrently by the backend. It
	// is false for backends that run primitive bodies on worker
	// threads.
	WritableCaptured bool

	// Blocking reports whether a primitive returning Success guarantees
	// its effects are observable immediately.
	Blocking bool

	// NonblockingExec is the complement of Blocking for the single
	// backend whose primitives defer execution.
	NonblockingExec bool

	// Alloc is the backend's default allocation mode.
	Alloc AllocMode

	// Coordinates names the backend whose coordinate (sparsity
	// bookkeeping) layout this backend uses.
	Coordinates Backend
}

// properties is the capability table over all backend identities.
// Composed backends are handled by PropertiesOf and are absent here.
var properties = map[Backend]Properties{
	Reference: {
		WritableCaptured: true,
		Blocking:         true,
		Alloc:            AllocAligned,
		Coordinates:      Reference,
	},
	ReferenceOMP: {
		WritableCaptured: false,
		Blocking:         true,
		Alloc:            AllocInterleaved,
		Coordinates:      ReferenceOMP,
	},
	Nonblocking: {
		WritableCaptured: false,
		NonblockingExec:  true,
		Alloc:            AllocInterleaved,
		Coordinates:      Reference,
	},
	BSP1D: {
		WritableCaptured: true,
		Blocking:         true,
		Alloc:            AllocAligned,
		Coordinates:      Reference,
	},
	Hybrid: {
		WritableCaptured: false,
		Blocking:         true,
		Alloc:            AllocInterleaved,
		Coordinates:      ReferenceOMP,
	},
	Banshee: {
		WritableCaptured: true,
		Blocking:         true,
		Alloc:            AllocAligned,
		Coordinates:      Banshee,
	},
	MLIR: {
		WritableCaptured: true,
		Blocking:         true,
		Alloc:            AllocAligned,
		Coordinates:      MLIR,
	},
}

// PropertiesOf returns the capability record of backend b. Composed
// backends inherit the record of their underlying backend; this is the
// composition contract of the dispatch layer and is enforced by
// checkComposition.
func PropertiesOf(b Backend) Properties {
	if b.Composed() {
		return PropertiesOf(b.Underlying())
	}
	p, ok := properties[b]
	if !ok {
		panic(fmt.Sprintf("alp: no properties for backend %s", b))
	}
	return p
}

// checkComposition verifies the static contracts of the properties
// table: composed backends must not diverge from their underlying
// backend in WritableCaptured, blocking behavior, or allocation mode,
// and exactly one backend may be the nonblocking one.
func checkComposition() error {
	nonblocking := 0
	for b := Backend(0); b < maxBackend; b++ {
		p := PropertiesOf(b)
		if p.Blocking == p.NonblockingExec {
			return fmt.Errorf("backend %s: blocking and nonblocking flags must be complementary", b)
		}
		if p.NonblockingExec && !b.Composed() {
			nonblocking++
		}
		if !b.Composed() {
			continue
		}
		u := PropertiesOf(b.Underlying())
		if p.WritableCaptured != u.WritableCaptured || p.Blocking != u.Blocking || p.Alloc != u.Alloc {
			return fmt.Errorf("backend %s: capability mismatch with underlying %s", b, b.Underlying())
		}
	}
	if nonblocking != 1 {
		return fmt.Errorf("expected exactly one nonblocking backend, found %d", nonblocking)
	}
	return nil
}
