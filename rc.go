// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import "github.com/grailbio/base/errors"

// RC is the return code shared by every primitive. A primitive returns
// exactly one RC; no panic escapes across the user boundary.
type RC int

const (
	// Success indicates the operation completed (or, for the
	// nonblocking backend, was accepted) without error.
	Success RC = iota
	// Mismatch indicates a shape or size disagreement between operands.
	Mismatch
	// Unsupported indicates the backend does not implement the
	// requested combination of operands and descriptors.
	Unsupported
	// Illegal indicates an input violates a documented precondition,
	// such as duplicate coordinates passed to BuildUnique.
	Illegal
	// OutOfMem indicates an allocation failure.
	OutOfMem
	// Failed indicates an operation-specific failure, including
	// numerical failure or an error propagated from a prior primitive.
	Failed
	// Panic indicates an invariant violation. The runtime is poisoned
	// and must be re-initialized.
	Panic

	maxRC
)

var rcNames = [...]string{
	Success:     "SUCCESS",
	Mismatch:    "MISMATCH",
	Unsupported: "UNSUPPORTED",
	Illegal:     "ILLEGAL",
	OutOfMem:    "OUTOFMEM",
	Failed:      "FAILED",
	Panic:       "PANIC",
}

// String returns the code's canonical upper-case name.
func (rc RC) String() string {
	if rc < 0 || rc >= maxRC {
		return "INVALID"
	}
	return rcNames[rc]
}

// severity orders codes for diagnostic aggregation: Panic dominates
// Failed, Failed dominates the recoverable errors, and every error
// dominates Success. Recoverable errors rank by enumeration order.
func (rc RC) severity() int {
	switch rc {
	case Panic:
		return 3 * int(maxRC)
	case Failed:
		return 2 * int(maxRC)
	case Success:
		return 0
	}
	return int(rc)
}

// Merge returns the more severe of rc and other. Merge is the
// associative, commutative fold used to aggregate codes across
// primitives and, in distributed runs, across processes.
func (rc RC) Merge(other RC) RC {
	if other.severity() > rc.severity() {
		return other
	}
	return rc
}

// Err converts rc to a Go error at launcher and process boundaries.
// Success converts to nil; Panic converts to a fatal error.
func (rc RC) Err() error {
	switch rc {
	case Success:
		return nil
	case Panic:
		return errors.E(errors.Fatal, "alp: "+rc.String())
	}
	return errors.New("alp: " + rc.String())
}
