// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package alp

import "strings"

// A Descriptor is a bitset of orthogonal per-call flags. Descriptors
// combine by bitwise OR; the zero value requests no modification. Each
// primitive documents the flags it honors; unrecognized bits are
// accepted and act as no-ops, so unknown descriptors never cause
// Unsupported.
type Descriptor uint32

const (
	// InvertMask interprets the mask as its complement.
	InvertMask Descriptor = 1 << iota
	// TransposeMatrix operates on the transpose of the matrix operand.
	TransposeMatrix
	// NoDuplicates asserts that a build input contains no duplicate
	// coordinates.
	NoDuplicates
	// Structural uses only the structure of the mask, ignoring its
	// values. Meaningful only when a mask is supplied.
	Structural
	// Dense asserts that all vector operands are dense.
	Dense
	// AddIdentity adds the identity to otherwise-untouched output
	// elements.
	AddIdentity
	// UseIndex substitutes each element's index for its value.
	UseIndex
	// ExplicitZero keeps explicit zeroes in sparse outputs rather than
	// dropping them.
	ExplicitZero
	// NoCasting rejects operand type combinations that would require a
	// cast.
	NoCasting

	// NoOperation is the empty descriptor.
	NoOperation Descriptor = 0
)

var descriptorNames = []struct {
	flag Descriptor
	name string
}{
	{InvertMask, "invert_mask"},
	{TransposeMatrix, "transpose_matrix"},
	{NoDuplicates, "no_duplicates"},
	{Structural, "structural"},
	{Dense, "dense"},
	{AddIdentity, "add_identity"},
	{UseIndex, "use_index"},
	{ExplicitZero, "explicit_zero"},
	{NoCasting, "no_casting"},
}

// Has reports whether every flag in flags is set in d.
func (d Descriptor) Has(flags Descriptor) bool {
	return d&flags == flags
}

// String returns the canonical textual form of the descriptor: each set
// flag on its own line, in declaration order. It is used only for
// diagnostics.
func (d Descriptor) String() string {
	if d == NoOperation {
		return "no_operation"
	}
	var lines []string
	for _, e := range descriptorNames {
		if d.Has(e.flag) {
			lines = append(lines, e.name)
		}
	}
	if len(lines) == 0 {
		// Only reserved bits are set.
		return "no_operation"
	}
	return strings.Join(lines, "\n")
}
