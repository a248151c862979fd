// Copyright 2025 Algebraic Programming. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package ops provides the algebraic substrate of the runtime:
// operators, monoids, and semirings. The substrate is purely type-level
// composition and carries no runtime state. Every instance is a
// zero-size token, so primitives can take them as type parameters and
// the compiler inlines operator application inside inner loops without
// indirect calls.
package ops

// Real is the constraint satisfied by the built-in arithmetic element
// types.
type Real interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// A BinaryOp is a pure binary function typed per lane: it maps a left
// operand of type D1 and a right operand of type D2 to a result of type
// DOut. Operators are stateless and copy-free.
type BinaryOp[D1, D2, DOut any] interface {
	Apply(x D1, y D2) DOut
}

// Associative is implemented by operators whose application order over
// a sequence does not change the result. Collectives and reductions
// require their operator to be associative.
type Associative interface {
	Associative()
}

// Commutative is implemented by operators for which Apply(x, y) equals
// Apply(y, x).
type Commutative interface {
	Commutative()
}

// A Monoid is an associative operator together with a two-sided
// identity: Apply(x, Identity()) == Apply(Identity(), x) == x for all x.
type Monoid[T any] interface {
	BinaryOp[T, T, T]
	Identity() T
}

// A Semiring pairs a commutative additive monoid with a multiplicative
// operator. AddIdentity is the additive identity ("zero") and
// MulIdentity the multiplicative one ("one"). Annihilating is a
// user-asserted property: it reports whether multiplying by the
// additive identity always yields the additive identity, which lets
// sparse primitives skip structurally absent operands.
type Semiring[D1, D2, DOut any] interface {
	AddOp(x, y DOut) DOut
	MulOp(x D1, y D2) DOut
	AddIdentity() DOut
	MulIdentity() DOut
	Annihilating() bool
}

// Add is numeric addition.
type Add[T Real] struct{}

func (Add[T]) Apply(x, y T) T { return x + y }
func (Add[T]) Associative()   {}
func (Add[T]) Commutative()   {}
func (Add[T]) Identity() T    { var zero T; return zero }

// Mul is numeric multiplication.
type Mul[T Real] struct{}

func (Mul[T]) Apply(x, y T) T { return x * y }
func (Mul[T]) Associative()   {}
func (Mul[T]) Commutative()   {}
func (Mul[T]) Identity() T    { return T(1) }

// Min is the numeric minimum.
type Min[T Real] struct{}

func (Min[T]) Apply(x, y T) T {
	if y < x {
		return y
	}
	return x
}
func (Min[T]) Associative() {}
func (Min[T]) Commutative() {}

// Max is the numeric maximum. Over unsigned lanes Max forms a monoid
// with identity zero; see MaxMonoid.
type Max[T Real] struct{}

func (Max[T]) Apply(x, y T) T {
	if y > x {
		return y
	}
	return x
}
func (Max[T]) Associative() {}
func (Max[T]) Commutative() {}

// Unsigned constrains element types for which zero is the Max identity.
type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// MaxMonoid is the Max operator as a monoid over unsigned lanes.
type MaxMonoid[T Unsigned] struct{}

func (MaxMonoid[T]) Apply(x, y T) T {
	if y > x {
		return y
	}
	return x
}
func (MaxMonoid[T]) Associative() {}
func (MaxMonoid[T]) Commutative() {}
func (MaxMonoid[T]) Identity() T  { var zero T; return zero }

// Left returns its left operand; Right returns its right operand. Both
// are associative. They serve as the multiplicative operator of
// selection semirings such as MaxRight.
type Left[T any] struct{}

func (Left[T]) Apply(x, y T) T { return x }
func (Left[T]) Associative()   {}

type Right[T any] struct{}

func (Right[T]) Apply(x, y T) T { return y }
func (Right[T]) Associative()   {}

// LogicalAnd is boolean conjunction with identity true.
type LogicalAnd struct{}

func (LogicalAnd) Apply(x, y bool) bool { return x && y }
func (LogicalAnd) Associative()         {}
func (LogicalAnd) Commutative()         {}
func (LogicalAnd) Identity() bool       { return true }

// LogicalOr is boolean disjunction with identity false.
type LogicalOr struct{}

func (LogicalOr) Apply(x, y bool) bool { return x || y }
func (LogicalOr) Associative()         {}
func (LogicalOr) Commutative()         {}
func (LogicalOr) Identity() bool       { return false }

// Not negates the result of a boolean operator. Not composes: for
// example Not[LogicalAnd] is the operator that negates the boolean
// conjunction. Not is zero-size whenever Op is.
type Not[Op BinaryOp[bool, bool, bool]] struct{}

func (Not[Op]) Apply(x, y bool) bool {
	var op Op
	return !op.Apply(x, y)
}

// AnyOr is the short-circuit disjunction over any comparable lane: it
// returns its left operand when that operand is nonzero, and its right
// operand otherwise. It is the operator used to reduce return codes
// across processes.
type AnyOr[T comparable] struct{}

func (AnyOr[T]) Apply(x, y T) T {
	var zero T
	if x != zero {
		return x
	}
	return y
}
func (AnyOr[T]) Associative() {}
func (AnyOr[T]) Identity() T  { var zero T; return zero }

// PlusTimes is the conventional arithmetic semiring (+, *) with
// identities 0 and 1. It is annihilating: x*0 == 0.
type PlusTimes[T Real] struct{}

func (PlusTimes[T]) AddOp(x, y T) T     { return x + y }
func (PlusTimes[T]) MulOp(x, y T) T     { return x * y }
func (PlusTimes[T]) AddIdentity() T     { var zero T; return zero }
func (PlusTimes[T]) MulIdentity() T     { return T(1) }
func (PlusTimes[T]) Annihilating() bool { return true }

// MaxRight is the selection semiring (max, right) over unsigned lanes:
// addition takes the maximum, multiplication selects the right operand.
// It drives max-ID label propagation.
type MaxRight[T Unsigned] struct{}

func (MaxRight[T]) AddOp(x, y T) T {
	if y > x {
		return y
	}
	return x
}
func (MaxRight[T]) MulOp(x, y T) T     { return y }
func (MaxRight[T]) AddIdentity() T     { var zero T; return zero }
func (MaxRight[T]) MulIdentity() T     { var zero T; return zero }
func (MaxRight[T]) Annihilating() bool { return false }

// OrAnd is the boolean semiring (or, and).
type OrAnd struct{}

func (OrAnd) AddOp(x, y bool) bool { return x || y }
func (OrAnd) MulOp(x, y bool) bool { return x && y }
func (OrAnd) AddIdentity() bool    { return false }
func (OrAnd) MulIdentity() bool    { return true }
func (OrAnd) Annihilating() bool   { return true }
