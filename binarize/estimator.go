// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package binarize

import (
	"strings"

	"github.com/gomlx/exceptions"
)

// Estimator selects how gradients are estimated through the binarization step.
// It is chosen at construction time (see Deterministic and Stochastic), not per call.
type Estimator int

const (
	// StraightThrough passes the incoming gradient unchanged through the
	// non-differentiable forward operation.
	StraightThrough Estimator = iota

	// Reinforce treats the binary output as a sample from a distribution whose
	// parameters receive a policy-gradient surrogate, supplied externally.
	Reinforce
)

// String implements fmt.Stringer.
func (e Estimator) String() string {
	switch e {
	case StraightThrough:
		return "straight_through"
	case Reinforce:
		return "reinforce"
	}
	return "invalid_estimator"
}

// EstimatorFromName converts a name ("straight_through" or "reinforce") to an Estimator.
// It panics on unknown names.
func EstimatorFromName(name string) Estimator {
	switch strings.ToLower(name) {
	case "straight_through", "st":
		return StraightThrough
	case "reinforce":
		return Reinforce
	}
	exceptions.Panicf("binarize: unknown estimator name %q, valid values are %q and %q",
		name, StraightThrough, Reinforce)
	return StraightThrough
}
