// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package binarize

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Sampler is the capability the Reinforce estimator needs from its policy-gradient
// collaborator: draw a {0, 1}-valued tensor given per-element probabilities.
//
// The sample itself carries no gradient (Activation.Apply wraps it in a StopGradient);
// the collaborator is expected to build a policy-gradient surrogate loss from the
// probabilities returned by Activation.Apply.
type Sampler interface {
	Sample(ctx *context.Context, probs *Node) *Node
}

// RoundSampler is the deterministic Sampler: it rounds the probabilities to the nearest
// of {0, 1}. It is the default for Deterministic activations under the Reinforce estimator,
// mimicking a degenerate distribution that always picks the mode.
type RoundSampler struct{}

// Sample implements Sampler.
func (RoundSampler) Sample(_ *context.Context, probs *Node) *Node {
	return Round(probs)
}

// BernoulliSampler draws an independent Bernoulli sample per element, using the
// context's random state. It is the default for Stochastic activations under the
// Reinforce estimator.
type BernoulliSampler struct{}

// Sample implements Sampler.
func (BernoulliSampler) Sample(ctx *context.Context, probs *Node) *Node {
	return ctx.RandomBernoulli(probs, probs.Shape())
}

// Activation is a binarization activation module: it squashes its input to a probability
// with Hardsigmoid and then binarizes it, either deterministically (rounding) or
// stochastically (Bernoulli sampling), with the gradient-estimator policy chosen at
// construction.
//
// Create it with Deterministic or Stochastic.
type Activation struct {
	stochastic bool
	estimator  Estimator
	sampler    Sampler
}

// Deterministic returns an Activation that binarizes by rounding to the nearest of {0, 1}.
func Deterministic(estimator Estimator) *Activation {
	return &Activation{stochastic: false, estimator: estimator, sampler: RoundSampler{}}
}

// Stochastic returns an Activation that binarizes by sampling a Bernoulli draw with the
// squashed input as probability of 1.
func Stochastic(estimator Estimator) *Activation {
	return &Activation{stochastic: true, estimator: estimator, sampler: BernoulliSampler{}}
}

// WithSampler replaces the sampler used by the Reinforce estimator path. It has no effect
// on the StraightThrough path. It returns the Activation to allow chaining.
func (a *Activation) WithSampler(sampler Sampler) *Activation {
	a.sampler = sampler
	return a
}

// Estimator returns the gradient-estimator policy this Activation was built with.
func (a *Activation) Estimator() Estimator { return a.estimator }

// Stochastic returns whether this Activation samples (as opposed to rounds).
func (a *Activation) Stochastic() bool { return a.stochastic }

// Apply binarizes x. slope scales x before the Hardsigmoid squash -- larger slopes push the
// probabilities towards saturation, slope 1 is the common choice.
//
// It returns the binary code, with every element exactly 0 or 1, and the pre-binarization
// probabilities probs = Hardsigmoid(slope·x). The probabilities are what a Reinforce
// surrogate loss should be built from; under StraightThrough they can be ignored.
//
// ctx is used for the random state of stochastic draws.
func (a *Activation) Apply(ctx *context.Context, x *Node, slope float64) (code, probs *Node) {
	probs = Hardsigmoid(MulScalar(x, slope))
	switch a.estimator {
	case Reinforce:
		// The gradient is supplied externally as a policy-gradient surrogate on probs.
		code = StopGradient(a.sampler.Sample(ctx, probs))
	default: // StraightThrough
		if a.stochastic {
			code = BernoulliST(ctx, probs)
		} else {
			code = RoundST(probs)
		}
	}
	return code, probs
}
