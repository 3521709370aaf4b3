// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package binarize provides differentiable binarization: transforms that map a continuous
// activation to a strictly {0, 1}-valued code while still letting gradients flow through
// the non-differentiable step.
//
// The forward operation (rounding or Bernoulli sampling) has zero gradient almost everywhere,
// so training requires a gradient estimator. Two are supported:
//
//   - StraightThrough: the incoming gradient is passed through the binarization unchanged,
//     as if the forward pass had been the identity. See "Estimating or Propagating Gradients
//     Through Stochastic Neurons for Conditional Computation",
//     https://arxiv.org/abs/1308.3432 (Bengio, Léonard, Courville, 2013).
//   - Reinforce: the binary draw is treated as a sample from a distribution whose parameters
//     receive a policy-gradient surrogate. The surrogate loss lives outside this package;
//     here the sample simply carries no gradient, and Activation.Apply returns the
//     pre-sampling probabilities for the external surrogate to use.
package binarize

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Hardsigmoid squashes x to [0, 1] with the piecewise-linear transform (clip(x, -1, 1)+1)/2.
//
// It is used in place of a saturating sigmoid: the gradient is constant (1/2) in the linear
// region around the decision boundary, which keeps binarization training stable.
func Hardsigmoid(x *Node) *Node {
	return MulScalar(AddScalar(ClipScalar(x, -1, 1), 1), 0.5)
}

// Override returns a node whose value is forward(x) but whose gradient is defined by
// backward: during reverse autodiff the incoming cotangent v is replaced by backward(x, v).
//
// The two functions are registered together as a single gradient-override boundary, so the
// autodiff machinery never differentiates through forward itself -- forward may be
// non-differentiable (rounding, sampling) or have a useless gradient (zero a.e.).
func Override(x *Node, forward func(x *Node) *Node, backward func(x, v *Node) *Node) *Node {
	// StopGradient(forward(x)-x) + x evaluates to forward(x), while routing the whole
	// incoming cotangent to the custom-gradient identity on x.
	delta := StopGradient(Sub(forward(x), x))
	return Add(delta, IdentityWithCustomGradient(x, backward))
}

// identityGradient is the straight-through backward transform: the cotangent is passed
// through unchanged.
func identityGradient(_, v *Node) *Node { return v }

// RoundST rounds x to the nearest of {0, 1} with a straight-through gradient: the forward
// pass is an exact Round, the backward pass is the identity.
//
// x is expected to hold probabilities in [0, 1] (e.g. the output of Hardsigmoid).
func RoundST(x *Node) *Node {
	return Override(x, Round, identityGradient)
}

// BernoulliST draws a {0, 1} sample per element, with probability of 1 given by probs, with
// a straight-through gradient: the backward pass treats the sampling step as the identity.
//
// The random state is kept by ctx (see context.Context.RandomBernoulli), so repeated graph
// executions draw fresh samples.
func BernoulliST(ctx *context.Context, probs *Node) *Node {
	sample := func(p *Node) *Node {
		return ctx.RandomBernoulli(p, p.Shape())
	}
	return Override(probs, sample, identityGradient)
}
