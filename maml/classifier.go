// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package maml defines the few-shot convolutional classifier used by gradient-based
// meta-learning algorithms (MAML and relatives).
//
// The classifier has two evaluation modes: the standard Forward, reading parameters
// from context variables, and FunctionalForward, evaluating the same architecture under
// an explicit weight map. The functional mode is what the meta-learning inner loop
// needs: it can evaluate the model under a hypothetical parameter snapshot -- e.g. the
// result of AdaptWeights -- and differentiate through the simulated update.
package maml

import (
	"maps"
	"slices"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/fnn"
	"github.com/gomlx/gomlx/pkg/ml/nn"

	"github.com/gomlx/fewshot/layers"
)

// BlockChannels is the number of channels each convolution block outputs.
const BlockChannels = 64

// NumBlocks is the number of convolution blocks in the classifier.
const NumBlocks = 4

// Classifier is a few-shot image classifier: four 64-channel convolution blocks
// followed by a linear head.
type Classifier struct {
	numClasses int
}

// New creates a Classifier with the given number of output classes (the "k" in k-way
// classification).
func New(numClasses int) *Classifier {
	if numClasses <= 0 {
		exceptions.Panicf("maml: number of classes must be > 0, got %d", numClasses)
	}
	return &Classifier{numClasses: numClasses}
}

// NumClasses returns the number of output classes.
func (c *Classifier) NumClasses() int { return c.numClasses }

// Forward maps images, shaped [batchSize, height, width, channels], to class logits,
// shaped [batchSize, numClasses].
//
// Variables are created under scopes "conv1" .. "conv4" and "logits" in ctx's current
// scope.
func (c *Classifier) Forward(ctx *context.Context, images *Node) *Node {
	blocks := c.BlockActivations(ctx, images)
	x := layers.Flatten(blocks[NumBlocks-1])
	return fnn.New(ctx.In("logits"), x, c.numClasses).Done()
}

// BlockActivations returns the outputs of the four convolution blocks, for diagnostics
// and visualization. It uses (or creates) the same variables as Forward.
func (c *Classifier) BlockActivations(ctx *context.Context, images *Node) []*Node {
	outputs := make([]*Node, 0, NumBlocks)
	x := images
	for block := 1; block <= NumBlocks; block++ {
		x = layers.ConvBlock(ctx.Inf("conv%d", block), x).
			Channels(BlockChannels).
			Done()
		outputs = append(outputs, x)
	}
	return outputs
}

// Functional weight-map keys, per convolution block i in 1..4:
//
//	conv<i>/weights  convolution kernel [3, 3, inChannels, 64]  (required)
//	conv<i>/biases   convolution bias [64]                      (required)
//	conv<i>/scale    batch normalization scale [64]             (optional)
//	conv<i>/offset   batch normalization offset [64]            (optional)
//
// plus the head:
//
//	logits/weights   [features, numClasses]  (required)
//	logits/biases    [numClasses]            (required)
const (
	weightsSuffix = "/weights"
	biasesSuffix  = "/biases"
	scaleSuffix   = "/scale"
	offsetSuffix  = "/offset"
	logitsPrefix  = "logits"
)

// FunctionalForward evaluates the classifier under the supplied weight map instead of
// context variables. See the package documentation for why, and ContextWeights for the
// expected keys. Missing required keys panic with the key name; optional batch
// normalization scale/offset keys may be absent (identity scale/shift).
//
// Batch normalization uses current-batch statistics regardless of training mode.
func (c *Classifier) FunctionalForward(images *Node, weights map[string]*Node) *Node {
	x := images
	for block := 1; block <= NumBlocks; block++ {
		prefix := blockPrefix(block)
		x = layers.FunctionalConvBlock(x,
			requireWeight(weights, prefix+weightsSuffix),
			requireWeight(weights, prefix+biasesSuffix),
			weights[prefix+scaleSuffix],
			weights[prefix+offsetSuffix])
	}
	x = layers.Flatten(x)
	return nn.Dense(x,
		requireWeight(weights, logitsPrefix+weightsSuffix),
		requireWeight(weights, logitsPrefix+biasesSuffix))
}

// ContextWeights repackages the classifier's own variables, as created by Forward under
// ctx's current scope, into the weight map FunctionalForward expects. Evaluating
// FunctionalForward on this map is numerically identical to Forward.
//
// It panics if the variables don't exist yet -- Forward must have been called (in this
// or an earlier graph build) with the same ctx.
func (c *Classifier) ContextWeights(ctx *context.Context, g *Graph) map[string]*Node {
	weights := make(map[string]*Node)
	for block := 1; block <= NumBlocks; block++ {
		prefix := blockPrefix(block)
		blockCtx := ctx.Inf("conv%d", block)
		weights[prefix+weightsSuffix] = variableValue(blockCtx.In("conv"), "weights", g)
		weights[prefix+biasesSuffix] = variableValue(blockCtx.In("conv"), "biases", g)
		weights[prefix+scaleSuffix] = variableValue(blockCtx.In("batch_normalization"), "scale", g)
		weights[prefix+offsetSuffix] = variableValue(blockCtx.In("batch_normalization"), "offset", g)
	}
	headCtx := ctx.In("logits").In("fnn_output_layer")
	weights[logitsPrefix+weightsSuffix] = variableValue(headCtx, "weights", g)
	weights[logitsPrefix+biasesSuffix] = variableValue(headCtx, "biases", g)
	return weights
}

// AdaptWeights performs one in-graph SGD step on the weight map: w' = w - lr·∂loss/∂w
// for every entry. The update is itself differentiable, which is what lets an outer
// (meta) optimizer differentiate through the inner-loop step.
//
// loss must be a scalar node built from a FunctionalForward evaluation of weights.
// This is not a training loop: there is no optimizer state, just one step.
func (c *Classifier) AdaptWeights(weights map[string]*Node, loss *Node, learningRate float64) map[string]*Node {
	if !loss.Shape().IsScalar() {
		exceptions.Panicf("maml: AdaptWeights requires a scalar loss, got %s", loss.Shape())
	}
	keys := slices.Sorted(maps.Keys(weights))
	values := make([]*Node, len(keys))
	for ii, key := range keys {
		values[ii] = weights[key]
	}
	grads := Gradient(loss, values...)
	adapted := make(map[string]*Node, len(keys))
	for ii, key := range keys {
		adapted[key] = Sub(values[ii], MulScalar(grads[ii], learningRate))
	}
	return adapted
}

func blockPrefix(block int) string {
	return "conv" + string(rune('0'+block))
}

func requireWeight(weights map[string]*Node, key string) *Node {
	w, found := weights[key]
	if !found || w == nil {
		exceptions.Panicf("maml: functional forward pass is missing required weight %q", key)
	}
	return w
}

func variableValue(ctx *context.Context, name string, g *Graph) *Node {
	v := ctx.GetVariable(name)
	if v == nil {
		exceptions.Panicf("maml: variable %q not found in scope %q -- build the standard forward pass first",
			name, ctx.Scope())
	}
	return v.ValueGraph(g)
}
