// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package semhash defines the semantic-hashing architectures: a classifier whose
// intermediate representation is a binary code, and an autoencoder that factors its
// latent space into a binary code (semantic/class identity) and a continuous code
// (intra-class appearance variation).
//
// Binarization and its gradient estimation come from package binarize.
package semhash

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/fnn"

	"github.com/gomlx/fewshot/binarize"
	"github.com/gomlx/fewshot/layers"
)

// BlockChannels is the number of channels each convolution block outputs.
const BlockChannels = 64

// MaxConvBlocks is the largest supported convolutional stack depth.
const MaxConvBlocks = 4

// FlattenedWidth returns the width of the flattened feature vector after convBlocks
// encoder blocks on inputs of the given spatial resolution -- each block halves the
// resolution (floor) and outputs BlockChannels channels.
//
// For 28×28 inputs: 1 block → 12544, 2 → 3136, 3 → 576, 4 → 64.
func FlattenedWidth(convBlocks, height, width int) int {
	for range convBlocks {
		height /= 2
		width /= 2
	}
	return height * width * BlockChannels
}

// ClassifierConfig configures a semantic binary classifier.
type ClassifierConfig struct {
	// NumClasses is the number of output classes.
	NumClasses int

	// ConvBlocks is the depth of the convolutional stack, 1 to 4. Each block halves the
	// spatial resolution, which determines the flattened width feeding the dense layers
	// (see FlattenedWidth).
	ConvBlocks int

	// CodeBits is the width of the binary code.
	CodeBits int

	// HiddenSize, if > 0, inserts a dense+ReLU bottleneck between the flattened
	// features and the binarized projection.
	HiddenSize int

	// Slope scales the pre-binarization activation before the Hardsigmoid squash.
	// Defaults to 1.
	Slope float64

	// Stochastic selects Bernoulli sampling instead of rounding for the binarization.
	Stochastic bool

	// Estimator selects the gradient estimator through the binarization.
	Estimator binarize.Estimator
}

// Classifier is an image classifier whose features pass through a binary bottleneck:
// conv stack → (optional dense bottleneck) → binary code → linear head.
//
// The binary code is part of the model's contract, not an implementation detail:
// Forward returns it alongside the logits so auxiliary losses (e.g. code diversity
// regularization) can consume it.
type Classifier struct {
	config     ClassifierConfig
	activation *binarize.Activation
}

// NewClassifier validates config and creates the Classifier.
func NewClassifier(config ClassifierConfig) *Classifier {
	if config.NumClasses <= 0 {
		exceptions.Panicf("semhash: number of classes must be > 0, got %d", config.NumClasses)
	}
	if config.ConvBlocks < 1 || config.ConvBlocks > MaxConvBlocks {
		exceptions.Panicf("semhash: number of conv blocks must be in 1..%d, got %d",
			MaxConvBlocks, config.ConvBlocks)
	}
	if config.CodeBits <= 0 {
		exceptions.Panicf("semhash: code bits must be > 0, got %d", config.CodeBits)
	}
	if config.Slope == 0 {
		config.Slope = 1
	}
	return &Classifier{
		config:     config,
		activation: newActivation(config.Stochastic, config.Estimator),
	}
}

// Config returns the classifier's configuration.
func (c *Classifier) Config() ClassifierConfig { return c.config }

// Forward maps images, shaped [batchSize, height, width, channels], to class logits
// [batchSize, NumClasses] and the intermediate binary code [batchSize, CodeBits], with
// every code element exactly 0 or 1.
//
// Variables are created under scopes "conv1".."conv<ConvBlocks>", "hidden" (when
// HiddenSize is set), "code" and "logits" in ctx's current scope.
func (c *Classifier) Forward(ctx *context.Context, images *Node) (logits, code *Node) {
	x := images
	for block := 1; block <= c.config.ConvBlocks; block++ {
		x = layers.ConvBlock(ctx.Inf("conv%d", block), x).
			Channels(BlockChannels).
			Done()
	}
	x = layers.Flatten(x)
	if c.config.HiddenSize > 0 {
		x = activations.Relu(fnn.New(ctx.In("hidden"), x, c.config.HiddenSize).Done())
	}
	x = fnn.New(ctx.In("code"), x, c.config.CodeBits).Done()
	code, _ = c.activation.Apply(ctx, x, c.config.Slope)
	logits = fnn.New(ctx.In("logits"), code, c.config.NumClasses).Done()
	return logits, code
}

func newActivation(stochastic bool, estimator binarize.Estimator) *binarize.Activation {
	if stochastic {
		return binarize.Stochastic(estimator)
	}
	return binarize.Deterministic(estimator)
}
