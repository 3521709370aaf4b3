// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fewshot defines neural-network architectures for few-shot classification
// research on GoMLX: a shared convolutional embedding encoder (this package), a
// classifier with a stateless "functional" forward pass for gradient-based meta-learning
// (package maml), matching-network embedding refinement (package matching) and
// binary-code architectures for semantic hashing (package semhash).
//
// All models are graph-building functions in the framework's style: they take a
// context.Context holding the variables and input nodes, and return output nodes.
// Training loops, data loading and optimizers live elsewhere.
package fewshot

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"

	"github.com/gomlx/fewshot/layers"
)

// EncoderChannels is the number of channels each encoder block outputs.
const EncoderChannels = 64

// EncoderBlocks is the number of convolution blocks in the embedding encoder.
const EncoderBlocks = 4

// Encoder embeds a batch of images with four 64-channel convolution blocks
// (each halving the spatial resolution) followed by flattening.
//
// images must be shaped [batchSize, height, width, channels]. The output is shaped
// [batchSize, features] where features depends on the input resolution: 28×28 inputs
// (Omniglot-like) yield 64 features per example -- each block takes 28 → 14 → 7 → 3 → 1.
//
// Block variables live under scopes "block_0" .. "block_3" in ctx's current scope.
func Encoder(ctx *context.Context, images *Node) *Node {
	x := images
	for block := range EncoderBlocks {
		x = layers.ConvBlock(ctx.Inf("block_%d", block), x).
			Channels(EncoderChannels).
			Done()
	}
	return layers.Flatten(x)
}
