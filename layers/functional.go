// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// BatchNormEpsilon is added to the batch variance before taking its square root, the
// same default the framework's batch normalization layer uses.
const BatchNormEpsilon = 1e-3

// FunctionalConvBlock applies the ConvBlock transform under externally supplied weights
// instead of context variables: same-padded convolution, batch normalization, ReLU and
// 2×2 max pooling with stride 2.
//
// It exists for gradient-based meta-learning inner loops: because the parameters are
// plain graph nodes, one can evaluate the block under a hypothetical parameter snapshot
// (e.g. after a simulated gradient step) and differentiate through it.
//
// Arguments:
//   - x: input images, shaped [batchSize, height, width, inputChannels].
//   - weights: convolution kernel, shaped [kernelHeight, kernelWidth, inputChannels, outputChannels].
//   - biases: convolution bias, shaped [outputChannels].
//   - bnScale, bnOffset: batch normalization scale and offset, shaped [outputChannels].
//     Either may be nil, in which case that part of the affine transform is the identity.
//
// Batch normalization always uses current-batch statistics, never running averages,
// matching what a meta-learning inner loop needs regardless of the caller's train/eval
// mode.
func FunctionalConvBlock(x, weights, biases, bnScale, bnOffset *Node) *Node {
	if x.Rank() != 4 {
		exceptions.Panicf("layers.FunctionalConvBlock requires x shaped [batch, height, width, channels], got %s",
			x.Shape())
	}
	if weights.Rank() != 4 {
		exceptions.Panicf(
			"layers.FunctionalConvBlock requires weights shaped [kernelH, kernelW, inputChannels, outputChannels], got %s",
			weights.Shape())
	}
	outputChannels := weights.Shape().Dim(-1)
	output := Convolve(x, weights).PadSame().Done()
	output = Add(output, Reshape(biases, 1, 1, 1, outputChannels))

	// Batch normalization from the current batch only.
	mean := ReduceAndKeep(output, ReduceMean, 0, 1, 2)
	variance := ReduceAndKeep(Square(Sub(output, mean)), ReduceMean, 0, 1, 2)
	output = Div(Sub(output, mean), Sqrt(AddScalar(variance, BatchNormEpsilon)))
	if bnScale != nil {
		output = Mul(output, Reshape(bnScale, 1, 1, 1, outputChannels))
	}
	if bnOffset != nil {
		output = Add(output, Reshape(bnOffset, 1, 1, 1, outputChannels))
	}

	output = activations.Relu(output)
	return MaxPool(output).Window(2).Strides(2).NoPadding().Done()
}
