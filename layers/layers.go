// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layers provides the building blocks shared by the few-shot architectures:
// the standard convolutional encoder block, its transposed (decoder) counterpart, a
// "functional" block variant evaluated under externally supplied weights, and small
// reshaping helpers.
//
// All blocks take images in the channels-last layout [batchSize, height, width, channels],
// GoMLX's default, and follow the input's dtype.
package layers

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"

	mllayers "github.com/gomlx/gomlx/pkg/ml/layers"
)

// ConvBlockBuilder configures one encoder convolution block. Create it with ConvBlock,
// set Channels (required), and call Done.
type ConvBlockBuilder struct {
	ctx        *context.Context
	x          *Node
	channels   int
	kernelSize int
}

// ConvBlock prepares the standard encoder block applied to x, shaped
// [batchSize, height, width, channels]: a same-padded convolution, batch normalization
// over the channels axis, ReLU and a 2×2 max pooling with stride 2.
//
// Each application halves the spatial resolution (floor on odd sizes: 7 → 3).
// The convolution variables live under scope "conv" and the normalization variables
// under "batch_normalization", both inside ctx's current scope.
//
// Batch normalization uses current-batch statistics while ctx.IsTraining(g) and the
// collected moving averages otherwise.
func ConvBlock(ctx *context.Context, x *Node) *ConvBlockBuilder {
	return &ConvBlockBuilder{ctx: ctx, x: x, kernelSize: 3}
}

// Channels sets the number of output channels. Required.
func (b *ConvBlockBuilder) Channels(channels int) *ConvBlockBuilder {
	b.channels = channels
	return b
}

// KernelSize sets the convolution kernel size. It defaults to 3.
func (b *ConvBlockBuilder) KernelSize(size int) *ConvBlockBuilder {
	b.kernelSize = size
	return b
}

// Done builds the block and returns its output, shaped
// [batchSize, ⌊height/2⌋, ⌊width/2⌋, Channels].
func (b *ConvBlockBuilder) Done() *Node {
	if b.channels <= 0 {
		exceptions.Panicf("layers.ConvBlock requires Channels to be set, got %d", b.channels)
	}
	x := mllayers.Convolution(b.ctx, b.x).
		Channels(b.channels).
		KernelSize(b.kernelSize).
		PadSame().
		Done()
	x = batchnorm.New(b.ctx, x, -1).Done()
	x = activations.Relu(x)
	return MaxPool(x).Window(2).Strides(2).NoPadding().Done()
}

// DeconvBlockBuilder configures one decoder block. Create it with DeconvBlock, set
// Channels (required), and call Done.
type DeconvBlockBuilder struct {
	ctx        *context.Context
	x          *Node
	channels   int
	kernelSize int
	strides    int
}

// DeconvBlock prepares the decoder counterpart of ConvBlock applied to x: a same-padded
// transposed convolution, batch normalization over the channels axis and ReLU.
// There is no pooling; upsampling comes from the transposed convolution's stride.
//
// With the default stride 1 the spatial resolution is preserved; with Strides(2) it is
// exactly doubled (output padding is set to stride-1, see ConvTranspose).
func DeconvBlock(ctx *context.Context, x *Node) *DeconvBlockBuilder {
	return &DeconvBlockBuilder{ctx: ctx, x: x, kernelSize: 3, strides: 1}
}

// Channels sets the number of output channels. Required.
func (b *DeconvBlockBuilder) Channels(channels int) *DeconvBlockBuilder {
	b.channels = channels
	return b
}

// KernelSize sets the transposed convolution kernel size. It defaults to 3.
func (b *DeconvBlockBuilder) KernelSize(size int) *DeconvBlockBuilder {
	b.kernelSize = size
	return b
}

// Strides sets the transposed convolution stride, i.e. the upsampling factor.
// It defaults to 1.
func (b *DeconvBlockBuilder) Strides(strides int) *DeconvBlockBuilder {
	b.strides = strides
	return b
}

// Done builds the block and returns its output.
func (b *DeconvBlockBuilder) Done() *Node {
	if b.channels <= 0 {
		exceptions.Panicf("layers.DeconvBlock requires Channels to be set, got %d", b.channels)
	}
	x := ConvTranspose(b.ctx, b.x).
		Channels(b.channels).
		KernelSize(b.kernelSize).
		Strides(b.strides).
		PadSame().
		OutputPadding(b.strides - 1).
		Done()
	x = batchnorm.New(b.ctx, x, -1).Done()
	return activations.Relu(x)
}

// Flatten reshapes x to [batchSize, everythingElse].
func Flatten(x *Node) *Node {
	batchSize := x.Shape().Dim(0)
	return Reshape(x, batchSize, x.Shape().Size()/batchSize)
}

// GlobalAvgPool2D takes the mean over both spatial axes of x, shaped
// [batchSize, height, width, channels], returning [batchSize, channels].
func GlobalAvgPool2D(x *Node) *Node {
	if x.Rank() != 4 {
		exceptions.Panicf("layers.GlobalAvgPool2D requires x shaped [batch, height, width, channels], got %s",
			x.Shape())
	}
	return ReduceMean(x, 1, 2)
}

// GlobalMaxPool1D takes the max over the middle (sequence) axis of x, shaped
// [batchSize, length, channels], returning [batchSize, channels].
func GlobalMaxPool1D(x *Node) *Node {
	if x.Rank() != 3 {
		exceptions.Panicf("layers.GlobalMaxPool1D requires x shaped [batch, length, channels], got %s",
			x.Shape())
	}
	return ReduceMax(x, 1)
}
