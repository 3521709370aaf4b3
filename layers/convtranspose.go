// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layers

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// ConvTransposeBuilder configures a 2D transposed convolution. Create it with
// ConvTranspose, set Channels (required), and call Done.
type ConvTransposeBuilder struct {
	ctx           *context.Context
	x             *Node
	channels      int
	kernelSize    int
	strides       int
	padSame       bool
	outputPadding int
	useBias       bool
}

// ConvTranspose prepares a 2D transposed convolution (also known as deconvolution or
// fractionally-strided convolution) on x, shaped [batchSize, height, width, channels].
//
// The output spatial size per axis is
//
//	out = (in-1)·stride - 2·pad + kernelSize + outputPadding
//
// where pad is (kernelSize-1)/2 under PadSame (the default is NoPadding, pad 0).
// With kernel 3, stride 2, PadSame and OutputPadding(1) the spatial size is exactly
// doubled; with stride 1 and PadSame it is preserved.
//
// Implementation note: the framework's input-dilated convolution path does not support
// gradients, so this is lowered to ordinary (differentiable) graph ops: the input is
// interior-padded by stride-1 and edge-padded by kernelSize-1-pad, then convolved with
// stride 1 against the spatially reversed kernel with its channel axes swapped -- the
// same construction the framework uses for the gradient of a strided convolution.
//
// The kernel variable "weights" is shaped [kernelSize, kernelSize, Channels, inputChannels],
// i.e. the kernel of the forward convolution this operation transposes.
func ConvTranspose(ctx *context.Context, x *Node) *ConvTransposeBuilder {
	if x.Rank() != 4 {
		exceptions.Panicf("layers.ConvTranspose requires x shaped [batch, height, width, channels], got %s",
			x.Shape())
	}
	return &ConvTransposeBuilder{ctx: ctx, x: x, kernelSize: 3, strides: 1, useBias: true}
}

// Channels sets the number of output channels. Required.
func (b *ConvTransposeBuilder) Channels(channels int) *ConvTransposeBuilder {
	b.channels = channels
	return b
}

// KernelSize sets the kernel size for both spatial axes. It defaults to 3.
func (b *ConvTransposeBuilder) KernelSize(size int) *ConvTransposeBuilder {
	b.kernelSize = size
	return b
}

// Strides sets the stride, i.e. the upsampling factor. It defaults to 1.
func (b *ConvTransposeBuilder) Strides(strides int) *ConvTransposeBuilder {
	b.strides = strides
	return b
}

// PadSame sets the padding to (kernelSize-1)/2, the value that makes a stride-1
// transposed convolution preserve the spatial size.
func (b *ConvTransposeBuilder) PadSame() *ConvTransposeBuilder {
	b.padSame = true
	return b
}

// NoPadding sets the padding to 0, the default.
func (b *ConvTransposeBuilder) NoPadding() *ConvTransposeBuilder {
	b.padSame = false
	return b
}

// OutputPadding adds extra rows/columns to the high side of each spatial axis of the
// output. It defaults to 0. It resolves the output-size ambiguity of strided transposed
// convolutions: with stride s, output paddings 0..s-1 all invert the same forward shape.
func (b *ConvTransposeBuilder) OutputPadding(padding int) *ConvTransposeBuilder {
	b.outputPadding = padding
	return b
}

// UseBias configures whether a bias term is added. It defaults to true.
func (b *ConvTransposeBuilder) UseBias(useBias bool) *ConvTransposeBuilder {
	b.useBias = useBias
	return b
}

// Done builds the transposed convolution and returns its output.
func (b *ConvTransposeBuilder) Done() *Node {
	if b.channels <= 0 {
		exceptions.Panicf("layers.ConvTranspose requires Channels to be set, got %d", b.channels)
	}
	if b.strides < 1 {
		exceptions.Panicf("layers.ConvTranspose strides must be >= 1, got %d", b.strides)
	}
	if b.outputPadding < 0 || b.outputPadding >= b.strides {
		exceptions.Panicf("layers.ConvTranspose output padding must be in [0, strides), got %d with strides %d",
			b.outputPadding, b.strides)
	}
	x := b.x
	g := x.Graph()
	dtype := x.DType()
	inputChannels := x.Shape().Dim(-1)
	pad := 0
	if b.padSame {
		pad = (b.kernelSize - 1) / 2
	}
	edgePad := b.kernelSize - 1 - pad
	if edgePad < 0 {
		exceptions.Panicf("layers.ConvTranspose padding %d larger than kernel size %d allows", pad, b.kernelSize)
	}

	ctxInScope := b.ctx.In("conv_transpose")
	kernelVar := ctxInScope.VariableWithShape("weights",
		shapes.Make(dtype, b.kernelSize, b.kernelSize, b.channels, inputChannels))
	kernel := kernelVar.ValueGraph(g)

	// Reverse spatially and swap the channel axes: the kernel of the forward convolution
	// becomes the kernel of its transpose.
	kernel = Reverse(kernel, 0, 1)
	kernel = Transpose(kernel, 2, 3)

	spatialPad := PadAxis{Start: edgePad, End: edgePad + b.outputPadding, Interior: b.strides - 1}
	padded := Pad(x, ScalarZero(g, dtype), PadAxis{}, spatialPad, spatialPad, PadAxis{})
	output := Convolve(padded, kernel).NoPadding().Done()

	if b.useBias {
		biasVar := ctxInScope.VariableWithShape("biases", shapes.Make(dtype, b.channels))
		bias := biasVar.ValueGraph(g)
		output = Add(output, Reshape(bias, 1, 1, 1, b.channels))
	}
	return output
}
