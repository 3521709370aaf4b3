// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package semhash

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/fnn"

	"github.com/gomlx/fewshot/binarize"
	"github.com/gomlx/fewshot/layers"
)

// The autoencoder is built for 28×28 inputs (Omniglot/MNIST-like): the two encoder
// blocks take 28 → 14 → 7, and the decoder mirrors it, 7 → 14 → 28.
const (
	// InputSize is the spatial resolution the autoencoder expects.
	InputSize = 28

	// bottleneckSize is the spatial resolution at the bottleneck.
	bottleneckSize = 7
)

// AutoEncoderConfig configures a semantic binary autoencoder.
type AutoEncoderConfig struct {
	// CodeBits is the width of the binary code, which captures the semantic (class)
	// identity of the input.
	CodeBits int

	// ContinuousDims is the width of the continuous code, which captures intra-class
	// appearance variation.
	ContinuousDims int

	// NoiseSamples is the number of synthetic examples per input that Forward generates
	// by re-decoding the binary code against fresh noise. Required, must be >= 1 --
	// there is no default.
	NoiseSamples int

	// OutputChannels is the number of channels of the reconstruction. Defaults to 1
	// (grayscale).
	OutputChannels int

	// Slope scales the pre-binarization activation before the Hardsigmoid squash.
	// Defaults to 1.
	Slope float64

	// Stochastic selects Bernoulli sampling instead of rounding for the binarization.
	Stochastic bool

	// Estimator selects the gradient estimator through the binarization.
	Estimator binarize.Estimator
}

// AutoEncoder reconstructs images through a factored latent space: a binary code for
// semantic identity and a continuous code for appearance. Decoding the same binary code
// against fresh noise in place of the continuous code generates synthetic examples that
// share the input's semantic identity.
type AutoEncoder struct {
	config     AutoEncoderConfig
	activation *binarize.Activation
}

// NewAutoEncoder validates config and creates the AutoEncoder.
func NewAutoEncoder(config AutoEncoderConfig) *AutoEncoder {
	if config.CodeBits <= 0 {
		exceptions.Panicf("semhash: code bits must be > 0, got %d", config.CodeBits)
	}
	if config.ContinuousDims <= 0 {
		exceptions.Panicf("semhash: continuous dims must be > 0, got %d", config.ContinuousDims)
	}
	if config.NoiseSamples < 1 {
		exceptions.Panicf("semhash: noise samples must be >= 1, got %d -- it has no default", config.NoiseSamples)
	}
	if config.OutputChannels == 0 {
		config.OutputChannels = 1
	}
	if config.Slope == 0 {
		config.Slope = 1
	}
	return &AutoEncoder{
		config:     config,
		activation: newActivation(config.Stochastic, config.Estimator),
	}
}

// Config returns the autoencoder's configuration.
func (ae *AutoEncoder) Config() AutoEncoderConfig { return ae.config }

// Encode maps images, shaped [batchSize, 28, 28, channels], to the binary code
// [batchSize, CodeBits] (elements exactly 0 or 1) and the continuous code
// [batchSize, ContinuousDims] (rectified, unconstrained).
//
// Variables live under scope "encoder" in ctx's current scope.
func (ae *AutoEncoder) Encode(ctx *context.Context, images *Node) (binary, continuous *Node) {
	encCtx := ctx.In("encoder")
	x := layers.ConvBlock(encCtx.In("conv1"), images).Channels(BlockChannels).Done()
	x = layers.ConvBlock(encCtx.In("conv2"), x).Channels(BlockChannels).Done()
	x = layers.Flatten(x)
	codeInput := fnn.New(encCtx.In("binary_dense"), x, ae.config.CodeBits).Done()
	binary, _ = ae.activation.Apply(ctx, codeInput, ae.config.Slope)
	continuous = activations.Relu(fnn.New(encCtx.In("continuous_dense"), x, ae.config.ContinuousDims).Done())
	return binary, continuous
}

// Decode maps a latent batch, shaped [batchSize, CodeBits+ContinuousDims], back to
// images shaped [batchSize, 28, 28, OutputChannels], squashed to [-1, 1] by a tanh.
//
// The decoder mirrors the encoder: a dense projection to the bottleneck feature map,
// two stride-2 transposed-convolution blocks (7 → 14 → 28) and a final size-preserving
// transposed convolution to OutputChannels. Variables live under scope "decoder".
func (ae *AutoEncoder) Decode(ctx *context.Context, latent *Node) *Node {
	if latent.Rank() != 2 {
		exceptions.Panicf("semhash: latent must be shaped [batch, codeBits+continuousDims], got %s",
			latent.Shape())
	}
	decCtx := ctx.In("decoder")
	batchSize := latent.Shape().Dim(0)
	x := fnn.New(decCtx.In("project"), latent, bottleneckSize*bottleneckSize*BlockChannels).Done()
	x = Reshape(x, batchSize, bottleneckSize, bottleneckSize, BlockChannels)
	x = layers.DeconvBlock(decCtx.In("deconv1"), x).Channels(BlockChannels).Strides(2).Done()
	x = layers.DeconvBlock(decCtx.In("deconv2"), x).Channels(BlockChannels).Strides(2).Done()
	x = layers.ConvTranspose(decCtx.In("output"), x).
		Channels(ae.config.OutputChannels).
		PadSame().
		Done()
	return Tanh(x)
}

// BinarySpaceDecode generates numNoise synthetic examples per binary code by pairing
// each code with freshly sampled Uniform(0,1) noise standing in for the continuous code
// and decoding. The binary code determines semantic identity, so the synthetic examples
// are appearance variations of the same class.
//
// binary must be shaped [batchSize, CodeBits]; the result is shaped
// [batchSize·numNoise, 28, 28, OutputChannels], noise samples for the same code
// adjacent. numNoise must be >= 1, there is no default.
func (ae *AutoEncoder) BinarySpaceDecode(ctx *context.Context, binary *Node, numNoise int) *Node {
	if numNoise < 1 {
		exceptions.Panicf("semhash: noise samples must be >= 1, got %d -- it has no default", numNoise)
	}
	g := binary.Graph()
	dtype := binary.DType()
	batchSize := binary.Shape().Dim(0)
	codeBits := binary.Shape().Dim(1)

	repeated := InsertAxes(binary, 1)
	repeated = BroadcastToDims(repeated, batchSize, numNoise, codeBits)
	repeated = Reshape(repeated, batchSize*numNoise, codeBits)
	noise := ctx.RandomUniform(g, shapes.Make(dtype, batchSize*numNoise, ae.config.ContinuousDims))
	return ae.Decode(ctx, Concatenate([]*Node{repeated, noise}, -1))
}

// Forward encodes images and returns their reconstruction, shaped like Decode's output,
// plus NoiseSamples synthetic examples per input sharing each input's binary code,
// shaped [batchSize·NoiseSamples, 28, 28, OutputChannels].
func (ae *AutoEncoder) Forward(ctx *context.Context, images *Node) (reconstruction, synthetic *Node) {
	binary, continuous := ae.Encode(ctx, images)
	reconstruction = ae.Decode(ctx, Concatenate([]*Node{binary, continuous}, -1))
	synthetic = ae.BinarySpaceDecode(ctx, binary, ae.config.NoiseSamples)
	return reconstruction, synthetic
}
