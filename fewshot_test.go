// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fewshot

import (
	"testing"

	_ "github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/require"
)

func TestEncoder(t *testing.T) {
	backend := graphtest.BuildTestBackend()

	// Omniglot-like batch: 4 grayscale 28×28 images embed to 64 features each.
	ctx := context.New()
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
		images := IotaFull(g, shapes.Make(dtypes.Float32, 4, 28, 28, 1))
		return Encoder(ctx, images)
	})
	outputs := exec.MustExec()
	require.Equal(t, shapes.Make(dtypes.Float32, 4, EncoderChannels), outputs[0].Shape())

	// RGB miniImageNet-like batch: channels only affect the first block's kernel.
	ctx = context.New()
	exec = context.MustNewExec(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
		images := IotaFull(g, shapes.Make(dtypes.Float32, 2, 32, 32, 3))
		return Encoder(ctx, images)
	})
	outputs = exec.MustExec()
	require.Equal(t, shapes.Make(dtypes.Float32, 2, 4*EncoderChannels), outputs[0].Shape())
}
