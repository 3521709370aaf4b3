// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package matching

import (
	"testing"

	_ "github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/stretchr/testify/require"
)

var F32 = dtypes.Float32

func TestAttentionWeightsRowsSumToOne(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	graphtest.RunTestGraphFnWithBackend(t, "AttentionWeights", backend,
		func(g *Graph) (inputs, outputs []*Node) {
			h := IotaFull(g, shapes.Make(F32, 3, 4))
			support := OnePlus(IotaFull(g, shapes.Make(F32, 5, 4)))
			attention := AttentionWeights(h, support)
			inputs = []*Node{h, support}
			outputs = []*Node{ReduceSum(attention, -1)}
			return
		}, []any{
			[]float32{1, 1, 1},
		}, 1e-5)
}

func TestAttentionRefinementShapes(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	for _, numSupport := range []int{1, 5, 20} {
		ctx := context.New()
		exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, g *Graph) *Node {
			support := IotaFull(g, shapes.Make(F32, numSupport, 16))
			queries := IotaFull(g, shapes.Make(F32, 3, 16))
			return AttentionRefinement(ctx, support, queries, 2)
		})
		refined := exec.MustExec()[0]
		require.Equal(t, shapes.Make(F32, 3, 16), refined.Shape(),
			"refined queries must keep the query embedding shape (support size %d)", numSupport)
	}
}

func TestAttentionRefinementValidates(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	g := NewGraph(backend, t.Name())
	support := IotaFull(g, shapes.Make(F32, 5, 16))
	queries := IotaFull(g, shapes.Make(F32, 3, 16))

	// Mismatched embedding sizes.
	require.Panics(t, func() {
		AttentionRefinement(ctx, support, IotaFull(g, shapes.Make(F32, 3, 8)), 2)
	})
	// Wrong ranks.
	require.Panics(t, func() {
		AttentionRefinement(ctx, InsertAxes(support, 0), queries, 2)
	})
	// At least one unrolling step.
	require.Panics(t, func() {
		AttentionRefinement(ctx, support, queries, 0)
	})
}

func TestFullyConditionalEmbeddingShapes(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		support := IotaFull(g, shapes.Make(F32, 7, 10))
		refined, lastHidden, lastCell := FullyConditionalEmbedding(ctx, support, 2)
		return []*Node{refined, lastHidden, lastCell}
	})
	outputs := exec.MustExec()
	require.Equal(t, shapes.Make(F32, 7, 10), outputs[0].Shape())
	require.Equal(t, shapes.Make(F32, 2, 1, 10), outputs[1].Shape())
	require.Equal(t, shapes.Make(F32, 2, 1, 10), outputs[2].Shape())
}

// With zero-initialized LSTM weights both directions output zeros, and the skip
// connection makes the refined embeddings exactly equal to the input.
func TestFullyConditionalEmbeddingSkipConnection(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New().WithInitializer(initializers.Zero)
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		support := IotaFull(g, shapes.Make(F32, 4, 6))
		refined, _, _ := FullyConditionalEmbedding(ctx, support, 1)
		return []*Node{support, refined}
	})
	outputs := exec.MustExec()
	require.True(t, outputs[0].InDelta(outputs[1], 1e-6),
		"zeroed LSTM must reduce the embedding to the identity")
}

func TestNetworkForward(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	network := New(Config{
		ExamplesPerClass:  3,
		ClassesPerEpisode: 2,
		QueriesPerClass:   2,
		FCE:               true,
	})
	ctx := context.New()
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		supportImages := IotaFull(g, shapes.Make(F32, 6, 28, 28, 1))
		queryImages := IotaFull(g, shapes.Make(F32, 4, 28, 28, 1))
		support, queries := network.Forward(ctx, supportImages, queryImages)
		return []*Node{support, queries}
	})
	outputs := exec.MustExec()
	require.Equal(t, shapes.Make(F32, 6, 64), outputs[0].Shape())
	require.Equal(t, shapes.Make(F32, 4, 64), outputs[1].Shape())
}

func TestNetworkForwardValidatesSupportSize(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	network := New(Config{
		ExamplesPerClass:  3,
		ClassesPerEpisode: 2,
		QueriesPerClass:   1,
	})
	ctx := context.New()
	g := NewGraph(backend, t.Name())
	// 5 support images instead of the required n·k = 6.
	supportImages := IotaFull(g, shapes.Make(F32, 5, 28, 28, 1))
	queryImages := IotaFull(g, shapes.Make(F32, 2, 28, 28, 1))
	require.Panics(t, func() {
		network.Forward(ctx, supportImages, queryImages)
	})
}

func TestConfigValidation(t *testing.T) {
	require.Panics(t, func() { New(Config{ExamplesPerClass: 0, ClassesPerEpisode: 5, QueriesPerClass: 1}) })
	require.Panics(t, func() { New(Config{ExamplesPerClass: 1, ClassesPerEpisode: 0, QueriesPerClass: 1}) })
	require.Panics(t, func() { New(Config{ExamplesPerClass: 1, ClassesPerEpisode: 5, QueriesPerClass: 0}) })
	require.Panics(t, func() {
		New(Config{ExamplesPerClass: 1, ClassesPerEpisode: 5, QueriesPerClass: 1, FCE: true, UnrollingSteps: -1})
	})
}
