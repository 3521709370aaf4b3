// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package binarize

import (
	"fmt"
	"testing"

	_ "github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/ctxtest"
	"github.com/stretchr/testify/require"
)

func TestHardsigmoid(t *testing.T) {
	graphtest.RunTestGraphFn(t, "Hardsigmoid",
		func(g *Graph) (inputs, outputs []*Node) {
			x := Const(g, []float32{-2, -1, -0.5, 0, 0.5, 1, 2})
			inputs = []*Node{x}
			outputs = []*Node{Hardsigmoid(x)}
			return
		}, []any{
			[]float32{0, 0, 0.25, 0.5, 0.75, 1, 1},
		}, 1e-6)
}

// requireBinary checks every element of a [batch, bits] output is exactly 0 or 1.
func requireBinary(t *testing.T, name string, output *tensors.Tensor) {
	rows := output.Value().([][]float32)
	for ii, row := range rows {
		for jj, value := range row {
			require.Truef(t, value == 0 || value == 1,
				"%s: element [%d, %d] is %g, want exactly 0 or 1", name, ii, jj, value)
		}
	}
}

func TestActivationOutputsAreBinary(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	testCases := []struct {
		name       string
		activation *Activation
	}{
		{"deterministic-straight_through", Deterministic(StraightThrough)},
		{"deterministic-reinforce", Deterministic(Reinforce)},
		{"stochastic-straight_through", Stochastic(StraightThrough)},
		{"stochastic-reinforce", Stochastic(Reinforce)},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			ctx := context.New()
			exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, x *Node) *Node {
				code, _ := testCase.activation.Apply(ctx, x, 1.0)
				return code
			})
			input := [][]float32{
				{-3, -1, -0.4, 0, 0.4, 1, 3},
				{2, -2, 0.1, -0.1, 0.7, -0.7, 0},
			}
			outputs := exec.MustExec(input)
			fmt.Printf("\t%s: %s\n", testCase.name, outputs[0].GoStr())
			requireBinary(t, testCase.name, outputs[0])
		})
	}
}

func TestDeterministicRoundsSaturatedValues(t *testing.T) {
	// Values past the hardsigmoid linear region binarize deterministically, whatever
	// the sampler: probability is exactly 0 or 1 there.
	for _, estimator := range []Estimator{StraightThrough, Reinforce} {
		ctxtest.RunTestGraphFn(t, fmt.Sprintf("Deterministic(%s)", estimator),
			func(ctx *context.Context, g *Graph) (inputs, outputs []*Node) {
				x := Const(g, []float32{-5, -1, 1, 5})
				code, probs := Deterministic(estimator).Apply(ctx, x, 1.0)
				inputs = []*Node{x}
				outputs = []*Node{code, probs}
				return
			}, []any{
				[]float32{0, 0, 1, 1},
				[]float32{0, 0, 1, 1},
			}, 0)
	}
}

func TestStraightThroughGradientIsIdentity(t *testing.T) {
	// The gradient of a weighted sum of the binarized output w.r.t. the input must be
	// exactly the weights: the estimator passes the incoming gradient through unchanged.
	upstream := []float32{0.5, -1.5, 2, 0, -0.25}

	graphtest.RunTestGraphFn(t, "RoundST gradient",
		func(g *Graph) (inputs, outputs []*Node) {
			x := Const(g, []float32{0.1, 0.3, 0.5, 0.7, 0.9})
			weights := Const(g, upstream)
			code := RoundST(x)
			loss := ReduceAllSum(Mul(code, weights))
			grad := Gradient(loss, x)[0]
			inputs = []*Node{x}
			outputs = []*Node{grad}
			return
		}, []any{upstream}, 0)

	ctxtest.RunTestGraphFn(t, "BernoulliST gradient",
		func(ctx *context.Context, g *Graph) (inputs, outputs []*Node) {
			probs := Const(g, []float32{0.1, 0.3, 0.5, 0.7, 0.9})
			weights := Const(g, upstream)
			code := BernoulliST(ctx, probs)
			loss := ReduceAllSum(Mul(code, weights))
			grad := Gradient(loss, probs)[0]
			inputs = []*Node{probs}
			outputs = []*Node{grad}
			return
		}, []any{upstream}, 0)
}

func TestOverrideCustomBackward(t *testing.T) {
	// Override with a doubling backward: the forward value is forward(x), the gradient
	// is twice the upstream.
	graphtest.RunTestGraphFn(t, "Override",
		func(g *Graph) (inputs, outputs []*Node) {
			x := Const(g, []float32{0.2, 0.8})
			y := Override(x, Round, func(_, v *Node) *Node { return MulScalar(v, 2) })
			loss := ReduceAllSum(y)
			grad := Gradient(loss, x)[0]
			inputs = []*Node{x}
			outputs = []*Node{y, grad}
			return
		}, []any{
			[]float32{0, 1},
			[]float32{2, 2},
		}, 0)
}

func TestReinforceSampleCarriesNoGradient(t *testing.T) {
	ctxtest.RunTestGraphFn(t, "Reinforce gradient",
		func(ctx *context.Context, g *Graph) (inputs, outputs []*Node) {
			x := Const(g, []float32{-2, -0.5, 0.5, 2})
			code, _ := Deterministic(Reinforce).Apply(ctx, x, 1.0)
			loss := ReduceAllSum(code)
			grad := Gradient(loss, x)[0]
			inputs = []*Node{x}
			outputs = []*Node{grad}
			return
		}, []any{
			[]float32{0, 0, 0, 0},
		}, 0)
}

func TestEstimatorNames(t *testing.T) {
	for _, estimator := range []Estimator{StraightThrough, Reinforce} {
		require.Equal(t, estimator, EstimatorFromName(estimator.String()))
	}
	require.Panics(t, func() { EstimatorFromName("gumbel") })
}
