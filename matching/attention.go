// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package matching

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// AttentionRefinement iteratively refines each query embedding by attending over the
// (already refined, see FullyConditionalEmbedding) support-set embeddings, over
// unrollingSteps steps of an attention LSTM.
//
// Per step, with hHat starting at zero:
//
//  1. h = hHat + queries.
//  2. Attention weights = softmax over the support axis of h·supportᵀ.
//  3. readout = attention-weighted sum of the support embeddings.
//  4. One LSTM-cell update with input queries and incoming state (h + readout, c),
//     producing the next (hHat, c).
//
// The result after all steps is hHat + queries, shaped like queries. The cell weights
// are context variables shared across steps; the cell state c starts at zero on every
// call and is not carried across calls.
//
// support must be shaped [numSupport, size] and queries [numQueries, size], with equal
// embedding size -- a mismatch panics before any computation is built.
func AttentionRefinement(ctx *context.Context, support, queries *Node, unrollingSteps int) *Node {
	if support.Rank() != 2 || queries.Rank() != 2 {
		exceptions.Panicf("matching: support and queries must be rank-2 embedding matrices, got %s and %s",
			support.Shape(), queries.Shape())
	}
	if support.Shape().Dim(-1) != queries.Shape().Dim(-1) {
		exceptions.Panicf("matching: support embeddings have size %d but query embeddings have size %d, "+
			"they must match", support.Shape().Dim(-1), queries.Shape().Dim(-1))
	}
	if unrollingSteps < 1 {
		exceptions.Panicf("matching: at least one unrolling step is required, got %d", unrollingSteps)
	}

	cellCtx := ctx.In("attention_cell")
	hHat := ZerosLike(queries)
	c := ZerosLike(queries)
	for range unrollingSteps {
		h := Add(hHat, queries)
		attention := AttentionWeights(h, support)
		readout := MatMul(attention, support)
		hHat, c = lstmCell(cellCtx, queries, Add(h, readout), c)
	}
	return Add(hHat, queries)
}

// AttentionWeights returns the row-stochastic attention of each query embedding over
// the support embeddings: softmax over the support axis of h·supportᵀ. The result is
// shaped [numQueries, numSupport] and each row sums to 1.
func AttentionWeights(h, support *Node) *Node {
	scores := MatMul(h, Transpose(support, 0, 1))
	return Softmax(scores, -1)
}

// lstmCell performs a single LSTM cell update, with the same gate layout the framework's
// lstm package uses: gate order input/output/forget/cell, separate input and recurrent
// biases. Weights are variables in ctx's current scope, so repeated calls under the same
// scope share them.
func lstmCell(ctx *context.Context, input, hidden, cell *Node) (newHidden, newCell *Node) {
	g := input.Graph()
	dtype := input.DType()
	featuresSize := input.Shape().Dim(-1)
	hiddenSize := hidden.Shape().Dim(-1)

	inputsW := ctx.VariableWithShape("inputsW",
		shapes.Make(dtype, 4, hiddenSize, featuresSize)).ValueGraph(g)
	recurrentW := ctx.VariableWithShape("recurrentW",
		shapes.Make(dtype, 4, hiddenSize, hiddenSize)).ValueGraph(g)
	biasesW := ctx.VariableWithShape("biasesW",
		shapes.Make(dtype, 8, hiddenSize)).ValueGraph(g)

	// b->batch, f->features, h/j->hidden, n=4 gates.
	projX := Einsum("bf,nhf->nbh", input, inputsW)
	projX = Add(projX, ExpandAxes(Slice(biasesW, AxisRangeFromStart(4)), 1))
	projState := Einsum("bh,njh->nbj", hidden, recurrentW)
	projState = Add(projState, ExpandAxes(Slice(biasesW, AxisRangeToEnd(4)), 1))
	gates := Add(projX, projState)
	gate := func(gateIdx int) *Node {
		return Squeeze(Slice(gates, AxisElem(gateIdx)), 0)
	}

	inputGate := Sigmoid(gate(0))
	outputGate := Sigmoid(gate(1))
	forgetGate := Sigmoid(gate(2))
	cellUpdate := Tanh(gate(3))
	newCell = Add(Mul(cell, forgetGate), Mul(cellUpdate, inputGate))
	newHidden = Mul(outputGate, Tanh(newCell))
	return newHidden, newCell
}
