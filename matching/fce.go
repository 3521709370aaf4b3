// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package matching implements the embedding components of Matching Networks
// ("Matching Networks for One Shot Learning", https://arxiv.org/abs/1606.04080,
// Vinyals et al., 2016): a bidirectional-LSTM full-context embedding of the support
// set, and an attention-LSTM refinement of query embeddings against it.
//
// Classification itself -- embedding similarity and the loss -- happens outside this
// package; it consumes the refined embeddings returned here.
package matching

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/lstm"
)

// FullyConditionalEmbedding refines each support-set embedding conditioned on the whole
// support set: the embeddings are run as a sequence through lstmLayers stacked
// bidirectional LSTM layers with hidden size equal to the embedding size, and the output
// for each position is
//
//	forwardState + backwardState + originalEmbedding
//
// The recurrent layers mix information across the entire support set; the skip
// connection preserves each example's own identity, so embeddings can't degenerate when
// support-set context carries little signal.
//
// support must be shaped [numSupport, size]. refined has the same shape; lastHidden and
// lastCell are the final layer's states, shaped [2, 1, size] ([directions, batch,
// hidden]) -- unused by the matching network but exposed for completeness.
//
// Hidden and cell states start at zero on every call.
func FullyConditionalEmbedding(ctx *context.Context, support *Node, lstmLayers int) (refined, lastHidden, lastCell *Node) {
	if support.Rank() != 2 {
		exceptions.Panicf("matching: support embeddings must be shaped [numSupport, size], got %s",
			support.Shape())
	}
	if lstmLayers < 1 {
		exceptions.Panicf("matching: at least one LSTM layer is required, got %d", lstmLayers)
	}
	numSupport := support.Shape().Dim(0)
	size := support.Shape().Dim(1)

	// The support set is a sequence of one batch entry: [1, numSupport, features].
	x := InsertAxes(support, 0)
	var forward, backward *Node
	for layer := range lstmLayers {
		var allHidden *Node
		allHidden, lastHidden, lastCell = lstm.New(ctx.Inf("lstm_layer_%d", layer), x, size).
			Direction(lstm.DirBidirectional).
			Done()
		// allHidden: [numSupport, 2, 1, size].
		forward = Reshape(Slice(allHidden, AxisRange(), AxisElem(0)), numSupport, size)
		backward = Reshape(Slice(allHidden, AxisRange(), AxisElem(1)), numSupport, size)
		// Stacked layers see both directions, like a stacked bidirectional LSTM.
		x = InsertAxes(Concatenate([]*Node{forward, backward}, -1), 0)
	}
	refined = Add(Add(forward, backward), support)
	return refined, lastHidden, lastCell
}
