// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package matching

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"

	"github.com/gomlx/fewshot"
)

// Config describes a matching-network episode and the embedding refinement to apply.
type Config struct {
	// ExamplesPerClass is the number of support examples per class ("n-shot").
	ExamplesPerClass int

	// ClassesPerEpisode is the number of classes per episode ("k-way").
	ClassesPerEpisode int

	// QueriesPerClass is the number of query examples per class.
	QueriesPerClass int

	// FCE enables the full-context embeddings: the bidirectional-LSTM refinement of the
	// support set and the attention-LSTM refinement of the queries. Without it both sets
	// are embedded independently by the convolutional encoder only.
	FCE bool

	// LSTMLayers is the number of stacked bidirectional LSTM layers in the support-set
	// refinement. Defaults to 1. Only used when FCE is set.
	LSTMLayers int

	// UnrollingSteps is the number of attention-LSTM steps in the query refinement.
	// Defaults to 2. Only used when FCE is set.
	UnrollingSteps int
}

// Network assembles the matching-network embedding pipeline: the shared convolutional
// encoder, and optionally the full-context embedding refinements.
//
// It produces embeddings only; the attention-based classification over embedding
// similarity, and the loss, are computed by the caller.
type Network struct {
	config Config
}

// New validates config and returns the Network.
func New(config Config) *Network {
	if config.ExamplesPerClass <= 0 || config.ClassesPerEpisode <= 0 || config.QueriesPerClass <= 0 {
		exceptions.Panicf("matching: episode configuration must be positive, got n=%d, k=%d, q=%d",
			config.ExamplesPerClass, config.ClassesPerEpisode, config.QueriesPerClass)
	}
	if config.LSTMLayers == 0 {
		config.LSTMLayers = 1
	}
	if config.UnrollingSteps == 0 {
		config.UnrollingSteps = 2
	}
	if config.FCE && config.LSTMLayers < 1 {
		exceptions.Panicf("matching: FCE requires at least one LSTM layer, got %d", config.LSTMLayers)
	}
	if config.FCE && config.UnrollingSteps < 1 {
		exceptions.Panicf("matching: FCE requires at least one attention unrolling step, got %d", config.UnrollingSteps)
	}
	return &Network{config: config}
}

// Config returns the network's episode configuration.
func (m *Network) Config() Config { return m.config }

// Forward embeds a support set and a query set, shaped [numImages, height, width,
// channels], and returns their embeddings, shaped [numImages, features]. Both sets go
// through the same convolutional encoder (shared variables, scope "encoder"); with FCE
// enabled the support embeddings are then refined conditioned on the full support set
// (scope "fce_g") and the query embeddings by attention over it (scope "fce_f").
//
// supportImages must hold exactly ExamplesPerClass·ClassesPerEpisode examples.
func (m *Network) Forward(ctx *context.Context, supportImages, queryImages *Node) (supportEmb, queryEmb *Node) {
	numSupport := supportImages.Shape().Dim(0)
	if want := m.config.ExamplesPerClass * m.config.ClassesPerEpisode; numSupport != want {
		exceptions.Panicf("matching: support set has %d examples, want n·k = %d·%d = %d",
			numSupport, m.config.ExamplesPerClass, m.config.ClassesPerEpisode, want)
	}
	supportEmb = fewshot.Encoder(ctx.In("encoder"), supportImages)
	queryEmb = fewshot.Encoder(ctx.In("encoder"), queryImages)
	if m.config.FCE {
		supportEmb, _, _ = FullyConditionalEmbedding(ctx.In("fce_g"), supportEmb, m.config.LSTMLayers)
		queryEmb = AttentionRefinement(ctx.In("fce_f"), supportEmb, queryEmb, m.config.UnrollingSteps)
	}
	return supportEmb, queryEmb
}
