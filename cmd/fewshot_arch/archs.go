package main

import (
	"strings"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/fewshot"
	"github.com/gomlx/fewshot/maml"
	"github.com/gomlx/fewshot/matching"
	"github.com/gomlx/fewshot/semhash"
)

// architecture is one inspectable model: build assembles its forward graph on a
// synthetic batch and returns the named outputs.
type architecture struct {
	name  string
	build func(ctx *context.Context, g *Graph) (names []string, outputs []*Node)
}

// architectureNames lists the supported -arch values, in report order.
var architectureNames = []string{
	"encoder", "maml", "matching", "semhash-classifier", "semhash-autoencoder",
}

// parseArchitectures expands the -arch flag: "all" or a comma-separated subset of
// architectureNames.
func parseArchitectures(list string) ([]architecture, error) {
	if list == "all" {
		list = strings.Join(architectureNames, ",")
	}
	var archs []architecture
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		switch name {
		case "encoder":
			archs = append(archs, architecture{name, buildEncoder})
		case "maml":
			archs = append(archs, architecture{name, buildMAML})
		case "matching":
			archs = append(archs, architecture{name, buildMatching})
		case "semhash-classifier":
			archs = append(archs, architecture{name, buildSemHashClassifier})
		case "semhash-autoencoder":
			archs = append(archs, architecture{name, buildSemHashAutoEncoder})
		default:
			return nil, errors.Errorf("unknown architecture %q, valid values are \"all\" or a comma-separated "+
				"subset of %q", name, architectureNames)
		}
	}
	return archs, nil
}

func syntheticImages(g *Graph, batchSize, imageSize, channels int) *Node {
	return IotaFull(g, shapes.Make(dtypes.Float32, batchSize, imageSize, imageSize, channels))
}

func buildEncoder(ctx *context.Context, g *Graph) ([]string, []*Node) {
	images := syntheticImages(g, *flagBatch, *flagImageSize, *flagChannels)
	embeddings := fewshot.Encoder(ctx, images)
	return []string{"embeddings"}, []*Node{embeddings}
}

func buildMAML(ctx *context.Context, g *Graph) ([]string, []*Node) {
	classifier := maml.New(*flagClasses)
	images := syntheticImages(g, *flagBatch, *flagImageSize, *flagChannels)
	logits := classifier.Forward(ctx, images)
	return []string{"logits"}, []*Node{logits}
}

func buildMatching(ctx *context.Context, g *Graph) ([]string, []*Node) {
	network := matching.New(matching.Config{
		ExamplesPerClass:  *flagExamples,
		ClassesPerEpisode: *flagClasses,
		QueriesPerClass:   *flagQueries,
		FCE:               true,
	})
	support := syntheticImages(g, *flagExamples**flagClasses, *flagImageSize, *flagChannels)
	queries := syntheticImages(g, *flagQueries**flagClasses, *flagImageSize, *flagChannels)
	supportEmb, queryEmb := network.Forward(ctx, support, queries)
	return []string{"support embeddings", "query embeddings"}, []*Node{supportEmb, queryEmb}
}

func buildSemHashClassifier(ctx *context.Context, g *Graph) ([]string, []*Node) {
	classifier := semhash.NewClassifier(semhash.ClassifierConfig{
		NumClasses: *flagClasses,
		ConvBlocks: 2,
		CodeBits:   32,
		HiddenSize: 256,
	})
	images := syntheticImages(g, *flagBatch, *flagImageSize, *flagChannels)
	logits, code := classifier.Forward(ctx, images)
	return []string{"logits", "binary code"}, []*Node{logits, code}
}

func buildSemHashAutoEncoder(ctx *context.Context, g *Graph) ([]string, []*Node) {
	if *flagImageSize != semhash.InputSize {
		klog.Warningf("semhash-autoencoder takes %dx%d inputs, ignoring -image-size=%d",
			semhash.InputSize, semhash.InputSize, *flagImageSize)
	}
	ae := semhash.NewAutoEncoder(semhash.AutoEncoderConfig{
		CodeBits:       32,
		ContinuousDims: 16,
		NoiseSamples:   1,
		OutputChannels: *flagChannels,
	})
	images := syntheticImages(g, *flagBatch, semhash.InputSize, *flagChannels)
	reconstruction, synthetic := ae.Forward(ctx, images)
	return []string{"reconstruction", "synthetic"}, []*Node{reconstruction, synthetic}
}
