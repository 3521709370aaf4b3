// fewshot_arch builds the few-shot architectures on a synthetic batch using the
// pure-Go backend and reports their output shapes and variable sizes.
//
// Example:
//
//	fewshot_arch -arch=maml,matching -k=20 -n=1
//	fewshot_arch -arch=encoder -bench=100
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagArch = flag.String("arch", "all", "Comma-separated list of architectures to inspect: "+
		"\"encoder\", \"maml\", \"matching\", \"semhash-classifier\", \"semhash-autoencoder\", or \"all\".")
	flagBatch     = flag.Int("batch", 4, "Synthetic batch size.")
	flagImageSize = flag.Int("image-size", 28, "Spatial resolution of the synthetic images.")
	flagChannels  = flag.Int("channels", 1, "Number of channels of the synthetic images.")
	flagClasses   = flag.Int("k", 5, "Number of classes (\"k-way\").")
	flagExamples  = flag.Int("n", 5, "Number of support examples per class (\"n-shot\"), for the matching network.")
	flagQueries   = flag.Int("q", 1, "Number of query examples per class, for the matching network.")
	flagBench     = flag.Int("bench", 0, "If > 0, time this many forward executions of each architecture.")
)

func main() {
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'fewshot_arch -help'.", flag.Args())
		os.Exit(1)
	}
	archs, err := parseArchitectures(*flagArch)
	if err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}

	backend := backends.MustNew()
	for _, arch := range archs {
		report(backend, arch)
	}
}

func report(backend backends.Backend, arch architecture) {
	fmt.Println(titleStyle.Render(arch.name))

	ctx := context.New()
	var outputNames []string
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		names, outputs := arch.build(ctx, g)
		outputNames = names
		return outputs
	})
	outputs := exec.MustExec()

	// Output shapes.
	table := newPlainTable(true)
	table.Headers("Output", "Shape")
	for ii, output := range outputs {
		table.Row(outputNames[ii], output.Shape().String())
	}
	fmt.Println(table.Render())

	printVariables(ctx)
	if *flagBench > 0 {
		bench(exec, arch.name)
	}
}

// printVariables reports variable, parameter and memory counts aggregated per scope,
// plus a total row.
func printVariables(ctx *context.Context) {
	type scopeStats struct {
		numVars, numParams int
		memory             uintptr
	}
	perScope := make(map[string]*scopeStats)
	var total scopeStats
	ctx.EnumerateVariablesInScope(func(v *context.Variable) {
		stats := perScope[v.Scope()]
		if stats == nil {
			stats = &scopeStats{}
			perScope[v.Scope()] = stats
		}
		shape := v.Shape()
		stats.numVars++
		stats.numParams += shape.Size()
		stats.memory += shape.Memory()
		total.numVars++
		total.numParams += shape.Size()
		total.memory += shape.Memory()
	})

	table := newPlainTable(true)
	table.Headers("Scope", "# Variables", "# Parameters", "Memory")
	for _, scope := range xslices.SortedKeys(perScope) {
		stats := perScope[scope]
		table.Row(scope,
			humanize.Comma(int64(stats.numVars)),
			humanize.Comma(int64(stats.numParams)),
			humanize.Bytes(uint64(stats.memory)))
	}
	table.Row("(total)",
		humanize.Comma(int64(total.numVars)),
		humanize.Comma(int64(total.numParams)),
		humanize.Bytes(uint64(total.memory)))
	fmt.Println(table.Render())
}

func bench(exec *context.Exec, name string) {
	bar := progressbar.NewOptions(*flagBench,
		progressbar.OptionSetDescription(fmt.Sprintf("Benchmarking %s: ", name)),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode))
	start := time.Now()
	for range *flagBench {
		exec.MustExec()
		must.M(bar.Add(1))
	}
	elapsed := time.Since(start)
	must.M(bar.Finish())
	fmt.Printf("\n%s: %s per forward execution (%d executions in %s)\n\n",
		name, elapsed/time.Duration(*flagBench), *flagBench, elapsed)
}
