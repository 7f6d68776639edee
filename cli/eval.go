package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aqua777/krait"

	"github.com/aqua777/go-ragchat/evaluation"
	"github.com/aqua777/go-ragchat/evaluation/dataset"
	"github.com/aqua777/go-ragchat/evaluation/plot"
	"github.com/aqua777/go-ragchat/prompts"
	"github.com/aqua777/go-ragchat/questiongen"
	"github.com/aqua777/go-ragchat/ragerr"
)

func runBuildContexts(args []string) error {
	app, err := NewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	mode := dataset.IngestMode(krait.GetString(KeyMode))
	if mode != dataset.IngestUpload && mode != dataset.IngestChunks {
		return ragerr.Validation("cli.build_contexts", fmt.Sprintf("unknown ingestion mode %q", mode))
	}
	index, err := app.ChunkIndex()
	if err != nil {
		return err
	}

	builder := dataset.NewContextBuilder(app.client, app.embedModel,
		dataset.WithBuilderSettings(app.settings),
		dataset.WithIngestMode(mode),
		dataset.WithChunksPerDocument(krait.GetInt(KeyChunksPerDoc)),
		dataset.WithContextSize(krait.GetInt(KeyContextSize)),
		dataset.WithSeed(int64(krait.GetInt(KeySeed))),
		dataset.WithVectorStore(index),
		dataset.WithBuilderLogger(app.logger),
	)
	contexts, err := builder.Build(ctx, app.settings.FilesDirectory)
	if err != nil {
		return err
	}

	out := krait.GetString(KeyOutput)
	if out == "" {
		out = ExportPath(app.settings.ExportDirectory, DefaultContextsFile)
	}
	if err := ensureDir(out); err != nil {
		return err
	}
	if err := dataset.WriteContexts(out, contexts); err != nil {
		return err
	}
	fmt.Printf("Wrote %d context(s) to %s\n", len(contexts), out)
	return nil
}

func runSynthesize(args []string) error {
	app, err := NewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	in := krait.GetString(KeyInput)
	if in == "" {
		in = ExportPath(app.settings.ExportDirectory, DefaultContextsFile)
	}
	out := krait.GetString(KeyOutput)
	if out == "" {
		out = ExportPath(app.settings.ExportDirectory, DefaultGoldensFile)
	}
	if err := ensureDir(out); err != nil {
		return err
	}

	judge, err := app.Judge(krait.GetInt(KeyAttempts), krait.GetInt(KeyJudgeSeed))
	if err != nil {
		return err
	}
	gen := questiongen.NewLLMQuestionGenerator(judge, questiongen.WithQuestionGenLogger(app.logger))
	n, skipped, err := gen.GenerateFile(ctx, in, out)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d golden(s) to %s\n", n, out)
	if skipped > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d context(s) skipped after unusable answers", skipped)))
	}
	return nil
}

func runFill(args []string) error {
	in := krait.GetString(KeyInput)
	if in == "" {
		return ragerr.Validation("cli.fill", "--in is required")
	}
	app, err := NewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	template := prompts.EvalRAGTemplate
	if name := krait.GetString(KeyTaskPrompt); name != "" {
		p, err := app.prompts.Get(name)
		if err != nil {
			return err
		}
		template = p.Template
	}

	out := krait.GetString(KeyOutput)
	if out == "" {
		out = filledPath(in)
	}
	if err := ensureDir(out); err != nil {
		return err
	}

	filler := dataset.NewFiller(app.invoker,
		dataset.WithTaskPrompt(template),
		dataset.WithFillerLogger(app.logger),
	)
	n, err := filler.FillFile(ctx, in, out)
	if err != nil {
		return err
	}
	fmt.Printf("Filled %d sample(s) into %s\n", n, out)
	return nil
}

func runEvaluate(args []string) error {
	in := krait.GetString(KeyInput)
	if in == "" {
		return ragerr.Validation("cli.eval", "--in is required")
	}
	app, err := NewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	samples, err := dataset.ReadSamples(in)
	if err != nil {
		return err
	}
	judge, err := app.Judge(krait.GetInt(KeyAttempts), krait.GetInt(KeyJudgeSeed))
	if err != nil {
		return err
	}
	registry := app.Metrics(judge, krait.GetFloat64(KeyRelevance))

	names := krait.GetStringSlice(KeyMetrics)
	if len(names) == 0 {
		names = registry.List()
	}
	metrics, unknown := registry.Select(names...)
	if len(unknown) > 0 {
		return ragerr.Validation("cli.eval", fmt.Sprintf("unknown metrics %s (known: %s)",
			strings.Join(unknown, ", "), strings.Join(registry.List(), ", ")))
	}

	name := krait.GetString(KeyExperiment)
	if name == "" {
		name = experimentName(in)
	}
	out := filepath.Join(ResultsDir(app.settings.ExportDirectory), name+".jsonl")
	if err := ensureDir(out); err != nil {
		return err
	}
	runner := evaluation.NewRunner(metrics,
		evaluation.WithProgressWriter(os.Stdout),
		evaluation.WithResultsPath(out),
		evaluation.WithRunnerLogger(app.logger),
	)
	results, err := runner.Run(ctx, name, samples)
	if err != nil {
		if results != nil && len(results.Metrics) > 0 && len(results.Metrics[0].Scores) > 0 {
			fmt.Fprintln(os.Stderr, dimStyle.Render(fmt.Sprintf("%d finished sample(s) kept in %s",
				len(results.Metrics[0].Scores), out)))
		}
		return err
	}

	fmt.Println(headerStyle.Render(name))
	summary := results.Summary()
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-24s %s\n", k, formatScore(summary[k]))
	}
	fmt.Println(dimStyle.Render("Results written to " + out))
	return nil
}

func runPlot(args []string) error {
	app, err := NewApp()
	if err != nil {
		return err
	}
	defer app.Close()

	out := krait.GetString(KeyOutput)
	if out == "" {
		out = ExportPath(app.settings.ExportDirectory, DefaultPlotFile)
	}
	agg := plot.NewAggregator(plot.WithAggregatorLogger(app.logger))
	experiments, err := agg.Run(ResultsDir(app.settings.ExportDirectory), out)
	if err != nil {
		return err
	}
	fmt.Printf("Plotted %d experiment(s) to %s\n", len(experiments), out)
	return nil
}

// filledPath derives the output dataset of fill from its input.
func filledPath(in string) string {
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + "-filled.jsonl"
}

// experimentName is the input file name without directory and extension.
func experimentName(in string) string {
	base := filepath.Base(in)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func formatScore(s evaluation.Score) string {
	if s.IsNaN() {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", float64(s))
}
