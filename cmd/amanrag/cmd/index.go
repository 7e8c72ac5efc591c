package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/index"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/ui"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	corpusDir      string
	lexicalBackend string
	noEval         bool
	evalLimit      int
	plain          bool
	noColor        bool
}

func newIndexCmd(global *globalOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the index from a BEIR-style corpus",
		Long: `Build the lexical and dense indexes from corpus.jsonl and write every
artifact to the index directory. meta.json is written last, so a running
'amanrag serve --watch' reloads only complete builds.

When queries.jsonl and qrels/*.tsv are present the fresh index is scored
(MRR@10, nDCG@10) and the metrics are written to last_results.json.

A missing corpus is not an error: the build is skipped with a warning.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.corpusDir, "corpus-dir", "", "Corpus directory (default from config, ./data/acord)")
	cmd.Flags().StringVar(&opts.lexicalBackend, "lexical-backend", "", "Lexical backend: okapi or bleve")
	cmd.Flags().BoolVar(&opts.noEval, "no-eval", false, "Skip evaluation after the build")
	cmd.Flags().IntVar(&opts.evalLimit, "eval-limit", index.DefaultEvalLimit, "Maximum number of evaluated queries")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain text progress output")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runIndex(cmd *cobra.Command, global *globalOptions, opts indexOptions) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if opts.corpusDir != "" {
		cfg.Index.CorpusDir = opts.corpusDir
	}
	if opts.lexicalBackend != "" {
		cfg.Index.LexicalBackend = opts.lexicalBackend
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog := setupLogging(global, cfg.Server.LogLevel, false)
	defer closeLog()

	e, err := newEmbedder(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(opts.noColor || ui.DetectNoColor()),
	))
	runner, err := index.NewRunner(index.RunnerDependencies{
		Embedder: e,
		Renderer: renderer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	runCfg := index.ConfigFrom(cfg)
	runCfg.Eval = !opts.noEval
	runCfg.EvalLimit = opts.evalLimit

	result, err := runner.Run(ctx, runCfg)
	if err != nil {
		if errors.Is(err, ctx.Err()) {
			output.New(cmd.ErrOrStderr()).Warning("Indexing interrupted")
		}
		return err
	}
	if result.Skipped {
		output.New(cmd.OutOrStdout()).Warningf("Nothing indexed: no corpus in %s", cfg.Index.CorpusDir)
	}
	return nil
}
