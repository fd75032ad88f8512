// Mapreduce runs document pipelines from the command line: chunk a source
// document, map every chunk through router-selected backends, and reduce
// the partial results. Interrupted runs resume from the checkpoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/modelmux/pkg/chunk"
	"github.com/codeready-toolchain/modelmux/pkg/config"
	"github.com/codeready-toolchain/modelmux/pkg/extract"
	"github.com/codeready-toolchain/modelmux/pkg/llm"
	"github.com/codeready-toolchain/modelmux/pkg/pipeline"
	"github.com/codeready-toolchain/modelmux/pkg/reduce"
	"github.com/codeready-toolchain/modelmux/pkg/router"
	"github.com/codeready-toolchain/modelmux/pkg/telemetry"
)

type options struct {
	configPath  string
	inputPath   string
	stateDir    string
	resume      bool
	concurrency int
	chunkSize   int
	overlap     int
}

// runtime is the shared wiring for both subcommands.
type runtime struct {
	cfg    *config.Config
	store  *telemetry.Store
	router *router.Router
	client llm.Client

	text        string
	fingerprint string
	chunks      []chunk.Chunk
	statePath   string
	policy      pipeline.Policy
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "mapreduce",
		Short:         "Run chunked map-reduce document pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "./config.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&opts.inputPath, "input", "", "path to the source document (required)")
	rootCmd.PersistentFlags().StringVar(&opts.stateDir, "state-dir", ".", "directory for the checkpoint file")
	rootCmd.PersistentFlags().BoolVar(&opts.resume, "resume", false, "retry chunks the checkpoint marks failed")
	rootCmd.PersistentFlags().IntVar(&opts.concurrency, "concurrency", 0, "override pipeline concurrency")
	rootCmd.PersistentFlags().IntVar(&opts.chunkSize, "chunk-size", 0, "override chunk size in characters")
	rootCmd.PersistentFlags().IntVar(&opts.overlap, "overlap", -1, "override chunk overlap in characters")
	_ = rootCmd.MarkPersistentFlagRequired("input")

	rootCmd.AddCommand(extractCmd(opts), summarizeCmd(opts))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Pipeline failed, checkpoint preserved for resume", "error", err)
		os.Exit(1)
	}
}

func extractCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Extract entities and relationships from a document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(opts)
			if err != nil {
				return err
			}
			defer rt.store.Close()

			mapper := extract.NewMapper(rt.router, rt.store, rt.client)
			executor := pipeline.NewExecutor(rt.policy, rt.statePath,
				mapper.Map, mapper.Fallback, extract.Synthetic)
			executor.OnProgress = logProgress

			state, err := executor.Run(cmd.Context(), rt.fingerprint, rt.chunks)
			if err != nil {
				return err
			}

			aggregate := reduce.Merge(executor.Results(state, rt.chunks))
			return writeJSON(cmd.OutOrStdout(), aggregate)
		},
	}
}

func summarizeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize",
		Short: "Produce a single hierarchical summary of a document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(opts)
			if err != nil {
				return err
			}
			defer rt.store.Close()

			summarizer := reduce.NewSummarizer(rt.router, rt.store, rt.client)
			executor := pipeline.NewExecutor(rt.policy, rt.statePath,
				summarizer.Map, nil, reduce.SyntheticSummary)
			executor.OnProgress = logProgress

			state, err := executor.Run(cmd.Context(), rt.fingerprint, rt.chunks)
			if err != nil {
				return err
			}

			byIndex := make(map[int]string)
			var failed []int
			for index, summary := range executor.Results(state, rt.chunks) {
				if summary.Failed {
					failed = append(failed, index)
					continue
				}
				byIndex[index] = summary.Text
			}

			final, err := reduce.Summaries(cmd.Context(), byIndex,
				summarizer.Combine, rt.policy.Concurrency)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"summary":       final,
				"total_chunks":  len(rt.chunks),
				"failed_chunks": failed,
			})
		},
	}
}

// setup loads config, reads and chunks the input, and wires the services.
func setup(opts *options) (*runtime, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(opts.inputPath)
	if err != nil {
		return nil, fmt.Errorf("reading input document: %w", err)
	}
	text := string(raw)

	chunkSize := cfg.Pipeline.ChunkSize
	if opts.chunkSize > 0 {
		chunkSize = opts.chunkSize
	}
	overlap := cfg.Pipeline.Overlap
	if opts.overlap >= 0 {
		overlap = opts.overlap
	}
	concurrency := cfg.Pipeline.Concurrency
	if opts.concurrency > 0 {
		concurrency = opts.concurrency
	}

	chunks := chunk.Split(text, chunkSize, overlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("input document %q is empty", opts.inputPath)
	}

	store, err := telemetry.NewStore(cfg.DataDir, telemetry.SeedsFromRegistry(cfg.BackendRegistry))
	if err != nil {
		return nil, err
	}

	slog.Info("Pipeline prepared",
		"input", opts.inputPath,
		"chunks", len(chunks),
		"chunk_size", chunkSize,
		"overlap", overlap,
		"concurrency", concurrency)

	return &runtime{
		cfg:         cfg,
		store:       store,
		router:      router.New(cfg.BackendRegistry, store, cfg.DefaultBackend),
		client:      llm.NewHTTPClient(cfg.LLM),
		text:        text,
		fingerprint: pipeline.Fingerprint(text),
		chunks:      chunks,
		statePath:   filepath.Join(opts.stateDir, pipeline.StateFile),
		policy: pipeline.Policy{
			Concurrency: concurrency,
			MaxRetries:  cfg.Pipeline.MaxRetries,
			BaseDelay:   cfg.Pipeline.BaseDelay,
			RetryFailed: opts.resume,
		},
	}, nil
}

func logProgress(p pipeline.Progress) {
	slog.Info("Progress", "completed", p.Completed, "failed", p.Failed, "total", p.Total)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
