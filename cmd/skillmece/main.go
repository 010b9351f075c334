package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ai"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/config"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/embedding"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ingest"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/logging"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/metrics"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/orchestrator"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/resilience"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/storage"
)

// Exit codes.
const (
	exitFailed = 1
	exitSchema = 2
)

var (
	configPath string
	dbPath     string
	logLevel   string
	logMode    string

	cfg       *config.Config
	store     storage.Storage
	log       *logging.Logger
	collector *metrics.Collector
)

var rootCmd = &cobra.Command{
	Use:   "skillmece",
	Short: "Detect redundant skills and validate taxonomy exclusivity",
	Long: `skillmece groups near-duplicate skill descriptions into master concepts and
checks a skill taxonomy for overlapping nodes. Every batch run is checkpointed;
an interrupted run resumes automatically when started again with the same input.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			fail(err)
		}
		if dbPath != "" {
			cfg.Storage.Path = dbPath
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if logMode != "" {
			cfg.Logging.Mode = logMode
		}

		log, err = logging.New(cfg.Logging.Mode, cfg.Logging.Level)
		if err != nil {
			fail(fmt.Errorf("failed to create logger: %w", err))
		}
		collector = metrics.NewCollector()

		store, err = storage.NewStorage(context.Background(), cfg.Storage)
		if err != nil {
			fail(fmt.Errorf("failed to open storage: %w", err))
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path, overrides storage.path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Log output: dev or prod")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitFailed)
	}
}

func closeAll() {
	if store != nil {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to close storage: %v\n", err)
		}
		store = nil
	}
	if log != nil {
		log.Sync()
	}
}

// fail prints err and exits. Input schema violations exit with 2.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	closeAll()
	if ingest.IsSchemaError(err) {
		os.Exit(exitSchema)
	}
	os.Exit(exitFailed)
}

// newOrchestrator wires the orchestrator. Batch commands need the embedding
// service; the LLM adjudicator is optional and skipped with noLLM.
func newOrchestrator(batch, noLLM bool) *orchestrator.Orchestrator {
	oc := &orchestrator.Config{
		Store:    store,
		Settings: cfg,
		Logger:   log,
		Metrics:  collector,
	}
	if batch {
		svc, err := embedding.NewOpenAIService(cfg.Embedding)
		if err != nil {
			fail(err)
		}
		oc.Embedder = svc

		if cfg.LLM.Enabled && !noLLM {
			exec := resilience.New("llm",
				resilience.OptionsFrom(cfg.Retry, cfg.Batch.Concurrency, cfg.LLM.RequestsPerSecond), log)
			exec.OnFailure = func(error) { collector.ExternalError("llm") }
			adj, err := ai.NewClaudeAdjudicator(cfg.LLM, exec, log, collector)
			if err != nil {
				fail(fmt.Errorf("%w (use --no-llm for rule-only classification)", err))
			}
			oc.Adjudicator = adj
		}
	}
	o, err := orchestrator.New(oc)
	if err != nil {
		fail(err)
	}
	return o
}
