package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/wellnessgrid/medrag/internal/config"
	"github.com/wellnessgrid/medrag/internal/ingest"
	"github.com/wellnessgrid/medrag/internal/log"
	"github.com/wellnessgrid/medrag/internal/model"
	"github.com/wellnessgrid/medrag/internal/registry"
	"github.com/wellnessgrid/medrag/internal/source"
	"github.com/wellnessgrid/medrag/internal/store"
)

var ingestFlags struct {
	force    bool
	clearDB  bool
	workers  int
	sources  string
	registry string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed configured sources into the vector store",
	Long: `Reads the sources file, fetches each source's content, chunks and embeds
it, and persists documents with their vectors. Sources whose content hash
matches the registry are skipped unless --force is given.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestFlags.force, "force", false, "re-embed sources even when unchanged")
	ingestCmd.Flags().BoolVar(&ingestFlags.clearDB, "clear-db", false, "truncate documents and chunks before ingesting")
	ingestCmd.Flags().IntVar(&ingestFlags.workers, "workers", 1, "concurrent ingestion workers")
	ingestCmd.Flags().StringVar(&ingestFlags.sources, "sources", "", "sources file (overrides config)")
	ingestCmd.Flags().StringVar(&ingestFlags.registry, "registry", "", "registry file (overrides config, file backend only)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if ingestFlags.sources != "" {
		cfg.SourcesPath = ingestFlags.sources
	}
	if ingestFlags.registry != "" {
		cfg.RegistryPath = ingestFlags.registry
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sources, err := source.Load(cfg.SourcesPath)
	if err != nil {
		return fmt.Errorf("loading sources: %w", err)
	}
	if len(sources) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sources configured, nothing to do.")
		return nil
	}
	logger.Info("loaded sources", "count", len(sources), "path", cfg.SourcesPath)

	client := model.NewClient(cfg.ModelServerURL, cfg.EmbedderModel, cfg.GeneratorModel)
	if err := model.VerifyDimension(ctx, client, cfg.EmbeddingDimension); err != nil {
		return fmt.Errorf("checking model server: %w", err)
	}

	pool, err := store.NewPool(ctx, cfg.PostgresURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()
	st := store.New(pool, logger)

	if ingestFlags.clearDB {
		if err := st.Clear(ctx); err != nil {
			return fmt.Errorf("clearing database: %w", err)
		}
		logger.Info("cleared documents and chunks")
	}

	reg, err := openRegistry(cfg, pool)
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}

	docs := fetchSources(ctx, cfg, sources, logger)
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No source content could be fetched.")
		return nil
	}

	stats, results, err := runPipeline(ctx, st, client, reg, cfg, ingestFlags.force, ingestFlags.workers, docs, logger)
	printSummary(cmd.OutOrStdout(), stats, results)
	return err
}

// runPipeline drives the ingestion orchestrator with a progress bar.
// Shared by the ingest and scrape commands.
func runPipeline(ctx context.Context, st ingest.DocumentStore, embedder model.Embedder, reg registry.Registry, cfg *config.Config, force bool, workers int, docs []ingest.Document, logger log.Logger) (ingest.Stats, []ingest.Result, error) {
	bar := newProgressBar(len(docs), "embedding")

	orch, err := ingest.New(st, embedder, reg, ingest.Options{
		MaxChunkSize:     cfg.MaxChunkSize,
		ChunkOverlap:     cfg.ChunkOverlap,
		MinContentLength: cfg.MinContentLength,
		EmbedBatchSize:   cfg.EmbedBatchSize,
		Dimension:        cfg.EmbeddingDimension,
		Force:            force,
		Workers:          workers,
		OnResult: func(ingest.Result) {
			_ = bar.Add(1)
		},
	}, logger)
	if err != nil {
		return ingest.Stats{}, nil, fmt.Errorf("configuring pipeline: %w", err)
	}

	stats, results, err := orch.Run(ctx, docs)
	_ = bar.Finish()
	return stats, results, err
}

// fetchSources resolves each source to an ingest document. Fetch failures
// are logged and skipped so one dead URL does not abort the run.
func fetchSources(ctx context.Context, cfg *config.Config, sources []source.Source, logger log.Logger) []ingest.Document {
	fetcher := source.NewFetcher(nil, cfg.Scraper.UserAgent, logger)

	docs := make([]ingest.Document, 0, len(sources))
	for _, s := range sources {
		content, err := fetcher.Fetch(ctx, s)
		if err != nil {
			logger.Warn("fetching source failed", "title", s.Title, "kind", s.Kind, "error", err)
			continue
		}
		docs = append(docs, ingest.Document{
			Title:       s.Title,
			Content:     content,
			Source:      sourceName(s),
			Topic:       s.Subcategory,
			URL:         s.URL,
			Category:    s.Category,
			Subcategory: s.Subcategory,
			SourceType:  string(s.Kind),
		})
	}
	return docs
}

// openRegistry builds the registry for the configured backend.
func openRegistry(cfg *config.Config, pool *pgxpool.Pool) (registry.Registry, error) {
	switch cfg.RegistryBackend {
	case config.RegistryBackendFile:
		return registry.NewFile(cfg.RegistryPath)
	case config.RegistryBackendPostgres:
		return registry.NewPostgres(pool), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidRegistryBackend, cfg.RegistryBackend)
	}
}

// sourceName labels where a document came from for search result display.
func sourceName(s source.Source) string {
	switch s.Kind {
	case source.KindURL, source.KindAPI:
		if u, err := url.Parse(s.URL); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
		return "web"
	case source.KindFile:
		return "local"
	default:
		return "inline"
	}
}

// newProgressBar renders progress on stderr, keeping stdout for the summary.
func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func printSummary(w io.Writer, stats ingest.Stats, results []ingest.Result) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run %s finished in %s\n", stats.RunID, stats.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  sources:             %d\n", stats.Total)
	fmt.Fprintf(w, "  ingested:            %d\n", stats.Ingested)
	fmt.Fprintf(w, "  skipped (unchanged): %d\n", stats.SkippedUnchanged)
	fmt.Fprintf(w, "  skipped (duplicate): %d\n", stats.SkippedDuplicate)
	fmt.Fprintf(w, "  skipped (empty):     %d\n", stats.SkippedEmpty)
	fmt.Fprintf(w, "  failed:              %d\n", stats.Failed)
	fmt.Fprintf(w, "  chunks created:      %d\n", stats.ChunksCreated)
	if stats.ChunksDropped > 0 {
		fmt.Fprintf(w, "  chunks dropped:      %d\n", stats.ChunksDropped)
	}

	for _, r := range results {
		if r.Outcome == ingest.OutcomeFailed {
			fmt.Fprintf(w, "  FAILED %s: %v\n", r.SourceID, r.Err)
		}
	}
}
