package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wellnessgrid/medrag/internal/config"
	"github.com/wellnessgrid/medrag/internal/ingest"
	"github.com/wellnessgrid/medrag/internal/model"
	"github.com/wellnessgrid/medrag/internal/scrape"
	"github.com/wellnessgrid/medrag/internal/store"
)

var scrapeFlags struct {
	endpoints string
	force     bool
	workers   int
	dryRun    bool
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Crawl medical sites and ingest what passes validation",
	Long: `Crawls the configured endpoints (page paths and RSS/Atom feeds), keeps
pages that pass the medical content filter, and runs them through the same
chunk-embed-persist pipeline as ingest. With --dry-run the scraped documents
are listed without touching the model server or the database.`,
	RunE: runScrape,
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeFlags.endpoints, "endpoints", "scrape_endpoints.json", "endpoints file")
	scrapeCmd.Flags().BoolVar(&scrapeFlags.force, "force", false, "re-embed documents even when unchanged")
	scrapeCmd.Flags().IntVar(&scrapeFlags.workers, "workers", 1, "concurrent ingestion workers")
	scrapeCmd.Flags().BoolVar(&scrapeFlags.dryRun, "dry-run", false, "scrape and validate only, do not embed")
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	endpoints, err := loadEndpoints(scrapeFlags.endpoints)
	if err != nil {
		return fmt.Errorf("loading endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No endpoints configured, nothing to do.")
		return nil
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scraper := scrape.New(cfg.Scraper, logger)

	var docs []ingest.Document
	for _, ep := range endpoints {
		logger.Info("scraping endpoint", "name", ep.Name, "base_url", ep.BaseURL)
		scraped, err := scraper.Scrape(ctx, ep)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.Warn("endpoint failed", "name", ep.Name, "error", err)
			continue
		}
		for _, d := range scraped {
			docs = append(docs, ingest.Document{
				Title:       d.Title,
				Content:     d.Content,
				Source:      ep.Name,
				Topic:       d.Topic,
				URL:         d.URL,
				Category:    d.Category,
				Subcategory: d.Subcategory,
				SourceType:  "scraped",
			})
		}
	}

	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents passed validation.")
		return nil
	}
	logger.Info("scraping finished", "documents", len(docs))

	if scrapeFlags.dryRun {
		for _, d := range docs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%s/%s, %d bytes)\n", d.ID(), d.Title, d.Category, d.Topic, len(d.Content))
		}
		return nil
	}

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

	reg, err := openRegistry(cfg, pool)
	if err != nil {
		return fmt.Errorf("opening registry: %w", err)
	}

	stats, results, err := runPipeline(ctx, st, client, reg, cfg, scrapeFlags.force, scrapeFlags.workers, docs, logger)
	printSummary(cmd.OutOrStdout(), stats, results)
	return err
}

// loadEndpoints reads the endpoints file: a JSON array of scrape endpoints.
func loadEndpoints(path string) ([]scrape.Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var endpoints []scrape.Endpoint
	if err := json.Unmarshal(data, &endpoints); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, ep := range endpoints {
		if ep.Name == "" || ep.BaseURL == "" {
			return nil, fmt.Errorf("endpoint missing name or base_url in %s", path)
		}
	}
	return endpoints, nil
}
