package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wellnessgrid/medrag/api"
	"github.com/wellnessgrid/medrag/internal/config"
	"github.com/wellnessgrid/medrag/internal/model"
	"github.com/wellnessgrid/medrag/internal/store"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Serves similarity search, retrieval-augmented generation and embedding
over HTTP. Shuts down gracefully on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.ServerAddr
	if serveFlags.addr != "" {
		addr = serveFlags.addr
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.PostgresURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool, logger)
	client := model.NewClient(cfg.ModelServerURL, cfg.EmbedderModel, cfg.GeneratorModel)

	docs, err := st.CountDocuments(ctx)
	if err != nil {
		return fmt.Errorf("checking store: %w", err)
	}
	logger.Info("store ready", "documents", docs)

	server := api.NewServer(api.Config{
		Pool:          pool,
		Store:         st,
		Embedder:      client,
		Generator:     client,
		EmbedderModel: cfg.EmbedderModel,
		Dimension:     cfg.EmbeddingDimension,
		DefaultTopK:   cfg.SearchTopK,
		Logger:        logger,
	})

	return server.Run(ctx, addr)
}
