// Package cmd implements the medrag command line interface.
//
// Commands:
//
//	medrag ingest    embed configured sources into the vector store
//	medrag scrape    crawl medical sites and ingest what passes validation
//	medrag serve     run the HTTP API (search, generate, embed)
//	medrag migrate   apply database migrations
//	medrag sources   inspect the sources file
//	medrag version   show version information
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wellnessgrid/medrag/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "medrag",
	Short: "Medical document embedding pipeline and retrieval API",
	Long: `medrag scrapes, validates, chunks and embeds medical documents into a
PostgreSQL + pgvector store, and serves similarity search and
retrieval-augmented generation over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG in the environment switches to
// debug level. Logs go to stderr so command output stays clean on stdout.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)
	return logger
}
