// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (MEDRAG_* and DATABASE_URL)
//  2. Config file (~/.medrag/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Storage: PostgreSQL + pgvector connection (see storage.go)
//   - Models: embedding/generation model server endpoints and dimension
//   - Pipeline: chunking parameters and registry location
//   - Scraper: politeness and content filter settings
//
// Security: the PostgreSQL password is never logged and is masked in
// MarshalJSON. Validation lives in validation.go and uses sentinel errors
// checkable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidModelServer indicates a model server URL is invalid.
	ErrInvalidModelServer = errors.New("invalid model server URL")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidChunkSize indicates the chunk size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidChunkOverlap indicates the chunk overlap is incompatible
	// with the chunk size. This is fatal: an overlap >= chunk size would
	// make the chunker loop forever.
	ErrInvalidChunkOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidTopK indicates the search top-K is out of range.
	ErrInvalidTopK = errors.New("invalid search top-k")

	// ErrInvalidRegistryBackend indicates an unknown registry backend name.
	ErrInvalidRegistryBackend = errors.New("invalid registry backend")
)

// Embedding model defaults. The pipeline is tuned for PubMedBERT-style
// sentence embeddings served over HTTP.
const (
	// DefaultEmbedderModel is the medical-domain embedding model served by
	// the model server. It outputs 768-dimensional vectors; the pgvector
	// schema in db/migrations matches.
	DefaultEmbedderModel = "pubmedbert-base-embeddings"

	// DefaultGeneratorModel is the generation model for /api/generate.
	DefaultGeneratorModel = "biomistral-7b"

	// DefaultEmbeddingDimension is the vector dimension the whole pipeline
	// assumes. Verified against the live model at startup.
	DefaultEmbeddingDimension = 768
)

// Registry backend identifiers used in Config.RegistryBackend.
const (
	RegistryBackendFile     = "file"
	RegistryBackendPostgres = "postgres"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Model server configuration
	ModelServerURL     string `mapstructure:"model_server_url" json:"model_server_url"`
	EmbedderModel      string `mapstructure:"embedder_model" json:"embedder_model"`
	GeneratorModel     string `mapstructure:"generator_model" json:"generator_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension" json:"embedding_dimension"`

	// Pipeline configuration
	MaxChunkSize     int    `mapstructure:"max_chunk_size" json:"max_chunk_size"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	MinContentLength int    `mapstructure:"min_content_length" json:"min_content_length"`
	EmbedBatchSize   int    `mapstructure:"embed_batch_size" json:"embed_batch_size"`
	RegistryBackend  string `mapstructure:"registry_backend" json:"registry_backend"`
	RegistryPath     string `mapstructure:"registry_path" json:"registry_path"`
	SourcesPath      string `mapstructure:"sources_path" json:"sources_path"`

	// Search configuration
	SearchTopK int `mapstructure:"search_top_k" json:"search_top_k"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP API configuration
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`

	// Scraper configuration (see scrape package for semantics)
	Scraper ScraperConfig `mapstructure:"scraper" json:"scraper"`
}

// ScraperConfig holds scraper politeness and content filter settings.
type ScraperConfig struct {
	UserAgent             string   `mapstructure:"user_agent" json:"user_agent"`
	RequestDelayMS        int      `mapstructure:"request_delay_ms" json:"request_delay_ms"`
	TimeoutMS             int      `mapstructure:"timeout_ms" json:"timeout_ms"`
	MaxDocumentsPerSource int      `mapstructure:"max_documents_per_source" json:"max_documents_per_source"`
	MinWordCount          int      `mapstructure:"min_word_count" json:"min_word_count"`
	MaxWordCount          int      `mapstructure:"max_word_count" json:"max_word_count"`
	RequiredKeywords      []string `mapstructure:"required_keywords" json:"required_keywords"`
	ExcludedKeywords      []string `mapstructure:"excluded_keywords" json:"excluded_keywords"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".medrag")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults(configDir)
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(configDir string) {
	// Model server defaults (local embedding/generation server)
	viper.SetDefault("model_server_url", "http://localhost:5000")
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("generator_model", DefaultGeneratorModel)
	viper.SetDefault("embedding_dimension", DefaultEmbeddingDimension)

	// Pipeline defaults
	viper.SetDefault("max_chunk_size", 1000)
	viper.SetDefault("chunk_overlap", 200)
	viper.SetDefault("min_content_length", 50)
	viper.SetDefault("embed_batch_size", 16)
	viper.SetDefault("registry_backend", RegistryBackendFile)
	viper.SetDefault("registry_path", filepath.Join(configDir, "embedded_registry.json"))
	viper.SetDefault("sources_path", "sources_to_embed.json")

	// Search defaults
	viper.SetDefault("search_top_k", 5)

	// PostgreSQL defaults for local development
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "medrag")
	viper.SetDefault("postgres_password", "medrag_dev_password")
	viper.SetDefault("postgres_db_name", "medrag")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// HTTP API defaults
	viper.SetDefault("server_addr", "127.0.0.1:5100")

	// Scraper defaults
	viper.SetDefault("scraper.user_agent", "WellnessGrid-Medical-RAG/1.0 (Educational Research)")
	viper.SetDefault("scraper.request_delay_ms", 2000)
	viper.SetDefault("scraper.timeout_ms", 30000)
	viper.SetDefault("scraper.max_documents_per_source", 20)
	viper.SetDefault("scraper.min_word_count", 100)
	viper.SetDefault("scraper.max_word_count", 50000)
	viper.SetDefault("scraper.required_keywords", defaultRequiredKeywords)
	viper.SetDefault("scraper.excluded_keywords", defaultExcludedKeywords)
}

// defaultRequiredKeywords gate scraped content: at least two must appear for a
// page to count as medical text.
var defaultRequiredKeywords = []string{
	"health", "medical", "disease", "treatment", "symptom", "patient",
	"diagnosis", "therapy", "medicine", "clinical", "condition", "doctor",
}

// defaultExcludedKeywords reject non-content pages outright.
var defaultExcludedKeywords = []string{
	"cookie policy", "terms of service", "privacy policy", "advertisement",
}

// bindEnvVariables binds environment overrides explicitly.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_server_url", "MEDRAG_MODEL_SERVER_URL")
	mustBind("embedder_model", "MEDRAG_EMBEDDER_MODEL")
	mustBind("generator_model", "MEDRAG_GENERATOR_MODEL")
	mustBind("embedding_dimension", "MEDRAG_EMBEDDING_DIMENSION")
	mustBind("registry_path", "MEDRAG_REGISTRY_PATH")
	mustBind("sources_path", "MEDRAG_SOURCES_PATH")
	mustBind("server_addr", "MEDRAG_SERVER_ADDR")
	mustBind("postgres_password", "MEDRAG_POSTGRES_PASSWORD")

	// NOTE: DATABASE_URL is parsed separately in parseDatabaseURL() because
	// it expands into several postgres_* fields at once.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "********"

// MarshalJSON implements json.Marshaler with sensitive field masking.
// The postgres password never appears in serialized config (logs, debug dumps).
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // Avoid infinite recursion
	masked := alias(*c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = maskedValue
	}
	return json.Marshal(masked)
}
