package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Model server validation
	if err := validateServerURL(c.ModelServerURL); err != nil {
		return err
	}

	// Dimension must match what the pgvector schema declares. 4096 is a
	// generous ceiling covering every embedding model in common use.
	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d",
			ErrInvalidDimension, c.EmbeddingDimension)
	}

	// 2. Chunking validation — these are the chunker preconditions; catching
	// them here aborts the run before any document is touched.
	if c.MaxChunkSize < 1 {
		return fmt.Errorf("%w: max_chunk_size must be positive, got %d",
			ErrInvalidChunkSize, c.MaxChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap cannot be negative, got %d",
			ErrInvalidChunkOverlap, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.MaxChunkSize {
		return fmt.Errorf("%w: chunk_overlap (%d) must be smaller than max_chunk_size (%d)",
			ErrInvalidChunkOverlap, c.ChunkOverlap, c.MaxChunkSize)
	}

	// 3. Search validation
	if c.SearchTopK < 1 || c.SearchTopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.SearchTopK)
	}

	// 4. Registry backend validation
	if c.RegistryBackend != RegistryBackendFile && c.RegistryBackend != RegistryBackendPostgres {
		return fmt.Errorf("%w: %q, must be %q or %q",
			ErrInvalidRegistryBackend, c.RegistryBackend, RegistryBackendFile, RegistryBackendPostgres)
	}

	// 5. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	if c.PostgresPassword == "medrag_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// 6. PostgreSQL SSL mode validation. Modern modes only — the deprecated
	// allow/prefer modes are MITM-vulnerable.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

// validateServerURL checks that the model server URL is an absolute http(s) URL.
func validateServerURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: model_server_url cannot be empty", ErrInvalidModelServer)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModelServer, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidModelServer, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrInvalidModelServer, raw)
	}
	return nil
}
