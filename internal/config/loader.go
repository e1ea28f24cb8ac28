package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists known transcription backend names.
// Used by [Validate] to warn about unrecognised names.
var ValidBackendNames = []string{"openai", "whisper", "whisper-native"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Audio chunking
	if cfg.Audio.ChunkPeriod < 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_period %v must not be negative", cfg.Audio.ChunkPeriod))
	}
	if cfg.Audio.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_overlap %v must not be negative", cfg.Audio.ChunkOverlap))
	}
	if cfg.Audio.MinChunk < 0 {
		errs = append(errs, fmt.Errorf("audio.min_chunk %v must not be negative", cfg.Audio.MinChunk))
	}
	if cfg.Audio.ChunkPeriod > 0 && cfg.Audio.ChunkOverlap >= cfg.Audio.ChunkPeriod {
		errs = append(errs, fmt.Errorf("audio.chunk_overlap %v must be smaller than audio.chunk_period %v", cfg.Audio.ChunkOverlap, cfg.Audio.ChunkPeriod))
	}

	// Backends
	if cfg.Backend.Primary.Name == "" {
		errs = append(errs, errors.New("backend.primary.name is required"))
	} else {
		validateBackendName("backend.primary", cfg.Backend.Primary.Name)
	}
	for i, fb := range cfg.Backend.Fallbacks {
		prefix := fmt.Sprintf("backend.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateBackendName(prefix, fb.Name)
	}
	if cfg.Backend.Workers < 0 {
		errs = append(errs, fmt.Errorf("backend.workers %d must not be negative", cfg.Backend.Workers))
	}
	if cfg.Backend.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("backend.call_timeout %v must not be negative", cfg.Backend.CallTimeout))
	}
	if cfg.Backend.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("backend.drain_timeout %v must not be negative", cfg.Backend.DrainTimeout))
	}

	// Persistence availability
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; transcripts will be kept in memory only")
	}

	return errors.Join(errs...)
}

// validateBackendName logs a warning if name is not found in
// [ValidBackendNames].
func validateBackendName(where, name string) {
	if slices.Contains(ValidBackendNames, name) {
		return
	}
	slog.Warn("unknown backend name — may be a typo or third-party backend",
		"where", where,
		"name", name,
		"known", ValidBackendNames,
	)
}
