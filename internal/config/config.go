// Package config provides configuration loading and structs for the toi server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the question database, index artifacts,
// and the optional drop directory for auto-ingest.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexDir     string `yaml:"index_dir"`
	WatchDir     string `yaml:"watch_dir"`
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	ModelPath string `yaml:"model_path"`
	ModelName string `yaml:"model_name"`
	Dimension int    `yaml:"dimension"`
	MaxTokens int    `yaml:"max_tokens"`
	CacheSize int    `yaml:"cache_size"`
	BatchSize int    `yaml:"batch_size"`
}

// IndexConfig holds vector index settings. Kind is "flat" for exact search or
// "clustered" for partitioned approximate search. MinTrainingSamples is both
// the cluster count and the minimum first-batch size required to train.
type IndexConfig struct {
	Kind               string `yaml:"kind"`
	MinTrainingSamples int    `yaml:"min_training_samples"`
	NProbe             int    `yaml:"nprobe"`
}

// RetrievalConfig holds query and chunking settings.
type RetrievalConfig struct {
	DefaultTopK      int    `yaml:"default_top_k"`
	MaxTopK          int    `yaml:"max_top_k"`
	ChunkingStrategy string `yaml:"chunking_strategy"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	if cfg.Storage.WatchDir != "" {
		cfg.Storage.WatchDir = expandPath(cfg.Storage.WatchDir, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	if cfg.Index.Kind != "flat" && cfg.Index.Kind != "clustered" {
		return nil, fmt.Errorf("unknown index kind %q (supported: flat, clustered)", cfg.Index.Kind)
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
