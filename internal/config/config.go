package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all mnemo configuration.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Search        SearchConfig        `yaml:"search"`
	Decay         DecayConfig         `yaml:"decay"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "hash", "ollama"
	OllamaURL  string `yaml:"ollama_url"`
	Model      string `yaml:"model"` // e.g. "nomic-embed-text"
	Dimensions int    `yaml:"dimensions"`
	Required   bool   `yaml:"required"` // fail instead of degrading to keyword-only
}

type SearchConfig struct {
	VectorWeight   float64 `yaml:"vector_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	CandidateLimit int     `yaml:"candidate_limit"`
}

type DecayConfig struct {
	HalfLifeDays    float64 `yaml:"half_life_days"`
	AccessBonusDays float64 `yaml:"access_bonus_days"`
	MaxHalfLifeDays float64 `yaml:"max_half_life_days"`
	Floor           float64 `yaml:"floor"`
}

type ConsolidationConfig struct {
	ClusterThreshold   float64 `yaml:"cluster_threshold"`
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	MaxClusterSize     int     `yaml:"max_cluster_size"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			OllamaURL:  "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 384,
			Required:   false,
		},
		Search: SearchConfig{
			VectorWeight:   0.7,
			KeywordWeight:  0.3,
			CandidateLimit: 50,
		},
		Decay: DecayConfig{
			HalfLifeDays:    90,
			AccessBonusDays: 30,
			MaxHalfLifeDays: 730,
			Floor:           0.05,
		},
		Consolidation: ConsolidationConfig{
			ClusterThreshold:   0.80,
			DuplicateThreshold: 0.92,
			MaxClusterSize:     10,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error: defaults apply. The MNEMO_DB environment variable, when set,
// overrides the database path last.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if env := os.Getenv("MNEMO_DB"); env != "" {
		cfg.Database.Path = env
	}
	return cfg, nil
}
