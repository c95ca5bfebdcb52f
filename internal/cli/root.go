package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mnemo-sh/mnemo/internal/config"
	"github.com/mnemo-sh/mnemo/internal/engine"
	"github.com/mnemo-sh/mnemo/internal/store"
)

var (
	flagDB     string
	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Hybrid retrieval memory for personal assistants",
	Long:  "Mnemo stores free-text memories in a single SQLite file and retrieves them by fused vector and keyword relevance, with query-time decay and on-demand consolidation.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Database path (overrides config and MNEMO_DB)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default ~/.mnemo/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(reinforceCmd)
	rootCmd.AddCommand(reembedCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(statsCmd)
}

func loadConfig() (config.Config, error) {
	path := flagConfig
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".mnemo", "config.yaml")
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if flagDB != "" {
		cfg.Database.Path = flagDB
	}
	return cfg, nil
}

// openEngine builds the engine for CLI commands. The returned func closes
// the database.
func openEngine() (*engine.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	path := cfg.Database.Path
	if path == "" {
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, err
		}
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}

	e := engine.New(db, newEmbedder(cfg.Embedding), engine.Params{
		VectorWeight:      cfg.Search.VectorWeight,
		KeywordWeight:     cfg.Search.KeywordWeight,
		CandidateLimit:    cfg.Search.CandidateLimit,
		EmbeddingRequired: cfg.Embedding.Required,
		Decay: engine.DecayParams{
			HalfLifeDays:    cfg.Decay.HalfLifeDays,
			AccessBonusDays: cfg.Decay.AccessBonusDays,
			MaxHalfLifeDays: cfg.Decay.MaxHalfLifeDays,
			Floor:           cfg.Decay.Floor,
		},
		ClusterThreshold:   cfg.Consolidation.ClusterThreshold,
		DuplicateThreshold: cfg.Consolidation.DuplicateThreshold,
		MaxClusterSize:     cfg.Consolidation.MaxClusterSize,
	})
	return e, func() { db.Close() }, nil
}

// newEmbedder wraps the configured provider in a lazy handle so the model
// is only loaded (or probed) when a command actually embeds something.
func newEmbedder(c config.EmbeddingConfig) engine.Embedder {
	return engine.NewLazyEmbedder(func() (engine.Embedder, error) {
		switch c.Provider {
		case "ollama":
			if !engine.ProbeOllama(c.OllamaURL, c.Model) {
				return nil, fmt.Errorf("ollama not reachable at %s", c.OllamaURL)
			}
			return engine.NewOllamaEmbedder(c.OllamaURL, c.Model, c.Dimensions), nil
		default:
			return engine.NewHashEmbedder(c.Dimensions), nil
		}
	})
}
