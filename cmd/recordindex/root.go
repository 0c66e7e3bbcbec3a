package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/recordindex/internal/config"
	"github.com/dshills/recordindex/internal/embedder"
	"github.com/dshills/recordindex/internal/indexer"
	"github.com/dshills/recordindex/internal/logging"
	"github.com/dshills/recordindex/internal/reranker"
	"github.com/dshills/recordindex/internal/searcher"
	"github.com/dshills/recordindex/internal/storage"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "recordindex",
	Short: "Tenant-scoped hybrid search over business records",
	Long: `recordindex keeps a searchable index of business records (companies,
contacts, contracts, meetings, tasks and pages) in step with the application
that owns them, and answers tenant-scoped hybrid queries that fuse vector
similarity and full-text ranking.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// .env is optional; real environment variables win
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (default ./"+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// app holds the wired components shared by every command
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    storage.Store
	embedder embedder.Embedder
	searcher *searcher.Searcher
	indexer  *indexer.Indexer
}

// openApp loads configuration and wires storage, embedder, reranker,
// searcher and indexer. With checkSpace set it also verifies the index was
// built in the configured embedding space.
func openApp(ctx context.Context, checkSpace bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, store: store}

	a.embedder, err = embedder.New(cfg.EmbedderOptions())
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("embedder: %w", err)
	}

	rr, err := reranker.New(cfg.RerankerOptions())
	if errors.Is(err, reranker.ErrUnavailable) {
		logger.Warn().Err(err).Msg("reranker disabled")
		rr = reranker.Noop{}
	} else if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("reranker: %w", err)
	}

	a.searcher, err = searcher.NewSearcher(store, a.embedder, rr, cfg.SearchOptions(), logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.indexer = indexer.New(store, a.embedder, cfg.IndexerOptions(), logger)
	a.indexer.AddInvalidator(a.searcher)

	if checkSpace {
		if err := a.indexer.EnsureReady(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	logger.Debug().
		Str("driver", cfg.Storage.Driver).
		Str("embedder", a.embedder.Provider()+"/"+a.embedder.Model()).
		Str("reranker", rr.Name()).
		Msg("components ready")

	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
