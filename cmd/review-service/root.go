package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/nitesh/exchange_reviews/internal/api"
	"github.com/nitesh/exchange_reviews/internal/cache"
	"github.com/nitesh/exchange_reviews/internal/config"
	dbtypes "github.com/nitesh/exchange_reviews/internal/db"
	"github.com/nitesh/exchange_reviews/internal/llm"
	"github.com/nitesh/exchange_reviews/internal/logger"
	"github.com/nitesh/exchange_reviews/internal/service"
	"github.com/nitesh/exchange_reviews/internal/source"
	"github.com/nitesh/exchange_reviews/internal/store"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:          "review-service",
		Short:        "Exchange review ingestion and read API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (defaults to $REVIEWS_CONFIG)")

	root.AddCommand(
		newServeCmd(&cfgFile),
		newIngestCmd(&cfgFile),
		newMigrateCmd(&cfgFile),
		newAdminTokenCmd(&cfgFile),
	)
	return root
}

// app holds everything a command needs; close releases it.
type app struct {
	cfg    config.Config
	log    *logger.Logger
	svc    *service.Service
	tokens api.TokenService
	close  func()
}

func loadConfig(cfgFile string) (config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.Logging.Mode)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

func tokenService(cfg config.AdminConfig) api.TokenService {
	return api.TokenService{Secret: []byte(cfg.TokenSecret), Issuer: cfg.Issuer, Duration: cfg.TokenTTL}
}

func openDB(ctx context.Context, cfg config.Config, log *logger.Logger) (*sqlx.DB, error) {
	conn, err := dbtypes.Open(ctx, cfg.Database.Driver, cfg.Database.DataSourceName(), cfg.Database.ConnectAttempts, log)
	if err != nil {
		return nil, err
	}
	if err := store.RunMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return conn, nil
}

func buildCache(ctx context.Context, cfg config.CacheConfig, log *logger.Logger) (cache.AggregateCache, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemoryCache(cfg.TTL), func() {}, nil
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using redis aggregate cache", "addr", cfg.RedisAddr)
		return rc, func() { _ = rc.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func newApp(ctx context.Context, cfgFile string) (*app, error) {
	cfg, log, err := loadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	conn, err := openDB(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	aggCache, closeCache, err := buildCache(ctx, cfg.Cache, log)
	if err != nil {
		_ = conn.Close()
		log.Sync()
		return nil, err
	}

	if cfg.Scorer.APIKey == "" {
		log.Warn("no LLM api key configured; scoring calls will fail")
	}
	client := llm.NewClient(cfg.Scorer, nil, log)

	svc := service.NewService(service.Deps{
		Store:       store.NewPgStore(conn),
		Cache:       aggCache,
		Scorer:      client,
		Synthesizer: client,
		Sources: []source.Source{
			source.NewTabular(cfg.Sources.Tabular, log),
			source.NewMarkup(cfg.Sources.Markup, log),
		},
		PacingDelay: cfg.Pipeline.PacingDelay,
		Log:         log,
	})

	return &app{
		cfg:    cfg,
		log:    log,
		svc:    svc,
		tokens: tokenService(cfg.Admin),
		close: func() {
			closeCache()
			_ = conn.Close()
			log.Sync()
		},
	}, nil
}

const (
	shutdownTimeout    = 10 * time.Second
	ingestDrainTimeout = 5 * time.Minute
)
