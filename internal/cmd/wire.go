package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Aafreen2203/SafePostAI/internal/cache"
	"github.com/Aafreen2203/SafePostAI/internal/config"
	"github.com/Aafreen2203/SafePostAI/internal/content"
	"github.com/Aafreen2203/SafePostAI/internal/events"
	"github.com/Aafreen2203/SafePostAI/internal/history"
	"github.com/Aafreen2203/SafePostAI/internal/pipeline"
	"github.com/Aafreen2203/SafePostAI/internal/scan"
	"github.com/Aafreen2203/SafePostAI/internal/secrets"
	"github.com/Aafreen2203/SafePostAI/internal/verdict"
)

// loadConfig loads configuration and prepares the data directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKeys()
	return cfg, nil
}

func openSecretsStore(cfg *config.Config) (*secrets.Store, error) {
	store, err := secrets.NewStore(cfg.SecretsDBPath(), cfg.SecretsKey)
	if err != nil {
		return nil, fmt.Errorf("initializing credential store: %w", err)
	}
	return store, nil
}

func openHistoryStore(cfg *config.Config) (*history.Store, error) {
	store, err := history.NewStore(cfg.HistoryDBPath(), cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("initializing scan history: %w", err)
	}
	return store, nil
}

// app is everything a scan needs, opened from one configuration.
type app struct {
	cfg     *config.Config
	secrets *secrets.Store
	history *history.Store
	cache   cache.Cache
	events  events.Publisher
	service *scan.Service
}

// openApp opens the stores and optional collaborators and builds the
// scan service. Redis and NATS failures degrade to no-ops.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	rt := &app{cfg: cfg, cache: cache.Nop{}, events: events.Nop{}}

	var err error
	if rt.secrets, err = openSecretsStore(cfg); err != nil {
		return nil, err
	}
	if rt.history, err = openHistoryStore(cfg); err != nil {
		rt.Close()
		return nil, err
	}

	if cfg.RedisAddr != "" {
		c, err := cache.NewRedis(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("report_cache_unavailable")
		} else {
			rt.cache = c
		}
	}
	if cfg.NATSURL != "" {
		p, err := events.NewNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATSURL).Msg("event_bus_unavailable")
		} else {
			rt.events = p
		}
	}

	engine, err := verdict.NewEngine(ctx,
		verdict.WithBlockThreshold(cfg.BlockThreshold),
		verdict.WithWarnThreshold(cfg.WarnThreshold),
	)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("initializing verdict policy: %w", err)
	}

	orch := pipeline.New(
		pipeline.WithRemotes(pipeline.NewCredentialBuilder(cfg.RemoteOptions())),
		pipeline.WithAdapterTimeout(cfg.AdapterTimeout),
	)
	rt.service = scan.NewService(orch, engine, cfg.Analysis(nil),
		scan.WithCredentials(rt.secrets),
		scan.WithHistory(rt.history),
		scan.WithCache(rt.cache),
		scan.WithEvents(rt.events),
		scan.WithImageDecoder(content.NewImageDecoder(cfg.MaxImageMB)),
	)
	return rt, nil
}

// Close releases every opened collaborator.
func (rt *app) Close() {
	if rt.events != nil {
		rt.events.Close()
	}
	if rt.cache != nil {
		_ = rt.cache.Close()
	}
	if rt.history != nil {
		_ = rt.history.Close()
	}
	if rt.secrets != nil {
		_ = rt.secrets.Close()
	}
}
