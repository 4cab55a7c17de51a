package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Aafreen2203/SafePostAI/internal/cache"
	"github.com/Aafreen2203/SafePostAI/internal/config"
	"github.com/Aafreen2203/SafePostAI/internal/doctor"
	"github.com/Aafreen2203/SafePostAI/internal/events"
	"github.com/Aafreen2203/SafePostAI/internal/history"
	"github.com/Aafreen2203/SafePostAI/internal/server"
)

var (
	serveAddr   string
	serveStrict bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scan API for the browser extension",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server_addr, "+config.DefaultServerAddr+")")
	serveCmd.Flags().BoolVar(&serveStrict, "strict", false, "refuse to start when a preflight check fails")
	rootCmd.AddCommand(serveCmd)
}

// namedCheck adapts a check function to server.Checker.
type namedCheck struct {
	name  string
	check func(ctx context.Context) error
}

func (c namedCheck) Name() string                    { return c.name }
func (c namedCheck) Check(ctx context.Context) error { return c.check(ctx) }

func healthChecks(a *app) []server.Checker {
	checks := []server.Checker{namedCheck{name: "history", check: func(ctx context.Context) error {
		_, err := a.history.List(ctx, history.Filter{Limit: 1})
		return err
	}}}
	if r, ok := a.cache.(*cache.Redis); ok {
		checks = append(checks, namedCheck{name: "report_cache", check: r.Ping})
	}
	if n, ok := a.events.(*events.NATS); ok {
		checks = append(checks, namedCheck{name: "event_bus", check: func(context.Context) error {
			if !n.Connected() {
				return errors.New("not connected")
			}
			return nil
		}})
	}
	return checks
}

// preflight runs the doctor checks and fails on the first failing one.
func preflight(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	report := doctor.RunWith(ctx, cfg, doctor.Options{})
	for _, c := range report.Checks {
		if c.Status == doctor.StatusFail {
			return fmt.Errorf("preflight check %s failed: %s", c.Name, c.Message)
		}
		if c.Status == doctor.StatusWarn {
			log.Warn().Str("check", c.Name).Str("fix", c.Fix).Msg(c.Message)
		}
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveStrict {
		if err := preflight(ctx, cfg); err != nil {
			return err
		}
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	retention := history.NewRetention(a.history, cfg.HistoryRetention)
	if cfg.HistoryRetention > 0 {
		if err := retention.Schedule(cfg.HistoryRetentionSchedule); err != nil {
			return err
		}
		retention.Start()
		defer retention.Stop()
	}

	if len(cfg.APIKeys) == 0 {
		log.Warn().Msg("SAFEPOST_API_KEYS not set; the API accepts anonymous requests. Keep server_addr on loopback.")
	}

	srv := server.NewServer(a.service, a.history,
		server.WithAPIKeys(cfg.APIKeys),
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithRateLimiter(server.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitPerKeyRPS)),
		server.WithMaxImageMB(cfg.MaxImageMB),
		server.WithTrustProxy(cfg.TrustProxy),
		server.WithCheckers(healthChecks(a)...),
		server.WithSettings(cfg.Masked()),
		server.WithVersion(resolvedVersion()),
	)

	addr := serveAddr
	if addr == "" {
		addr = cfg.ServerAddr
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Int("cron_entries", retention.Entries()).
		Str("preferred_provider", string(cfg.PreferredProvider)).
		Bool("cache", cfg.RedisAddr != "").
		Bool("events", cfg.NATSURL != "").
		Msg("safepost_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
