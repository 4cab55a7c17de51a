// Package cache stores finished reports in Redis so identical inputs under an
// identical configuration skip the analyzers.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/cache")

// DefaultTTL is used when a zero TTL is configured.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "safepost:report:"

// Cache looks reports up by key.
type Cache interface {
	Get(ctx context.Context, key string) (*risk.Report, bool, error)
	Set(ctx context.Context, key string, report *risk.Report) error
	Close() error
}

// Key derives the cache key for an input of the given kind analyzed under a
// configuration fingerprint.
func Key(kind, input, fingerprint string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(input))
	return hex.EncodeToString(h.Sum(nil))
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis is a Cache backed by a Redis server.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts Options) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	log.Info().Str("addr", opts.Addr).Dur("ttl", ttl).Msg("report_cache_connected")
	return &Redis{rdb: rdb, ttl: ttl}, nil
}

// Get returns the cached report, if any.
func (c *Redis) Get(ctx context.Context, key string) (*risk.Report, bool, error) {
	ctx, span := tracer.Start(ctx, "cache.get")
	defer span.End()

	data, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("reading cached report: %w", err)
	}

	var report risk.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false, fmt.Errorf("decoding cached report: %w", err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return &report, true, nil
}

// Set stores report under key for the configured TTL.
func (c *Redis) Set(ctx context.Context, key string, report *risk.Report) error {
	ctx, span := tracer.Start(ctx, "cache.set",
		trace.WithAttributes(attribute.String("report.id", report.ID)))
	defer span.End()

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("caching report: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (c *Redis) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (c *Redis) Close() error {
	return c.rdb.Close()
}

// Nop never hits. It is used when no Redis address is configured.
type Nop struct{}

func (Nop) Get(context.Context, string) (*risk.Report, bool, error) {
	return nil, false, nil
}

func (Nop) Set(context.Context, string, *risk.Report) error {
	return nil
}

func (Nop) Close() error {
	return nil
}

var (
	_ Cache = (*Redis)(nil)
	_ Cache = Nop{}
)
