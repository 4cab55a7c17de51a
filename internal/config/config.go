// Package config holds operator-level configuration for a SafePost process.
//
// Values come from SAFEPOST_* environment variables, an optional .env file,
// and safepost.yaml in the working directory or ~/.safepost, merged by Viper.
// Provider credentials (OpenAI, HuggingFace, Google Vision, OCR.space) are
// NOT configuration: they live only in the encrypted credential store
// (internal/secrets) and are managed with "safepost secrets set".
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/Aafreen2203/SafePostAI/internal/cryptoutil"
	"github.com/Aafreen2203/SafePostAI/internal/pipeline"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

// Viper keys. Each maps to SAFEPOST_<UPPER> and to a safepost.yaml field.
const (
	KeyDataDir                  = "data_dir"
	KeySecretsKey               = "secrets_key"
	KeySigningKey               = "signing_key"
	KeyMaxImageMB               = "max_image_mb"
	KeyPreferredProvider        = "preferred_provider"
	KeyLLMProvider              = "llm_provider"
	KeyLLMModel                 = "llm_model"
	KeyVisionModel              = "vision_model"
	KeyOllamaBaseURL            = "ollama_base_url"
	KeyHuggingFaceBaseURL       = "huggingface_base_url"
	KeyOCRProvider              = "ocr_provider"
	KeyAdapterTimeout           = "adapter_timeout"
	KeySeverityFloor            = "severity_floor"
	KeyEnabledCategories        = "enabled_categories"
	KeyBlockThreshold           = "block_threshold"
	KeyWarnThreshold            = "warn_threshold"
	KeyHistoryRetention         = "history_retention"
	KeyHistoryRetentionSchedule = "history_retention_schedule"
	KeyRedisAddr                = "redis_addr"
	KeyRedisPassword            = "redis_password"
	KeyRedisDB                  = "redis_db"
	KeyCacheTTL                 = "cache_ttl"
	KeyNATSURL                  = "nats_url"
	KeyNATSSubject              = "nats_subject"
	KeyServerAddr               = "server_addr"
	KeyAPIKeys                  = "api_keys"
	KeyCORSOrigins              = "cors_origins"
	KeyRateLimitRPS             = "rate_limit_rps"
	KeyRateLimitPerKeyRPS       = "rate_limit_per_key_rps"
	KeyTrustProxy               = "trust_proxy"
	KeyOtelEnabled              = "otel_enabled"
)

// Defaults that do not involve key material.
const (
	DefaultMaxImageMB               = 10
	DefaultPreferredProvider        = "languageModel"
	DefaultLLMProvider              = "openai"
	DefaultOllamaURL                = "http://localhost:11434"
	DefaultOCRProvider              = "vision"
	DefaultAdapterTimeout           = 15 * time.Second
	DefaultSeverityFloor            = "none"
	DefaultBlockThreshold           = "high"
	DefaultWarnThreshold            = "low"
	DefaultHistoryRetention         = 1000
	DefaultHistoryRetentionSchedule = "0 3 * * *"
	DefaultCacheTTL                 = 10 * time.Minute
	DefaultNATSSubject              = "safepost.scans"
	DefaultServerAddr               = "127.0.0.1:8087"
	DefaultRateLimitRPS             = 20.0
	DefaultRateLimitPerKeyRPS       = 5.0
)

// ErrInvalid wraps every validation failure from Load.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration of a SafePost process.
type Config struct {
	DataDir    string
	SecretsKey string // AES-256 key for the credential store (32 bytes or 64 hex chars)
	SigningKey string // HMAC-SHA256 key for history records (>=32 bytes)
	MaxImageMB int

	PreferredProvider pipeline.RemoteProvider
	LLMProvider       string
	LLMModel          string
	VisionModel       string
	OllamaBaseURL     string
	HuggingFaceURL    string
	OCRProvider       string
	AdapterTimeout    time.Duration

	SeverityFloor     risk.Severity
	EnabledCategories []risk.Class
	BlockThreshold    risk.Severity
	WarnThreshold     risk.Severity

	HistoryRetention         int
	HistoryRetentionSchedule string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	NATSURL     string
	NATSSubject string

	ServerAddr         string
	APIKeys            map[string]string // key -> caller label
	CORSOrigins        []string
	RateLimitRPS       float64
	RateLimitPerKeyRPS float64
	TrustProxy         bool // honour X-Forwarded-For / X-Real-IP
	OtelEnabled        bool

	usingDefaultSecretsKey bool
	usingDefaultSigningKey bool
}

// SetDefaults registers the defaults and the SAFEPOST_ env binding.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix("SAFEPOST")
	v.AutomaticEnv()
	v.SetDefault(KeyMaxImageMB, DefaultMaxImageMB)
	v.SetDefault(KeyPreferredProvider, DefaultPreferredProvider)
	v.SetDefault(KeyLLMProvider, DefaultLLMProvider)
	v.SetDefault(KeyOllamaBaseURL, DefaultOllamaURL)
	v.SetDefault(KeyOCRProvider, DefaultOCRProvider)
	v.SetDefault(KeyAdapterTimeout, DefaultAdapterTimeout)
	v.SetDefault(KeySeverityFloor, DefaultSeverityFloor)
	v.SetDefault(KeyBlockThreshold, DefaultBlockThreshold)
	v.SetDefault(KeyWarnThreshold, DefaultWarnThreshold)
	v.SetDefault(KeyHistoryRetention, DefaultHistoryRetention)
	v.SetDefault(KeyHistoryRetentionSchedule, DefaultHistoryRetentionSchedule)
	v.SetDefault(KeyCacheTTL, DefaultCacheTTL)
	v.SetDefault(KeyNATSSubject, DefaultNATSSubject)
	v.SetDefault(KeyServerAddr, DefaultServerAddr)
	v.SetDefault(KeyRateLimitRPS, DefaultRateLimitRPS)
	v.SetDefault(KeyRateLimitPerKeyRPS, DefaultRateLimitPerKeyRPS)
	v.SetDefault(KeyTrustProxy, false)
}

func init() {
	SetDefaults(viper.GetViper())
}

// LoadDotEnv loads the first .env file found in the working directory or the
// data directory. Variables already set in the environment win.
func LoadDotEnv() {
	paths := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".safepost", ".env"))
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			log.Debug().Str("path", p).Msg("dotenv_loaded")
			return
		}
	}
}

// Load reads configuration from the global Viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DataDir:                  resolveDataDir(v),
		SecretsKey:               v.GetString(KeySecretsKey),
		SigningKey:               v.GetString(KeySigningKey),
		MaxImageMB:               v.GetInt(KeyMaxImageMB),
		LLMProvider:              strings.ToLower(v.GetString(KeyLLMProvider)),
		LLMModel:                 v.GetString(KeyLLMModel),
		VisionModel:              v.GetString(KeyVisionModel),
		OllamaBaseURL:            v.GetString(KeyOllamaBaseURL),
		HuggingFaceURL:           v.GetString(KeyHuggingFaceBaseURL),
		OCRProvider:              strings.ToLower(v.GetString(KeyOCRProvider)),
		AdapterTimeout:           v.GetDuration(KeyAdapterTimeout),
		HistoryRetention:         v.GetInt(KeyHistoryRetention),
		HistoryRetentionSchedule: v.GetString(KeyHistoryRetentionSchedule),
		RedisAddr:                v.GetString(KeyRedisAddr),
		RedisPassword:            v.GetString(KeyRedisPassword),
		RedisDB:                  v.GetInt(KeyRedisDB),
		CacheTTL:                 v.GetDuration(KeyCacheTTL),
		NATSURL:                  v.GetString(KeyNATSURL),
		NATSSubject:              v.GetString(KeyNATSSubject),
		ServerAddr:               v.GetString(KeyServerAddr),
		CORSOrigins:              splitList(v.GetStringSlice(KeyCORSOrigins)),
		RateLimitRPS:             v.GetFloat64(KeyRateLimitRPS),
		RateLimitPerKeyRPS:       v.GetFloat64(KeyRateLimitPerKeyRPS),
		TrustProxy:               v.GetBool(KeyTrustProxy),
		OtelEnabled:              v.GetBool(KeyOtelEnabled),
	}

	if cfg.SecretsKey == "" {
		cfg.SecretsKey = deriveDefaultKey(cfg.DataDir, "secrets-encryption")[:32]
		cfg.usingDefaultSecretsKey = true
	}
	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "history-signing")
		cfg.usingDefaultSigningKey = true
	}

	var err error
	if cfg.PreferredProvider, err = pipeline.ParseRemoteProvider(v.GetString(KeyPreferredProvider)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, KeyPreferredProvider, err)
	}
	if cfg.SeverityFloor, err = parseSeverity(KeySeverityFloor, v.GetString(KeySeverityFloor)); err != nil {
		return nil, err
	}
	if cfg.BlockThreshold, err = parseSeverity(KeyBlockThreshold, v.GetString(KeyBlockThreshold)); err != nil {
		return nil, err
	}
	if cfg.WarnThreshold, err = parseSeverity(KeyWarnThreshold, v.GetString(KeyWarnThreshold)); err != nil {
		return nil, err
	}
	for _, name := range splitList(v.GetStringSlice(KeyEnabledCategories)) {
		class := risk.Class(name)
		if !class.Valid() {
			return nil, fmt.Errorf("%w: %s: unknown category %q", ErrInvalid, KeyEnabledCategories, name)
		}
		cfg.EnabledCategories = append(cfg.EnabledCategories, class)
	}
	cfg.APIKeys = parseAPIKeys(splitList(v.GetStringSlice(KeyAPIKeys)))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}

func parseSeverity(key, raw string) (risk.Severity, error) {
	sev, ok := risk.ParseSeverity(raw)
	if !ok {
		return risk.SeverityNone, fmt.Errorf("%w: %s: unknown severity %q", ErrInvalid, key, raw)
	}
	return sev, nil
}

// splitList flattens comma-separated entries; env vars arrive as one string.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// parseAPIKeys reads "label:key" entries. A bare key gets the label "key-<n>".
func parseAPIKeys(entries []string) map[string]string {
	keys := make(map[string]string, len(entries))
	for i, e := range entries {
		label, key, ok := strings.Cut(e, ":")
		if !ok {
			label, key = fmt.Sprintf("key-%d", i+1), e
		}
		if key = strings.TrimSpace(key); key != "" {
			keys[key] = strings.TrimSpace(label)
		}
	}
	return keys
}

func resolveDataDir(v *viper.Viper) string {
	if dir := v.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".safepost"
	}
	return filepath.Join(home, ".safepost")
}

// deriveDefaultKey produces a deterministic per-machine fallback key (64 hex
// characters). It keeps a fresh install working and is not a substitute for
// a configured key.
func deriveDefaultKey(dataDir, purpose string) string {
	return cryptoutil.DeriveKey(dataDir, purpose)
}

func (c *Config) validate() error {
	if err := validateSecretsKey(c.SecretsKey); err != nil {
		return err
	}
	if err := validateSigningKey(c.SigningKey); err != nil {
		return err
	}
	if c.MaxImageMB <= 0 {
		return fmt.Errorf("%s must be positive", KeyMaxImageMB)
	}
	if c.AdapterTimeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyAdapterTimeout)
	}
	if c.BlockThreshold == risk.SeverityNone {
		return fmt.Errorf("%s cannot be none", KeyBlockThreshold)
	}
	if c.HistoryRetention < 0 {
		return fmt.Errorf("%s cannot be negative", KeyHistoryRetention)
	}
	if c.RateLimitRPS < 0 || c.RateLimitPerKeyRPS < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}
	switch c.OCRProvider {
	case "", "vision", "ocrspace":
	default:
		return fmt.Errorf("%s must be vision or ocrspace (got %q)", KeyOCRProvider, c.OCRProvider)
	}
	return nil
}

func validateSecretsKey(key string) error {
	if cryptoutil.ValidAESKey(key) {
		return nil
	}
	return fmt.Errorf("secrets_key must be exactly 32 bytes or 64 hex characters (got %d); set SAFEPOST_SECRETS_KEY", len(key))
}

func validateSigningKey(key string) error {
	if len(key) >= 32 {
		return nil
	}
	return fmt.Errorf("signing_key must be at least 32 bytes (got %d); set SAFEPOST_SIGNING_KEY", len(key))
}

// UsingDefaultKeys reports whether either key fell back to a derived default.
func (c *Config) UsingDefaultKeys() bool {
	return c.usingDefaultSecretsKey || c.usingDefaultSigningKey
}

// WarnIfDefaultKeys logs once per derived key.
func (c *Config) WarnIfDefaultKeys() {
	if c.usingDefaultSecretsKey {
		log.Warn().Msg("Using derived default SAFEPOST_SECRETS_KEY; set it explicitly for production")
	}
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using derived default SAFEPOST_SIGNING_KEY; set it explicitly for production")
	}
}

// SecretsDBPath is the credential store database.
func (c *Config) SecretsDBPath() string {
	return filepath.Join(c.DataDir, "secrets.db")
}

// HistoryDBPath is the scan log database.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// EnsureDataDir creates the data directory if needed.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// Analysis builds the per-call analysis configuration from the loaded
// settings and the credentials read from the store.
func (c *Config) Analysis(creds map[string]string) pipeline.AnalysisConfig {
	return pipeline.AnalysisConfig{
		PreferredRemoteProvider: c.PreferredProvider,
		Credentials:             creds,
		SeverityFloor:           c.SeverityFloor,
		EnabledCategories:       c.EnabledCategories,
	}
}

// RemoteOptions maps provider settings onto the remote adapter builder.
func (c *Config) RemoteOptions() pipeline.RemoteOptions {
	return pipeline.RemoteOptions{
		LLMProvider:        c.LLMProvider,
		LLMModel:           c.LLMModel,
		VisionModel:        c.VisionModel,
		OllamaBaseURL:      c.OllamaBaseURL,
		HuggingFaceBaseURL: c.HuggingFaceURL,
		OCRProvider:        c.OCRProvider,
	}
}

// Masked returns a printable view with key material hidden.
func (c *Config) Masked() map[string]interface{} {
	cats := make([]string, 0, len(c.EnabledCategories))
	for _, cl := range c.EnabledCategories {
		cats = append(cats, string(cl))
	}
	labels := make([]string, 0, len(c.APIKeys))
	for _, label := range c.APIKeys {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return map[string]interface{}{
		KeyDataDir:                  c.DataDir,
		KeySecretsKey:               mask(c.SecretsKey, c.usingDefaultSecretsKey),
		KeySigningKey:               mask(c.SigningKey, c.usingDefaultSigningKey),
		KeyMaxImageMB:               c.MaxImageMB,
		KeyPreferredProvider:        string(c.PreferredProvider),
		KeyLLMProvider:              c.LLMProvider,
		KeyLLMModel:                 c.LLMModel,
		KeyVisionModel:              c.VisionModel,
		KeyOllamaBaseURL:            c.OllamaBaseURL,
		KeyHuggingFaceBaseURL:       c.HuggingFaceURL,
		KeyOCRProvider:              c.OCRProvider,
		KeyAdapterTimeout:           c.AdapterTimeout.String(),
		KeySeverityFloor:            c.SeverityFloor.String(),
		KeyEnabledCategories:        cats,
		KeyBlockThreshold:           c.BlockThreshold.String(),
		KeyWarnThreshold:            c.WarnThreshold.String(),
		KeyHistoryRetention:         c.HistoryRetention,
		KeyHistoryRetentionSchedule: c.HistoryRetentionSchedule,
		KeyRedisAddr:                c.RedisAddr,
		KeyRedisPassword:            mask(c.RedisPassword, false),
		KeyRedisDB:                  c.RedisDB,
		KeyCacheTTL:                 c.CacheTTL.String(),
		KeyNATSURL:                  c.NATSURL,
		KeyNATSSubject:              c.NATSSubject,
		KeyServerAddr:               c.ServerAddr,
		KeyAPIKeys:                  labels,
		KeyCORSOrigins:              c.CORSOrigins,
		KeyRateLimitRPS:             c.RateLimitRPS,
		KeyRateLimitPerKeyRPS:       c.RateLimitPerKeyRPS,
		KeyTrustProxy:               c.TrustProxy,
		KeyOtelEnabled:              c.OtelEnabled,
	}
}

func mask(v string, derived bool) string {
	switch {
	case v == "":
		return ""
	case derived:
		return "(derived default)"
	default:
		return "********"
	}
}
