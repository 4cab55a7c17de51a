// Package doctor provides preflight checks for a SafePost installation.
// Used by `safepost doctor` and by `safepost serve --strict`.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Aafreen2203/SafePostAI/internal/cache"
	"github.com/Aafreen2203/SafePostAI/internal/config"
	"github.com/Aafreen2203/SafePostAI/internal/history"
	"github.com/Aafreen2203/SafePostAI/internal/pipeline"
	"github.com/Aafreen2203/SafePostAI/internal/secrets"
)

// Check statuses.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which checks run.
type Options struct {
	SkipNetwork bool // skip redis, NATS, and Ollama reachability (CI/offline)
}

// Run loads the configuration and executes all checks.
func Run(ctx context.Context, opts Options) *Report {
	cfg, err := config.Load()
	if err != nil {
		return summarize([]CheckResult{{
			Name: "config_load", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check SAFEPOST_* variables and safepost.yaml",
		}})
	}
	return RunWith(ctx, cfg, opts)
}

// RunWith executes all checks against an already loaded configuration.
func RunWith(ctx context.Context, cfg *config.Config, opts Options) *Report {
	var checks []CheckResult
	checks = append(checks, checkDataDir(cfg))
	checks = append(checks, checkCryptoKeys(cfg)...)
	checks = append(checks, checkHistoryDB(ctx, cfg))

	stored, secretsCheck := checkSecretsDB(ctx, cfg)
	checks = append(checks, secretsCheck)
	checks = append(checks, checkTextProvider(cfg, stored))
	checks = append(checks, checkImageProviders(cfg, stored))

	if !opts.SkipNetwork {
		checks = append(checks, checkNetwork(ctx, cfg)...)
	}
	return summarize(checks)
}

func summarize(checks []CheckResult) *Report {
	report := &Report{Checks: checks}
	for _, c := range checks {
		switch c.Status {
		case StatusPass:
			report.Summary.Pass++
		case StatusWarn:
			report.Summary.Warn++
		case StatusFail:
			report.Summary.Fail++
		}
	}
	report.Status = StatusPass
	if report.Summary.Warn > 0 {
		report.Status = StatusWarn
	}
	if report.Summary.Fail > 0 {
		report.Status = StatusFail
	}
	return report
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "Ensure SAFEPOST_DATA_DIR exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkCryptoKeys(cfg *config.Config) []CheckResult {
	masked := cfg.Masked()
	var results []CheckResult
	for _, k := range []string{config.KeySecretsKey, config.KeySigningKey} {
		if masked[k] == "(derived default)" {
			results = append(results, CheckResult{
				Name: k, Category: "config", Status: StatusWarn,
				Message: "Using derived default",
				Fix:     "Set SAFEPOST_" + strings.ToUpper(k) + " for production",
			})
			continue
		}
		results = append(results, CheckResult{Name: k, Category: "config", Status: StatusPass, Message: "Configured"})
	}
	return results
}

func checkHistoryDB(ctx context.Context, cfg *config.Config) CheckResult {
	store, err := history.NewStore(cfg.HistoryDBPath(), cfg.SigningKey)
	if err != nil {
		return CheckResult{Name: "history_db", Category: "storage", Status: StatusFail, Message: err.Error()}
	}
	defer store.Close()
	a, err := store.Analytics(ctx, 1)
	if err != nil {
		return CheckResult{Name: "history_db", Category: "storage", Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{
		Name: "history_db", Category: "storage", Status: StatusPass,
		Message: fmt.Sprintf("%s (%d scans)", cfg.HistoryDBPath(), a.TotalScans),
	}
}

// checkSecretsDB opens the credential store and returns the names it holds.
func checkSecretsDB(ctx context.Context, cfg *config.Config) (map[string]bool, CheckResult) {
	stored := map[string]bool{}
	store, err := secrets.NewStore(cfg.SecretsDBPath(), cfg.SecretsKey)
	if err != nil {
		return stored, CheckResult{Name: "secrets_db", Category: "storage", Status: StatusFail, Message: err.Error()}
	}
	defer store.Close()
	list, err := store.List(ctx)
	if err != nil {
		return stored, CheckResult{Name: "secrets_db", Category: "storage", Status: StatusFail, Message: err.Error()}
	}
	for _, m := range list {
		stored[m.Name] = true
	}
	return stored, CheckResult{
		Name: "secrets_db", Category: "storage", Status: StatusPass,
		Message: fmt.Sprintf("%s (%d credentials)", cfg.SecretsDBPath(), len(list)),
	}
}

// textCredential is the credential the preferred provider needs, or "" when
// none is required.
func textCredential(cfg *config.Config) string {
	switch cfg.PreferredProvider {
	case pipeline.RemoteLanguageModel:
		if cfg.LLMProvider == "ollama" {
			return ""
		}
		return cfg.LLMProvider
	case pipeline.RemoteEntityService:
		return pipeline.CredHuggingFace
	}
	return ""
}

func checkTextProvider(cfg *config.Config, stored map[string]bool) CheckResult {
	if cfg.PreferredProvider == pipeline.RemoteNone {
		return CheckResult{
			Name: "text_provider", Category: "providers", Status: StatusPass,
			Message: "Pattern-only mode",
		}
	}
	name := textCredential(cfg)
	if name == "" || stored[name] {
		label := string(cfg.PreferredProvider)
		if cfg.PreferredProvider == pipeline.RemoteLanguageModel {
			label += " (" + cfg.LLMProvider + ")"
		}
		return CheckResult{Name: "text_provider", Category: "providers", Status: StatusPass, Message: label}
	}
	return CheckResult{
		Name: "text_provider", Category: "providers", Status: StatusWarn,
		Message: fmt.Sprintf("No %q credential stored; scans fall back to patterns", name),
		Fix:     fmt.Sprintf("Run: safepost secrets set %s <api-key>", name),
	}
}

func checkImageProviders(cfg *config.Config, stored map[string]bool) CheckResult {
	var have []string
	for _, name := range []string{pipeline.CredGoogleVision, pipeline.CredOCRSpace, pipeline.CredOpenAI} {
		if stored[name] {
			have = append(have, name)
		}
	}
	if len(have) == 0 {
		return CheckResult{
			Name: "image_providers", Category: "providers", Status: StatusWarn,
			Message: "No OCR or vision credential stored; image scans report no text",
			Fix:     fmt.Sprintf("Run: safepost secrets set %s <api-key>", pipeline.CredGoogleVision),
		}
	}
	sort.Strings(have)
	return CheckResult{
		Name: "image_providers", Category: "providers", Status: StatusPass,
		Message: fmt.Sprintf("%v (ocr provider %q)", have, cfg.OCRProvider),
	}
}

func checkNetwork(ctx context.Context, cfg *config.Config) []CheckResult {
	var results []CheckResult
	if cfg.RedisAddr != "" {
		results = append(results, checkRedis(ctx, cfg))
	}
	if cfg.NATSURL != "" {
		results = append(results, checkNATS(cfg))
	}
	if cfg.PreferredProvider == pipeline.RemoteLanguageModel && cfg.LLMProvider == "ollama" {
		results = append(results, checkUpstream(ctx, "ollama", cfg.OllamaBaseURL))
	}
	return results
}

func checkRedis(ctx context.Context, cfg *config.Config) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	c, err := cache.NewRedis(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return CheckResult{
			Name: "report_cache", Category: "network", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Start redis or unset SAFEPOST_REDIS_ADDR",
		}
	}
	_ = c.Close()
	return CheckResult{Name: "report_cache", Category: "network", Status: StatusPass, Message: cfg.RedisAddr}
}

func checkNATS(cfg *config.Config) CheckResult {
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("safepost-doctor"), nats.Timeout(3*time.Second))
	if err != nil {
		return CheckResult{
			Name: "event_bus", Category: "network", Status: StatusWarn,
			Message: err.Error(),
			Fix:     "Start NATS or unset SAFEPOST_NATS_URL; scans still run without it",
		}
	}
	nc.Close()
	return CheckResult{Name: "event_bus", Category: "network", Status: StatusPass, Message: cfg.NATSURL}
}

func checkUpstream(ctx context.Context, name, baseURL string) CheckResult {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return CheckResult{
			Name: "upstream_" + name, Category: "network", Status: StatusFail,
			Message: fmt.Sprintf("Invalid URL: %v", err),
		}
	}
	start := time.Now()
	resp, err := client.Do(req) //nolint:gosec // URL comes from operator config
	if err != nil {
		return CheckResult{
			Name: "upstream_" + name, Category: "network", Status: StatusFail,
			Message: fmt.Sprintf("Connection failed: %v", err),
			Fix:     "Check that the service is running at " + baseURL,
		}
	}
	resp.Body.Close()
	return CheckResult{
		Name: "upstream_" + name, Category: "network", Status: StatusPass,
		Message: fmt.Sprintf("%s: %dms", baseURL, time.Since(start).Milliseconds()),
	}
}
