package doctor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aafreen2203/SafePostAI/internal/config"
	"github.com/Aafreen2203/SafePostAI/internal/secrets"
	"github.com/Aafreen2203/SafePostAI/internal/testutil"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	t.Setenv("SAFEPOST_DATA_DIR", t.TempDir())
	t.Setenv("SAFEPOST_SECRETS_KEY", testutil.TestEncryptionKey)
	t.Setenv("SAFEPOST_SIGNING_KEY", testutil.TestSigningKey)
	for _, k := range []string{"SAFEPOST_PREFERRED_PROVIDER", "SAFEPOST_LLM_PROVIDER", "SAFEPOST_REDIS_ADDR", "SAFEPOST_NATS_URL", "SAFEPOST_OLLAMA_BASE_URL"} {
		t.Setenv(k, "")
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	return cfg
}

func find(t *testing.T, r *Report, name string) CheckResult {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found", name)
	return CheckResult{}
}

func TestRunWith_PatternOnly(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SAFEPOST_PREFERRED_PROVIDER": "none"})

	report := RunWith(context.Background(), cfg, Options{SkipNetwork: true})

	assert.Equal(t, StatusPass, find(t, report, "data_dir_writable").Status)
	assert.Equal(t, StatusPass, find(t, report, config.KeySecretsKey).Status)
	assert.Equal(t, StatusPass, find(t, report, config.KeySigningKey).Status)
	assert.Equal(t, StatusPass, find(t, report, "history_db").Status)
	assert.Equal(t, StatusPass, find(t, report, "secrets_db").Status)
	assert.Equal(t, "Pattern-only mode", find(t, report, "text_provider").Message)
	assert.Equal(t, StatusWarn, find(t, report, "image_providers").Status)
	assert.Equal(t, StatusWarn, report.Status)
	assert.Equal(t, 0, report.Summary.Fail)
}

func TestRunWith_MissingProviderCredential(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SAFEPOST_PREFERRED_PROVIDER": "entityService"})

	report := RunWith(context.Background(), cfg, Options{SkipNetwork: true})

	c := find(t, report, "text_provider")
	assert.Equal(t, StatusWarn, c.Status)
	assert.Contains(t, c.Fix, "safepost secrets set huggingface")
}

func TestRunWith_StoredCredentials(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"SAFEPOST_LLM_PROVIDER": "openai"})
	require.NoError(t, cfg.EnsureDataDir())

	store, err := secrets.NewStore(cfg.SecretsDBPath(), cfg.SecretsKey)
	require.NoError(t, err)
	require.NoError(t, store.SetMany(context.Background(), map[string]string{
		"openai":        "sk-test",
		"google_vision": "vision-key",
	}))
	require.NoError(t, store.Close())

	report := RunWith(context.Background(), cfg, Options{SkipNetwork: true})

	assert.Equal(t, StatusPass, find(t, report, "text_provider").Status)
	assert.Equal(t, StatusPass, find(t, report, "image_providers").Status)
	assert.Contains(t, find(t, report, "secrets_db").Message, "2 credentials")
	assert.Equal(t, StatusPass, report.Status)
}

func TestRunWith_DerivedKeysWarn(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"SAFEPOST_SECRETS_KEY":        "",
		"SAFEPOST_SIGNING_KEY":        "",
		"SAFEPOST_PREFERRED_PROVIDER": "none",
	})

	report := RunWith(context.Background(), cfg, Options{SkipNetwork: true})

	c := find(t, report, config.KeySecretsKey)
	assert.Equal(t, StatusWarn, c.Status)
	assert.Equal(t, "Set SAFEPOST_SECRETS_KEY for production", c.Fix)
	assert.Equal(t, StatusWarn, find(t, report, config.KeySigningKey).Status)
}

func TestRunWith_NetworkChecks(t *testing.T) {
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Ollama is running"))
	}))
	defer ollama.Close()

	cfg := loadConfig(t, map[string]string{
		"SAFEPOST_LLM_PROVIDER":    "ollama",
		"SAFEPOST_OLLAMA_BASE_URL": ollama.URL,
		"SAFEPOST_REDIS_ADDR":      "127.0.0.1:1",
		"SAFEPOST_NATS_URL":        "nats://127.0.0.1:1",
	})

	report := RunWith(context.Background(), cfg, Options{})

	assert.Equal(t, StatusPass, find(t, report, "text_provider").Status, "ollama needs no credential")
	assert.Equal(t, StatusPass, find(t, report, "upstream_ollama").Status)
	assert.Equal(t, StatusFail, find(t, report, "report_cache").Status)
	assert.Equal(t, StatusWarn, find(t, report, "event_bus").Status)
	assert.Equal(t, StatusFail, report.Status)
}

func TestSummarize(t *testing.T) {
	r := summarize([]CheckResult{
		{Name: "a", Status: StatusPass},
		{Name: "b", Status: StatusWarn},
		{Name: "c", Status: StatusPass},
	})
	assert.Equal(t, StatusWarn, r.Status)
	assert.Equal(t, Summary{Pass: 2, Warn: 1}, r.Summary)

	assert.Equal(t, StatusPass, summarize(nil).Status)
}
