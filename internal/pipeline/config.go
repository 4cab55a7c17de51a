package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

// RemoteProvider selects which remote PII analyzer is tried first.
type RemoteProvider string

const (
	RemoteNone          RemoteProvider = "none"
	RemoteLanguageModel RemoteProvider = "languageModel"
	RemoteEntityService RemoteProvider = "entityService"
)

// ParseRemoteProvider accepts the enum names plus a few aliases used in
// config files ("llm", "entities", "huggingface").
func ParseRemoteProvider(s string) (RemoteProvider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "regex", "patterns":
		return RemoteNone, nil
	case "languagemodel", "llm", "openai":
		return RemoteLanguageModel, nil
	case "entityservice", "entities", "huggingface":
		return RemoteEntityService, nil
	}
	return "", fmt.Errorf("unknown remote provider %q", s)
}

// AnalysisConfig is the per-call configuration. Credentials maps a provider
// name (see the Cred* constants) to its secret.
type AnalysisConfig struct {
	PreferredRemoteProvider RemoteProvider
	Credentials             map[string]string
	SeverityFloor           risk.Severity
	EnabledCategories       []risk.Class
}

// Snapshot returns a deep copy so later changes to the caller's maps and
// slices cannot leak into an analysis in flight.
func (c AnalysisConfig) Snapshot() AnalysisConfig {
	out := c
	if c.Credentials != nil {
		out.Credentials = make(map[string]string, len(c.Credentials))
		for k, v := range c.Credentials {
			out.Credentials[k] = v
		}
	}
	if c.EnabledCategories != nil {
		out.EnabledCategories = append([]risk.Class(nil), c.EnabledCategories...)
	}
	if out.PreferredRemoteProvider == "" {
		out.PreferredRemoteProvider = RemoteNone
	}
	return out
}

// Enabled reports whether findings of class are wanted.
func (c AnalysisConfig) Enabled(class risk.Class) bool {
	if len(c.EnabledCategories) == 0 {
		return true
	}
	for _, e := range c.EnabledCategories {
		if e == class {
			return true
		}
	}
	return false
}

// Fingerprint identifies the config for caching. Credential values are only
// ever fed to the hash.
func (c AnalysisConfig) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "provider=%s\nfloor=%s\n", c.PreferredRemoteProvider, c.SeverityFloor)

	cats := make([]string, len(c.EnabledCategories))
	for i, cl := range c.EnabledCategories {
		cats[i] = string(cl)
	}
	sort.Strings(cats)
	fmt.Fprintf(h, "categories=%s\n", strings.Join(cats, ","))

	names := make([]string, 0, len(c.Credentials))
	for k := range c.Credentials {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(h, "cred=%s:%s\n", k, c.Credentials[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}
