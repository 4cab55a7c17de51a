package classifier

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig is one named detector. Presidio fields plus SafePost
// extensions: TrimWords strips non-name words from the ends of a match and
// MinWords rejects matches that end up shorter than that.
type RecognizerConfig struct {
	Name            string          `yaml:"name" json:"name"`
	SupportedEntity string          `yaml:"supported_entity" json:"supported_entity"`
	Enabled         *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns        []PatternConfig `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	TrimWords       []string        `yaml:"trim_words,omitempty" json:"trim_words,omitempty"`
	MinWords        int             `yaml:"min_words,omitempty" json:"min_words,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string `yaml:"name" json:"name"`
	Regex string `yaml:"regex" json:"regex"`
}

func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so a missing
// override file is a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// MergeRecognizers merges layers in order. A later layer replaces an earlier
// recognizer with the same Name; new names are appended, so the detector
// order stays stable.
func MergeRecognizers(layers ...[]*RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if rc == nil {
				continue
			}
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = *rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, *rc)
			}
		}
	}

	return merged
}

func toPtrSlice(configs []RecognizerConfig) []*RecognizerConfig {
	ptrs := make([]*RecognizerConfig, len(configs))
	for i := range configs {
		ptrs[i] = &configs[i]
	}
	return ptrs
}

// FilterByEntities applies enabled/disabled entity filters to a recognizer list.
// If enabledEntities is non-empty, only recognizers with matching supported_entity
// are kept. Then any recognizer in disabledEntities is removed.
func FilterByEntities(recognizers []RecognizerConfig, enabledEntities, disabledEntities []string) []RecognizerConfig {
	result := recognizers

	if len(enabledEntities) > 0 {
		allowed := make(map[string]bool, len(enabledEntities))
		for _, e := range enabledEntities {
			allowed[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if allowed[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	if len(disabledEntities) > 0 {
		blocked := make(map[string]bool, len(disabledEntities))
		for _, e := range disabledEntities {
			blocked[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if !blocked[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	return result
}

// CompileDetectors turns recognizer configs into runtime detectors.
// Disabled recognizers are skipped.
func CompileDetectors(recognizers []RecognizerConfig) ([]Detector, error) {
	var detectors []Detector

	for _, rec := range recognizers {
		if !rec.isEnabled() || len(rec.Patterns) == 0 {
			continue
		}
		d := Detector{
			Name:     rec.Name,
			Category: EntityCategory(rec.SupportedEntity),
			MinWords: rec.MinWords,
		}
		for _, p := range rec.Patterns {
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			d.Patterns = append(d.Patterns, compiled)
		}
		if len(rec.TrimWords) > 0 {
			d.TrimWords = make(map[string]bool, len(rec.TrimWords))
			for _, w := range rec.TrimWords {
				d.TrimWords[strings.ToLower(w)] = true
			}
		}
		detectors = append(detectors, d)
	}

	return detectors, nil
}

// entityCategories maps Presidio entity names to risk categories.
var entityCategories = map[string]risk.Category{
	"EMAIL_ADDRESS":  risk.Cat(risk.ClassEmail, ""),
	"PHONE_NUMBER":   risk.Cat(risk.ClassPhone, ""),
	"CREDIT_CARD":    risk.Cat(risk.ClassCreditCard, ""),
	"US_SSN":         risk.Cat(risk.ClassNationalID, "ssn"),
	"UK_NINO":        risk.Cat(risk.ClassNationalID, "nino"),
	"IN_AADHAAR":     risk.Cat(risk.ClassNationalID, "aadhaar"),
	"IN_PAN":         risk.Cat(risk.ClassNationalID, "pan"),
	"IN_PASSPORT":    risk.Cat(risk.ClassNationalID, "passport"),
	"PASSPORT":       risk.Cat(risk.ClassNationalID, "passport"),
	"IP_ADDRESS":     risk.Cat(risk.ClassIPAddress, ""),
	"STREET_ADDRESS": risk.Cat(risk.ClassAddress, "street"),
	"LOCATION":       risk.Cat(risk.ClassAddress, ""),
	"POSTAL_CODE":    risk.Cat(risk.ClassAddress, "postal_code"),
	"PERSON":         risk.Cat(risk.ClassPersonName, ""),
}

// EntityCategory maps a Presidio entity name to a risk category. Unknown
// entities become entity/<lower_snake_name>.
func EntityCategory(entity string) risk.Category {
	if c, ok := entityCategories[entity]; ok {
		return c
	}
	return risk.Cat(risk.ClassEntity, toLowerSnake(entity))
}

// toLowerSnake converts SCREAMING_SNAKE_CASE to lower_snake_case.
func toLowerSnake(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}
