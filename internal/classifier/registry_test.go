package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

func TestParseRecognizerFile(t *testing.T) {
	yaml := `
recognizers:
  - name: "Test Email"
    supported_entity: "EMAIL_ADDRESS"
    enabled: true
    patterns:
      - name: "basic email"
        regex: '\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b'
  - name: "Test Name"
    supported_entity: "PERSON"
    patterns:
      - name: "two words"
        regex: '\b[A-Z][a-z]+ [A-Z][a-z]+\b'
    trim_words: ["Hello"]
    min_words: 2
`
	rf, err := ParseRecognizerFile([]byte(yaml))
	require.NoError(t, err)
	require.Len(t, rf.Recognizers, 2)

	assert.Equal(t, "Test Email", rf.Recognizers[0].Name)
	assert.True(t, rf.Recognizers[0].isEnabled())
	assert.True(t, rf.Recognizers[1].isEnabled(), "nil Enabled should default to true")
	assert.Equal(t, []string{"Hello"}, rf.Recognizers[1].TrimWords)
	assert.Equal(t, 2, rf.Recognizers[1].MinWords)
}

func TestParseRecognizerFileInvalidYAML(t *testing.T) {
	_, err := ParseRecognizerFile([]byte(`{{{invalid`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing recognizer YAML")
}

func TestLoadRecognizerFileMissing(t *testing.T) {
	rf, err := LoadRecognizerFile("/nonexistent/file.yaml")
	require.NoError(t, err, "missing file should not return error")
	assert.Nil(t, rf)
}

func TestScannerWithPatternFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	yaml := `
recognizers:
  - name: "PIN Code"
    supported_entity: "POSTAL_CODE"
    enabled: false
  - name: "Vehicle Number"
    supported_entity: "IN_VEHICLE"
    patterns:
      - name: "plate"
        regex: '\b[A-Z]{2}\s?\d{2}\s?[A-Z]{1,2}\s?\d{4}\b'
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	s, err := NewScanner(WithPatternFile(path))
	require.NoError(t, err)
	assert.NotContains(t, s.Detectors(), "PIN Code")
	assert.Equal(t, "Vehicle Number", s.Detectors()[len(s.Detectors())-1])
}

func TestMergeRecognizers(t *testing.T) {
	enabled := true
	disabled := false

	defaults := []*RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL_ADDRESS", Enabled: &enabled},
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER", Enabled: &enabled},
	}
	file := []*RecognizerConfig{
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER", Enabled: &disabled},
		{Name: "Custom ID", SupportedEntity: "EMPLOYEE_ID"},
	}
	custom := []*RecognizerConfig{
		{Name: "Member", SupportedEntity: "MEMBER_ID"},
	}

	merged := MergeRecognizers(defaults, file, custom)
	require.Len(t, merged, 4)
	assert.Equal(t, "Email", merged[0].Name)
	assert.False(t, merged[1].isEnabled(), "later layer wins")
	assert.Equal(t, "Custom ID", merged[2].Name)
	assert.Equal(t, "Member", merged[3].Name)
}

func TestFilterByEntities(t *testing.T) {
	recognizers := []RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL_ADDRESS"},
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER"},
		{Name: "PAN", SupportedEntity: "IN_PAN"},
	}

	assert.Len(t, FilterByEntities(recognizers, nil, nil), 3)

	filtered := FilterByEntities(recognizers, []string{"EMAIL_ADDRESS", "IN_PAN"}, nil)
	require.Len(t, filtered, 2)
	assert.Equal(t, "PAN", filtered[1].Name)

	filtered = FilterByEntities(recognizers, []string{"EMAIL_ADDRESS", "PHONE_NUMBER"}, []string{"PHONE_NUMBER"})
	require.Len(t, filtered, 1)
	assert.Equal(t, "Email", filtered[0].Name)
}

func TestCompileDetectorsSkipsDisabled(t *testing.T) {
	disabled := false
	detectors, err := CompileDetectors([]RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL_ADDRESS", Patterns: []PatternConfig{{Name: "e", Regex: `\b\w+@\w+\.\w+\b`}}},
		{Name: "Off", SupportedEntity: "X", Enabled: &disabled, Patterns: []PatternConfig{{Name: "x", Regex: `x`}}},
	})
	require.NoError(t, err)
	require.Len(t, detectors, 1)
	assert.Equal(t, risk.Cat(risk.ClassEmail, ""), detectors[0].Category)
}

func TestEntityCategory(t *testing.T) {
	tests := []struct {
		entity string
		want   risk.Category
	}{
		{"EMAIL_ADDRESS", risk.Cat(risk.ClassEmail, "")},
		{"IN_AADHAAR", risk.Cat(risk.ClassNationalID, "aadhaar")},
		{"POSTAL_CODE", risk.Cat(risk.ClassAddress, "postal_code")},
		{"PERSON", risk.Cat(risk.ClassPersonName, "")},
		{"EMPLOYEE_ID", risk.Cat(risk.ClassEntity, "employee_id")},
	}
	for _, tt := range tests {
		t.Run(tt.entity, func(t *testing.T) {
			assert.Equal(t, tt.want, EntityCategory(tt.entity))
		})
	}
}

func TestDefaultRecognizersCompile(t *testing.T) {
	recs, err := DefaultRecognizers()
	require.NoError(t, err)
	detectors, err := CompileDetectors(recs)
	require.NoError(t, err)
	require.NotEmpty(t, detectors)
	for _, d := range detectors {
		assert.NotEmpty(t, d.Patterns, d.Name)
	}
}
