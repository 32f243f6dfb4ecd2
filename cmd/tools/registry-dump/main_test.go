package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geodialogue/pkg/registry"
)

func writeOverrides(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overrides.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestList(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, list(&out, registry.Default()))

	text := out.String()
	assert.Contains(t, text, "Schema registry "+registry.Version)
	assert.Contains(t, text, "sea_level_rise (Sea level rise)")
	assert.Contains(t, text, "topic_modeling (Topic modeling)")
	assert.Contains(t, text, "values lda/nmf/bertopic")
}

func TestPrintSchema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printSchema(&out, registry.Default(), "SeaLevelRise"))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "sea_level_rise", doc["title"])

	assert.Error(t, printSchema(&out, registry.Default(), "weather"))
}

func TestValidateOverrides(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"version":"2024-06","kinds":{"sea_level_rise":{"threshold":{"default":1.5}}}}`, false},
		{"unknown kind", `{"kinds":{"weather":{"year":{"default":2020}}}}`, true},
		{"unknown parameter", `{"kinds":{"sea_level_rise":{"depth":{"default":3}}}}`, true},
		{"malformed", `{"kinds":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := validateOverrides(&out, writeOverrides(t, tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), "are valid")
		})
	}
}
