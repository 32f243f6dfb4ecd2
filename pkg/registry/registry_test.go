package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"

	"geodialogue/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func mustSchema(t *testing.T, kind models.AnalysisKind) *Schema {
	t.Helper()
	s, ok := Default().Schema(kind)
	require.True(t, ok, "schema for %s", kind)
	return s
}

func validate(t *testing.T, s *Schema, params models.ParameterSet) *gojsonschema.Result {
	t.Helper()
	res, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(s.JSONSchema()),
		gojsonschema.NewGoLoader(params),
	)
	require.NoError(t, err)
	return res
}

// ==========================
// Registry Tests
// ==========================

func TestDefault_RegistersEveryKindInOrder(t *testing.T) {
	reg := Default()
	assert.Equal(t, models.AllKinds(), reg.Kinds())
	assert.Len(t, reg.Schemas(), 5)
	assert.Equal(t, Version, reg.Version())
}

func TestNew_RejectsBadTables(t *testing.T) {
	_, err := New(&Schema{Kind: "weather"})
	assert.Error(t, err)

	_, err = New(
		&Schema{Kind: models.KindSeaLevelRise},
		&Schema{Kind: models.KindSeaLevelRise},
	)
	assert.Error(t, err)

	_, err = New(&Schema{
		Kind:   models.KindSeaLevelRise,
		Params: []ParamDescriptor{{Name: "year", DependsOn: "month"}},
	})
	assert.Error(t, err)
}

// ==========================
// Missing / Defaults Tests
// ==========================

func TestSchema_Missing(t *testing.T) {
	tests := []struct {
		name     string
		kind     models.AnalysisKind
		params   models.ParameterSet
		expected []string
	}{
		{"sea level rise empty", models.KindSeaLevelRise, models.ParameterSet{}, []string{"year"}},
		{"sea level rise with year", models.KindSeaLevelRise, models.ParameterSet{"year": 2020}, nil},
		{"urban empty", models.KindUrbanDevelopment, models.ParameterSet{}, []string{"year"}},
		{"urban city only", models.KindUrbanDevelopment, models.ParameterSet{"city": "Jakarta"}, []string{"year"}},
		{"urban single year", models.KindUrbanDevelopment, models.ParameterSet{"year": 2019}, nil},
		{"urban half range", models.KindUrbanDevelopment, models.ParameterSet{"start_year": 2014}, []string{"end_year"}},
		{"urban full range", models.KindUrbanDevelopment, models.ParameterSet{"start_year": 2014, "end_year": 2020}, nil},
		{"topic empty", models.KindTopicModeling, models.ParameterSet{}, []string{"text_input"}},
		{"topic files", models.KindTopicModeling, models.ParameterSet{"files": []string{"a.pdf"}}, nil},
		{"population empty", models.KindPopulationExposure, models.ParameterSet{}, []string{"year"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustSchema(t, tt.kind)
			assert.Equal(t, tt.expected, s.Missing(tt.params))
			assert.Equal(t, len(tt.expected) == 0, s.Complete(tt.params))
		})
	}
}

func TestSchema_ApplyDefaults(t *testing.T) {
	s := mustSchema(t, models.KindSeaLevelRise)
	in := models.ParameterSet{"year": 2020}

	out := s.ApplyDefaults(in)
	assert.Equal(t, models.ParameterSet{"year": 2020, "threshold": 2.0}, out)
	assert.NotContains(t, in, "threshold", "input must not be mutated")

	topic := mustSchema(t, models.KindTopicModeling)
	out = topic.ApplyDefaults(models.ParameterSet{"text_input": "some text"})
	assert.Equal(t, "lda", out["method"])
	assert.Equal(t, 5, out["n_topics"])
	assert.NotContains(t, out, "files")
}

// ==========================
// Merge Tests
// ==========================

func TestSchema_Merge_AlternativesAreExclusive(t *testing.T) {
	s := mustSchema(t, models.KindUrbanDevelopment)

	merged := s.Merge(models.ParameterSet{"city": "Jakarta", "year": 2019},
		models.ParameterSet{"start_year": 2014, "end_year": 2020})
	assert.Equal(t, models.ParameterSet{"city": "Jakarta", "start_year": 2014, "end_year": 2020}, merged)

	back := s.Merge(merged, models.ParameterSet{"year": 2018})
	assert.Equal(t, models.ParameterSet{"city": "Jakarta", "year": 2018}, back)

	topic := mustSchema(t, models.KindTopicModeling)
	merged = topic.Merge(models.ParameterSet{"text_input": "hello world"},
		models.ParameterSet{"files": []string{"report.pdf"}})
	assert.Equal(t, models.ParameterSet{"files": []string{"report.pdf"}}, merged)
}

func TestSchema_Merge_Idempotent(t *testing.T) {
	s := mustSchema(t, models.KindUrbanDevelopment)
	base := models.ParameterSet{"city": "Jakarta"}
	update := models.ParameterSet{"start_year": 2014}

	once := s.Merge(base, update)
	twice := s.Merge(once, update)
	assert.Equal(t, once, twice)
	assert.Equal(t, models.ParameterSet{"city": "Jakarta"}, base)
}

// ==========================
// Coerce Tests
// ==========================

func TestSchema_Coerce(t *testing.T) {
	slr := mustSchema(t, models.KindSeaLevelRise)
	topic := mustSchema(t, models.KindTopicModeling)

	tests := []struct {
		name        string
		schema      *Schema
		param       string
		raw         interface{}
		expected    interface{}
		wantClamped bool
		wantOK      bool
	}{
		{"year in range", slr, "year", 2020, 2020, false, true},
		{"year from json", slr, "year", float64(2019), 2019, false, true},
		{"year below range", slr, "year", 1990, 2000, true, true},
		{"year above range", slr, "year", 2090, 2024, true, true},
		{"fractional year", slr, "year", 2019.5, nil, false, false},
		{"year wrong type", slr, "year", "soon", nil, false, false},
		{"threshold string", slr, "threshold", "1.5", 1.5, false, true},
		{"threshold clamped", slr, "threshold", 12.0, 5.0, true, true},
		{"threshold too small", slr, "threshold", 0.1, 0.5, true, true},
		{"city", slr, "city", " Jakarta ", "Jakarta", false, true},
		{"empty city", slr, "city", "  ", nil, false, false},
		{"unknown parameter", slr, "depth", 3, nil, false, false},
		{"enum case folded", topic, "method", "NMF", "nmf", false, true},
		{"enum unknown", topic, "method", "kmeans", nil, false, false},
		{"topics clamped", topic, "n_topics", 50, 20, true, true},
		{"files from csv", topic, "files", "a.pdf, b.txt", []string{"a.pdf", "b.txt"}, false, true},
		{"files from json", topic, "files", []interface{}{"a.pdf"}, []string{"a.pdf"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, clamped, ok := tt.schema.Coerce(tt.param, tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantClamped, clamped)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestSchema_Normalize(t *testing.T) {
	s := mustSchema(t, models.KindSeaLevelRise)
	out := s.Normalize(models.ParameterSet{
		"year":      float64(2020),
		"threshold": float64(2),
		"city":      "Jakarta",
		"stray":     true,
	})
	assert.Equal(t, models.ParameterSet{"year": 2020, "threshold": 2.0, "city": "Jakarta"}, out)
}

func TestSchema_Question(t *testing.T) {
	s := mustSchema(t, models.KindSeaLevelRise)
	assert.Equal(t, "What year would you like to analyze? (2000-2024, e.g. 2020)", s.Question("year"))
	assert.Contains(t, s.Question("threshold"), "0.5-5")

	topic := mustSchema(t, models.KindTopicModeling)
	assert.Contains(t, topic.Question("method"), "lda, nmf, bertopic")
}

// ==========================
// JSON Schema Tests
// ==========================

func TestSchema_JSONSchema(t *testing.T) {
	slr := mustSchema(t, models.KindSeaLevelRise)
	urban := mustSchema(t, models.KindUrbanDevelopment)
	topic := mustSchema(t, models.KindTopicModeling)

	tests := []struct {
		name   string
		schema *Schema
		params models.ParameterSet
		valid  bool
	}{
		{"complete sea level rise", slr, models.ParameterSet{"city": "Jakarta", "year": 2020, "threshold": 2.0}, true},
		{"no city is fine", slr, models.ParameterSet{"year": 2020, "threshold": 2.0}, true},
		{"missing threshold", slr, models.ParameterSet{"year": 2020}, false},
		{"year out of range", slr, models.ParameterSet{"year": 1980, "threshold": 2.0}, false},
		{"extra field", slr, models.ParameterSet{"year": 2020, "threshold": 2.0, "depth": 1}, false},
		{"urban year", urban, models.ParameterSet{"year": 2019}, true},
		{"urban range", urban, models.ParameterSet{"start_year": 2014, "end_year": 2020}, true},
		{"urban half range", urban, models.ParameterSet{"start_year": 2014}, false},
		{"urban both shapes", urban, models.ParameterSet{"year": 2019, "start_year": 2014, "end_year": 2020}, false},
		{"topic text", topic, models.ParameterSet{"text_input": "abc", "method": "lda", "n_topics": 5}, true},
		{"topic both inputs", topic, models.ParameterSet{"text_input": "abc", "files": []string{"a.pdf"}, "method": "lda", "n_topics": 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validate(t, tt.schema, tt.params)
			assert.Equal(t, tt.valid, res.Valid(), "%v", res.Errors())
		})
	}
}

// ==========================
// Overrides Tests
// ==========================

func TestApplyOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "tuned",
		"kinds": {
			"sea_level_rise": {"threshold": {"default": 1.5, "maximum": 4}},
			"UrbanDevelopment": {"year": {"question": "Which year?"}}
		}
	}`), 0o600))

	o, err := LoadOverrides(path)
	require.NoError(t, err)

	reg := Default()
	require.NoError(t, reg.ApplyOverrides(o))

	slr, _ := reg.Schema(models.KindSeaLevelRise)
	d, _ := slr.Descriptor("threshold")
	assert.Equal(t, 1.5, d.Default)
	assert.Equal(t, 4.0, *d.Maximum)

	urban, _ := reg.Schema(models.KindUrbanDevelopment)
	assert.Equal(t, "Which year?", urban.Question("year"))
	assert.Equal(t, "1.0.0+tuned", reg.Version())

	// a fresh default registry is untouched
	fresh, _ := Default().Schema(models.KindSeaLevelRise)
	fd, _ := fresh.Descriptor("threshold")
	assert.Equal(t, 2.0, fd.Default)
}

func TestApplyOverrides_Rejects(t *testing.T) {
	tests := []struct {
		name string
		o    *Overrides
	}{
		{"unknown kind", &Overrides{Kinds: map[string]map[string]ParamOverride{"weather": {}}}},
		{"unknown parameter", &Overrides{Kinds: map[string]map[string]ParamOverride{"sea_level_rise": {"depth": {}}}}},
		{"inverted range", &Overrides{Kinds: map[string]map[string]ParamOverride{"sea_level_rise": {"threshold": {Minimum: bound(4), Maximum: bound(1)}}}}},
		{"wrong default type", &Overrides{Kinds: map[string]map[string]ParamOverride{"sea_level_rise": {"year": {Default: "soon"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Default().ApplyOverrides(tt.o))
		})
	}
}

func TestLoadOverrides_MissingFile(t *testing.T) {
	_, err := LoadOverrides(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
