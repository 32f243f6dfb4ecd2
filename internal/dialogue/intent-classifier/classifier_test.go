package intentclassifier

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"geodialogue/internal/common/logger"
	"geodialogue/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type stubFallback struct {
	kind  models.AnalysisKind
	conf  float64
	err   error
	calls int
}

func (s *stubFallback) ClassifyIntent(ctx context.Context, utterance string, kinds []models.AnalysisKind) (models.AnalysisKind, float64, error) {
	s.calls++
	return s.kind, s.conf, s.err
}

func newTestClassifier(t *testing.T, fallback Fallback) *Classifier {
	t.Helper()
	return New(DefaultConfig(), models.AllKinds(), fallback, logger.NewTestLogger(t))
}

// ==========================
// Keyword Classification Tests
// ==========================

func TestClassify_Keywords(t *testing.T) {
	c := newTestClassifier(t, nil)

	tests := []struct {
		name      string
		utterance string
		wantKind  models.AnalysisKind
		wantConf  float64
	}{
		{"sea level rise", "Show me sea level rise risk for Jakarta in 2020", models.KindSeaLevelRise, 1},
		{"hyphenated", "Sea-Level Rise near Busan", models.KindSeaLevelRise, 1},
		{"urban", "Analyze urban development", models.KindUrbanDevelopment, 1},
		{"infrastructure names exposure too", "infrastructure exposure in Bangkok", models.KindInfrastructureExposure, 0.8},
		{"topic", "run topic modeling on my documents", models.KindTopicModeling, 1},
		{"korean", "서울 해수면 상승 분석", models.KindSeaLevelRise, 1},
		{"two weak signals", "coastal flooding", models.KindSeaLevelRise, 0.8},
		{"exposure beats the hazard it is measured against", "population exposure to sea level rise in Jakarta", models.KindPopulationExposure, 1 - 1.0/2.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(context.Background(), tt.utterance, models.KindNone)
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.InDelta(t, tt.wantConf, res.Confidence, 1e-9)
			assert.Equal(t, SourceKeyword, res.Source)
		})
	}
}

func TestClassify_NoDecision(t *testing.T) {
	c := newTestClassifier(t, nil)

	tests := []struct {
		name      string
		utterance string
		wantConf  float64
	}{
		{"no signal", "hello there", 0},
		{"empty", "", 0},
		{"tie between strong signals", "urban development and topic modeling", 0},
		{"single weak signal is below threshold", "flooding in Jakarta", 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(context.Background(), tt.utterance, models.KindNone)
			assert.True(t, res.Kind.IsNone())
			assert.InDelta(t, tt.wantConf, res.Confidence, 1e-9)
			assert.Equal(t, SourceNone, res.Source)
		})
	}
}

func TestClassify_TieRatioIsConfigurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TieRatio = 1.0
	cfg.Threshold = 0.1
	c := New(cfg, models.AllKinds(), nil, logger.NewNoOpLogger())

	// 1.0 against 1.0 is still a tie at ratio 1.0
	res := c.Classify(context.Background(), "urban development and topic modeling", models.KindNone)
	assert.True(t, res.Kind.IsNone())

	// 1.0 against 0.4 is not
	res = c.Classify(context.Background(), "urban growth with flooding", models.KindNone)
	assert.Equal(t, models.KindUrbanDevelopment, res.Kind)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
}

// ==========================
// Sticky Intent Tests
// ==========================

func TestClassify_Sticky(t *testing.T) {
	c := newTestClassifier(t, nil)

	tests := []struct {
		name      string
		prior     models.AnalysisKind
		utterance string
		wantKind  models.AnalysisKind
		wantSrc   Source
	}{
		{"bare answer", models.KindUrbanDevelopment, "2019", models.KindUrbanDevelopment, SourceSticky},
		{"weak contrary signal", models.KindUrbanDevelopment, "what about flooding", models.KindUrbanDevelopment, SourceSticky},
		{"hazard named in a parameter answer", models.KindPopulationExposure, "sea level rise threshold 1.5m", models.KindPopulationExposure, SourceSticky},
		{"strong contrary signal", models.KindSeaLevelRise, "actually show population exposure instead", models.KindPopulationExposure, SourceKeyword},
		{"same kind named again", models.KindSeaLevelRise, "sea level rise for 2010", models.KindSeaLevelRise, SourceSticky},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(context.Background(), tt.utterance, tt.prior)
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantSrc, res.Source)
			if tt.wantSrc == SourceSticky {
				assert.Equal(t, 1.0, res.Confidence)
			}
		})
	}
}

func TestClassify_StickyNeverChangesWithoutStrongSignal(t *testing.T) {
	c := newTestClassifier(t, nil)
	utterances := []string{"2020", "Jakarta", "1.5m please", "flooding and roads", "people and text", "no, Seoul", "ok"}

	for _, prior := range models.AllKinds() {
		for _, u := range utterances {
			res := c.Classify(context.Background(), u, prior)
			assert.Equal(t, prior, res.Kind, "prior=%s utterance=%q", prior, u)
		}
	}
}

// ==========================
// Fallback Tests
// ==========================

func TestClassify_Fallback(t *testing.T) {
	t.Run("used when keywords cannot decide", func(t *testing.T) {
		fb := &stubFallback{kind: models.KindTopicModeling, conf: 0.9}
		c := newTestClassifier(t, fb)

		res := c.Classify(context.Background(), "what themes come up in these pdfs", models.KindNone)
		assert.Equal(t, models.KindTopicModeling, res.Kind)
		assert.Equal(t, 0.9, res.Confidence)
		assert.Equal(t, SourceLLM, res.Source)
		assert.Equal(t, 1, fb.calls)
	})

	t.Run("not used when keywords decide", func(t *testing.T) {
		fb := &stubFallback{kind: models.KindTopicModeling, conf: 0.9}
		c := newTestClassifier(t, fb)

		res := c.Classify(context.Background(), "sea level rise", models.KindNone)
		assert.Equal(t, models.KindSeaLevelRise, res.Kind)
		assert.Equal(t, 0, fb.calls)
	})

	t.Run("answer below threshold is ignored", func(t *testing.T) {
		fb := &stubFallback{kind: models.KindUrbanDevelopment, conf: 0.3}
		c := newTestClassifier(t, fb)

		res := c.Classify(context.Background(), "hmm", models.KindNone)
		assert.True(t, res.Kind.IsNone())
		assert.Equal(t, 1, fb.calls)
	})

	t.Run("error degrades to no decision", func(t *testing.T) {
		fb := &stubFallback{err: fmt.Errorf("rate limited")}
		c := newTestClassifier(t, fb)

		res := c.Classify(context.Background(), "hmm", models.KindNone)
		assert.True(t, res.Kind.IsNone())
		assert.Equal(t, SourceNone, res.Source)
	})
}

func TestClassify_NilLogger(t *testing.T) {
	c := New(DefaultConfig(), models.AllKinds(), &stubFallback{err: fmt.Errorf("rate limited")}, nil)

	assert.NotPanics(t, func() {
		res := c.Classify(context.Background(), "urban development and topic modeling", models.KindNone)
		assert.True(t, res.Kind.IsNone())
	})
}

// ==========================
// Determinism Tests
// ==========================

func TestClassify_Deterministic(t *testing.T) {
	c := newTestClassifier(t, nil)
	utterances := []string{
		"Show me sea level rise risk for Jakarta in 2020",
		"population exposure to sea level rise",
		"coastal flooding",
		"infrastructure exposure and roads near Incheon",
	}
	for _, u := range utterances {
		first := c.Classify(context.Background(), u, models.KindNone)
		for i := 0; i < 20; i++ {
			again := c.Classify(context.Background(), u, models.KindNone)
			assert.Equal(t, first.Kind, again.Kind)
			assert.Equal(t, first.Confidence, again.Confidence)
		}
	}
}
