// internal/dialogue/intent-classifier/classifier.go
package intentclassifier

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"geodialogue/internal/common/metrics"
	"geodialogue/internal/models"
)

// Source tells which rule produced a classification.
type Source string

const (
	SourceKeyword Source = "keyword"
	SourceSticky  Source = "sticky"
	SourceLLM     Source = "llm"
	SourceNone    Source = "none"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Fallback classifies utterances the keyword rules cannot decide.
type Fallback interface {
	ClassifyIntent(ctx context.Context, utterance string, kinds []models.AnalysisKind) (models.AnalysisKind, float64, error)
}

// Result is a classification. Kind is KindNone when nothing cleared the
// threshold; Confidence is still reported.
type Result struct {
	Kind       models.AnalysisKind
	Confidence float64
	Source     Source
	Scores     map[models.AnalysisKind]float64
}

// compiled phrase, split into words
type phrase struct {
	words   []string
	weight  float64
	context bool
}

// Classifier is read-only after construction and safe for concurrent use.
type Classifier struct {
	cfg      Config
	kinds    []models.AnalysisKind
	phrases  map[models.AnalysisKind][]phrase
	contexts map[models.AnalysisKind]map[string]bool
	fallback Fallback
	logger   Logger
}

// New builds a classifier over kinds, in tie-break order. fallback may be nil.
func New(cfg Config, kinds []models.AnalysisKind, fallback Fallback, log Logger) *Classifier {
	c := &Classifier{
		cfg:      cfg,
		kinds:    kinds,
		phrases:  make(map[models.AnalysisKind][]phrase, len(kinds)),
		contexts: make(map[models.AnalysisKind]map[string]bool, len(kinds)),
		fallback: fallback,
		logger:   log,
	}
	for _, k := range kinds {
		set := builtinSignals[k]
		var list []phrase
		add := func(items []string, weight float64, isContext bool) {
			for _, p := range items {
				if words := strings.Fields(normalize(p)); len(words) > 0 {
					list = append(list, phrase{words: words, weight: weight, context: isContext})
				}
			}
		}
		add(set.Strong, strongWeight, false)
		add(set.Weak, weakWeight, false)
		add(set.Context, contextWeight, true)
		// longest phrases claim their words first
		sort.SliceStable(list, func(i, j int) bool { return len(list[i].words) > len(list[j].words) })
		c.phrases[k] = list

		ctx := map[string]bool{}
		for _, p := range set.Context {
			ctx[normalize(p)] = true
		}
		c.contexts[k] = ctx
	}
	return c
}

// Classify decides the analysis kind of an utterance. prior is the kind the
// session is already collecting for, or KindNone.
func (c *Classifier) Classify(ctx context.Context, utterance string, prior models.AnalysisKind) Result {
	words := strings.Fields(normalize(utterance))

	if !prior.IsNone() {
		scores, strong := c.score(words, c.contexts[prior])
		switched := false
		for _, k := range c.kinds {
			if k != prior && strong[k] && scores[k] > scores[prior] {
				switched = true
				break
			}
		}
		if !switched {
			return c.observe(Result{Kind: prior, Confidence: 1, Source: SourceSticky, Scores: scores})
		}
	}

	scores, _ := c.score(words, nil)
	res := c.decide(scores)
	if !res.Kind.IsNone() {
		return c.observe(res)
	}

	if c.fallback != nil && len(words) > 0 {
		kind, conf, err := c.fallback.ClassifyIntent(ctx, utterance, c.kinds)
		if err != nil {
			c.warn("intent fallback failed", map[string]interface{}{"error": err.Error()})
		} else if !kind.IsNone() && conf >= c.cfg.Threshold {
			return c.observe(Result{Kind: kind, Confidence: conf, Source: SourceLLM, Scores: scores})
		}
	}
	return c.observe(res)
}

// decide applies the tie rule and the threshold to keyword scores.
func (c *Classifier) decide(scores map[models.AnalysisKind]float64) Result {
	best, s1, s2 := models.KindNone, 0.0, 0.0
	for _, k := range c.kinds {
		s := scores[k]
		switch {
		case s > s1:
			best, s1, s2 = k, s, s1
		case s > s2:
			s2 = s
		}
	}
	if s1 == 0 {
		return Result{Kind: models.KindNone, Source: SourceNone, Scores: scores}
	}
	if s2 >= c.cfg.TieRatio*s1 {
		c.debug("intent tie", map[string]interface{}{"best": string(best), "s1": s1, "s2": s2})
		return Result{Kind: models.KindNone, Confidence: 0, Source: SourceNone, Scores: scores}
	}
	conf := s1
	if conf > 1 {
		conf = 1
	}
	conf *= 1 - s2/(2*s1)
	if conf < c.cfg.Threshold {
		return Result{Kind: models.KindNone, Confidence: conf, Source: SourceNone, Scores: scores}
	}
	return Result{Kind: best, Confidence: conf, Source: SourceKeyword, Scores: scores}
}

// score sums the signals of every kind. Within one kind a word is claimed by
// at most one phrase. Phrases in mask are skipped for every kind.
func (c *Classifier) score(words []string, mask map[string]bool) (map[models.AnalysisKind]float64, map[models.AnalysisKind]bool) {
	scores := make(map[models.AnalysisKind]float64, len(c.kinds))
	strong := make(map[models.AnalysisKind]bool, len(c.kinds))
	for _, k := range c.kinds {
		used := make([]bool, len(words))
		var own, ctxScore float64
		for _, p := range c.phrases[k] {
			if mask[strings.Join(p.words, " ")] {
				continue
			}
			if !claim(words, used, p.words) {
				continue
			}
			if p.context {
				ctxScore += p.weight
				continue
			}
			own += p.weight
			if p.weight >= strongWeight {
				strong[k] = true
			}
		}
		if own > 0 {
			scores[k] = own + ctxScore
		}
	}
	return scores, strong
}

// claim marks the first unclaimed occurrence of target in words.
func claim(words []string, used []bool, target []string) bool {
	n := len(target)
	for i := 0; i+n <= len(words); i++ {
		ok := true
		for j := 0; j < n; j++ {
			if used[i+j] || words[i+j] != target[j] {
				ok = false
				break
			}
		}
		if ok {
			for j := 0; j < n; j++ {
				used[i+j] = true
			}
			return true
		}
	}
	return false
}

func (c *Classifier) observe(res Result) Result {
	kind := string(res.Kind)
	if res.Kind.IsNone() {
		kind = "none"
	}
	metrics.IntentClassifications.WithLabelValues(kind, string(res.Source)).Inc()
	return res
}

// normalize lower-cases s and turns every run of non letters/digits into one
// space, so "Sea-level" and "sea level" match.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func (c *Classifier) debug(msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, fields)
	}
}

func (c *Classifier) warn(msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, fields)
	}
}
