package locationresolver

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"geodialogue/internal/common/metrics"
	"geodialogue/internal/models"
)

// MatchKind tells how a record was found.
type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchAlias   MatchKind = "alias"
	MatchCountry MatchKind = "country"
	MatchFuzzy   MatchKind = "fuzzy"
)

// Match is a resolved location with how it was found.
type Match struct {
	Record models.LocationRecord
	Kind   MatchKind
	Score  float64
	Phrase string // normalized key that matched
	Text   string // normalized words of the utterance, set by FindIn
}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
}

// builtinAliases maps a normalized alias to the normalized name it stands for.
var builtinAliases = map[string]string{
	"usa":                      "united states",
	"us":                       "united states",
	"u s":                      "united states",
	"u s a":                    "united states",
	"america":                  "united states",
	"united states of america": "united states",
	"uk":                       "united kingdom",
	"u k":                      "united kingdom",
	"britain":                  "united kingdom",
	"great britain":            "united kingdom",
	"england":                  "united kingdom",
	"south korea":              "korea south",
	"korea":                    "korea south",
	"republic of korea":        "korea south",
	"holland":                  "netherlands",
	"the netherlands":          "netherlands",
	"ivory coast":              "côte d ivoire",
	"burma":                    "myanmar",
	"saigon":                   "ho chi minh city",
	"hcmc":                     "ho chi minh city",
	"bombay":                   "mumbai",
	"calcutta":                 "kolkata",
	"madras":                   "chennai",
	"peking":                   "beijing",
	"nyc":                      "new york",
	"new york city":            "new york",
	"la":                       "los angeles",
	"dki jakarta":              "jakarta",
	"jakarta raya":             "jakarta",
}

// stopwords never match a place on their own.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "in": true, "for": true, "of": true, "at": true,
	"to": true, "and": true, "or": true, "me": true, "show": true, "is": true, "it": true,
	"on": true, "by": true, "with": true, "from": true, "near": true, "around": true,
	"us": true, "la": true, "no": true, "yes": true, "risk": true, "rise": true,
	"level": true, "sea": true, "urban": true, "analysis": true, "analyze": true,
}

// Resolver looks places up in an immutable location table. Safe for
// concurrent use.
type Resolver struct {
	records   []models.LocationRecord
	byKey     map[string]int // city and ascii names -> first record
	byCountry map[string]int // country -> primary city record
	aliases   map[string]string
	maxWords  int
	cfg       Config
	dmp       *diffmatchpatch.DiffMatchPatch
	logger    Logger
}

// New builds a resolver. Records keep their order; the first record of a
// country is that country's primary city.
func New(records []models.LocationRecord, cfg Config, log Logger) *Resolver {
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	if cfg.BBoxBuffer <= 0 {
		cfg.BBoxBuffer = DefaultConfig().BBoxBuffer
	}

	r := &Resolver{
		records:   records,
		byKey:     make(map[string]int, len(records)*2),
		byCountry: map[string]int{},
		aliases:   builtinAliases,
		maxWords:  1,
		cfg:       cfg,
		dmp:       diffmatchpatch.New(),
		logger:    log,
	}

	for i, rec := range records {
		for _, name := range []string{rec.City, rec.CityASCII} {
			k := normalizeKey(name)
			if k == "" {
				continue
			}
			if _, exists := r.byKey[k]; !exists {
				r.byKey[k] = i
				r.trackWords(k)
			}
		}
		if k := normalizeKey(rec.Country); k != "" {
			if _, exists := r.byCountry[k]; !exists {
				r.byCountry[k] = i
				r.trackWords(k)
			}
		}
	}
	for alias := range r.aliases {
		r.trackWords(alias)
	}

	if log != nil {
		log.Info("location table loaded", map[string]interface{}{
			"records":   len(records),
			"countries": len(r.byCountry),
		})
	}
	return r
}

func (r *Resolver) trackWords(key string) {
	if n := len(strings.Fields(key)); n > r.maxWords {
		r.maxWords = n
	}
}

// Len returns the number of records.
func (r *Resolver) Len() int {
	return len(r.records)
}

// Resolve maps free text to a location record. Absence is a normal result.
func (r *Resolver) Resolve(text string) (*models.LocationRecord, bool) {
	m, ok := r.Lookup(text)
	if !ok {
		return nil, false
	}
	rec := m.Record
	return &rec, true
}

// Lookup tries an exact match on the whole text and on each comma separated
// part, then the best fuzzy match above the similarity threshold.
func (r *Resolver) Lookup(text string) (Match, bool) {
	candidates := candidateKeys(text)
	for _, key := range candidates {
		if m, ok := r.exact(key); ok {
			r.observe(m.Kind)
			return m, true
		}
	}
	for _, key := range candidates {
		if m, ok := r.fuzzy(key); ok {
			r.observe(MatchFuzzy)
			r.debug("fuzzy location match", map[string]interface{}{
				"query": key, "city": m.Record.City, "score": m.Score,
			})
			return m, true
		}
	}
	r.observe("miss")
	return Match{}, false
}

// FindIn scans an utterance for the earliest place name, preferring the
// longest phrase at each position. Only exact and alias matches count.
func (r *Resolver) FindIn(utterance string) (Match, bool) {
	words := strings.Fields(normalizeKey(utterance))
	for i := range words {
		for n := r.maxWords; n >= 1; n-- {
			if i+n > len(words) {
				continue
			}
			phrase := strings.Join(words[i:i+n], " ")
			if n == 1 && (stopwords[phrase] || utf8.RuneCountInString(phrase) < 3) {
				continue
			}
			if stopwords[words[i]] && n > 1 && r.aliases[phrase] == "" {
				continue
			}
			if m, ok := r.exact(phrase); ok {
				m.Text = phrase
				r.observe(m.Kind)
				return m, true
			}
		}
	}
	return Match{}, false
}

// BoundingBox returns the analysis extent around a record.
func (r *Resolver) BoundingBox(rec models.LocationRecord) models.BoundingBox {
	return rec.BoxAround(r.cfg.BBoxBuffer)
}

func (r *Resolver) exact(key string) (Match, bool) {
	if key == "" {
		return Match{}, false
	}
	kind := MatchExact
	if target, ok := r.aliases[key]; ok {
		key = target
		kind = MatchAlias
	}
	if i, ok := r.byKey[key]; ok {
		return Match{Record: r.records[i], Kind: kind, Score: 1, Phrase: key}, true
	}
	if i, ok := r.byCountry[key]; ok {
		if kind == MatchExact {
			kind = MatchCountry
		}
		return Match{Record: r.records[i], Kind: kind, Score: 1, Phrase: key}, true
	}
	return Match{}, false
}

// fuzzy scores every known name by normalized edit distance. Ties keep the
// earlier record.
func (r *Resolver) fuzzy(key string) (Match, bool) {
	if utf8.RuneCountInString(key) < 3 {
		return Match{}, false
	}
	best := -1
	bestScore := 0.0
	consider := func(name string, idx int) {
		score := r.similarity(key, name)
		if score > bestScore || (score == bestScore && best >= 0 && idx < best) {
			best, bestScore = idx, score
		}
	}
	for name, idx := range r.byKey {
		consider(name, idx)
	}
	for name, idx := range r.byCountry {
		consider(name, idx)
	}
	if best < 0 || bestScore < r.cfg.SimilarityThreshold {
		return Match{}, false
	}
	return Match{Record: r.records[best], Kind: MatchFuzzy, Score: bestScore, Phrase: key}, true
}

func (r *Resolver) similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 0
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	// the length gap alone is a lower bound on the distance
	if 1-float64(diff)/float64(longest) < r.cfg.SimilarityThreshold {
		return 0
	}
	dist := r.dmp.DiffLevenshtein(r.dmp.DiffMain(a, b, false))
	return 1 - float64(dist)/float64(longest)
}

func (r *Resolver) observe(result MatchKind) {
	metrics.LocationLookups.WithLabelValues(string(result)).Inc()
}

func (r *Resolver) debug(msg string, fields map[string]interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, fields)
	}
}

// candidateKeys returns the normalized whole text followed by its comma
// separated parts. A leading "no" (as in "no, Seoul") is dropped.
func candidateKeys(text string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		k := normalizeKey(s)
		if strings.HasPrefix(k, "no ") {
			k = strings.TrimPrefix(k, "no ")
		}
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	add(text)
	if strings.Contains(text, ",") {
		for _, part := range strings.Split(text, ",") {
			add(part)
		}
	}
	return out
}

// normalizeKey lower-cases s, keeps letters and digits and collapses
// everything else to single spaces.
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteByte(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
