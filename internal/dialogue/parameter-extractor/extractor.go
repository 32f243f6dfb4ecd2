// internal/dialogue/parameter-extractor/extractor.go
package parameterextractor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	locationresolver "geodialogue/internal/dialogue/location-resolver"
	"geodialogue/internal/models"
	"geodialogue/pkg/registry"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Resolver finds places in free text.
type Resolver interface {
	FindIn(utterance string) (locationresolver.Match, bool)
	Resolve(text string) (*models.LocationRecord, bool)
}

// Assistant fills parameters the patterns could not find. Optional.
type Assistant interface {
	ExtractParameters(ctx context.Context, utterance string, kind models.AnalysisKind, fields map[string]string) (map[string]interface{}, error)
}

// Clamp records a value that was moved into its declared range.
type Clamp struct {
	Param string
	Given interface{}
	Value interface{}
}

// Notice is the user-facing sentence for a clamp.
func (c Clamp) Notice() string {
	return fmt.Sprintf("%s %v is outside the supported range, using %v instead.",
		strings.ReplaceAll(c.Param, "_", " "), c.Given, c.Value)
}

// Result holds only the parameters this utterance supplied or revised.
type Result struct {
	Values             models.ParameterSet
	Clamped            []Clamp
	Location           *models.LocationRecord
	UnresolvedLocation string
}

// Extractor is read-only after construction and safe for concurrent use.
type Extractor struct {
	registry  *registry.Registry
	resolver  Resolver
	assistant Assistant
	logger    Logger

	keyed  map[string]*regexp.Regexp
	counts map[string]*regexp.Regexp
	enums  map[string]map[string]*regexp.Regexp
}

// New builds an extractor for every schema in reg. assistant may be nil.
func New(reg *registry.Registry, resolver Resolver, assistant Assistant, log Logger) *Extractor {
	e := &Extractor{
		registry:  reg,
		resolver:  resolver,
		assistant: assistant,
		logger:    log,
		keyed:     map[string]*regexp.Regexp{},
		counts:    map[string]*regexp.Regexp{},
		enums:     map[string]map[string]*regexp.Regexp{},
	}
	for _, schema := range reg.Schemas() {
		for _, p := range schema.Params {
			switch p.Type {
			case models.ParamFloat, models.ParamInteger:
				if _, ok := e.keyed[p.Name]; !ok {
					e.keyed[p.Name] = keyedPattern(p.Name)
				}
				if p.Type == models.ParamInteger && strings.HasPrefix(p.Name, "n_") {
					e.counts[p.Name] = countPattern(p.Name)
				}
			case models.ParamString:
				if len(p.Enum) == 0 {
					continue
				}
				if e.enums[p.Name] == nil {
					e.enums[p.Name] = map[string]*regexp.Regexp{}
				}
				for _, v := range p.Enum {
					e.enums[p.Name][v] = enumPattern(v)
				}
			}
		}
	}
	return e
}

type candidate struct {
	name     string
	raw      interface{}
	text     string
	explicit bool
	loc      *models.LocationRecord
}

// scan is the per-call working state. work is the utterance with consumed
// spans blanked out; blanking keeps byte offsets stable.
type scan struct {
	*Extractor
	schema     *registry.Schema
	kind       models.AnalysisKind
	utterance  string
	work       string
	core       string
	known      models.ParameterSet
	pending    string
	found      map[string]candidate
	order      []string
	unresolved string
	done       bool
}

// Extract pulls parameter values for kind out of one utterance. known is the
// current parameter set and pending the parameter the last question asked
// for. Known values are only replaced by explicit mentions: keyed forms,
// year ranges, unit thresholds, an utterance that is only the value, or an
// answer to the pending question.
func (e *Extractor) Extract(ctx context.Context, utterance string, kind models.AnalysisKind, known models.ParameterSet, pending string) Result {
	res := Result{Values: models.ParameterSet{}}
	schema, ok := e.registry.Schema(kind)
	if !ok || strings.TrimSpace(utterance) == "" {
		return res
	}

	s := &scan{
		Extractor: e,
		schema:    schema,
		kind:      kind,
		utterance: utterance,
		work:      utterance,
		core:      coreOf(utterance),
		known:     known,
		pending:   pending,
		found:     map[string]candidate{},
	}

	s.text()
	s.files()
	s.pendingText()
	if !s.done {
		s.keyedNumbers()
		s.units()
		s.countNouns()
		s.years()
		s.decimals()
		s.pendingNumber()
		s.enumValues()
		s.location()
	}
	s.assist(ctx)

	for _, name := range s.order {
		c := s.found[name]
		if !s.allowed(c) {
			s.debug("ignored implicit value for known parameter", map[string]interface{}{
				"param": name, "text": c.text,
			})
			continue
		}
		v, clamped, ok := schema.Coerce(name, c.raw)
		if !ok {
			s.debug("dropped value of wrong type", map[string]interface{}{
				"param": name, "text": c.text,
			})
			continue
		}
		if clamped {
			res.Clamped = append(res.Clamped, Clamp{Param: name, Given: c.raw, Value: v})
		}
		res.Values[name] = v
		if c.loc != nil {
			res.Location = c.loc
		}
	}
	if res.Location == nil {
		res.UnresolvedLocation = s.unresolved
	}
	return res
}

func (s *scan) add(c candidate) {
	prev, exists := s.found[c.name]
	if exists && (prev.explicit || !c.explicit) {
		return
	}
	if c.name == s.pending {
		c.explicit = true
	}
	if !exists {
		s.order = append(s.order, c.name)
	}
	s.found[c.name] = c
}

func (s *scan) mask(start, end int) {
	b := []byte(s.work)
	for i := start; i < end && i < len(b); i++ {
		b[i] = ' '
	}
	s.work = string(b)
}

func (s *scan) has(name string) bool {
	_, ok := s.schema.Descriptor(name)
	return ok
}

func (s *scan) first(t models.ParamType) string {
	if names := s.schema.NamesOfType(t); len(names) > 0 {
		return names[0]
	}
	return ""
}

func (s *scan) isOnly(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), s.core)
}

func (s *scan) pendingType() (models.ParamType, bool) {
	d, ok := s.schema.Descriptor(s.pending)
	if !ok {
		return "", false
	}
	return d.Type, true
}

// allowed applies the overwrite policy. Writing into an alternatives group
// drops the other members, so an implicit value may not do that either.
func (s *scan) allowed(c candidate) bool {
	if c.explicit {
		return true
	}
	if s.known.Has(c.name) {
		return false
	}
	d, ok := s.schema.Descriptor(c.name)
	if !ok || d.OneOf == "" {
		return true
	}
	for _, p := range s.schema.Params {
		if p.OneOf != d.OneOf || p.Name == c.name || p.Name == d.DependsOn || p.DependsOn == c.name {
			continue
		}
		if s.known.Has(p.Name) {
			return false
		}
	}
	return true
}

func (s *scan) text() {
	name := s.first(models.ParamText)
	if name == "" {
		return
	}
	if m := quotedPattern.FindStringSubmatchIndex(s.work); m != nil {
		body := ""
		if m[2] >= 0 {
			body = s.work[m[2]:m[3]]
		} else {
			body = s.work[m[4]:m[5]]
		}
		s.add(candidate{name: name, raw: body, text: body, explicit: true})
		s.mask(m[0], m[1])
		return
	}
	if m := textTailPattern.FindStringSubmatchIndex(s.work); m != nil {
		body := strings.TrimSpace(s.work[m[2]:m[3]])
		s.add(candidate{name: name, raw: body, text: body, explicit: true})
		s.mask(m[0], m[1])
	}
}

func (s *scan) files() {
	name := s.first(models.ParamFileList)
	if name == "" {
		return
	}
	var list []string
	seen := map[string]bool{}
	for _, loc := range filePattern.FindAllStringIndex(s.work, -1) {
		f := s.work[loc[0]:loc[1]]
		if !seen[f] {
			seen[f] = true
			list = append(list, f)
		}
		s.mask(loc[0], loc[1])
	}
	if len(list) > 0 {
		s.add(candidate{name: name, raw: list, text: strings.Join(list, ", "), explicit: true})
	}
}

// pendingText takes the whole utterance as the answer to a text question.
func (s *scan) pendingText() {
	t, ok := s.pendingType()
	if !ok || t != models.ParamText || len(s.found) > 0 {
		return
	}
	body := strings.TrimSpace(s.utterance)
	s.add(candidate{name: s.pending, raw: body, text: body, explicit: true})
	s.done = true
}

func (s *scan) keyedNumbers() {
	for _, p := range s.schema.Params {
		re, ok := s.keyed[p.Name]
		if !ok {
			continue
		}
		m := re.FindStringSubmatchIndex(s.work)
		if m == nil {
			continue
		}
		text := s.work[m[2]:m[3]]
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			continue
		}
		s.add(candidate{name: p.Name, raw: f, text: s.work[m[0]:m[1]], explicit: true})
		s.mask(m[0], m[1])
	}
}

// floatTarget is the parameter a bare measurement belongs to.
func (s *scan) floatTarget() string {
	floats := s.schema.NamesOfType(models.ParamFloat)
	if len(floats) == 1 {
		return floats[0]
	}
	if s.has("threshold") {
		return "threshold"
	}
	return ""
}

func (s *scan) units() {
	target := s.floatTarget()
	if target == "" {
		return
	}
	for i, m := range unitPattern.FindAllStringSubmatchIndex(s.work, -1) {
		if i == 0 {
			if f, err := strconv.ParseFloat(s.work[m[2]:m[3]], 64); err == nil {
				s.add(candidate{name: target, raw: f, text: s.work[m[0]:m[1]], explicit: true})
			}
		}
		s.mask(m[0], m[1])
	}
}

func (s *scan) countNouns() {
	for _, p := range s.schema.Params {
		re, ok := s.counts[p.Name]
		if !ok {
			continue
		}
		if m := re.FindStringSubmatchIndex(s.work); m != nil {
			n, err := strconv.Atoi(s.work[m[2]:m[3]])
			if err == nil {
				s.add(candidate{name: p.Name, raw: n, text: s.work[m[0]:m[1]], explicit: true})
			}
			s.mask(m[0], m[1])
		}
	}
}

func (s *scan) years() {
	if len(s.schema.NamesOfType(models.ParamYear)) == 0 {
		return
	}
	hasPeriod := s.has("start_year") && s.has("end_year")

	for _, re := range []*regexp.Regexp{betweenPattern, rangePattern} {
		for _, m := range re.FindAllStringSubmatchIndex(s.work, -1) {
			a, okA := parseYear(s.work[m[2]:m[3]])
			b, okB := parseYear(s.work[m[4]:m[5]])
			if !okA || !okB {
				continue
			}
			text := s.work[m[0]:m[1]]
			if hasPeriod {
				if a > b {
					a, b = b, a
				}
				s.add(candidate{name: "start_year", raw: a, text: text, explicit: true})
				s.add(candidate{name: "end_year", raw: b, text: text, explicit: true})
			} else {
				s.debug("year range for a single-year analysis ignored", map[string]interface{}{
					"kind": string(s.kind), "text": text,
				})
			}
			s.mask(m[0], m[1])
		}
	}

	keyed := []struct {
		name string
		re   *regexp.Regexp
	}{
		{"start_year", startYearPattern},
		{"end_year", endYearPattern},
		{"year", yearKeyPattern},
	}
	for _, k := range keyed {
		if !s.has(k.name) {
			continue
		}
		m := k.re.FindStringSubmatchIndex(s.work)
		if m == nil {
			continue
		}
		if y, ok := parseYear(s.work[m[2]:m[3]]); ok {
			s.add(candidate{name: k.name, raw: y, text: s.work[m[0]:m[1]], explicit: true})
			s.mask(m[0], m[1])
		}
	}

	var distinct []int
	var texts []string
	seen := map[int]bool{}
	for _, m := range yearPattern.FindAllStringSubmatchIndex(s.work, -1) {
		y, ok := parseYear(s.work[m[2]:m[3]])
		if !ok {
			continue
		}
		if !seen[y] {
			seen[y] = true
			distinct = append(distinct, y)
			texts = append(texts, s.work[m[2]:m[3]])
		}
		s.mask(m[0], m[1])
	}
	if len(distinct) > 1 {
		s.debug("several bare years, none taken", map[string]interface{}{"years": distinct})
		return
	}
	if len(distinct) == 1 {
		if target := s.bareYearTarget(); target != "" {
			s.add(candidate{name: target, raw: distinct[0], text: texts[0], explicit: s.isOnly(texts[0])})
		}
	}
}

// bareYearTarget picks the parameter an unlabelled year fills: the pending
// one, the open end of a half-given period, or the single year.
func (s *scan) bareYearTarget() string {
	if t, ok := s.pendingType(); ok && t == models.ParamYear {
		return s.pending
	}
	if s.has("start_year") && s.has("end_year") {
		_, startNow := s.found["start_year"]
		_, endNow := s.found["end_year"]
		start := startNow || s.known.Has("start_year")
		end := endNow || s.known.Has("end_year")
		if start && !end {
			return "end_year"
		}
		if end && !start {
			return "start_year"
		}
	}
	if s.has("year") {
		return "year"
	}
	if years := s.schema.NamesOfType(models.ParamYear); len(years) == 1 {
		return years[0]
	}
	return ""
}

func (s *scan) decimals() {
	floats := s.schema.NamesOfType(models.ParamFloat)
	if len(floats) != 1 {
		return
	}
	if _, ok := s.found[floats[0]]; ok {
		return
	}
	m := decimalPattern.FindStringSubmatchIndex(s.work)
	if m == nil {
		return
	}
	text := s.work[m[2]:m[3]]
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		s.add(candidate{name: floats[0], raw: f, text: text, explicit: s.isOnly(text)})
	}
	s.mask(m[2], m[3])
}

// pendingNumber takes the first remaining number as the answer to a numeric
// question.
func (s *scan) pendingNumber() {
	t, ok := s.pendingType()
	if !ok || (t != models.ParamFloat && t != models.ParamInteger && t != models.ParamYear) {
		return
	}
	if _, done := s.found[s.pending]; done {
		return
	}
	loc := numberPattern.FindStringIndex(s.work)
	if loc == nil {
		return
	}
	text := s.work[loc[0]:loc[1]]
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		s.add(candidate{name: s.pending, raw: f, text: text, explicit: true})
	}
	s.mask(loc[0], loc[1])
}

func (s *scan) enumValues() {
	for _, p := range s.schema.Params {
		patterns, ok := s.enums[p.Name]
		if !ok {
			continue
		}
		var hit candidate
		hits := 0
		for _, v := range p.Enum {
			re, ok := patterns[v]
			if !ok {
				continue
			}
			m := re.FindStringSubmatchIndex(s.work)
			if m == nil {
				continue
			}
			hits++
			hit = candidate{name: p.Name, raw: v, text: v, explicit: m[2] >= 0 || s.isOnly(v)}
		}
		if hits == 1 {
			s.add(hit)
		} else if hits > 1 {
			s.debug("several enum values, none taken", map[string]interface{}{"param": p.Name})
		}
	}
}

func (s *scan) location() {
	name := s.first(models.ParamCoordinate)
	if name == "" {
		return
	}
	if m, ok := s.resolver.FindIn(s.work); ok {
		rec := m.Record
		s.add(candidate{
			name:     name,
			raw:      rec.City,
			text:     m.Text,
			explicit: s.prepositional(m.Text) || normalizeWords(s.core) == m.Text,
			loc:      &rec,
		})
		return
	}
	for _, m := range placePattern.FindAllStringSubmatch(s.work, -1) {
		phrase := strings.TrimSpace(m[1])
		if analysisWords[strings.ToLower(strings.Fields(phrase)[0])] {
			continue
		}
		if rec, ok := s.resolver.Resolve(phrase); ok {
			s.add(candidate{name: name, raw: rec.City, text: phrase, explicit: true, loc: rec})
		} else {
			s.unresolved = phrase
		}
		return
	}
	if s.pending == name && len(s.found) == 0 && s.core != "" && !hasDigit(s.core) {
		if rec, ok := s.resolver.Resolve(s.core); ok {
			s.add(candidate{name: name, raw: rec.City, text: s.core, explicit: true, loc: rec})
		} else {
			s.unresolved = s.core
		}
	}
}

// prepositional reports whether the place words follow for/in/at/near/around/of.
func (s *scan) prepositional(words string) bool {
	if words == "" {
		return false
	}
	re, err := regexp.Compile(`\b(?:for|in|at|near|around|of)\s+` + regexp.QuoteMeta(words) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(normalizeWords(s.work))
}

// assist asks the assistant for required parameters still missing after the
// patterns ran. Suggestions never replace known values.
func (s *scan) assist(ctx context.Context) {
	if s.assistant == nil {
		return
	}
	provisional := s.known.Clone()
	for name, c := range s.found {
		if s.allowed(c) {
			provisional[name] = c.raw
		}
	}
	missing := s.schema.Missing(provisional)
	if len(missing) == 0 {
		return
	}
	fields := make(map[string]string, len(missing))
	for _, name := range missing {
		if d, ok := s.schema.Descriptor(name); ok {
			fields[name] = fmt.Sprintf("%s (%s)", d.Description, d.Type)
		}
	}
	values, err := s.assistant.ExtractParameters(ctx, s.utterance, s.kind, fields)
	if err != nil {
		s.warn("assistant extraction failed", map[string]interface{}{
			"kind": string(s.kind), "error": err.Error(),
		})
		return
	}
	for _, name := range missing {
		v, ok := values[name]
		if !ok || s.known.Has(name) {
			continue
		}
		if _, already := s.found[name]; already {
			continue
		}
		d, _ := s.schema.Descriptor(name)
		if d != nil && d.Type == models.ParamCoordinate {
			str, _ := v.(string)
			if rec, ok := s.resolver.Resolve(str); ok {
				s.add(candidate{name: name, raw: rec.City, text: str, loc: rec})
			} else if str != "" && s.unresolved == "" {
				s.unresolved = str
			}
			continue
		}
		s.add(candidate{name: name, raw: v, text: fmt.Sprint(v)})
	}
}

func (s *scan) debug(msg string, fields map[string]interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, fields)
	}
}

func (s *scan) warn(msg string, fields map[string]interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, fields)
	}
}
