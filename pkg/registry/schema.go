// pkg/registry/schema.go
package registry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"geodialogue/internal/models"
)

// ParamDescriptor declares one parameter of an analysis kind.
type ParamDescriptor struct {
	Name        string           `json:"name"`
	Type        models.ParamType `json:"type"`
	Required    bool             `json:"required"`
	Default     interface{}      `json:"default,omitempty"`
	Minimum     *float64         `json:"minimum,omitempty"`
	Maximum     *float64         `json:"maximum,omitempty"`
	Enum        []string         `json:"enum,omitempty"`
	DependsOn   string           `json:"dependsOn,omitempty"`
	OneOf       string           `json:"oneOf,omitempty"`
	Question    string           `json:"question"`
	Description string           `json:"description,omitempty"`
}

// HasDefault reports whether the parameter can be filled without asking.
func (d *ParamDescriptor) HasDefault() bool {
	return d.Default != nil
}

// Schema is the parameter table of one analysis kind. Parameter order is the
// order clarification questions are asked in.
type Schema struct {
	Kind        models.AnalysisKind `json:"kind"`
	DisplayName string              `json:"displayName"`
	Description string              `json:"description"`
	Params      []ParamDescriptor   `json:"params"`

	index map[string]int
}

func (s *Schema) buildIndex() error {
	s.index = make(map[string]int, len(s.Params))
	for i, p := range s.Params {
		if p.Name == "" {
			return fmt.Errorf("schema %s: parameter %d has no name", s.Kind, i)
		}
		if _, dup := s.index[p.Name]; dup {
			return fmt.Errorf("schema %s: duplicate parameter %q", s.Kind, p.Name)
		}
		s.index[p.Name] = i
	}
	for _, p := range s.Params {
		if p.DependsOn != "" {
			if _, ok := s.index[p.DependsOn]; !ok {
				return fmt.Errorf("schema %s: %s depends on unknown parameter %q", s.Kind, p.Name, p.DependsOn)
			}
		}
	}
	return nil
}

// Descriptor looks up a parameter by name.
func (s *Schema) Descriptor(name string) (*ParamDescriptor, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return &s.Params[i], true
}

// NamesOfType returns the parameters of the given type in declaration order.
func (s *Schema) NamesOfType(t models.ParamType) []string {
	var out []string
	for _, p := range s.Params {
		if p.Type == t {
			out = append(out, p.Name)
		}
	}
	return out
}

// partners reports whether a and b are linked by DependsOn in either direction.
func (s *Schema) partners(a, b *ParamDescriptor) bool {
	return a.DependsOn == b.Name || b.DependsOn == a.Name
}

func (s *Schema) groupMembers(group string) []*ParamDescriptor {
	var out []*ParamDescriptor
	for i := range s.Params {
		if s.Params[i].OneOf == group {
			out = append(out, &s.Params[i])
		}
	}
	return out
}

// Missing lists required parameters with neither a value nor a default, in
// declaration order. An alternatives group counts as one requirement: it is
// met when any member is present together with its DependsOn partner.
func (s *Schema) Missing(params models.ParameterSet) []string {
	var missing []string
	seen := map[string]bool{}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
	}
	groupsDone := map[string]bool{}

	for i := range s.Params {
		p := &s.Params[i]
		if p.OneOf != "" {
			if groupsDone[p.OneOf] {
				continue
			}
			groupsDone[p.OneOf] = true
			if name, ok := s.groupGap(p.OneOf, params); ok {
				add(name)
			}
			continue
		}
		if params.Has(p.Name) {
			if p.DependsOn != "" && !params.Has(p.DependsOn) {
				add(p.DependsOn)
			}
			continue
		}
		if p.Required && !p.HasDefault() {
			add(p.Name)
		}
	}
	return missing
}

// groupGap returns the parameter to ask for when a group is unmet.
func (s *Schema) groupGap(group string, params models.ParameterSet) (string, bool) {
	members := s.groupMembers(group)
	var partial string
	for _, m := range members {
		if !params.Has(m.Name) {
			continue
		}
		if m.DependsOn == "" || params.Has(m.DependsOn) {
			return "", false
		}
		if partial == "" {
			partial = m.DependsOn
		}
	}
	if partial != "" {
		return partial, true
	}
	for _, m := range members {
		if m.HasDefault() {
			return "", false
		}
	}
	if !members[0].Required {
		return "", false
	}
	return members[0].Name, true
}

// Complete reports whether nothing is missing.
func (s *Schema) Complete(params models.ParameterSet) bool {
	return len(s.Missing(params)) == 0
}

// ApplyDefaults returns a copy of params with defaults filled in for unset
// parameters outside alternatives groups.
func (s *Schema) ApplyDefaults(params models.ParameterSet) models.ParameterSet {
	out := params.Clone()
	for _, p := range s.Params {
		if p.OneOf != "" || !p.HasDefault() || out.Has(p.Name) {
			continue
		}
		out[p.Name] = p.Default
	}
	return out
}

// Merge returns params with updates applied. Writing a member of an
// alternatives group removes the group members that are not its partner.
// Merging the same updates twice yields the same set as merging once.
func (s *Schema) Merge(params, updates models.ParameterSet) models.ParameterSet {
	out := params.Clone()
	for i := range s.Params {
		p := &s.Params[i]
		v, ok := updates[p.Name]
		if !ok {
			continue
		}
		if p.OneOf != "" {
			for _, m := range s.groupMembers(p.OneOf) {
				if m.Name != p.Name && !s.partners(p, m) {
					delete(out, m.Name)
				}
			}
		}
		out[p.Name] = v
	}
	return out
}

// Coerce validates raw against the descriptor of name. Numbers outside the
// declared range are clamped to the nearest bound and reported as clamped.
// ok is false when raw does not have the parameter's type.
func (s *Schema) Coerce(name string, raw interface{}) (value interface{}, clamped bool, ok bool) {
	d, found := s.Descriptor(name)
	if !found {
		return nil, false, false
	}
	return d.Coerce(raw)
}

// Coerce validates raw against the descriptor.
func (d *ParamDescriptor) Coerce(raw interface{}) (interface{}, bool, bool) {
	switch d.Type {
	case models.ParamYear, models.ParamInteger:
		n, ok := toFloat(raw)
		if !ok || n != math.Trunc(n) {
			return nil, false, false
		}
		n, clamped := d.clamp(n)
		return int(n), clamped, true

	case models.ParamFloat:
		n, ok := toFloat(raw)
		if !ok {
			return nil, false, false
		}
		n, clamped := d.clamp(n)
		return n, clamped, true

	case models.ParamString:
		str, ok := raw.(string)
		str = strings.TrimSpace(str)
		if !ok || str == "" {
			return nil, false, false
		}
		if len(d.Enum) == 0 {
			return str, false, true
		}
		for _, e := range d.Enum {
			if strings.EqualFold(e, str) {
				return e, false, true
			}
		}
		return nil, false, false

	case models.ParamCoordinate, models.ParamText:
		str, ok := raw.(string)
		str = strings.TrimSpace(str)
		if !ok || str == "" {
			return nil, false, false
		}
		return str, false, true

	case models.ParamFileList:
		files := toStrings(raw)
		if len(files) == 0 {
			return nil, false, false
		}
		return files, false, true
	}
	return nil, false, false
}

func (d *ParamDescriptor) clamp(n float64) (float64, bool) {
	if d.Minimum != nil && n < *d.Minimum {
		return *d.Minimum, true
	}
	if d.Maximum != nil && n > *d.Maximum {
		return *d.Maximum, true
	}
	return n, false
}

// Normalize re-coerces every known parameter, dropping unknown or invalid
// entries. Used after a state has been through JSON.
func (s *Schema) Normalize(params models.ParameterSet) models.ParameterSet {
	out := make(models.ParameterSet, len(params))
	for name, raw := range params {
		if v, _, ok := s.Coerce(name, raw); ok {
			out[name] = v
		}
	}
	return out
}

// Question renders the clarification prompt for a parameter.
func (s *Schema) Question(name string) string {
	d, ok := s.Descriptor(name)
	if !ok {
		return fmt.Sprintf("Please provide a value for %s.", name)
	}
	q := d.Question
	if q == "" {
		q = fmt.Sprintf("Please provide the %s.", strings.ReplaceAll(d.Name, "_", " "))
	}
	r := strings.NewReplacer(
		"{min}", formatBound(d.Minimum),
		"{max}", formatBound(d.Maximum),
		"{default}", fmt.Sprint(d.Default),
		"{enum}", strings.Join(d.Enum, ", "),
	)
	return r.Replace(q)
}

func formatBound(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// JSONSchema returns a draft-04 JSON schema for a complete, defaulted
// parameter set of this kind.
func (s *Schema) JSONSchema() map[string]interface{} {
	properties := map[string]interface{}{}
	var required []string
	dependencies := map[string]interface{}{}
	var groups []string
	groupSeen := map[string]bool{}

	for i := range s.Params {
		p := &s.Params[i]
		prop := map[string]interface{}{"description": p.Description}
		switch p.Type {
		case models.ParamYear, models.ParamInteger:
			prop["type"] = "integer"
		case models.ParamFloat:
			prop["type"] = "number"
		case models.ParamFileList:
			prop["type"] = "array"
			prop["items"] = map[string]interface{}{"type": "string"}
			prop["minItems"] = 1
		default:
			prop["type"] = "string"
			prop["minLength"] = 1
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop

		if p.OneOf != "" {
			if !groupSeen[p.OneOf] {
				groupSeen[p.OneOf] = true
				groups = append(groups, p.OneOf)
			}
			continue
		}
		if p.Required {
			required = append(required, p.Name)
		}
		if p.DependsOn != "" {
			dependencies[p.Name] = []string{p.DependsOn}
		}
	}

	doc := map[string]interface{}{
		"$schema":              "http://json-schema.org/draft-04/schema#",
		"title":                string(s.Kind),
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	if len(dependencies) > 0 {
		doc["dependencies"] = dependencies
	}

	var allOf []interface{}
	for _, g := range groups {
		allOf = append(allOf, map[string]interface{}{"oneOf": s.alternatives(g)})
	}
	if len(allOf) > 0 {
		doc["allOf"] = allOf
	}
	return doc
}

// alternatives lists the member combinations that satisfy a group.
func (s *Schema) alternatives(group string) []interface{} {
	members := s.groupMembers(group)
	used := map[string]bool{}
	var out []interface{}
	for _, m := range members {
		if used[m.Name] {
			continue
		}
		set := []string{m.Name}
		used[m.Name] = true
		if m.DependsOn != "" {
			set = append(set, m.DependsOn)
			used[m.DependsOn] = true
		}
		out = append(out, map[string]interface{}{"required": set})
	}
	return out
}

func toFloat(raw interface{}) (float64, bool) {
	switch n := raw.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}

func toStrings(raw interface{}) []string {
	var items []string
	switch v := raw.(type) {
	case []string:
		items = v
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			items = append(items, s)
		}
	case string:
		items = strings.Split(v, ",")
	}
	var out []string
	for _, item := range items {
		if t := strings.TrimSpace(item); t != "" {
			out = append(out, t)
		}
	}
	return out
}
