// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"geodialogue/internal/models"
)

// Version identifies the builtin schema table.
const Version = "1.0.0"

// Registry holds one schema per analysis kind. It is read-only once built and
// safe for concurrent use.
type Registry struct {
	version string
	order   []models.AnalysisKind
	schemas map[models.AnalysisKind]*Schema
}

// Default builds a registry from the builtin schema table.
func Default() *Registry {
	reg, err := New(builtinSchemas()...)
	if err != nil {
		panic(fmt.Sprintf("builtin schema table is invalid: %v", err))
	}
	return reg
}

// New builds a registry, checking that every kind is known and appears once.
func New(schemas ...*Schema) (*Registry, error) {
	reg := &Registry{
		version: Version,
		schemas: make(map[models.AnalysisKind]*Schema, len(schemas)),
	}
	for _, s := range schemas {
		if !s.Kind.Valid() {
			return nil, fmt.Errorf("unknown analysis kind %q", s.Kind)
		}
		if _, dup := reg.schemas[s.Kind]; dup {
			return nil, fmt.Errorf("duplicate schema for %s", s.Kind)
		}
		if err := s.buildIndex(); err != nil {
			return nil, err
		}
		reg.schemas[s.Kind] = s
		reg.order = append(reg.order, s.Kind)
	}
	return reg, nil
}

// Version returns the schema table version, including any override version.
func (r *Registry) Version() string {
	return r.version
}

// Schema returns the schema for kind.
func (r *Registry) Schema(kind models.AnalysisKind) (*Schema, bool) {
	s, ok := r.schemas[kind]
	return s, ok
}

// Kinds lists registered kinds in declaration order.
func (r *Registry) Kinds() []models.AnalysisKind {
	out := make([]models.AnalysisKind, len(r.order))
	copy(out, r.order)
	return out
}

// Schemas lists registered schemas in declaration order.
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.schemas[k])
	}
	return out
}

// ParamOverride retunes one existing parameter.
type ParamOverride struct {
	Default  interface{} `json:"default,omitempty"`
	Minimum  *float64    `json:"minimum,omitempty"`
	Maximum  *float64    `json:"maximum,omitempty"`
	Question string      `json:"question,omitempty"`
}

// Overrides is the on-disk format of a tuning file:
//
//	{"version": "2024-06", "kinds": {"sea_level_rise": {"threshold": {"default": 1.5}}}}
type Overrides struct {
	Version string                              `json:"version"`
	Kinds   map[string]map[string]ParamOverride `json:"kinds"`
}

// LoadOverrides reads an overrides file.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o Overrides
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	return &o, nil
}

// ApplyOverrides changes defaults, ranges and questions of existing
// parameters. Unknown kinds or parameters are rejected; overrides never add
// anything. Must be called before the registry is shared.
func (r *Registry) ApplyOverrides(o *Overrides) error {
	if o == nil {
		return nil
	}
	for kindName, params := range o.Kinds {
		kind, ok := models.ParseKind(kindName)
		if !ok {
			return fmt.Errorf("override for unknown analysis kind %q", kindName)
		}
		schema, ok := r.schemas[kind]
		if !ok {
			return fmt.Errorf("override for unregistered analysis kind %q", kindName)
		}
		for name, po := range params {
			d, ok := schema.Descriptor(name)
			if !ok {
				return fmt.Errorf("override for unknown parameter %s.%s", kind, name)
			}
			if po.Minimum != nil {
				d.Minimum = po.Minimum
			}
			if po.Maximum != nil {
				d.Maximum = po.Maximum
			}
			if d.Minimum != nil && d.Maximum != nil && *d.Minimum > *d.Maximum {
				return fmt.Errorf("override for %s.%s: minimum above maximum", kind, name)
			}
			if po.Default != nil {
				v, _, ok := d.Coerce(po.Default)
				if !ok {
					return fmt.Errorf("override for %s.%s: default %v has the wrong type", kind, name, po.Default)
				}
				d.Default = v
			}
			if po.Question != "" {
				d.Question = po.Question
			}
		}
	}
	if o.Version != "" {
		r.version = Version + "+" + o.Version
	}
	return nil
}
