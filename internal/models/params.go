// internal/models/params.go
package models

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// ParamType is the value type a parameter descriptor accepts.
type ParamType string

const (
	ParamYear       ParamType = "year"
	ParamInteger    ParamType = "integer"
	ParamFloat      ParamType = "float"
	ParamString     ParamType = "string"
	ParamCoordinate ParamType = "coordinate" // canonical city name, resolved through the location table
	ParamText       ParamType = "text"
	ParamFileList   ParamType = "filelist"
)

// ParameterSet maps parameter names to validated values. Years and integers
// are stored as int, floats as float64, lists as []string and everything else
// as string. Accessors also accept the shapes produced by a JSON round trip.
type ParameterSet map[string]interface{}

// Has reports whether name has a value.
func (p ParameterSet) Has(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p[name]
	return ok
}

// Int returns an integer value.
func (p ParameterSet) Int(name string) (int, bool) {
	v, ok := p[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

// Float returns a numeric value as float64.
func (p ParameterSet) Float(name string) (float64, bool) {
	v, ok := p[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// String returns a string value.
func (p ParameterSet) String(name string) (string, bool) {
	s, ok := p[name].(string)
	return s, ok
}

// Strings returns a list value.
func (p ParameterSet) Strings(name string) ([]string, bool) {
	switch v := p[name].(type) {
	case []string:
		return v, true
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Clone returns a shallow copy; list values are copied too.
func (p ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(p))
	for k, v := range p {
		if list, ok := v.([]string); ok {
			cp := make([]string, len(list))
			copy(cp, list)
			v = cp
		}
		out[k] = v
	}
	return out
}

// Names returns the parameter names in sorted order.
func (p ParameterSet) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
