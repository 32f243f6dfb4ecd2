// internal/models/analysis.go
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// AnalysisKind identifies one of the supported analyses. The zero value means
// no analysis has been decided yet.
type AnalysisKind string

const (
	KindNone                   AnalysisKind = ""
	KindSeaLevelRise           AnalysisKind = "sea_level_rise"
	KindUrbanDevelopment       AnalysisKind = "urban_development"
	KindInfrastructureExposure AnalysisKind = "infrastructure_exposure"
	KindPopulationExposure     AnalysisKind = "population_exposure"
	KindTopicModeling          AnalysisKind = "topic_modeling"
)

var allKinds = []AnalysisKind{
	KindSeaLevelRise,
	KindUrbanDevelopment,
	KindInfrastructureExposure,
	KindPopulationExposure,
	KindTopicModeling,
}

var kindDisplayNames = map[AnalysisKind]string{
	KindSeaLevelRise:           "sea level rise",
	KindUrbanDevelopment:       "urban development",
	KindInfrastructureExposure: "infrastructure exposure",
	KindPopulationExposure:     "population exposure",
	KindTopicModeling:          "topic modeling",
}

// AllKinds returns every analysis kind in declaration order.
func AllKinds() []AnalysisKind {
	out := make([]AnalysisKind, len(allKinds))
	copy(out, allKinds)
	return out
}

// IsNone reports whether no analysis kind is set.
func (k AnalysisKind) IsNone() bool {
	return k == KindNone
}

// Valid reports whether k is one of the closed set of kinds.
func (k AnalysisKind) Valid() bool {
	_, ok := kindDisplayNames[k]
	return ok
}

// DisplayName returns a human readable name, e.g. "sea level rise".
func (k AnalysisKind) DisplayName() string {
	if name, ok := kindDisplayNames[k]; ok {
		return name
	}
	return "unknown analysis"
}

// ParseKind accepts the canonical identifier ("sea_level_rise"), the display
// name ("sea level rise") or the CamelCase form ("SeaLevelRise").
func ParseKind(s string) (AnalysisKind, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	for _, k := range allKinds {
		if string(k) == key || strings.ReplaceAll(string(k), "_", "") == key {
			return k, true
		}
	}
	return KindNone, false
}

// AnalysisRequest is the dispatch payload handed to the analysis engine.
type AnalysisRequest struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId,omitempty"`
	Kind        AnalysisKind    `json:"kind"`
	Params      ParameterSet    `json:"params"`
	Location    *LocationRecord `json:"location,omitempty"`
	BoundingBox *BoundingBox    `json:"bbox,omitempty"`
	RequestedAt time.Time       `json:"requestedAt"`
}

// OutcomeStatus is the terminal status of a dispatched request.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// AnalysisOutcome wraps whatever the engine returned. Result is passed
// through untouched.
type AnalysisOutcome struct {
	RequestID string          `json:"requestId"`
	Kind      AnalysisKind    `json:"kind"`
	Status    OutcomeStatus   `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Transient bool            `json:"transient,omitempty"`
	Attempts  int             `json:"attempts"`
}

// Succeeded reports whether the engine returned a result.
func (o *AnalysisOutcome) Succeeded() bool {
	return o != nil && o.Status == OutcomeSuccess
}
