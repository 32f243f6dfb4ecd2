// internal/dialogue/intent-classifier/signals.go
package intentclassifier

import "geodialogue/internal/models"

const (
	strongWeight  = 1.0
	weakWeight    = 0.4
	contextWeight = 0.4
)

// signalSet lists the phrases that point at one kind. Context phrases only
// add to a kind that already has a signal of its own, and never count
// against that kind once it is the session's current kind.
type signalSet struct {
	Strong  []string
	Weak    []string
	Context []string
}

var floodContext = []string{"sea level rise", "sea level", "slr", "flood", "flooding", "해수면", "해수면 상승"}

var builtinSignals = map[models.AnalysisKind]signalSet{
	models.KindSeaLevelRise: {
		Strong: []string{"sea level rise", "sea level", "sea levels", "slr", "해수면", "해수면 상승"},
		Weak:   []string{"flood", "flooding", "floods", "inundation", "coastal", "submerged", "storm surge", "rising seas"},
	},
	models.KindUrbanDevelopment: {
		Strong: []string{
			"urban development", "urban growth", "urban expansion", "urban area", "urban areas",
			"urbanization", "urbanisation", "urban", "built up area", "built up", "도시", "도시화", "도시 확장",
		},
		Weak: []string{"sprawl", "land use", "development", "growth", "expansion", "impervious"},
	},
	models.KindInfrastructureExposure: {
		Strong:  []string{"infrastructure exposure", "infrastructure", "인프라", "인프라 노출"},
		Weak:    []string{"roads", "road network", "buildings", "bridges", "facilities", "ports", "airports", "railways", "exposure"},
		Context: floodContext,
	},
	models.KindPopulationExposure: {
		Strong:  []string{"population exposure", "population", "people exposed", "people at risk", "residents", "인구"},
		Weak:    []string{"people", "inhabitants", "households", "demographic", "demographics", "exposure"},
		Context: floodContext,
	},
	models.KindTopicModeling: {
		Strong: []string{
			"topic modeling", "topic modelling", "topic model", "topic analysis", "topics", "topic",
			"bertopic", "토픽", "토픽 모델링", "텍스트 분석",
		},
		Weak: []string{"text", "texts", "documents", "document", "themes", "lda", "nmf", "corpus", "keywords"},
	},
}
