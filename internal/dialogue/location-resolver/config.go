// internal/dialogue/location-resolver/config.go
package locationresolver

// Config holds the matching policy.
type Config struct {
	SimilarityThreshold float64 // minimum fuzzy score in [0,1]
	BBoxBuffer          float64 // degrees added around a point
}

func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.8,
		BBoxBuffer:          0.25,
	}
}
