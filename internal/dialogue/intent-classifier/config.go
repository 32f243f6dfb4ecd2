// internal/dialogue/intent-classifier/config.go
package intentclassifier

// Config holds the acceptance policy.
type Config struct {
	Threshold float64 // minimum confidence to accept a kind
	TieRatio  float64 // runner-up at or above TieRatio*best means no decision
}

func DefaultConfig() Config {
	return Config{
		Threshold: 0.5,
		TieRatio:  0.8,
	}
}
