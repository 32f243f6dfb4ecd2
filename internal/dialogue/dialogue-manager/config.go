// internal/dialogue/dialogue-manager/config.go
package dialoguemanager

type Config struct {
	TurnCap    int     // turns allowed before a dialogue is abandoned
	BBoxBuffer float64 // degrees around the resolved city
}

func DefaultConfig() Config {
	return Config{
		TurnCap:    10,
		BBoxBuffer: 0.25,
	}
}
