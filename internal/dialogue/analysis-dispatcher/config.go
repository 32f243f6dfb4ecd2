// internal/dialogue/analysis-dispatcher/config.go
package analysisdispatcher

import "time"

type Config struct {
	AttemptTimeout time.Duration // budget of one engine call
	MaxRetries     int           // retries after the first attempt
	BackoffBase    time.Duration
	BackoffMax     time.Duration
}

func DefaultConfig() Config {
	return Config{
		AttemptTimeout: 60 * time.Second,
		MaxRetries:     2,
		BackoffBase:    500 * time.Millisecond,
		BackoffMax:     5 * time.Second,
	}
}

// backoff is base*2^(retry-1), capped at BackoffMax.
func (c Config) backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := c.BackoffBase * time.Duration(1<<(retry-1))
	if c.BackoffMax > 0 && d > c.BackoffMax {
		d = c.BackoffMax
	}
	return d
}
