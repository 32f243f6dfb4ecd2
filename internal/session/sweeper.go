// internal/session/sweeper.go
package session

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Sweeper runs MemoryStore.Sweep on a cron schedule such as "@every 1m".
type Sweeper struct {
	cron   *cron.Cron
	store  *MemoryStore
	logger Logger
}

func NewSweeper(store *MemoryStore, schedule string, log Logger) (*Sweeper, error) {
	s := &Sweeper{
		cron:   cron.New(),
		store:  store,
		logger: log,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) run() {
	removed := s.store.Sweep()
	if removed > 0 && s.logger != nil {
		s.logger.Info("expired sessions removed", map[string]interface{}{
			"removed":   removed,
			"remaining": s.store.Len(),
		})
	}
}
