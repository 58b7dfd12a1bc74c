// sweepers.go implements the interval jobs that remove lapsed state: expired text
// classifiers and expired session users.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// ExpiredClassifierDeleter is implemented by training.Tracker
type ExpiredClassifierDeleter interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// ExpiredUserDeleter is implemented by sessionusers.Gate
type ExpiredUserDeleter interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// Sweeper runs a cleanup function on a fixed interval
type Sweeper struct {
	name     string
	sweep    func(ctx context.Context) (int, error)
	clock    clockwork.Clock
	interval time.Duration
	stopChan chan struct{}
}

// NewClassifierExpirySweeper deletes expired text classifiers every interval
// (default one hour).
func NewClassifierExpirySweeper(deleter ExpiredClassifierDeleter, interval time.Duration, clock clockwork.Clock) *Sweeper {
	return newSweeper("classifier expiry sweeper", deleter.DeleteExpired, interval, time.Hour, clock)
}

// NewSessionUserSweeper deletes expired session users every interval
// (default two hours).
func NewSessionUserSweeper(deleter ExpiredUserDeleter, interval time.Duration, clock clockwork.Clock) *Sweeper {
	return newSweeper("session user sweeper", deleter.CleanupExpired, interval, 2*time.Hour, clock)
}

func newSweeper(name string, sweep func(context.Context) (int, error), interval, fallback time.Duration, clock clockwork.Clock) *Sweeper {
	if interval <= 0 {
		interval = fallback
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sweeper{
		name:     name,
		sweep:    sweep,
		clock:    clock,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop. The first sweep happens one interval after
// start.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info(s.name+" started", "interval", s.interval)

	for {
		select {
		case <-ticker.Chan():
			s.RunOnce(ctx)
		case <-s.stopChan:
			slog.Info(s.name + " stopped")
			return
		case <-ctx.Done():
			slog.Info(s.name + " context cancelled")
			return
		}
	}
}

// Stop stops the sweep loop
func (s *Sweeper) Stop() {
	close(s.stopChan)
}

// RunOnce performs a single sweep and returns how many items were removed
func (s *Sweeper) RunOnce(ctx context.Context) int {
	n, err := s.sweep(ctx)
	if err != nil {
		slog.Error(s.name+" run failed", "removed", n, "error", err)
		return n
	}
	if n > 0 {
		slog.Info(s.name+" run completed", "removed", n)
	}
	return n
}
