package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDeleter struct {
	calls   atomic.Int32
	removed int
	err     error
}

func (d *countingDeleter) DeleteExpired(context.Context) (int, error) {
	d.calls.Add(1)
	return d.removed, d.err
}

func (d *countingDeleter) CleanupExpired(ctx context.Context) (int, error) {
	return d.DeleteExpired(ctx)
}

func TestSweeper_DefaultIntervals(t *testing.T) {
	d := &countingDeleter{}
	if got := NewClassifierExpirySweeper(d, 0, nil).interval; got != time.Hour {
		t.Errorf("classifier sweeper interval = %v, want 1h", got)
	}
	if got := NewSessionUserSweeper(d, -time.Minute, nil).interval; got != 2*time.Hour {
		t.Errorf("session user sweeper interval = %v, want 2h", got)
	}
	if got := NewSessionUserSweeper(d, 5*time.Minute, nil).interval; got != 5*time.Minute {
		t.Errorf("session user sweeper interval = %v, want 5m", got)
	}
}

func TestSweeper_RunOnce(t *testing.T) {
	d := &countingDeleter{removed: 4}
	s := NewClassifierExpirySweeper(d, time.Hour, clockwork.NewFakeClock())
	assert.Equal(t, 4, s.RunOnce(context.Background()))

	d.err = errors.New("db down")
	d.removed = 1
	assert.Equal(t, 1, s.RunOnce(context.Background()), "partial progress is reported on error")
}

func TestSweeper_StartWaitsForFirstTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &countingDeleter{}
	s := NewSessionUserSweeper(d, time.Hour, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Zero(t, d.calls.Load())

	clock.Advance(time.Hour)
	assert.Eventually(t, func() bool { return d.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
