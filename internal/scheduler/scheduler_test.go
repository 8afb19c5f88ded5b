package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoposter/internal/coordinator"
	"autoposter/internal/models"
)

type countingRunner struct {
	mu     sync.Mutex
	calls  []models.Platform
	cancel context.CancelFunc
	stopAt int
}

func (r *countingRunner) PublishScheduled(ctx context.Context, p models.Platform, trigger models.Trigger) (coordinator.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, p)
	if r.cancel != nil && len(r.calls) >= r.stopAt {
		r.cancel()
	}
	return coordinator.Result{Platform: p, Trigger: trigger, State: coordinator.StateNoPending}, nil
}

func TestTickRunsEveryPlatform(t *testing.T) {
	r := &countingRunner{}
	s := New(r, []models.Platform{models.PlatformTwitter, models.PlatformInstagram}, time.Hour, "", zerolog.Nop())

	s.Tick(context.Background())

	assert.Equal(t, []models.Platform{models.PlatformTwitter, models.PlatformInstagram}, r.calls)
}

func TestRunFiresUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &countingRunner{cancel: cancel, stopAt: 3}
	s := New(r, []models.Platform{models.PlatformTwitter}, 5*time.Millisecond, "", zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.GreaterOrEqual(t, len(r.calls), 3)
}

func TestRunRefusesWhenLockHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.lock")
	other := flock.New(path)
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer other.Unlock()

	s := New(&countingRunner{}, []models.Platform{models.PlatformTwitter}, time.Hour, path, zerolog.Nop())
	err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
}

func TestRunReleasesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.lock")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(&countingRunner{}, []models.Platform{models.PlatformTwitter}, time.Hour, path, zerolog.Nop())
	require.NoError(t, s.Run(ctx))

	again := flock.New(path)
	ok, err := again.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	_ = again.Unlock()
}
