package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecoverer struct {
	calls   atomic.Int64
	timeout atomic.Int64
	n       int64
	err     error
}

func (c *countingRecoverer) RecoverStaleSyncHistories(_ context.Context, timeout time.Duration) (int64, error) {
	c.calls.Add(1)
	c.timeout.Store(int64(timeout))
	return c.n, c.err
}

func TestNewStaleRunReaper_Validation(t *testing.T) {
	_, err := NewStaleRunReaper(ReaperConfig{Logger: testLogger()})
	assert.Error(t, err)

	_, err = NewStaleRunReaper(ReaperConfig{Store: &countingRecoverer{}})
	assert.Error(t, err)

	_, err = NewStaleRunReaper(ReaperConfig{Store: &countingRecoverer{}, Logger: testLogger(), Timeout: -time.Minute})
	assert.Error(t, err)
}

func TestStaleRunReaper_DisabledByDefault(t *testing.T) {
	store := &countingRecoverer{}
	r, err := NewStaleRunReaper(ReaperConfig{Store: store, Logger: testLogger()})
	require.NoError(t, err)

	assert.False(t, r.Enabled())
	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, int64(0), r.ReapOnce(context.Background()))
	require.NoError(t, r.Stop())
	assert.Equal(t, int64(0), store.calls.Load())
}

func TestStaleRunReaper_PollsUntilStopped(t *testing.T) {
	store := &countingRecoverer{n: 2}
	r, err := NewStaleRunReaper(ReaperConfig{
		Store:        store,
		Logger:       testLogger(),
		Timeout:      time.Hour,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))

	require.Eventually(t, func() bool { return store.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop())
	assert.Equal(t, int64(time.Hour), store.timeout.Load())

	after := store.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, store.calls.Load())
}

func TestStaleRunReaper_StopBeforeStart(t *testing.T) {
	r, err := NewStaleRunReaper(ReaperConfig{Store: &countingRecoverer{}, Logger: testLogger(), Timeout: time.Minute})
	require.NoError(t, err)
	assert.Error(t, r.Stop())
}

func TestStaleRunReaper_StoreErrorIsLogged(t *testing.T) {
	store := &countingRecoverer{err: errors.New("database is locked")}
	r, err := NewStaleRunReaper(ReaperConfig{Store: store, Logger: testLogger(), Timeout: time.Minute})
	require.NoError(t, err)

	assert.Equal(t, int64(0), r.ReapOnce(context.Background()))
	assert.Equal(t, int64(1), store.calls.Load())
}
