package consumer_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"renaissance-stewcall/internal/consumer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestPollScheduler_MinimumIntervalGate(t *testing.T) {
	var calls int32
	s := consumer.NewPollScheduler(2*time.Second, 5*time.Second, 30*time.Second, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, zap.NewNop())
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s.SetClock(clk.now)

	require.NoError(t, s.RunOnce(context.Background()))
	clk.advance(1500 * time.Millisecond)
	assert.ErrorIs(t, s.RunOnce(context.Background()), consumer.ErrThrottled)
	clk.advance(600 * time.Millisecond)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, consumer.StateReceiving, s.Status().State)
}

func TestPollScheduler_Backoff(t *testing.T) {
	fail := errors.New("connection refused")
	s := consumer.NewPollScheduler(2*time.Second, 5*time.Second, 12*time.Second, func(ctx context.Context) error {
		return fail
	}, zap.NewNop())
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s.SetClock(clk.now)

	assert.Equal(t, 5*time.Second, s.NextDelay())

	assert.ErrorIs(t, s.RunOnce(context.Background()), fail)
	assert.Equal(t, 10*time.Second, s.NextDelay())

	clk.advance(10 * time.Second)
	_ = s.RunOnce(context.Background())
	assert.Equal(t, 12*time.Second, s.NextDelay(), "capped at max backoff")

	st := s.Status()
	assert.Equal(t, consumer.StateErroring, st.State)
	assert.Equal(t, 2, st.ConsecutiveErrors)
	assert.Equal(t, "connection refused", st.LastError)
}

func TestPollScheduler_BackoffMultiplierCappedAtThree(t *testing.T) {
	s := consumer.NewPollScheduler(2*time.Second, 2*time.Second, time.Minute, func(ctx context.Context) error {
		return errors.New("down")
	}, zap.NewNop())
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s.SetClock(clk.now)

	for i := 0; i < 5; i++ {
		_ = s.RunOnce(context.Background())
		clk.advance(time.Minute)
	}
	assert.Equal(t, 6*time.Second, s.NextDelay())
}

func TestPollScheduler_ClampsMinInterval(t *testing.T) {
	s := consumer.NewPollScheduler(time.Millisecond, time.Millisecond, 0, func(ctx context.Context) error { return nil }, zap.NewNop())
	assert.Equal(t, consumer.MinPollInterval, s.NextDelay())
}

func TestPollScheduler_InFlightDropsRequests(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := consumer.NewPollScheduler(2*time.Second, 5*time.Second, 30*time.Second, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}, zap.NewNop())

	go func() { _ = s.RunOnce(context.Background()) }()
	<-started
	assert.ErrorIs(t, s.RunOnce(context.Background()), consumer.ErrInFlight)
	close(release)
}

func TestPollScheduler_RunStopsOnCancel(t *testing.T) {
	var calls int32
	s := consumer.NewPollScheduler(2*time.Second, 5*time.Second, 30*time.Second, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Trigger(), consumer.ErrThrottled)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, consumer.StateDisconnected, s.Status().State)
}

type lockedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *lockedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *lockedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestPollScheduler_TriggerRunsImmediateFetch(t *testing.T) {
	var calls int32
	s := consumer.NewPollScheduler(2*time.Second, 10*time.Second, 30*time.Second, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, zap.NewNop())
	clk := &lockedClock{t: time.Unix(1_700_000_000, 0)}
	s.SetClock(clk.now)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	clk.advance(3 * time.Second)
	require.NoError(t, s.Trigger())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)

	err := s.Trigger()
	assert.True(t, errors.Is(err, consumer.ErrThrottled) || errors.Is(err, consumer.ErrInFlight), "got %v", err)
}
