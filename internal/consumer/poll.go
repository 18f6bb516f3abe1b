package consumer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrThrottled a fetch was requested inside the minimum interval
	ErrThrottled = errors.New("poll throttled by minimum interval")
	// ErrInFlight a fetch is already running; the request is dropped, not queued
	ErrInFlight = errors.New("poll already in flight")
)

// Poll interval bounds
const (
	MinPollInterval = 2 * time.Second
	MaxPollInterval = 10 * time.Second
	maxBackoffSteps = 3
)

// FetchFunc one pull cycle: fetch and apply a payload
type FetchFunc func(ctx context.Context) error

// PollScheduler pull channel. All timing state lives in the struct and is
// read through an injected clock.
type PollScheduler struct {
	minInterval time.Duration
	interval    time.Duration
	maxBackoff  time.Duration
	fetch       FetchFunc
	now         func() time.Time
	logger      *zap.Logger

	trigger chan struct{}

	mu                sync.Mutex
	lastFetch         time.Time
	consecutiveErrors int
	inFlight          bool
	status            ConnectionStatus
}

// NewPollScheduler creates a scheduler. minInterval is clamped to 2s..10s and
// interval never drops below it.
func NewPollScheduler(minInterval, interval, maxBackoff time.Duration, fetch FetchFunc, logger *zap.Logger) *PollScheduler {
	if minInterval < MinPollInterval {
		minInterval = MinPollInterval
	}
	if minInterval > MaxPollInterval {
		minInterval = MaxPollInterval
	}
	if interval < minInterval {
		interval = minInterval
	}
	if maxBackoff < interval {
		maxBackoff = interval
	}
	return &PollScheduler{
		minInterval: minInterval,
		interval:    interval,
		maxBackoff:  maxBackoff,
		fetch:       fetch,
		now:         time.Now,
		logger:      logger,
		trigger:     make(chan struct{}, 1),
		status:      ConnectionStatus{Channel: "poll", State: StateDisconnected},
	}
}

// SetClock replaces time.Now (tests)
func (s *PollScheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// NextDelay interval * min(errors+1, 3), capped at the max backoff
func (s *PollScheduler) NextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := s.consecutiveErrors + 1
	if steps > maxBackoffSteps {
		steps = maxBackoffSteps
	}
	d := s.interval * time.Duration(steps)
	if d > s.maxBackoff {
		d = s.maxBackoff
	}
	return d
}

// gateLocked explains why a fetch may not start now, nil when it may
func (s *PollScheduler) gateLocked(now time.Time) error {
	if s.inFlight {
		return ErrInFlight
	}
	if !s.lastFetch.IsZero() && now.Sub(s.lastFetch) < s.minInterval {
		return ErrThrottled
	}
	return nil
}

// begin claims the fetch slot or explains why not
func (s *PollScheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if err := s.gateLocked(now); err != nil {
		return err
	}
	s.inFlight = true
	s.lastFetch = now
	if s.status.State == StateDisconnected {
		s.status.State = StateConnecting
	}
	return nil
}

func (s *PollScheduler) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	now := s.now()
	s.status.LastEventAt = &now
	if err != nil {
		s.consecutiveErrors++
		s.status.State = StateErroring
		s.status.LastError = err.Error()
	} else {
		s.consecutiveErrors = 0
		s.status.State = StateReceiving
		s.status.LastError = ""
	}
	s.status.ConsecutiveErrors = s.consecutiveErrors
}

// RunOnce performs one gated fetch
func (s *PollScheduler) RunOnce(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	err := s.fetch(ctx)
	s.finish(err)
	return err
}

// Trigger asks the Run loop for an immediate fetch. Requests made while a
// fetch is pending or inside the minimum interval are dropped and the reason
// returned; a nil error means the request was queued.
func (s *PollScheduler) Trigger() error {
	s.mu.Lock()
	err := s.gateLocked(s.now())
	s.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case s.trigger <- struct{}{}:
		return nil
	default:
		return ErrInFlight
	}
}

// Status current connection snapshot
func (s *PollScheduler) Status() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Run polls until ctx is cancelled
func (s *PollScheduler) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	defer func() {
		s.mu.Lock()
		s.status.State = StateDisconnected
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.cycle(ctx)
			timer.Reset(s.NextDelay())
		case <-s.trigger:
			if s.cycle(ctx) {
				timer.Reset(s.NextDelay())
			}
		}
	}
}

// cycle reports whether a fetch actually ran
func (s *PollScheduler) cycle(ctx context.Context) bool {
	err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrThrottled), errors.Is(err, ErrInFlight):
		s.logger.Debug("Poll request dropped", zap.Error(err))
		return false
	case err != nil:
		if ctx.Err() == nil {
			s.logger.Warn("Poll cycle failed",
				zap.Int("consecutive_errors", s.Status().ConsecutiveErrors),
				zap.Duration("next_delay", s.NextDelay()),
				zap.Error(err),
			)
		}
	}
	return true
}
