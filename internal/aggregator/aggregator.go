// Package aggregator sits next to the LAN alarm host and turns its pull-only
// endpoints into one push stream for the dashboard.
package aggregator

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"renaissance-stewcall/internal/models"

	"go.uber.org/zap"
)

// Defaults for the stream cadence
const (
	DefaultPollInterval      = 2 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
)

// Source fetches one upstream payload; implemented by *consumer.Fetcher
type Source interface {
	Fetch(ctx context.Context) (models.Payload, error)
}

// Aggregator serves the event stream
type Aggregator struct {
	source    Source
	poll      time.Duration
	heartbeat time.Duration
	logger    *zap.Logger

	clients atomic.Int64
}

// NewAggregator creates an aggregator; zero intervals take the defaults
func NewAggregator(source Source, poll, heartbeat time.Duration, logger *zap.Logger) *Aggregator {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &Aggregator{source: source, poll: poll, heartbeat: heartbeat, logger: logger}
}

// Handler routes GET /stream and GET /healthz
func (a *Aggregator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", a.Stream)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"ok","clients":%d}`, a.clients.Load())
	})
	return mux
}

// Clients number of open streams
func (a *Aggregator) Clients() int64 {
	return a.clients.Load()
}

// Stream GET /stream. Sends connected, then forwards changed payloads every
// poll interval and a heartbeat every heartbeat interval. Fetch failures
// become error events; the stream stays open.
func (a *Aggregator) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	n := a.clients.Add(1)
	defer a.clients.Add(-1)
	a.logger.Info("Stream client connected", zap.String("remote", r.RemoteAddr), zap.Int64("clients", n))

	ctx := r.Context()
	c := &connection{w: w, flusher: flusher}
	if err := c.send(models.NewStreamEvent(models.EventConnected)); err != nil {
		return
	}

	pollTicker := time.NewTicker(a.poll)
	defer pollTicker.Stop()
	heartbeatTicker := time.NewTicker(a.heartbeat)
	defer heartbeatTicker.Stop()

	if err := a.forward(ctx, c); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Stream client disconnected", zap.String("remote", r.RemoteAddr))
			return
		case <-pollTicker.C:
			if err := a.forward(ctx, c); err != nil {
				return
			}
		case <-heartbeatTicker.C:
			if err := c.send(models.NewStreamEvent(models.EventHeartbeat)); err != nil {
				return
			}
		}
	}
}

// forward fetches once and sends the payload if it changed since the last
// one sent on this connection. Only write errors are returned.
func (a *Aggregator) forward(ctx context.Context, c *connection) error {
	p, err := a.source.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Warn("Upstream fetch failed", zap.Error(err))
		ev := models.NewStreamEvent(models.EventError)
		ev.Message = err.Error()
		return c.send(ev)
	}

	digest := sha256.Sum256([]byte(p.Body))
	if c.sent && digest == c.lastDigest {
		return nil
	}

	eventType := models.EventLogData
	if p.Kind == models.SourceXML {
		eventType = models.EventAlarmData
	}
	ev := models.NewStreamEvent(eventType)
	ev.Data = p.Body
	ev.Source = p.Source
	if err := c.send(ev); err != nil {
		return err
	}
	c.sent = true
	c.lastDigest = digest
	return nil
}

// connection per-client write state
type connection struct {
	w          http.ResponseWriter
	flusher    http.Flusher
	sent       bool
	lastDigest [sha256.Size]byte
}

func (c *connection) send(ev models.StreamEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", raw); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}
