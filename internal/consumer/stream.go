package consumer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"renaissance-stewcall/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStreaming a manual refresh was requested while the stream channel is
// live; the stream already delivers every change
var ErrStreaming = errors.New("stream channel active, refresh not needed")

// maxEventSize upper bound for one stream line; log tails can be large
const maxEventSize = 8 << 20

// EventHandler receives stream events. OnReset is called before every
// connection attempt so in-memory state starts fresh.
type EventHandler interface {
	OnReset()
	OnEvent(ctx context.Context, ev models.StreamEvent)
}

// StreamClient long-lived connection to the aggregator stream.
// Exactly one connection is open at a time; each attempt runs under its own
// cancellable context and closes its response before the next one opens.
type StreamClient struct {
	httpClient     *resty.Client
	url            string
	reconnectDelay time.Duration
	handler        EventHandler
	logger         *zap.Logger

	mu     sync.RWMutex
	status ConnectionStatus
}

// NewStreamClient creates a stream client
func NewStreamClient(url string, reconnectDelay time.Duration, handler EventHandler, logger *zap.Logger) *StreamClient {
	return &StreamClient{
		httpClient:     resty.New().SetHeader("Accept", "text/event-stream"),
		url:            url,
		reconnectDelay: reconnectDelay,
		handler:        handler,
		logger:         logger,
		status:         ConnectionStatus{Channel: "stream", State: StateDisconnected},
	}
}

// Status current connection snapshot
func (c *StreamClient) Status() ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Run connects and reconnects until ctx is cancelled
func (c *StreamClient) Run(ctx context.Context) {
	defer c.setState(StateDisconnected, nil)

	for {
		attemptID := uuid.NewString()
		c.mu.Lock()
		c.status.AttemptID = attemptID
		c.mu.Unlock()

		c.handler.OnReset()
		c.setState(StateConnecting, nil)

		err := c.connect(ctx, attemptID)
		if ctx.Err() != nil {
			return
		}

		c.setState(StateErroring, err)
		c.logger.Warn("Stream connection lost, reconnecting",
			zap.String("attempt_id", attemptID),
			zap.Duration("delay", c.reconnectDelay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
		c.setState(StateDisconnected, nil)
	}
}

// connect runs one attempt to completion
func (c *StreamClient) connect(ctx context.Context, attemptID string) error {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := c.httpClient.R().
		SetContext(attemptCtx).
		SetDoNotParseResponse(true).
		Get(c.url)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("stream returned status %d", resp.StatusCode())
	}

	c.setState(StateConnected, nil)
	c.logger.Info("Stream connected", zap.String("url", c.url), zap.String("attempt_id", attemptID))

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)
	for scanner.Scan() {
		ev, ok := decodeEventLine(scanner.Text())
		if !ok {
			continue
		}
		c.observe(ev)
		c.handler.OnEvent(attemptCtx, ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return errors.New("stream closed by server")
}

// observe advances the state machine for one event
func (c *StreamClient) observe(ev models.StreamEvent) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.LastEventAt = &now
	if ev.Source != "" {
		c.status.Source = ev.Source
	}
	switch ev.Type {
	case models.EventError:
		c.status.State = StateErroring
		c.status.LastError = ev.Message
		c.status.ConsecutiveErrors++
	case models.EventLogData, models.EventAlarmData:
		c.status.State = StateReceiving
		c.status.LastError = ""
		c.status.ConsecutiveErrors = 0
	case models.EventConnected:
		c.status.State = StateConnected
	}
}

func (c *StreamClient) setState(state ConnState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.State = state
	switch state {
	case StateErroring:
		c.status.ConsecutiveErrors++
		if err != nil {
			c.status.LastError = err.Error()
		}
	case StateConnected:
		c.status.LastError = ""
	}
}

// decodeEventLine parses one NDJSON line; an SSE "data: " prefix is tolerated
func decodeEventLine(line string) (models.StreamEvent, bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if line == "" || !strings.HasPrefix(line, "{") {
		return models.StreamEvent{}, false
	}
	var ev models.StreamEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Type == "" {
		return models.StreamEvent{}, false
	}
	return ev, true
}
