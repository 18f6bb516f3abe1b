package consumer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"renaissance-stewcall/internal/consumer"
	"renaissance-stewcall/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu     sync.Mutex
	resets int
	events []models.StreamEvent
}

func (h *recordingHandler) OnReset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resets++
}

func (h *recordingHandler) OnEvent(ctx context.Context, ev models.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) snapshot() (int, []models.StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resets, append([]models.StreamEvent(nil), h.events...)
}

func eventLine(t *testing.T, ev models.StreamEvent, sse bool) string {
	t.Helper()
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	if sse {
		return fmt.Sprintf("data: %s\n\n", raw)
	}
	return string(raw) + "\n"
}

func TestStreamClient_ReceivesAndReconnects(t *testing.T) {
	var connections int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&connections, 1)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, eventLine(t, models.StreamEvent{Type: models.EventConnected}, true))
		_, _ = fmt.Fprint(w, "not json\n")
		_, _ = fmt.Fprint(w, eventLine(t, models.StreamEvent{Type: models.EventLogData, Data: sampleLog, Source: "/logs/tail"}, false))
		// connection closes here, the client must reconnect
	}))
	defer srv.Close()

	h := &recordingHandler{}
	c := consumer.NewStreamClient(srv.URL, 20*time.Millisecond, h, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&connections) >= 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	resets, events := h.snapshot()
	assert.GreaterOrEqual(t, resets, 2)
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, models.EventConnected, events[0].Type)
	assert.Equal(t, models.EventLogData, events[1].Type)
	assert.Equal(t, sampleLog, events[1].Data)
	assert.Equal(t, consumer.StateDisconnected, c.Status().State)
	assert.NotEmpty(t, c.Status().AttemptID)
}

func TestStreamClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := consumer.NewStreamClient(srv.URL, time.Hour, &recordingHandler{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		return c.Status().State == consumer.StateErroring
	}, 2*time.Second, 10*time.Millisecond)
	st := c.Status()
	assert.Contains(t, st.LastError, "502")
	assert.False(t, st.Connected())
	assert.Equal(t, "stream", st.Channel)
}
