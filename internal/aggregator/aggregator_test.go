package aggregator_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"renaissance-stewcall/internal/aggregator"
	"renaissance-stewcall/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedSource returns queued results, repeating the last one
type scriptedSource struct {
	mu      sync.Mutex
	results []result
}

type result struct {
	p   models.Payload
	err error
}

func (s *scriptedSource) Fetch(ctx context.Context) (models.Payload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return r.p, r.err
}

func readEvents(t *testing.T, srv *httptest.Server, want int) []models.StreamEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []models.StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	for len(events) < want && scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestStream_ForwardsChangesOnly(t *testing.T) {
	src := &scriptedSource{results: []result{
		{p: models.Payload{Kind: models.SourceLog, Body: "line 1", Source: "/logs/tail"}},
		{p: models.Payload{Kind: models.SourceLog, Body: "line 1", Source: "/logs/tail"}},
		{err: errors.New("upstream down")},
		{p: models.Payload{Kind: models.SourceXML, Body: "<alarms/>", Source: "/alarms.xml"}},
	}}
	agg := aggregator.NewAggregator(src, 20*time.Millisecond, time.Hour, zap.NewNop())
	srv := httptest.NewServer(agg.Handler())
	defer srv.Close()

	events := readEvents(t, srv, 4)
	require.Len(t, events, 4)
	assert.Equal(t, models.EventConnected, events[0].Type)
	assert.NotZero(t, events[0].Timestamp)

	assert.Equal(t, models.EventLogData, events[1].Type)
	assert.Equal(t, "line 1", events[1].Data)
	assert.Equal(t, "/logs/tail", events[1].Source)

	// the unchanged body is not forwarded again
	assert.Equal(t, models.EventError, events[2].Type)
	assert.Equal(t, "upstream down", events[2].Message)

	assert.Equal(t, models.EventAlarmData, events[3].Type)
	assert.Equal(t, "<alarms/>", events[3].Data)
}

func TestStream_Heartbeat(t *testing.T) {
	src := &scriptedSource{results: []result{
		{p: models.Payload{Kind: models.SourceLog, Body: "same"}},
	}}
	agg := aggregator.NewAggregator(src, 10*time.Millisecond, 30*time.Millisecond, zap.NewNop())
	srv := httptest.NewServer(agg.Handler())
	defer srv.Close()

	events := readEvents(t, srv, 3)
	require.Len(t, events, 3)
	assert.Equal(t, models.EventHeartbeat, events[2].Type)
}

func TestHealthz(t *testing.T) {
	agg := aggregator.NewAggregator(&scriptedSource{results: []result{{}}}, 0, 0, zap.NewNop())
	rec := httptest.NewRecorder()
	agg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.JSONEq(t, `{"status":"ok","clients":0}`, rec.Body.String())
}
