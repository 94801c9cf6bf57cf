package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/atikulmunna/logterm/internal/aggregator"
	"github.com/atikulmunna/logterm/internal/hub"
	"github.com/atikulmunna/logterm/internal/metrics"
	"github.com/atikulmunna/logterm/internal/model"
	"github.com/atikulmunna/logterm/internal/output"
	"github.com/atikulmunna/logterm/internal/stream"
)

type fakeStatus struct{}

func (fakeStatus) ID() string             { return "session-1" }
func (fakeStatus) State() stream.State    { return stream.ReconnectPending }
func (fakeStatus) ReconnectAttempts() int { return 2 }

type fixture struct {
	srv *httptest.Server
	hub *hub.Hub
	buf *output.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.New(zerolog.Nop())
	agg := aggregator.New(h.Subscribe().C, h.Dropped)
	go h.Start(ctx)
	go agg.Start(ctx)

	reg := prometheus.NewRegistry()
	m := metrics.NewStreamMetrics(reg)
	m.FramesTotal.WithLabelValues("entry").Inc()

	buf := output.NewBuffer(0)
	s := New(h, agg, buf, fakeStatus{}, reg, zerolog.Nop(), ":0")

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, hub: h, buf: buf}
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	var body map[string]interface{}
	if code := getJSON(t, f.srv.URL+"/healthz", &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["client"] != "session-1" {
		t.Errorf("expected client session-1, got %v", body["client"])
	}
	if body["state"] != "reconnect-pending" {
		t.Errorf("expected state reconnect-pending, got %v", body["state"])
	}
	if body["reconnect_attempts"] != float64(2) {
		t.Errorf("expected 2 reconnect attempts, got %v", body["reconnect_attempts"])
	}
}

func TestLinesSnapshot(t *testing.T) {
	f := newFixture(t)
	_ = f.buf.Notice(output.Notice{Tone: output.ToneOK, Text: "✓ connected"})
	_ = f.buf.Render(model.LogEntry{Level: model.LevelInfo, Message: "one", Module: "pm2.tracker.log", Source: "tracker"})
	_ = f.buf.Render(model.LogEntry{Level: model.LevelWarn, Message: "two", Module: "pm2.tracker.log", Source: "tracker"})

	var body struct {
		Count int                   `json:"count"`
		Lines []output.BufferedLine `json:"lines"`
	}
	getJSON(t, f.srv.URL+"/api/lines", &body)
	if body.Count != 3 {
		t.Fatalf("expected 3 lines, got %d", body.Count)
	}

	getJSON(t, f.srv.URL+"/api/lines?limit=1", &body)
	if body.Count != 1 || !strings.HasSuffix(body.Lines[0].Text, "two") {
		t.Errorf("expected newest line only, got %+v", body.Lines)
	}

	var bad map[string]interface{}
	if code := getJSON(t, f.srv.URL+"/api/lines?limit=abc", &bad); code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `logterm_stream_frames_total{verdict="entry"} 1`) {
		t.Errorf("expected frames counter in metrics output, got:\n%s", body)
	}
}

func TestWebSocketRelay(t *testing.T) {
	f := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer conn.Close()

	// The aggregator holds one subscription already.
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Subscribers() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.hub.Subscribers() != 2 {
		t.Fatalf("expected relay subscriber, got %d subscribers", f.hub.Subscribers())
	}

	_ = f.hub.Render(model.LogEntry{Level: model.LevelError, Message: "disk full", Module: "pm2.tracker.log", Source: "tracker"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame hub.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Kind != hub.KindEntry || frame.Entry == nil || frame.Entry.Message != "disk full" {
		t.Errorf("unexpected frame: %+v", frame)
	}
	if !strings.Contains(frame.Line, "[tracker] disk full") {
		t.Errorf("expected formatted line, got %q", frame.Line)
	}

	// Disconnecting releases the subscription.
	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for f.hub.Subscribers() > 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.hub.Subscribers() != 1 {
		t.Errorf("expected relay subscription released, got %d subscribers", f.hub.Subscribers())
	}
}
