package cmd

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// logsBackend serves a fixed history body and records the last query.
type logsBackend struct {
	srv *httptest.Server

	mu    sync.Mutex
	query url.Values
}

func newLogsBackend(t *testing.T, body string) *logsBackend {
	t.Helper()
	b := &logsBackend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/logs" {
			http.NotFound(w, r)
			return
		}
		b.mu.Lock()
		b.query = r.URL.Query()
		b.mu.Unlock()
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *logsBackend) lastQuery() url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), ".logterm.yaml")
	if err := os.WriteFile(cfgPath, []byte("log_level: error\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	historyOpts.level = ""
	historyOpts.module = ""
	historyOpts.limit = 0
	historyOpts.skip = 0
	historyOpts.since = 0
	historyOpts.until = ""
	historyOpts.all = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", cfgPath, "--no-color"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

const historyBody = `[
	{"level":"error","message":"meter offline","module":"pm2.tracker.log","timestamp":"2024-01-01T00:00:05Z"},
	{"level":"error","message":"scheduler stalled","module":"app.scheduler","timestamp":"2024-01-01T00:00:03Z"},
	{"level":"error","message":"disk full","module":"pm2.web-backend.log","timestamp":"2024-01-01T00:00:01Z"}
]`

func TestHistoryCommand(t *testing.T) {
	b := newLogsBackend(t, historyBody)

	out, err := execute(t, "--api", b.srv.URL, "history", "--limit", "5", "--level", "error")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := b.lastQuery()
	if q.Get("limit") != "5" {
		t.Errorf("expected limit=5, got %q", q.Get("limit"))
	}
	if q.Get("level") != "ERROR" {
		t.Errorf("expected level=ERROR, got %q", q.Get("level"))
	}
	if q.Has("skip") || q.Has("start_time") {
		t.Errorf("expected no skip or start_time, got %v", q)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasSuffix(lines[0], "[web-backend] disk full") {
		t.Errorf("expected oldest entry first, got %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "[tracker] meter offline") {
		t.Errorf("expected newest entry last, got %q", lines[1])
	}
	if strings.Contains(out, "scheduler stalled") {
		t.Errorf("expected filtered module to be hidden, got:\n%s", out)
	}
}

func TestHistoryCommandAll(t *testing.T) {
	b := newLogsBackend(t, historyBody)

	out, err := execute(t, "--api", b.srv.URL, "history", "--all", "--skip", "2", "--since", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := b.lastQuery()
	if q.Get("limit") != "200" {
		t.Errorf("expected configured limit 200, got %q", q.Get("limit"))
	}
	if q.Get("skip") != "2" {
		t.Errorf("expected skip=2, got %q", q.Get("skip"))
	}
	if q.Get("start_time") == "" {
		t.Error("expected start_time from --since")
	}
	if n := strings.Count(strings.TrimSpace(out), "\n") + 1; n != 3 {
		t.Errorf("expected all 3 entries with --all, got %d:\n%s", n, out)
	}
}

func TestHistoryCommandNoMatch(t *testing.T) {
	b := newLogsBackend(t, `[{"level":"info","message":"tick","module":"app.scheduler"}]`)

	out, err := execute(t, "--api", b.srv.URL, "history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "no matching log entries") {
		t.Errorf("expected no-match notice, got %q", out)
	}
}

func TestHistoryCommandBadUntil(t *testing.T) {
	b := newLogsBackend(t, `[]`)

	if _, err := execute(t, "--api", b.srv.URL, "history", "--until", "yesterday"); err == nil {
		t.Error("expected error for malformed --until")
	}
}

func TestHistoryCommandBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
	}))
	defer srv.Close()

	_, err := execute(t, "--api", srv.URL, "history")
	if err == nil || !strings.Contains(err.Error(), "Could not validate credentials") {
		t.Errorf("expected backend detail in error, got %v", err)
	}
}
