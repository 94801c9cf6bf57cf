// Package stream keeps a live view of backend log output: a one-time history
// backfill followed by a push feed over a websocket, with linear-backoff
// reconnects up to a fixed retry ceiling.
//
// All state is owned by the goroutine running Client.Start. History fetches,
// dials, timers and the read pump run elsewhere and report back as events
// tagged with a generation number; events from a superseded generation are
// discarded.
package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/atikulmunna/logterm/internal/filter"
	"github.com/atikulmunna/logterm/internal/history"
	"github.com/atikulmunna/logterm/internal/metrics"
	"github.com/atikulmunna/logterm/internal/model"
	"github.com/atikulmunna/logterm/internal/output"
	"github.com/atikulmunna/logterm/internal/parser"
)

// Config holds the client's fixed timing constants and endpoints.
type Config struct {
	LiveURL        string
	HistoryLimit   int
	ConnectTimeout time.Duration
	ConnectBackoff time.Duration // base delay after a connect timeout
	CloseBackoff   time.Duration // base delay after an abnormal close or refused handshake
	BackoffCap     time.Duration
	MaxRetries     int
}

// DefaultConfig returns the dashboard's timings for the given live endpoint.
func DefaultConfig(liveURL string) Config {
	return Config{
		LiveURL:        liveURL,
		HistoryLimit:   200,
		ConnectTimeout: 10 * time.Second,
		ConnectBackoff: 5 * time.Second,
		CloseBackoff:   3 * time.Second,
		BackoffCap:     30 * time.Second,
		MaxRetries:     5,
	}
}

// HistorySource returns past log entries, newest first.
type HistorySource interface {
	Fetch(ctx context.Context, q history.Query) ([]model.LogEntry, error)
}

// Option customizes a Client.
type Option func(*Client)

// WithFilter sets the relevance predicate. Defaults to filter.All.
func WithFilter(p filter.Predicate) Option {
	return func(c *Client) { c.filter = p }
}

// WithLogger sets the operational logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.StreamMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

type eventKind int

const (
	evHistory eventKind = iota
	evDialed
	evDialFailed
	evConnectTimeout
	evFrame
	evClosed
	evReconnect
	evRefresh
	evFilter
)

type event struct {
	kind    eventKind
	gen     uint64
	entries []model.LogEntry
	err     error
	conn    Conn
	frame   []byte
	code    int
	reason  string
	filter  filter.Predicate
}

// probe is the liveness message sent once per successful open.
type probe struct {
	Type string `json:"type"`
}

const (
	eventBuffer   = 256
	invalidRawMax = 100
)

// Client is the log stream client. Create with New, run with Start,
// stop with Dispose.
type Client struct {
	id      string
	cfg     Config
	src     HistorySource
	dialer  Dialer
	out     output.Renderer
	filter  filter.Predicate
	logger  zerolog.Logger
	metrics *metrics.StreamMetrics
	limiter *rate.Limiter

	events   chan event
	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once
	started  atomic.Bool

	// postMu guards closed; post holds it shared for the whole send.
	postMu sync.RWMutex
	closed bool

	stateView    atomic.Int32
	attemptsView atomic.Int64

	// Owned by the event loop.
	ctx          context.Context
	state        State
	attempts     int
	gen          uint64
	conn         Conn
	cancelFetch  context.CancelFunc
	cancelDial   context.CancelFunc
	connectTimer *time.Timer
	retryTimer   *time.Timer
}

// New creates a Client that renders to out.
func New(cfg Config, src HistorySource, dialer Dialer, out output.Renderer, opts ...Option) *Client {
	c := &Client{
		id:      uuid.NewString(),
		cfg:     cfg,
		src:     src,
		dialer:  dialer,
		out:     out,
		filter:  filter.All,
		logger:  zerolog.Nop(),
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		events:  make(chan event, eventBuffer),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewStreamMetrics(prometheus.NewRegistry())
	}
	c.logger = c.logger.With().Str("component", "stream").Str("client", c.id).Logger()
	return c
}

// ID returns the client's session id.
func (c *Client) ID() string { return c.id }

// State returns the current connection state.
func (c *Client) State() State { return State(c.stateView.Load()) }

// ReconnectAttempts returns the number of consecutive failures since the last
// successful open.
func (c *Client) ReconnectAttempts() int { return int(c.attemptsView.Load()) }

// Start loads history, connects, and processes events until ctx is cancelled
// or Dispose is called. It blocks; a Client can be started once.
func (c *Client) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	defer close(c.done)

	select {
	case <-c.quit:
		return
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	c.ctx = ctx
	defer func() {
		cancel()
		c.teardown()
	}()

	c.logger.Info().Str("url", c.cfg.LiveURL).Msg("log stream starting")
	c.initialize()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.quit:
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Refresh clears the render surface, reloads history and forces a fresh
// connection, bypassing any pending backoff or the retry ceiling's stop.
func (c *Client) Refresh() {
	c.send(event{kind: evRefresh})
}

// SetFilter replaces the relevance predicate for entries arriving afterwards.
func (c *Client) SetFilter(p filter.Predicate) {
	c.send(event{kind: evFilter, filter: p})
}

// Dispose cancels timers and in-flight work, closes the connection cleanly,
// and waits for the event loop to exit. Safe to call more than once and
// before Start.
func (c *Client) Dispose() {
	c.quitOnce.Do(func() { close(c.quit) })
	if c.started.Load() {
		<-c.done
	}
}

// send delivers an external request to the loop unless the client is gone.
func (c *Client) send(ev event) {
	select {
	case c.events <- ev:
	case <-c.quit:
	case <-c.done:
	}
}

// post is used by helper goroutines. It reports whether the event was queued;
// once teardown has started nothing is queued.
func (c *Client) post(ev event) bool {
	c.postMu.RLock()
	defer c.postMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.quit:
		return false
	case <-c.done:
		return false
	}
}

func (c *Client) handle(ev event) {
	switch ev.kind {
	case evHistory:
		c.onHistory(ev)
	case evDialed:
		c.onDialed(ev)
	case evDialFailed:
		c.onDialFailed(ev)
	case evConnectTimeout:
		c.onConnectTimeout(ev)
	case evFrame:
		c.onMessage(ev)
	case evClosed:
		c.onClose(ev)
	case evReconnect:
		c.onReconnect(ev)
	case evRefresh:
		c.refresh()
	case evFilter:
		if ev.filter != nil {
			c.filter = ev.filter
			c.logger.Info().Msg("relevance filter updated")
		}
	}
}

// ---------------------------------------------------------------------------
// History backfill
// ---------------------------------------------------------------------------

func (c *Client) initialize() {
	c.gen++
	gen := c.gen

	c.notice(output.ToneInfo, "fetching log history...")

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelFetch = cancel
	go func() {
		entries, err := c.src.Fetch(ctx, history.Query{Limit: c.cfg.HistoryLimit})
		c.post(event{kind: evHistory, gen: gen, entries: entries, err: err})
	}()
}

func (c *Client) onHistory(ev event) {
	if ev.gen != c.gen {
		return
	}
	c.cancelFetch()
	c.cancelFetch = nil

	if ev.err != nil {
		c.logger.Warn().Err(ev.err).Msg("history fetch failed")
		c.notice(output.ToneError, fmt.Sprintf("✗ could not load log history: %v", ev.err))
		c.connect()
		return
	}

	var relevant []model.LogEntry
	for _, e := range ev.entries {
		if c.filter.Allow(e) {
			relevant = append(relevant, e)
		}
	}

	if len(relevant) == 0 {
		c.notice(output.ToneWarn, "⚠ no log history yet")
		c.notice(output.ToneInfo, "waiting for log output...")
	} else {
		c.notice(output.ToneOK, fmt.Sprintf("✓ loaded %d history entries", len(relevant)))
		// The endpoint answers newest first.
		for i := len(relevant) - 1; i >= 0; i-- {
			c.render(relevant[i], "history")
		}
	}

	c.connect()
}

// ---------------------------------------------------------------------------
// Connection lifecycle
// ---------------------------------------------------------------------------

func (c *Client) connect() {
	if c.state == Connecting || c.state == Open {
		return
	}
	c.stopRetry()

	c.gen++
	gen := c.gen
	c.setState(Connecting)
	c.notice(output.ToneInfo, fmt.Sprintf("connecting to %s...", c.cfg.LiveURL))

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelDial = cancel
	c.connectTimer = time.AfterFunc(c.cfg.ConnectTimeout, func() {
		c.post(event{kind: evConnectTimeout, gen: gen})
	})

	go func() {
		conn, err := c.dialer.Dial(ctx, c.cfg.LiveURL)
		if err != nil {
			c.post(event{kind: evDialFailed, gen: gen, err: err})
			return
		}
		if ctx.Err() != nil || !c.post(event{kind: evDialed, gen: gen, conn: conn}) {
			_ = conn.Close(websocket.CloseNormalClosure, "")
		}
	}()
}

func (c *Client) onDialed(ev event) {
	if ev.gen != c.gen || c.state != Connecting {
		_ = ev.conn.Close(websocket.CloseNormalClosure, "")
		return
	}
	c.stopConnectTimer()

	c.conn = ev.conn
	c.setAttempts(0)
	c.setState(Open)
	c.logger.Info().Msg("live connection open")
	c.notice(output.ToneOK, "✓ connected")

	if err := ev.conn.WriteJSON(probe{Type: "ping"}); err != nil {
		c.logger.Warn().Err(err).Msg("liveness probe failed")
	}

	go c.readPump(ev.gen, ev.conn)
}

func (c *Client) readPump(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			code, reason := CloseStatus(err)
			c.post(event{kind: evClosed, gen: gen, code: code, reason: reason})
			return
		}
		if !c.post(event{kind: evFrame, gen: gen, frame: data}) {
			return
		}
	}
}

func (c *Client) onConnectTimeout(ev event) {
	if ev.gen != c.gen || c.state != Connecting {
		return
	}
	c.connectTimer = nil
	c.cancelDial()
	c.logger.Warn().Dur("timeout", c.cfg.ConnectTimeout).Msg("connect timed out")
	c.failure("timeout", c.cfg.ConnectBackoff, output.ToneError,
		"✗ connection timed out; check that the backend is running")
}

func (c *Client) onDialFailed(ev event) {
	if ev.gen != c.gen || c.state != Connecting {
		return
	}
	c.stopConnectTimer()
	c.cancelDial()
	c.logger.Warn().Err(ev.err).Msg("connect failed")
	// A refused handshake is an abnormal close (1006) that never opened.
	c.failure("dial", c.cfg.CloseBackoff, output.ToneError,
		fmt.Sprintf("✗ could not connect: %v", ev.err))
}

func (c *Client) onClose(ev event) {
	if ev.gen != c.gen || c.state != Open {
		return
	}
	_ = c.conn.Close(websocket.CloseNormalClosure, "")
	c.conn = nil

	if ev.code == websocket.CloseNormalClosure {
		c.setState(Disconnected)
		c.logger.Info().Msg("live connection closed by peer")
		c.notice(output.ToneInfo, "connection closed by server")
		return
	}

	c.logger.Warn().Int("code", ev.code).Str("reason", ev.reason).Msg("live connection lost")
	text := fmt.Sprintf("connection closed (%d)", ev.code)
	if ev.reason != "" {
		text = fmt.Sprintf("connection closed (%d: %s)", ev.code, ev.reason)
	}
	c.failure("close", c.cfg.CloseBackoff, output.ToneWarn, text)
}

// failure counts one failed or lost connection and schedules the next attempt.
func (c *Client) failure(trigger string, base time.Duration, tone output.Tone, text string) {
	c.setAttempts(c.attempts + 1)
	c.metrics.ReconnectsTotal.WithLabelValues(trigger).Inc()
	c.setState(Disconnected)
	c.notice(tone, text)
	c.scheduleRetry(base)
}

func (c *Client) scheduleRetry(base time.Duration) {
	if c.attempts >= c.cfg.MaxRetries {
		c.logger.Error().Int("attempts", c.attempts).Msg("max retries reached; waiting for refresh")
		c.notice(output.ToneWarn, fmt.Sprintf("max retries reached (%d/%d); refresh to reconnect or check the backend",
			c.attempts, c.cfg.MaxRetries))
		return
	}

	delay := Backoff(base, c.cfg.BackoffCap, c.attempts)
	gen := c.gen
	c.setState(ReconnectPending)
	c.notice(output.ToneWarn, fmt.Sprintf("reconnecting in %s (%d/%d)...", delay, c.attempts, c.cfg.MaxRetries))
	c.retryTimer = time.AfterFunc(delay, func() {
		c.post(event{kind: evReconnect, gen: gen})
	})
}

func (c *Client) onReconnect(ev event) {
	if ev.gen != c.gen || c.state != ReconnectPending {
		return
	}
	c.retryTimer = nil
	c.setState(Disconnected)
	c.connect()
}

// ---------------------------------------------------------------------------
// Live messages
// ---------------------------------------------------------------------------

func (c *Client) onMessage(ev event) {
	if ev.gen != c.gen || c.state != Open {
		return
	}

	res := parser.Parse(ev.frame, time.Now())
	switch res.Verdict {
	case parser.VerdictAck:
		c.metrics.FramesTotal.WithLabelValues(res.Verdict.String()).Inc()
		return
	case parser.VerdictMalformed:
		c.metrics.FramesTotal.WithLabelValues(res.Verdict.String()).Inc()
		c.logger.Debug().Bytes("frame", ev.frame).Msg("dropping frame without level or message")
		return
	case parser.VerdictInvalid:
		c.metrics.FramesTotal.WithLabelValues(res.Verdict.String()).Inc()
		c.logger.Debug().Err(res.Err).Msg("dropping unparseable frame")
		if c.limiter.Allow() {
			c.notice(output.ToneWarn, "[unparseable frame] "+truncate(string(ev.frame), invalidRawMax))
		}
		return
	}

	if !c.filter.Allow(res.Entry) {
		c.metrics.FramesTotal.WithLabelValues("filtered").Inc()
		return
	}
	c.metrics.FramesTotal.WithLabelValues(res.Verdict.String()).Inc()
	c.render(res.Entry, "live")
}

// ---------------------------------------------------------------------------
// Refresh and teardown
// ---------------------------------------------------------------------------

func (c *Client) refresh() {
	c.logger.Info().Str("state", c.state.String()).Msg("refresh requested")
	c.abandon("refresh")
	if err := c.out.Clear(); err != nil {
		c.logger.Error().Err(err).Msg("clear render surface")
	}
	c.initialize()
}

// abandon cancels all outstanding work of the current generation and closes
// the live connection cleanly.
func (c *Client) abandon(reason string) {
	c.gen++
	c.stopConnectTimer()
	c.stopRetry()
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.conn != nil {
		c.setState(Closing)
		_ = c.conn.Close(websocket.CloseNormalClosure, reason)
		c.conn = nil
	}
	c.setState(Disconnected)
}

func (c *Client) teardown() {
	c.abandon("client disposed")

	// Unblock pending posts, then wait them out so the drain below sees
	// every event that will ever be queued.
	c.quitOnce.Do(func() { close(c.quit) })
	c.postMu.Lock()
	c.closed = true
	c.postMu.Unlock()

	// Connections that were handed over but never processed.
	for {
		select {
		case ev := <-c.events:
			if ev.conn != nil {
				_ = ev.conn.Close(websocket.CloseNormalClosure, "")
			}
		default:
			c.logger.Info().Msg("log stream stopped")
			return
		}
	}
}

func (c *Client) stopConnectTimer() {
	if c.connectTimer != nil {
		c.connectTimer.Stop()
		c.connectTimer = nil
	}
}

func (c *Client) stopRetry() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (c *Client) setState(s State) {
	c.state = s
	c.stateView.Store(int32(s))
	c.metrics.ConnectionState.Set(float64(s))
}

func (c *Client) setAttempts(n int) {
	c.attempts = n
	c.attemptsView.Store(int64(n))
	c.metrics.ReconnectAttempts.Set(float64(n))
}

func (c *Client) render(e model.LogEntry, origin string) {
	if err := c.out.Render(e); err != nil {
		c.logger.Error().Err(err).Msg("render entry")
		return
	}
	c.metrics.EntriesRendered.WithLabelValues(origin).Inc()
}

func (c *Client) notice(tone output.Tone, text string) {
	if err := c.out.Notice(output.Notice{Tone: tone, Text: text}); err != nil {
		c.logger.Error().Err(err).Msg("render notice")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
