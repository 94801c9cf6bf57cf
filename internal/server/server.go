package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/atikulmunna/logterm/internal/aggregator"
	"github.com/atikulmunna/logterm/internal/hub"
	"github.com/atikulmunna/logterm/internal/output"
	"github.com/atikulmunna/logterm/internal/stream"
)

const shutdownTimeout = 5 * time.Second

// StreamStatus is the live view of the stream client exposed by /healthz.
type StreamStatus interface {
	ID() string
	State() stream.State
	ReconnectAttempts() int
}

// Server holds the Gin engine and dependencies for the local relay.
type Server struct {
	engine     *gin.Engine
	hub        *hub.Hub
	aggregator *aggregator.Aggregator
	buffer     *output.Buffer
	status     StreamStatus
	gatherer   prometheus.Gatherer
	logger     zerolog.Logger
	addr       string
}

// New creates the relay server listening on addr.
func New(h *hub.Hub, agg *aggregator.Aggregator, buf *output.Buffer, status StreamStatus,
	gatherer prometheus.Gatherer, logger zerolog.Logger, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Disable automatic redirects that cause 301 issues.
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine:     engine,
		hub:        h,
		aggregator: agg,
		buffer:     buf,
		status:     status,
		gatherer:   gatherer,
		logger:     logger.With().Str("component", "server").Logger(),
		addr:       addr,
	}

	s.setupRoutes()
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	// Health check.
	s.engine.GET("/healthz", func(c *gin.Context) {
		stats := s.aggregator.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":             "ok",
			"client":             s.status.ID(),
			"state":              s.status.State().String(),
			"reconnect_attempts": s.status.ReconnectAttempts(),
			"uptime":             stats.Uptime,
			"eps":                stats.EPS,
			"dropped_frames":     stats.DroppedFrames,
			"subscribers":        s.hub.Subscribers(),
		})
	})

	// Metrics API.
	s.engine.GET("/api/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.aggregator.Snapshot())
	})

	// Scrollback snapshot, oldest first. ?limit=N keeps the newest N lines.
	s.engine.GET("/api/lines", func(c *gin.Context) {
		lines := s.buffer.Lines()
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"detail": "limit must be a non-negative integer"})
				return
			}
			if n < len(lines) {
				lines = lines[len(lines)-n:]
			}
		}
		c.JSON(http.StatusOK, gin.H{"count": len(lines), "lines": lines})
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	// WebSocket.
	s.engine.GET("/ws", s.handleWebSocket)

	// pprof profiling endpoints.
	s.engine.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	s.engine.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	s.engine.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	s.engine.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	s.engine.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	s.engine.GET("/debug/pprof/allocs", gin.WrapH(pprof.Handler("allocs")))
	s.engine.GET("/debug/pprof/heap", gin.WrapH(pprof.Handler("heap")))
	s.engine.GET("/debug/pprof/goroutine", gin.WrapH(pprof.Handler("goroutine")))
}

// Start runs the server until ctx is cancelled, then shuts it down.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("relay listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("relay stopped")
	return nil
}
