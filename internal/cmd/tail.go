package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/atikulmunna/logterm/internal/aggregator"
	"github.com/atikulmunna/logterm/internal/config"
	"github.com/atikulmunna/logterm/internal/filter"
	"github.com/atikulmunna/logterm/internal/history"
	"github.com/atikulmunna/logterm/internal/hub"
	"github.com/atikulmunna/logterm/internal/metrics"
	"github.com/atikulmunna/logterm/internal/output"
	"github.com/atikulmunna/logterm/internal/server"
	"github.com/atikulmunna/logterm/internal/stream"
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the backend's logs live",
	Long: `Load recent log history, then follow the live feed. Lost connections
are retried with linear backoff; after the retry limit, send SIGHUP (or
restart) to reconnect.

Examples:
  logterm tail
  logterm tail --api https://monitor.example.edu
  logterm tail --listen :9100 --output json`,
	Args: cobra.NoArgs,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().String("listen", "", "serve a local relay (health, stats, metrics, websocket) on this address")
	cobra.CheckErr(viper.BindPFlag("listen", tailCmd.Flags().Lookup("listen")))
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	streamCfg, err := cfg.Stream()
	if err != nil {
		return err
	}
	pred, err := filter.Compile(cfg.Filter)
	if err != nil {
		return err
	}

	// --- Set up context with graceful shutdown ---
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Render surfaces ---
	buf := output.NewBuffer(cfg.Scrollback)
	surfaces := output.Tee{newRenderer(cfg.Output, cmd.OutOrStdout()), buf}

	var h *hub.Hub
	if cfg.Listen != "" {
		h = hub.New(logger)
		surfaces = append(surfaces, h)
	}

	// --- Stream client ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	client := stream.New(streamCfg,
		history.New(cfg.APIBase, history.WithToken(cfg.Token)),
		stream.NewWebsocketDialer(header),
		surfaces,
		stream.WithFilter(pred),
		stream.WithLogger(logger),
		stream.WithMetrics(metrics.NewStreamMetrics(reg)),
	)
	defer client.Dispose()

	// --- Refresh on SIGHUP ---
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go refreshOnSignal(ctx, hup, client)

	// --- Hot reload of the filter ---
	if viper.ConfigFileUsed() != "" {
		config.Watch(viper.GetViper(), logger, client.SetFilter)
	}

	// --- Local relay ---
	if h != nil {
		go h.Start(ctx)
		agg := aggregator.New(h.Subscribe().C, h.Dropped)
		go agg.Start(ctx)

		srv := server.New(h, agg, buf, client, reg, logger, cfg.Listen)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("relay failed")
				cancel()
			}
		}()
	}

	client.Start(ctx)
	return nil
}

type refresher interface {
	Refresh()
}

// refreshOnSignal calls Refresh for every signal received until ctx ends.
func refreshOnSignal(ctx context.Context, sig <-chan os.Signal, r refresher) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			r.Refresh()
		}
	}
}
