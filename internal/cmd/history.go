package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/atikulmunna/logterm/internal/filter"
	"github.com/atikulmunna/logterm/internal/history"
	"github.com/atikulmunna/logterm/internal/output"
)

var historyOpts struct {
	level  string
	module string
	limit  int
	skip   int
	since  time.Duration
	until  string
	all    bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print stored log entries and exit",
	Long: `Query the backend's log history once and print it, oldest first.
By default the configured relevance filter applies; --all disables it.

Examples:
  logterm history --limit 50
  logterm history --level error --since 2h
  logterm history --module pm2.tracker.log --all --output json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVarP(&historyOpts.level, "level", "l", "", "only this severity (debug, info, warn, error)")
	f.StringVarP(&historyOpts.module, "module", "m", "", "only this module")
	f.IntVarP(&historyOpts.limit, "limit", "n", 0, "number of entries (default: history_limit)")
	f.IntVar(&historyOpts.skip, "skip", 0, "skip this many newest entries")
	f.DurationVar(&historyOpts.since, "since", 0, "only entries newer than this, e.g. 30m")
	f.StringVar(&historyOpts.until, "until", "", "only entries before this RFC3339 time")
	f.BoolVar(&historyOpts.all, "all", false, "do not apply the relevance filter")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	q := history.Query{
		Limit:  cfg.HistoryLimit,
		Skip:   historyOpts.skip,
		Level:  historyOpts.level,
		Module: historyOpts.module,
	}
	if historyOpts.limit > 0 {
		q.Limit = historyOpts.limit
	}
	if historyOpts.since > 0 {
		q.Start = time.Now().Add(-historyOpts.since)
	}
	if historyOpts.until != "" {
		end, err := time.Parse(time.RFC3339, historyOpts.until)
		if err != nil {
			return fmt.Errorf("--until: %w", err)
		}
		q.End = end
	}

	pred := filter.All
	if !historyOpts.all {
		if pred, err = filter.Compile(cfg.Filter); err != nil {
			return err
		}
	}

	entries, err := history.New(cfg.APIBase, history.WithToken(cfg.Token)).Fetch(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	logger.Debug().Int("entries", len(entries)).Msg("history fetched")

	r := newRenderer(cfg.Output, cmd.OutOrStdout())
	shown := 0
	// Newest first on the wire; print oldest first.
	for i := len(entries) - 1; i >= 0; i-- {
		if !pred.Allow(entries[i]) {
			continue
		}
		if err := r.Render(entries[i]); err != nil {
			return err
		}
		shown++
	}
	if shown == 0 {
		return r.Notice(output.Notice{Tone: output.ToneWarn, Text: "⚠ no matching log entries"})
	}
	return nil
}
