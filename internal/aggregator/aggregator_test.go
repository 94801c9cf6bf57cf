package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/atikulmunna/logterm/internal/hub"
	"github.com/atikulmunna/logterm/internal/model"
)

func entryFrame(level model.Level, source, module string) hub.Frame {
	return hub.Frame{
		Kind:  hub.KindEntry,
		Entry: &model.LogEntry{Level: level, Message: "m", Source: source, Module: module},
	}
}

func TestEPSCalculation(t *testing.T) {
	ch := make(chan hub.Frame, 100)
	agg := New(ch, func() int64 { return 3 })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go agg.Start(ctx)

	// Send 10 entries quickly.
	for i := 0; i < 10; i++ {
		ch <- entryFrame(model.LevelInfo, "web-backend", "pm2.web-backend.log")
	}

	// Wait for processing.
	time.Sleep(200 * time.Millisecond)

	stats := agg.Snapshot()
	if stats.TotalEntries != 10 {
		t.Errorf("expected 10 total entries, got %d", stats.TotalEntries)
	}
	if stats.EPS != 2 {
		t.Errorf("expected EPS 2, got %f", stats.EPS)
	}
	if stats.DroppedFrames != 3 {
		t.Errorf("expected 3 dropped frames, got %d", stats.DroppedFrames)
	}
}

func TestLevelAndSourceCounts(t *testing.T) {
	ch := make(chan hub.Frame, 100)
	agg := New(ch, func() int64 { return 0 })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go agg.Start(ctx)

	ch <- entryFrame(model.LevelInfo, "web-backend", "pm2.web-backend.log")
	ch <- entryFrame(model.LevelInfo, "tracker", "pm2.tracker.log")
	ch <- entryFrame(model.LevelError, "tracker", "pm2.tracker.log")
	ch <- entryFrame(model.LevelWarn, "", "app.scheduler")
	ch <- entryFrame(model.LevelError, "web-backend", "pm2.web-backend.log")
	ch <- hub.Frame{Kind: hub.KindNotice, Text: "✓ connected"}
	ch <- hub.Frame{Kind: hub.KindClear}

	time.Sleep(200 * time.Millisecond)

	stats := agg.Snapshot()
	if stats.LevelCounts["INFO"] != 2 {
		t.Errorf("expected 2 INFO, got %d", stats.LevelCounts["INFO"])
	}
	if stats.LevelCounts["ERROR"] != 2 {
		t.Errorf("expected 2 ERROR, got %d", stats.LevelCounts["ERROR"])
	}
	if stats.LevelCounts["WARN"] != 1 {
		t.Errorf("expected 1 WARN, got %d", stats.LevelCounts["WARN"])
	}
	if stats.SourceCounts["tracker"] != 2 {
		t.Errorf("expected 2 tracker entries, got %d", stats.SourceCounts["tracker"])
	}
	if stats.SourceCounts["app"] != 1 {
		t.Errorf("expected top-level module for untagged entry, got %d", stats.SourceCounts["app"])
	}
	if stats.Notices != 1 || stats.Clears != 1 {
		t.Errorf("expected 1 notice and 1 clear, got %d and %d", stats.Notices, stats.Clears)
	}
	if stats.TotalEntries != 5 {
		t.Errorf("expected 5 entries, got %d", stats.TotalEntries)
	}
}

func TestStopsOnClosedSubscription(t *testing.T) {
	ch := make(chan hub.Frame)
	agg := New(ch, func() int64 { return 0 })

	done := make(chan struct{})
	go func() {
		agg.Start(context.Background())
		close(done)
	}()
	close(ch)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("aggregator did not stop on closed subscription")
	}
}
