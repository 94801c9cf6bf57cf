package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/atikulmunna/logterm/internal/hub"
)

const epsWindow = 5 * time.Second

// Stats holds a point-in-time snapshot of aggregated metrics.
type Stats struct {
	Uptime        string           `json:"uptime"`
	TotalEntries  int64            `json:"total_entries"`
	Notices       int64            `json:"notices"`
	Clears        int64            `json:"clears"`
	EPS           float64          `json:"eps"`
	LevelCounts   map[string]int64 `json:"level_counts"`
	SourceCounts  map[string]int64 `json:"source_counts"`
	DroppedFrames int64            `json:"dropped_frames"`
}

// Aggregator subscribes to the Hub and computes time-windowed metrics.
type Aggregator struct {
	mu           sync.RWMutex
	startTime    time.Time
	totalEntries int64
	notices      int64
	clears       int64
	levelCounts  map[string]int64
	sourceCounts map[string]int64
	window       []time.Time // entry arrival times for EPS (last 5 seconds)
	dropped      func() int64
	frames       <-chan hub.Frame
}

// New creates an Aggregator that reads from the given Hub subscriber channel.
// droppedFn provides the live drop count from the Hub.
func New(frames <-chan hub.Frame, droppedFn func() int64) *Aggregator {
	return &Aggregator{
		startTime:    time.Now(),
		levelCounts:  make(map[string]int64),
		sourceCounts: make(map[string]int64),
		dropped:      droppedFn,
		frames:       frames,
	}
}

// Snapshot returns the current metrics.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	levels := make(map[string]int64, len(a.levelCounts))
	for k, v := range a.levelCounts {
		levels[k] = v
	}
	sources := make(map[string]int64, len(a.sourceCounts))
	for k, v := range a.sourceCounts {
		sources[k] = v
	}

	cutoff := time.Now().Add(-epsWindow)
	var recent int
	for _, t := range a.window {
		if t.After(cutoff) {
			recent++
		}
	}

	return Stats{
		Uptime:        time.Since(a.startTime).Truncate(time.Second).String(),
		TotalEntries:  a.totalEntries,
		Notices:       a.notices,
		Clears:        a.clears,
		EPS:           float64(recent) / epsWindow.Seconds(),
		LevelCounts:   levels,
		SourceCounts:  sources,
		DroppedFrames: a.dropped(),
	}
}

// Start consumes frames until the context is cancelled or the subscription
// is closed.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-a.frames:
			if !ok {
				return
			}
			a.record(f)
		case <-ticker.C:
			a.prune()
		}
	}
}

func (a *Aggregator) record(f hub.Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch f.Kind {
	case hub.KindNotice:
		a.notices++
	case hub.KindClear:
		a.clears++
	case hub.KindEntry:
		if f.Entry == nil {
			return
		}
		a.totalEntries++
		a.levelCounts[string(f.Entry.Level)]++
		// Untagged entries are grouped by their top-level module.
		source := f.Entry.Source
		if source == "" {
			source = f.Entry.Prefix()
		}
		a.sourceCounts[source]++
		a.window = append(a.window, time.Now())
	}
}

// prune removes timestamps older than the EPS window.
func (a *Aggregator) prune() {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-epsWindow)
	i := 0
	for _, t := range a.window {
		if t.After(cutoff) {
			a.window[i] = t
			i++
		}
	}
	a.window = a.window[:i]
}
