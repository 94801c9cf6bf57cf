package cmd

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type countingRefresher struct {
	n atomic.Int32
}

func (r *countingRefresher) Refresh() { r.n.Add(1) }

func TestRefreshOnSignal(t *testing.T) {
	sig := make(chan os.Signal, 2)
	r := &countingRefresher{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		refreshOnSignal(ctx, sig, r)
		close(done)
	}()

	sig <- syscall.SIGHUP
	sig <- syscall.SIGHUP

	deadline := time.Now().Add(2 * time.Second)
	for r.n.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if r.n.Load() != 2 {
		t.Errorf("expected 2 refreshes, got %d", r.n.Load())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refreshOnSignal did not stop on cancel")
	}
}

func TestTailRejectsBadConfig(t *testing.T) {
	if _, err := execute(t, "--api", "ftp://nowhere", "tail"); err == nil {
		t.Error("expected error for unsupported api scheme")
	}
}
