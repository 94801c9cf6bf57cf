package parser

import (
	"fmt"
	"testing"
	"time"
)

// BenchmarkParseEntry measures classification of a typical live frame.
func BenchmarkParseEntry(b *testing.B) {
	frame := []byte(`{"level":"error","message":"disk full","module":"pm2.tracker.log","process":"tracker","timestamp":"2026-02-17T12:00:00Z"}`)
	now := time.Now()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Parse(frame, now)
	}
}

// BenchmarkParseMixed measures throughput over a mix of entries, acks and junk.
func BenchmarkParseMixed(b *testing.B) {
	frames := make([][]byte, 1000)
	for i := range frames {
		switch i % 4 {
		case 0:
			frames[i] = []byte(fmt.Sprintf(`{"level":"info","message":"poll %d done","module":"pm2.tracker.log"}`, i))
		case 1:
			frames[i] = []byte(`{"type":"ack"}`)
		case 2:
			frames[i] = []byte(fmt.Sprintf(`{"level":"warning","message":"slow query %dms","module":"pm2.web-backend.log","timestamp":"2026-02-17T12:00:00"}`, i*10))
		case 3:
			frames[i] = []byte(`not json`)
		}
	}
	now := time.Now()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Parse(frames[i%1000], now)
	}
}
