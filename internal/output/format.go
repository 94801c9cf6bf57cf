package output

import (
	"strings"
	"time"

	"github.com/atikulmunna/logterm/internal/model"
)

// TimeLayout is how entry timestamps are shown, in local time.
const TimeLayout = "2006/01/02 15:04:05"

// Tone colors a diagnostic notice.
type Tone int

const (
	ToneInfo Tone = iota
	ToneOK
	ToneWarn
	ToneError
)

func (t Tone) String() string {
	switch t {
	case ToneOK:
		return "ok"
	case ToneWarn:
		return "warn"
	case ToneError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a diagnostic line written by the client itself rather than the backend.
type Notice struct {
	Tone Tone
	Text string
}

// Line is a formatted entry split into the segments a renderer styles separately.
type Line struct {
	Time    string
	Level   model.Level
	Symbol  string
	Tag     string // [tracker], [pm2.custom] or empty
	Process string // set when Tag names a known process
	Message string
}

// String joins the segments without styling.
func (l Line) String() string {
	parts := []string{l.Time, l.Symbol + " " + string(l.Level)}
	if l.Tag != "" {
		parts = append(parts, l.Tag)
	}
	parts = append(parts, l.Message)
	return strings.Join(parts, " ")
}

var levelSymbols = map[model.Level]string{
	model.LevelDebug: "🔍",
	model.LevelInfo:  "ℹ",
	model.LevelWarn:  "⚠",
	model.LevelError: "✗",
}

// knownProcesses get their own tag color; everything else is tagged by module.
var knownProcesses = map[string]bool{"web-backend": true, "web-frontend": true, "tracker": true}

// Format lays out an entry for display.
func Format(entry model.LogEntry) Line {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	level := entry.Level
	symbol, ok := levelSymbols[level]
	if !ok {
		level, symbol = model.LevelInfo, levelSymbols[model.LevelInfo]
	}

	line := Line{
		Time:    ts.Local().Format(TimeLayout),
		Level:   level,
		Symbol:  symbol,
		Message: strings.TrimSpace(entry.Message),
	}

	switch {
	case knownProcesses[entry.Source]:
		line.Tag = "[" + entry.Source + "]"
		line.Process = entry.Source
	case entry.Module != "":
		line.Tag = "[" + entry.Module + "]"
	}

	if line.Message == "" {
		line.Message = "(empty message)"
	}
	return line
}
