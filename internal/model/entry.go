package model

import (
	"strings"
	"time"
)

// Level is a normalized log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// ParseLevel normalizes common level strings to the four supported levels.
// Unknown values map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR", "ERR", "FATAL", "CRITICAL", "CRIT":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG", "TRACE":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// LogEntry represents a single log record from the history snapshot or the live feed.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Module    string    `json:"module,omitempty"` // dot-delimited, e.g. pm2.tracker.log
	Source    string    `json:"source,omitempty"` // emitting process, e.g. tracker
}

// Prefix returns the first segment of the module identifier.
func (e LogEntry) Prefix() string {
	prefix, _, _ := strings.Cut(e.Module, ".")
	return prefix
}

// SourceTag derives the source tag from an explicit process name or the module.
// pm2.web-backend.log yields web-backend. Other modules carry no source tag.
func SourceTag(process, module string) string {
	if process != "" {
		return process
	}
	parts := strings.Split(module, ".")
	if len(parts) >= 2 && parts[0] == "pm2" {
		return parts[1]
	}
	return ""
}
