package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atikulmunna/logterm/internal/model"
)

// Verdict says what the stream client should do with a frame.
type Verdict int

const (
	// VerdictEntry is a well-formed log record.
	VerdictEntry Verdict = iota
	// VerdictAck is a protocol acknowledgement; dropped silently.
	VerdictAck
	// VerdictMalformed is JSON carrying neither a message nor a level.
	VerdictMalformed
	// VerdictInvalid is a frame that is not a JSON object.
	VerdictInvalid
)

func (v Verdict) String() string {
	switch v {
	case VerdictEntry:
		return "entry"
	case VerdictAck:
		return "ack"
	case VerdictMalformed:
		return "malformed"
	default:
		return "invalid"
	}
}

// Result is the classification of one live frame.
type Result struct {
	Verdict Verdict
	Entry   model.LogEntry
	Err     error // set for VerdictInvalid
}

// ackTypes are message kinds the backend sends to acknowledge client probes.
var ackTypes = map[string]bool{"ack": true, "pong": true}

// Parse classifies a raw frame from the live endpoint. now is used as the
// timestamp when the frame carries none.
func Parse(raw []byte, now time.Time) Result {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return Result{Verdict: VerdictInvalid, Err: fmt.Errorf("decode frame: %w", err)}
	}

	if kind, ok := strField(data, "type"); ok && ackTypes[strings.ToLower(kind)] {
		return Result{Verdict: VerdictAck}
	}

	_, hasMsg := strField(data, "message", "msg")
	_, hasLevel := strField(data, "level", "severity")
	if !hasMsg && !hasLevel {
		return Result{Verdict: VerdictMalformed}
	}

	return Result{Verdict: VerdictEntry, Entry: Entry(data, now)}
}

// Entry builds a normalized LogEntry from a decoded record. Records from the
// history endpoint and live frames share this shape.
func Entry(data map[string]interface{}, now time.Time) model.LogEntry {
	entry := model.LogEntry{
		Timestamp: now,
		Level:     model.LevelInfo,
	}

	if v, ok := strField(data, "level", "severity"); ok {
		entry.Level = model.ParseLevel(v)
	}
	if v, ok := strField(data, "message", "msg"); ok {
		entry.Message = v
	}
	if v, ok := strField(data, "module"); ok {
		entry.Module = v
	}
	process, _ := strField(data, "process")
	entry.Source = model.SourceTag(process, entry.Module)

	if v, ok := strField(data, "timestamp", "time", "ts"); ok {
		if t, ok := ParseTimestamp(v); ok {
			entry.Timestamp = t
		}
	}

	return entry
}

// zonedLayouts carry an explicit offset; localLayouts are the naive ISO forms
// the backend emits and are read in local time.
var (
	zonedLayouts = []string{time.RFC3339Nano, time.RFC3339}
	localLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
)

// ParseTimestamp accepts ISO-8601 timestamps with or without a zone offset.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// strField returns the first non-empty value among keys, stringified.
func strField(data map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		default:
			s = fmt.Sprintf("%v", t)
		}
		if s != "" {
			return s, true
		}
	}
	return "", false
}
