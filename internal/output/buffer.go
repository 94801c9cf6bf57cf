package output

import (
	"sync"

	"github.com/atikulmunna/logterm/internal/model"
)

// DefaultScrollback is the backlog kept by a Buffer when none is given.
const DefaultScrollback = 10000

// BufferedLine is one line held by a Buffer.
type BufferedLine struct {
	Kind  string      `json:"kind"` // entry or notice
	Level model.Level `json:"level,omitempty"`
	Tone  string      `json:"tone,omitempty"`
	Text  string      `json:"text"`
}

// Buffer is an in-memory render surface with a bounded backlog.
// Oldest lines are discarded once the backlog is full.
type Buffer struct {
	mu     sync.RWMutex
	lines  []BufferedLine
	max    int
	clears int
}

// NewBuffer creates a Buffer holding at most scrollback lines.
func NewBuffer(scrollback int) *Buffer {
	if scrollback <= 0 {
		scrollback = DefaultScrollback
	}
	return &Buffer{max: scrollback}
}

func (b *Buffer) Render(entry model.LogEntry) error {
	line := Format(entry)
	b.append(BufferedLine{Kind: "entry", Level: line.Level, Text: line.String()})
	return nil
}

func (b *Buffer) Notice(n Notice) error {
	b.append(BufferedLine{Kind: "notice", Tone: n.Tone.String(), Text: n.Text})
	return nil
}

func (b *Buffer) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
	b.clears++
	return nil
}

func (b *Buffer) append(l BufferedLine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	max := b.max
	if max <= 0 {
		max = DefaultScrollback
	}
	if len(b.lines) >= max {
		n := copy(b.lines, b.lines[len(b.lines)-max+1:])
		b.lines = b.lines[:n]
	}
	b.lines = append(b.lines, l)
}

// Lines returns a copy of the backlog, oldest first.
func (b *Buffer) Lines() []BufferedLine {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BufferedLine, len(b.lines))
	copy(out, b.lines)
	return out
}

// Entries returns only the entry lines, oldest first.
func (b *Buffer) Entries() []BufferedLine {
	var out []BufferedLine
	for _, l := range b.Lines() {
		if l.Kind == "entry" {
			out = append(out, l)
		}
	}
	return out
}

// Clears reports how many times the buffer was cleared.
func (b *Buffer) Clears() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.clears
}
