package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/atikulmunna/logterm/internal/model"
)

// Renderer is a line-oriented render surface: append styled lines, clear everything.
type Renderer interface {
	Render(entry model.LogEntry) error
	Notice(n Notice) error
	Clear() error
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

// clearScreen erases the display and homes the cursor.
const clearScreen = "\x1b[2J\x1b[H"

type palette struct {
	time   lipgloss.Style
	levels map[model.Level]lipgloss.Style
	procs  map[string]lipgloss.Style
	module lipgloss.Style
	tones  map[Tone]lipgloss.Style
}

func newPalette(r *lipgloss.Renderer) palette {
	green := r.NewStyle().Foreground(lipgloss.Color("2"))
	yellow := r.NewStyle().Foreground(lipgloss.Color("3"))
	red := r.NewStyle().Foreground(lipgloss.Color("1"))
	cyan := r.NewStyle().Foreground(lipgloss.Color("6"))
	blue := r.NewStyle().Foreground(lipgloss.Color("4"))

	return palette{
		time: r.NewStyle().Foreground(lipgloss.Color("8")),
		levels: map[model.Level]lipgloss.Style{
			model.LevelDebug: cyan,
			model.LevelInfo:  green,
			model.LevelWarn:  yellow,
			model.LevelError: red.Bold(true),
		},
		procs: map[string]lipgloss.Style{
			"web-backend":  blue,
			"web-frontend": green,
			"tracker":      yellow,
		},
		module: blue,
		tones: map[Tone]lipgloss.Style{
			ToneInfo:  cyan,
			ToneOK:    green,
			ToneWarn:  yellow,
			ToneError: red,
		},
	}
}

// TextRenderer prints entries to a terminal with severity-based colors.
type TextRenderer struct {
	w  io.Writer
	lg *lipgloss.Renderer
	p  palette
}

// NewTextRenderer returns a Renderer that writes colorized text to w.
// The color profile is detected from w.
func NewTextRenderer(w io.Writer) *TextRenderer {
	lg := lipgloss.NewRenderer(w)
	return &TextRenderer{w: w, lg: lg, p: newPalette(lg)}
}

// SetColorProfile overrides the detected color profile.
func (r *TextRenderer) SetColorProfile(p termenv.Profile) {
	r.lg.SetColorProfile(p)
}

func (r *TextRenderer) Render(entry model.LogEntry) error {
	line := Format(entry)

	out := r.p.time.Render(line.Time) + " " +
		r.p.levels[line.Level].Render(line.Symbol+" "+string(line.Level))
	if line.Tag != "" {
		style := r.p.module
		if s, ok := r.p.procs[line.Process]; ok {
			style = s
		}
		out += " " + style.Render(line.Tag)
	}
	out += " " + line.Message

	_, err := fmt.Fprintln(r.w, out)
	return err
}

func (r *TextRenderer) Notice(n Notice) error {
	_, err := fmt.Fprintln(r.w, r.p.tones[n.Tone].Render(n.Text))
	return err
}

func (r *TextRenderer) Clear() error {
	_, err := io.WriteString(r.w, clearScreen)
	return err
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

type jsonEntry struct {
	Kind string `json:"kind"`
	model.LogEntry
}

// JSONRenderer prints each entry or notice as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to w.
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

func (r *JSONRenderer) Render(entry model.LogEntry) error {
	return r.enc.Encode(jsonEntry{Kind: "entry", LogEntry: entry})
}

func (r *JSONRenderer) Notice(n Notice) error {
	return r.enc.Encode(struct {
		Kind string `json:"kind"`
		Tone string `json:"tone"`
		Text string `json:"text"`
	}{"notice", n.Tone.String(), n.Text})
}

func (r *JSONRenderer) Clear() error {
	return r.enc.Encode(struct {
		Kind string `json:"kind"`
	}{"clear"})
}

// ---------------------------------------------------------------------------
// Tee
// ---------------------------------------------------------------------------

// Tee forwards every call to each renderer in order.
type Tee []Renderer

func (t Tee) Render(entry model.LogEntry) error {
	var errs []error
	for _, r := range t {
		errs = append(errs, r.Render(entry))
	}
	return errors.Join(errs...)
}

func (t Tee) Notice(n Notice) error {
	var errs []error
	for _, r := range t {
		errs = append(errs, r.Notice(n))
	}
	return errors.Join(errs...)
}

func (t Tee) Clear() error {
	var errs []error
	for _, r := range t {
		errs = append(errs, r.Clear())
	}
	return errors.Join(errs...)
}
