// Package filter decides which log records are relevant to the operator.
package filter

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/atikulmunna/logterm/internal/model"
)

// Predicate selects which entries are displayed.
type Predicate interface {
	Allow(entry model.LogEntry) bool
}

// Func adapts a plain function to a Predicate.
type Func func(entry model.LogEntry) bool

func (f Func) Allow(entry model.LogEntry) bool { return f(entry) }

// All accepts every entry.
var All Predicate = Func(func(model.LogEntry) bool { return true })

// Rules configures the relevance filter. An entry is accepted when its module
// lies under one of Prefixes (pm2 matches pm2.tracker.log, not pm2 itself) or
// matches one of Globs, and is then dropped if it belongs to the
// transport's own diagnostic channel (SuppressModules / SuppressPhrases).
type Rules struct {
	Prefixes        []string `mapstructure:"prefixes"`
	Globs           []string `mapstructure:"globs"`
	SuppressModules []string `mapstructure:"suppress_modules"`
	SuppressPhrases []string `mapstructure:"suppress_phrases"`
}

// DefaultRules shows process-manager logs and hides the log socket's own chatter.
func DefaultRules() Rules {
	return Rules{
		Prefixes:        []string{"pm2"},
		SuppressModules: []string{"websocket"},
		SuppressPhrases: []string{"WebSocket connection", "WebSocket error", "WebSocket closed"},
	}
}

// Compile validates the rules and returns a Predicate.
func Compile(r Rules) (Predicate, error) {
	for _, g := range r.Globs {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid glob %q", g)
		}
	}

	suppressed := make(map[string]bool, len(r.SuppressModules))
	for _, m := range r.SuppressModules {
		suppressed[m] = true
	}

	return &compiled{
		prefixes:   trimAll(r.Prefixes),
		globs:      r.Globs,
		suppressed: suppressed,
		phrases:    r.SuppressPhrases,
	}, nil
}

type compiled struct {
	prefixes   []string
	globs      []string
	suppressed map[string]bool
	phrases    []string
}

func (c *compiled) Allow(entry model.LogEntry) bool {
	return c.accepted(entry.Module) && !c.noise(entry)
}

func (c *compiled) accepted(module string) bool {
	for _, p := range c.prefixes {
		if strings.HasPrefix(module, p+".") {
			return true
		}
	}
	if len(c.globs) == 0 || module == "" {
		return false
	}
	// Module segments become path segments so ** spans several of them.
	path := strings.ReplaceAll(module, ".", "/")
	for _, g := range c.globs {
		if ok, _ := doublestar.Match(g, path); ok {
			return true
		}
	}
	return false
}

// noise reports whether the entry comes from the log transport itself.
func (c *compiled) noise(entry model.LogEntry) bool {
	if c.suppressed[entry.Module] {
		return true
	}
	for _, p := range c.phrases {
		if p != "" && strings.Contains(entry.Message, p) {
			return true
		}
	}
	return false
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSuffix(strings.TrimSpace(s), ".")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
