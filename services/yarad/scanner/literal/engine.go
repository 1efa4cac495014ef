// Package literal is a pure Go rule engine matching named byte patterns with
// an Aho-Corasick automaton. Rule files use the .sig or .lit extension.
package literal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/swarmguard/yarad/services/yarad/scanner"
)

// Name is the engine name used in configuration.
const Name = "literal"

// Engine implements scanner.Engine.
type Engine struct {
	// ChunkSize overrides the streaming buffer size, mainly for tests.
	ChunkSize int
}

// New returns an Engine with default chunking.
func New() *Engine { return &Engine{} }

func (e *Engine) Name() string { return Name }

func (e *Engine) Extensions() []string { return []string{".sig", ".lit"} }

func (e *Engine) NewCompiler() (scanner.Compiler, error) {
	return &compiler{chunk: e.ChunkSize, seen: make(map[string]rule)}, nil
}

type compiler struct {
	chunk int
	rules []rule
	seen  map[string]rule
	used  bool
}

func (c *compiler) AddFile(path string) error {
	if c.used {
		return fmt.Errorf("compiler already used")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	rules, diags := parseRules(path, f)
	for _, r := range rules {
		if prev, dup := c.seen[r.name]; dup {
			diags = append(diags, fmt.Sprintf("%s:%d: duplicate rule %s (first defined at %s:%d)",
				r.file, r.line, r.name, prev.file, prev.line))
			continue
		}
		c.seen[r.name] = r
	}
	if len(diags) > 0 {
		return scanner.Diagnostics(diags)
	}
	c.rules = append(c.rules, rules...)
	return nil
}

func (c *compiler) Compile() (scanner.RuleSet, error) {
	if c.used {
		return nil, fmt.Errorf("compiler already used")
	}
	c.used = true
	if len(c.rules) == 0 {
		return nil, scanner.Diagnostics{"no rules defined"}
	}
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.name
	}
	return &RuleSet{auto: buildAutomaton(c.rules), names: names, chunk: c.chunk}, nil
}

// RuleSet is a compiled, immutable literal rule set.
type RuleSet struct {
	auto  *automaton
	names []string
	chunk int
}

func (rs *RuleSet) RuleNames() []string {
	return append([]string(nil), rs.names...)
}

// ScanFile streams the file through the automaton. Each rule is reported once,
// in order of its first occurrence.
func (rs *RuleSet) ScanFile(ctx context.Context, path string, timeout time.Duration) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	seen := make([]bool, len(rs.auto.rules))
	var out []string
	err = streamScan(ctx, f, rs.auto, rs.chunk, deadline, func(h hit) {
		if seen[h.rule] {
			return
		}
		seen[h.rule] = true
		out = append(out, rs.auto.rules[h.rule].name)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
