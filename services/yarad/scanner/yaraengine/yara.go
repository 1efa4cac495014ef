// Package yaraengine adapts libyara (via go-yara) to the scanner engine contract.
package yaraengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hillu/go-yara/v4"

	"github.com/swarmguard/yarad/services/yarad/scanner"
)

// Name is the engine name used in configuration.
const Name = "yara"

const namespace = "default"

// errScanTimeout is libyara's ERROR_SCAN_TIMEOUT (yara/error.h).
const errScanTimeout = 26

// Engine compiles .yar and .yara rule files.
type Engine struct{}

func New() *Engine { return &Engine{} }

func (Engine) Name() string { return Name }

func (Engine) Extensions() []string { return []string{".yar", ".yara"} }

func (Engine) NewCompiler() (scanner.Compiler, error) {
	c, err := yara.NewCompiler()
	if err != nil {
		return nil, fmt.Errorf("yara compiler init: %w", err)
	}
	return &compiler{c: c}, nil
}

type compiler struct {
	c *yara.Compiler
}

func (c *compiler) AddFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := c.c.AddFile(f, namespace); err != nil {
		if diags := diagnostics(c.c); len(diags) > 0 {
			return diags
		}
		return fmt.Errorf("compile %s: %w", path, err)
	}
	return nil
}

func (c *compiler) Compile() (scanner.RuleSet, error) {
	defer c.c.Destroy()
	rules, err := c.c.GetRules()
	if err != nil {
		if diags := diagnostics(c.c); len(diags) > 0 {
			return nil, diags
		}
		return nil, fmt.Errorf("get rules: %w", err)
	}
	var names []string
	for _, r := range rules.GetRules() {
		names = append(names, r.Identifier())
	}
	return &RuleSet{rules: rules, names: names}, nil
}

func diagnostics(c *yara.Compiler) scanner.Diagnostics {
	var out scanner.Diagnostics
	for _, m := range c.Errors {
		out = append(out, fmt.Sprintf("%s:%d: %s", m.Filename, m.Line, m.Text))
	}
	return out
}

// RuleSet wraps compiled yara rules. The underlying *yara.Rules is released by
// its finalizer once no scan holds the generation.
type RuleSet struct {
	rules *yara.Rules
	names []string
}

func (rs *RuleSet) RuleNames() []string {
	return append([]string(nil), rs.names...)
}

// ScanFile runs libyara over the file. libyara enforces the timeout itself in
// whole seconds; ctx is only checked before the scan starts.
func (rs *RuleSet) ScanFile(ctx context.Context, path string, timeout time.Duration) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var matches yara.MatchRules
	if err := rs.rules.ScanFile(path, 0, wholeSeconds(timeout), &matches); err != nil {
		return nil, scanError(path, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Rule)
	}
	return out, nil
}

// wholeSeconds rounds a positive timeout up to the next second. libyara
// truncates to seconds and treats 0 as no timeout at all.
func wholeSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return (d + time.Second - 1) / time.Second * time.Second
}

func scanError(path string, err error) error {
	var yerr yara.Error
	if errors.As(err, &yerr) && int(yerr) == errScanTimeout {
		return fmt.Errorf("yara scan %s: %w", path, scanner.ErrScanTimeout)
	}
	return fmt.Errorf("yara scan %s: %w", path, err)
}
