package scanner

import (
	"errors"
	"fmt"
	"strings"
)

// ErrScanTimeout marks a match operation that ran past the per-scan timeout.
var ErrScanTimeout = errors.New("scan timed out")

// ErrNoRuleFiles is the cause of a CompileError for a directory without rule files.
var ErrNoRuleFiles = errors.New("no rule files found")

// Diagnostics carries per-line messages from an engine compiler.
type Diagnostics []string

func (d Diagnostics) Error() string { return strings.Join(d, "; ") }

// CompileError reports a failed rules directory compilation. No RuleSet exists
// when it is returned.
type CompileError struct {
	Dir         string
	File        string
	Diagnostics []string
	Err         error
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString("compile rules")
	if e.File != "" {
		fmt.Fprintf(&b, " %s", e.File)
	} else if e.Dir != "" {
		fmt.Fprintf(&b, " in %s", e.Dir)
	}
	if len(e.Diagnostics) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Diagnostics, "; "))
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

// InvalidPathError is returned when a scan target is neither a regular file nor a directory.
type InvalidPathError struct {
	Path string
	Err  error
}

func (e *InvalidPathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid path %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("invalid path %s: not a regular file or directory", e.Path)
}

func (e *InvalidPathError) Unwrap() error { return e.Err }

func newCompileError(dir, file string, err error) *CompileError {
	ce := &CompileError{Dir: dir, File: file, Err: err}
	var diags Diagnostics
	if errors.As(err, &diags) {
		ce.Diagnostics = append([]string(nil), diags...)
	}
	return ce
}
