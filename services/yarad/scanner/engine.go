package scanner

import (
	"context"
	"time"
)

// Engine is the external matching capability. An engine turns rule files into an
// immutable RuleSet and knows which file extensions it understands.
type Engine interface {
	Name() string
	// Extensions lists the rule file suffixes (with dot) picked up by Compile.
	// An empty list means every regular file is a rule file.
	Extensions() []string
	// NewCompiler returns a fresh, independent compiler instance.
	NewCompiler() (Compiler, error)
}

// Compiler accumulates rule files. A compiler is used for exactly one Compile call.
type Compiler interface {
	AddFile(path string) error
	Compile() (RuleSet, error)
}

// RuleSet is sealed engine output. Implementations must be safe for concurrent
// ScanFile calls and are never mutated after Compile returns.
type RuleSet interface {
	// ScanFile matches the file at path. Matched rule identifiers are returned in
	// the order the engine reports them. A scan exceeding timeout fails with an
	// error wrapping ErrScanTimeout.
	ScanFile(ctx context.Context, path string, timeout time.Duration) ([]string, error)
	RuleNames() []string
}

// Generation is one installed RuleSet plus the facts about how it was built.
type Generation struct {
	Rules    RuleSet
	Version  uint64
	Digest   string
	Dir      string
	Files    int
	Engine   string
	LoadedAt time.Time
}

// RuleCount is the number of rules in the generation.
func (g *Generation) RuleCount() int {
	if g == nil || g.Rules == nil {
		return 0
	}
	return len(g.Rules.RuleNames())
}

// ShortDigest returns the first 12 hex chars of the digest for log lines.
func (g *Generation) ShortDigest() string {
	if g == nil || len(g.Digest) < 12 {
		return ""
	}
	return g.Digest[:12]
}

// WithExtensions returns engine with its rule file extensions replaced by exts.
// An empty exts returns engine unchanged.
func WithExtensions(engine Engine, exts []string) Engine {
	if len(exts) == 0 {
		return engine
	}
	return extEngine{Engine: engine, exts: exts}
}

type extEngine struct {
	Engine
	exts []string
}

func (e extEngine) Extensions() []string { return e.exts }
