package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanSentinel is reported in place of rule names for a file with no matches.
const CleanSentinel = "OK"

// ScanResult is the outcome for one file.
type ScanResult struct {
	Path    string
	Matches []string
	Err     error
	Elapsed time.Duration
}

// Clean reports whether the file was scanned and nothing matched.
func (r ScanResult) Clean() bool { return r.Err == nil && len(r.Matches) == 0 }

// Names returns the matched rule names, or the clean sentinel.
func (r ScanResult) Names() []string {
	if r.Clean() {
		return []string{CleanSentinel}
	}
	return r.Matches
}

// Lines renders the result in wire form, one line per match.
func (r ScanResult) Lines() []string {
	if r.Err != nil {
		return []string{fmt.Sprintf("ERROR: %s: %s", r.Path, oneLine(r.Err.Error()))}
	}
	names := r.Names()
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, fmt.Sprintf("%s: %s", n, r.Path))
	}
	return out
}

func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ", "\x00", " ").Replace(s)
}

// Walk scans path against gen. A regular file yields one result; a directory
// (or a symlink to one) is walked recursively and yields one result per regular file found, in
// lexical order. Per-file failures become results with Err set and the walk
// continues. visit errors and context cancellation stop the walk.
func Walk(ctx context.Context, gen *Generation, path string, timeout time.Duration, visit func(ScanResult) error) error {
	info, err := os.Stat(path)
	if err != nil {
		return &InvalidPathError{Path: path, Err: err}
	}
	switch {
	case info.Mode().IsRegular():
		return visit(scanOne(ctx, gen, path, timeout))
	case info.IsDir():
		return walkRoot(path, func(p string, d fs.DirEntry, err error) error {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			if err != nil {
				if verr := visit(ScanResult{Path: p, Err: err}); verr != nil {
					return verr
				}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			return visit(scanOne(ctx, gen, p, timeout))
		})
	default:
		return &InvalidPathError{Path: path}
	}
}

// walkRoot is filepath.WalkDir that follows root when it is a symlink.
// Paths handed to fn stay under root as given; links below root are not followed.
func walkRoot(root string, fn fs.WalkDirFunc) error {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		if err := fn(root, nil, err); err != fs.SkipDir && err != fs.SkipAll {
			return err
		}
		return nil
	}
	if resolved == root {
		return filepath.WalkDir(root, fn)
	}
	return filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if rel, rerr := filepath.Rel(resolved, p); rerr == nil {
			p = filepath.Join(root, rel)
		}
		return fn(p, d, err)
	})
}

// ScanPath is Walk collecting every result.
func ScanPath(ctx context.Context, gen *Generation, path string, timeout time.Duration) ([]ScanResult, error) {
	var out []ScanResult
	err := Walk(ctx, gen, path, timeout, func(r ScanResult) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

func scanOne(ctx context.Context, gen *Generation, path string, timeout time.Duration) ScanResult {
	start := time.Now()
	matches, err := gen.Rules.ScanFile(ctx, path, timeout)
	if err != nil {
		return ScanResult{Path: path, Err: err, Elapsed: time.Since(start)}
	}
	return ScanResult{Path: path, Matches: matches, Elapsed: time.Since(start)}
}
