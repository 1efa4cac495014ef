package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Build is the output of a successful compilation, not yet installed.
type Build struct {
	Rules  RuleSet
	Digest string
	Dir    string
	Files  []string
	Engine string
}

// ListRuleFiles walks dir recursively and returns the regular files whose
// extension is in exts, sorted by path. A symlinked dir is followed, links
// inside it are not.
func ListRuleFiles(dir string, exts []string) ([]string, error) {
	var files []string
	err := walkRoot(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matchExt(path, exts) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func matchExt(path string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// DigestFiles hashes the relative path and content of every file in order.
// Two directories with identical rule files yield the same digest.
func DigestFiles(dir string, files []string) (string, error) {
	h := sha256.New()
	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			rel = f
		}
		fmt.Fprintf(h, "%s\x00", filepath.ToSlash(rel))
		fh, err := os.Open(f)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, fh)
		fh.Close()
		if err != nil {
			return "", err
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Compile builds a RuleSet from every rule file under dir using a fresh
// compiler. It is all-or-nothing: the first failing file aborts the build.
// An empty directory is a CompileError wrapping ErrNoRuleFiles.
func Compile(ctx context.Context, engine Engine, dir string) (*Build, error) {
	files, err := ListRuleFiles(dir, engine.Extensions())
	if err != nil {
		return nil, newCompileError(dir, "", fmt.Errorf("walk rules dir: %w", err))
	}
	digest, err := DigestFiles(dir, files)
	if err != nil {
		return nil, newCompileError(dir, "", fmt.Errorf("digest rules: %w", err))
	}
	return compileFiles(ctx, engine, dir, files, digest)
}

func compileFiles(ctx context.Context, engine Engine, dir string, files []string, digest string) (*Build, error) {
	if len(files) == 0 {
		return nil, newCompileError(dir, "", ErrNoRuleFiles)
	}
	c, err := engine.NewCompiler()
	if err != nil {
		return nil, newCompileError(dir, "", fmt.Errorf("new %s compiler: %w", engine.Name(), err))
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, newCompileError(dir, "", err)
		}
		if err := c.AddFile(f); err != nil {
			return nil, newCompileError(dir, f, err)
		}
	}
	rules, err := c.Compile()
	if err != nil {
		return nil, newCompileError(dir, "", err)
	}
	return &Build{Rules: rules, Digest: digest, Dir: dir, Files: files, Engine: engine.Name()}, nil
}
