package scanner

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Store holds the currently installed Generation. Readers take a snapshot via
// Current and keep using it for as long as they need; a reload installs a new
// generation without waiting for them. The exclusive section covers only the
// pointer swap, compilation happens outside the lock.
type Store struct {
	engine Engine
	logger *slog.Logger

	mu      sync.RWMutex
	current *Generation
	version uint64

	onSwap func(*Generation)
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for swap events.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithSwapHook registers fn to run after every successful install.
func WithSwapHook(fn func(*Generation)) StoreOption {
	return func(s *Store) { s.onSwap = fn }
}

// NewStore compiles dir and installs the result as generation 1. Failure here
// is fatal to the caller; there is no empty store.
func NewStore(ctx context.Context, engine Engine, dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{engine: engine, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	b, err := Compile(ctx, engine, dir)
	if err != nil {
		return nil, err
	}
	s.Install(b)
	return s, nil
}

// Engine returns the engine this store compiles with.
func (s *Store) Engine() Engine { return s.engine }

// Current returns the installed generation.
func (s *Store) Current() *Generation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Install swaps b in as the current generation. Concurrent installs are
// last-write-wins; versions stay strictly increasing.
func (s *Store) Install(b *Build) *Generation {
	s.mu.Lock()
	s.version++
	g := &Generation{
		Rules:    b.Rules,
		Version:  s.version,
		Digest:   b.Digest,
		Dir:      b.Dir,
		Files:    len(b.Files),
		Engine:   b.Engine,
		LoadedAt: time.Now(),
	}
	s.current = g
	s.mu.Unlock()

	s.logger.Info("rules installed",
		"version", g.Version,
		"dir", g.Dir,
		"files", g.Files,
		"rules", g.RuleCount(),
		"digest", g.ShortDigest())
	if s.onSwap != nil {
		s.onSwap(g)
	}
	return g
}

// Reload compiles dir and installs the result. On failure the current
// generation is untouched.
func (s *Store) Reload(ctx context.Context, dir string) (*Generation, error) {
	b, err := Compile(ctx, s.engine, dir)
	if err != nil {
		return nil, err
	}
	return s.Install(b), nil
}

// ReloadIfChanged behaves like Reload but skips compilation when dir and the
// rule file digest match the current generation. The bool reports whether a
// new generation was installed.
func (s *Store) ReloadIfChanged(ctx context.Context, dir string) (*Generation, bool, error) {
	files, err := ListRuleFiles(dir, s.engine.Extensions())
	if err != nil {
		return nil, false, newCompileError(dir, "", err)
	}
	digest, err := DigestFiles(dir, files)
	if err != nil {
		return nil, false, newCompileError(dir, "", err)
	}
	if cur := s.Current(); cur != nil && cur.Dir == dir && cur.Digest == digest {
		return cur, false, nil
	}
	b, err := compileFiles(ctx, s.engine, dir, files, digest)
	if err != nil {
		return nil, false, err
	}
	return s.Install(b), true, nil
}
