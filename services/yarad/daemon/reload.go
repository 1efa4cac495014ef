package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/swarmguard/yarad/services/yarad/config"
	"github.com/swarmguard/yarad/services/yarad/scanner"
)

// Reloader runs the compile and swap sequence shared by the RELOAD command
// and the rules watcher. Reloads are serialised so the installed config and
// rules always belong together.
type Reloader struct {
	store   *scanner.Store
	cfg     *config.Holder
	metrics *Metrics
	logger  *slog.Logger

	mu sync.Mutex
}

func NewReloader(store *scanner.Store, cfg *config.Holder, metrics *Metrics, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Reloader{store: store, cfg: cfg, metrics: metrics, logger: logger}
}

// Reload re-reads the configuration, compiles its rules dir and installs both.
// On any failure the previous config and rules stay active.
func (r *Reloader) Reload(ctx context.Context) (*scanner.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := time.Now()

	next, err := r.cfg.Load()
	if err != nil {
		r.metrics.Reload(ctx, "command", err, time.Since(start))
		return nil, fmt.Errorf("reload config: %w", err)
	}
	cur := r.cfg.Current()
	if next.RuleEngine != cur.RuleEngine || !slices.Equal(next.RuleExtensions, cur.RuleExtensions) {
		r.logger.Warn("rule_engine and rule_extensions changes take effect after restart",
			"engine", cur.RuleEngine, "requested_engine", next.RuleEngine)
	}
	g, err := r.store.Reload(ctx, next.RulesDir)
	r.metrics.Reload(ctx, "command", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	r.cfg.Set(next)
	return g, nil
}

// Recompile is the watcher trigger: it recompiles the current rules dir and
// skips the swap when the rule files are unchanged.
func (r *Reloader) Recompile(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := time.Now()

	dir := r.cfg.Current().RulesDir
	g, changed, err := r.store.ReloadIfChanged(ctx, dir)
	if err != nil {
		r.metrics.Reload(ctx, "watcher", err, time.Since(start))
		return err
	}
	if !changed {
		r.logger.Debug("rules unchanged, swap skipped", "dir", dir, "version", g.Version)
		return nil
	}
	r.metrics.Reload(ctx, "watcher", nil, time.Since(start))
	return nil
}
