package main

import (
	"context"
	"fmt"
	"time"

	corelog "github.com/swarmguard/yarad/libs/go/core/logging"
	"github.com/swarmguard/yarad/libs/go/core/otelinit"
	"github.com/swarmguard/yarad/services/yarad/config"
	"github.com/swarmguard/yarad/services/yarad/daemon"
	"github.com/swarmguard/yarad/services/yarad/events"
	"github.com/swarmguard/yarad/services/yarad/scanner"
	"github.com/swarmguard/yarad/services/yarad/scanner/literal"
	"github.com/swarmguard/yarad/services/yarad/scanner/yaraengine"
	"github.com/swarmguard/yarad/services/yarad/transport"
	"github.com/swarmguard/yarad/services/yarad/watcher"
)

const service = "yarad"

func newEngine(name string) (scanner.Engine, error) {
	switch name {
	case yaraengine.Name:
		return yaraengine.New(), nil
	case literal.Name:
		return literal.New(), nil
	}
	return nil, fmt.Errorf("unknown rule engine %q", name)
}

// runStart runs the daemon in the foreground until ctx is cancelled.
func runStart(ctx context.Context, configPath string) error {
	holder, err := config.Open(configPath)
	if err != nil {
		return err
	}
	cfg := holder.Current()
	logger := corelog.Init(service, cfg.LogLevel)

	shutdownTrace := otelinit.InitTracer(ctx, service)
	shutdownMetrics := otelinit.InitMetrics(ctx, service)
	defer func() {
		ctxSd, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		otelinit.Flush(ctxSd, shutdownTrace)
		otelinit.Flush(ctxSd, shutdownMetrics)
	}()

	base, err := newEngine(cfg.RuleEngine)
	if err != nil {
		return err
	}
	engine := scanner.WithExtensions(base, cfg.RuleExtensions)
	metrics := daemon.NewMetrics()
	store, err := scanner.NewStore(ctx, engine, cfg.RulesDir,
		scanner.WithLogger(logger),
		scanner.WithSwapHook(metrics.Installed))
	if err != nil {
		return fmt.Errorf("initial rules compile: %w", err)
	}

	publisher := events.Connect(ctx, cfg.NATSURL, cfg.NATSSubject, cfg.NATSMaxRate, logger)
	defer publisher.Close()

	reloader := daemon.NewReloader(store, holder, metrics, logger)
	dispatcher := daemon.NewDispatcher(store, holder, reloader, daemon.DispatcherOptions{
		Version:   version,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logger,
	})

	l, err := transport.Listen(transport.Options{
		Network: cfg.Transport,
		Path:    cfg.LocalSocket,
		Mode:    cfg.LocalSocketMode,
		Group:   cfg.LocalSocketGroup,
		Port:    cfg.TCPPort,
	})
	if err != nil {
		return err
	}
	srv := daemon.NewServer(l, dispatcher, cfg.ReadTimeout, logger)
	defer srv.Close()

	w := watcher.New(watcher.Options{
		Enabled:    cfg.AutoRecompileRules,
		Dir:        cfg.RulesDir,
		Extensions: engine.Extensions(),
		Debounce:   cfg.WatchDebounce,
		Trigger:    reloader.Recompile,
		Logger:     logger,
	})
	defer w.Close()
	if errc, err := w.Start(ctx); err != nil {
		logger.Warn("rules watcher not started", "error", err)
	} else {
		go func() {
			for err := range errc {
				logger.Error("rules watcher stopped, auto recompile disabled", "error", err)
			}
		}()
	}

	logger.Info("yarad started",
		"version", version,
		"user", cfg.User,
		"transport", cfg.Transport,
		"addr", srv.Addr().String(),
		"engine", engine.Name(),
		"rules", store.Current().RuleCount(),
		"watcher", w.Active())
	if err := srv.Serve(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
