// Package watcher triggers rule recompilation when the rules directory changes.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoPermission means the process lacks the privilege required to watch.
var ErrNoPermission = errors.New("no permission to watch rules directory")

// ErrChannelClosed is the cause of a WatchError when the notifier shut its channels.
var ErrChannelClosed = errors.New("notification channel closed")

// WatchError ends an active watcher. The daemon keeps serving without it.
type WatchError struct {
	Op  string
	Err error
}

func (e *WatchError) Error() string { return fmt.Sprintf("watcher %s: %v", e.Op, e.Err) }
func (e *WatchError) Unwrap() error { return e.Err }

// Trigger recompiles and swaps the rules. Its errors are logged, never fatal.
type Trigger func(ctx context.Context) error

// Watcher observes the rules directory.
type Watcher interface {
	// Start begins watching in a background goroutine. The returned channel
	// carries at most one *WatchError and is closed once the watcher stops.
	Start(ctx context.Context) (<-chan error, error)
	// Active reports whether this watcher can ever trigger.
	Active() bool
	Close() error
}

// Options configures New.
type Options struct {
	Enabled    bool
	Dir        string
	Extensions []string
	Debounce   time.Duration
	Trigger    Trigger
	Logger     *slog.Logger
	// CheckPrivilege overrides the platform privilege check.
	CheckPrivilege func() error
}

// New picks the watcher implementation. It never fails: any reason the active
// watcher cannot run is logged as a warning and a Noop is returned.
func New(opts Options) Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !opts.Enabled {
		logger.Debug("auto recompile disabled")
		return Noop{}
	}
	check := opts.CheckPrivilege
	if check == nil {
		check = checkPrivilege
	}
	if err := check(); err != nil {
		logger.Warn("rules watcher disabled", "reason", "no permission", "error", err)
		return Noop{}
	}
	w, err := newFSWatcher(opts, logger)
	if err != nil {
		logger.Warn("rules watcher disabled", "reason", "fsnotify unavailable", "error", err)
		return Noop{}
	}
	return w
}

// Noop never triggers.
type Noop struct{}

func (Noop) Start(context.Context) (<-chan error, error) {
	ch := make(chan error)
	close(ch)
	return ch, nil
}

func (Noop) Active() bool { return false }

func (Noop) Close() error { return nil }
