package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSWatcher is the fsnotify backed watcher. It watches the rules directory
// and every subdirectory, adding new ones as they appear.
type FSWatcher struct {
	dir      string
	exts     []string
	debounce time.Duration
	trigger  Trigger
	logger   *slog.Logger
	w        *fsnotify.Watcher

	mu     sync.Mutex
	dirs   map[string]bool
	cancel context.CancelFunc
	done   chan struct{}
}

func newFSWatcher(opts Options, logger *slog.Logger) (*FSWatcher, error) {
	if opts.Trigger == nil {
		return nil, errors.New("no trigger")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FSWatcher{
		dir:      opts.Dir,
		exts:     opts.Extensions,
		debounce: opts.Debounce,
		trigger:  opts.Trigger,
		logger:   logger,
		w:        w,
		dirs:     make(map[string]bool),
	}, nil
}

func (f *FSWatcher) Active() bool { return true }

func (f *FSWatcher) Start(ctx context.Context) (<-chan error, error) {
	root, err := filepath.EvalSymlinks(f.dir)
	if err == nil {
		err = f.addTree(root)
	}
	if err != nil {
		f.w.Close()
		return nil, &WatchError{Op: "add", Err: err}
	}
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancel = cancel
	f.done = make(chan struct{})
	f.mu.Unlock()

	errc := make(chan error, 1)
	go f.loop(ctx, errc)
	f.logger.Info("watching rules directory", "dir", f.dir, "debounce", f.debounce)
	return errc, nil
}

// Close stops the loop and releases the notifier.
func (f *FSWatcher) Close() error {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.mu.Unlock()
	if cancel == nil {
		return f.w.Close()
	}
	cancel()
	<-done
	return nil
}

func (f *FSWatcher) loop(ctx context.Context, errc chan<- error) {
	defer close(f.done)
	defer close(errc)
	defer f.w.Close()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-f.w.Events:
			if !ok {
				errc <- &WatchError{Op: "events", Err: ErrChannelClosed}
				return
			}
			if !f.relevant(ev) {
				continue
			}
			f.logger.Debug("rules changed", "path", ev.Name, "op", ev.Op.String())
			if f.debounce <= 0 {
				f.fire(ctx)
				continue
			}
			fire = time.After(f.debounce)
		case err, ok := <-f.w.Errors:
			if !ok {
				err = ErrChannelClosed
			}
			errc <- &WatchError{Op: "notify", Err: err}
			return
		case <-fire:
			fire = nil
			f.fire(ctx)
		}
	}
}

func (f *FSWatcher) fire(ctx context.Context) {
	if err := f.trigger(ctx); err != nil {
		f.logger.Error("rules recompile failed, keeping previous rules", "dir", f.dir, "error", err)
	}
}

// relevant reports whether ev is a completed change to a rule file or to the
// directory tree. New directories are added to the watch set.
func (f *FSWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := f.addTree(ev.Name); err != nil {
				f.logger.Warn("watch new directory failed", "path", ev.Name, "error", err)
			}
			return true
		}
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		f.mu.Lock()
		wasDir := f.dirs[ev.Name]
		delete(f.dirs, ev.Name)
		f.mu.Unlock()
		if wasDir {
			return true
		}
	}
	return f.ruleFile(ev.Name)
}

func (f *FSWatcher) ruleFile(path string) bool {
	if len(f.exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range f.exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// addTree watches root and every directory below it. A symlinked rules dir is
// resolved by Start; links inside the tree are not followed.
func (f *FSWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := f.w.Add(p); err != nil {
			return err
		}
		f.mu.Lock()
		f.dirs[p] = true
		f.mu.Unlock()
		return nil
	})
}
