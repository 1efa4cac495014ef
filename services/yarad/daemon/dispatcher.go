// Package daemon serves the control protocol: it accepts connections, decodes
// commands and runs them against the rule store.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/swarmguard/yarad/libs/go/core/otelinit"
	"github.com/swarmguard/yarad/services/yarad/config"
	"github.com/swarmguard/yarad/services/yarad/events"
	"github.com/swarmguard/yarad/services/yarad/protocol"
	"github.com/swarmguard/yarad/services/yarad/scanner"
)

// ErrNotImplemented answers commands that are part of the grammar but not served.
var ErrNotImplemented = errors.New("not implemented")

const (
	replyPong      = "PONG"
	replyReloading = "RELOADING"
)

// Dispatcher executes one command at a time and writes its reply lines.
type Dispatcher struct {
	store     *scanner.Store
	cfg       *config.Holder
	reloader  *Reloader
	publisher events.Publisher
	metrics   *Metrics
	version   string
	logger    *slog.Logger
}

// DispatcherOptions holds the optional collaborators of a Dispatcher.
type DispatcherOptions struct {
	Version   string
	Publisher events.Publisher
	Metrics   *Metrics
	Logger    *slog.Logger
}

func NewDispatcher(store *scanner.Store, cfg *config.Holder, reloader *Reloader, opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		cfg:       cfg,
		reloader:  reloader,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		version:   opts.Version,
		logger:    opts.Logger,
	}
	if d.publisher == nil {
		d.publisher = events.Noop{}
	}
	if d.metrics == nil {
		d.metrics = NewMetrics()
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.version == "" {
		d.version = "dev"
	}
	return d
}

// Dispatch runs cmd and writes its reply to w. Request failures become reply
// lines; the returned error is non-nil only when writing to the client failed
// or ctx ended.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd protocol.Command, w io.Writer) error {
	name := strings.ToLower(cmd.Kind().String())
	ctx, end := otelinit.WithSpan(ctx, "yarad.command."+name)
	defer end()
	d.metrics.Command(ctx, name)
	d.logger.Debug("dispatch", "command", cmd.Kind().String(), "path", cmd.Path())

	switch cmd.Kind() {
	case protocol.KindPing:
		return writeLine(w, replyPong)
	case protocol.KindVersion:
		return writeLine(w, "yarad "+d.version)
	case protocol.KindReload:
		return d.reload(ctx, w)
	case protocol.KindScan:
		return d.scan(ctx, cmd.Path(), w)
	default:
		return WriteError(w, fmt.Errorf("%s: %w", cmd.Kind(), ErrNotImplemented))
	}
}

func (d *Dispatcher) reload(ctx context.Context, w io.Writer) error {
	g, err := d.reloader.Reload(ctx)
	if err != nil {
		d.logger.Warn("reload failed, keeping previous rules", "error", err)
		return WriteError(w, err)
	}
	d.logger.Info("reload complete", "version", g.Version, "rules", g.RuleCount())
	return writeLine(w, replyReloading)
}

func (d *Dispatcher) scan(ctx context.Context, path string, w io.Writer) error {
	gen := d.store.Current()
	timeout := d.cfg.Current().ScanTimeout
	err := scanner.Walk(ctx, gen, path, timeout, func(r scanner.ScanResult) error {
		d.metrics.Scan(ctx, r, r.Elapsed)
		switch {
		case r.Err != nil:
			d.logger.Debug("scan error", "path", r.Path, "error", r.Err)
		case len(r.Matches) > 0:
			d.logger.Info("match", "path", r.Path, "rules", r.Matches, "generation", gen.Version)
			d.publisher.Publish(ctx, events.Detection{
				Path:       r.Path,
				Rules:      r.Matches,
				Generation: gen.Version,
				Digest:     gen.Digest,
				Engine:     gen.Engine,
				ScannedAt:  time.Now().UTC(),
			})
		}
		for _, line := range r.Lines() {
			if err := writeLine(w, line); err != nil {
				return err
			}
		}
		return nil
	})
	var ip *scanner.InvalidPathError
	if errors.As(err, &ip) {
		return WriteError(w, err)
	}
	return err
}

// WriteError renders a command level failure.
func WriteError(w io.Writer, err error) error {
	msg := strings.NewReplacer("\r", " ", "\n", " ", "\x00", " ").Replace(err.Error())
	return writeLine(w, "ERROR: "+msg)
}

func writeLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}
