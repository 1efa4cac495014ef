package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/swarmguard/yarad/services/yarad/protocol"
)

// Server accepts one connection at a time and serves every command the
// client sent before accepting the next.
type Server struct {
	listener    net.Listener
	dispatcher  *Dispatcher
	readTimeout time.Duration
	logger      *slog.Logger
}

func NewServer(l net.Listener, d *Dispatcher, readTimeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{listener: l, dispatcher: d, readTimeout: readTimeout, logger: logger}
}

func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve runs the accept loop until ctx is cancelled, which closes the listener
// and returns nil. Any other accept failure is fatal and returned.
func (s *Server) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.listener.Close()
		case <-stop:
		}
	}()

	s.logger.Info("accepting connections", "addr", s.listener.Addr().String())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.handle(ctx, conn)
	}
}

// Close stops accepting. The socket file of a unix listener is removed.
func (s *Server) Close() error {
	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	data, err := protocol.ReadMessage(conn)
	if err != nil {
		s.logger.Debug("connection dropped", "remote", remote, "read", len(data), "error", err)
		return
	}

	bw := bufio.NewWriter(&deadlineWriter{conn: conn, timeout: s.readTimeout})
	frames, err := protocol.Decode(data)
	if err != nil {
		s.logger.Debug("framing error", "remote", remote, "error", err)
		if WriteError(bw, err) == nil {
			_ = bw.Flush()
		}
		return
	}
	for _, f := range frames {
		if f.Err != nil {
			err = WriteError(bw, f.Err)
		} else {
			err = s.dispatcher.Dispatch(ctx, f.Command, bw)
		}
		if err == nil {
			err = bw.Flush()
		}
		if err != nil {
			s.logger.Debug("command aborted", "remote", remote, "command", f.Command.Kind().String(), "error", err)
			return
		}
	}
}

// deadlineWriter refreshes the write deadline before every write.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.Write(p)
}
