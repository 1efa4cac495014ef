// Package transport opens the daemon's control socket: a unix domain socket by
// default, or a TCP port for trusted networks.
package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

// ErrNotSocket is returned when the socket path exists and is not a socket.
var ErrNotSocket = errors.New("refusing to replace non-socket file")

// Options selects and configures the listener.
type Options struct {
	Network string // "unix" or "tcp"
	Path    string
	Mode    os.FileMode
	Group   string
	Port    int
}

// Listen opens the listener described by opts.
func Listen(opts Options) (net.Listener, error) {
	switch opts.Network {
	case "unix", "":
		l, err := ListenUnix(opts.Path, opts.Mode, opts.Group)
		if err != nil {
			return nil, err
		}
		return l, nil
	case "tcp":
		l, err := ListenTCP(opts.Port)
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	return nil, fmt.Errorf("unknown transport %q", opts.Network)
}

// ListenUnix binds a unix socket at path. A stale socket file is removed
// first; any other existing file makes the bind fail. After binding, mode is
// applied and, when group is non-empty, the socket is chowned to that group.
// Closing the listener unlinks the socket file.
func ListenUnix(path string, mode os.FileMode, group string) (*net.UnixListener, error) {
	if err := removeStale(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", path, err)
	}
	l.SetUnlinkOnClose(true)
	if mode != 0 {
		if err := os.Chmod(path, mode); err != nil {
			l.Close()
			return nil, fmt.Errorf("chmod %s: %w", path, err)
		}
	}
	if group != "" {
		if err := chownGroup(path, group); err != nil {
			l.Close()
			return nil, err
		}
	}
	slog.Debug("unix socket bound", "path", path, "mode", fmt.Sprintf("%#o", mode), "group", group)
	return l, nil
}

func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%w: %s", ErrNotSocket, path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	slog.Info("removed stale socket", "path", path)
	return nil
}

func chownGroup(path, group string) error {
	g, err := user.LookupGroup(group)
	if err != nil {
		return fmt.Errorf("lookup group %s: %w", group, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return fmt.Errorf("group %s has non-numeric gid %q", group, g.Gid)
	}
	if err := os.Chown(path, -1, gid); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}

// ListenTCP binds all interfaces on port. Port 0 picks a free port.
func ListenTCP(port int) (*net.TCPListener, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("tcp port %d out of range", port)
	}
	l, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("bind tcp :%d: %w", port, err)
	}
	return l, nil
}
