package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmguard/yarad/services/yarad/protocol"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	for _, k := range []string{"YARAD_RULES_DIR", "YARAD_LOCAL_SOCKET", "YARAD_TCP_PORT", "YARAD_NATS_URL"} {
		t.Setenv(k, "")
	}
	p := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"start", "check-config", "show-rules-dir", "status", "stop", "restart", "show-rules-name", "pid"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
	assert.Equal(t, "/etc/yarad/config.yml", flag.DefValue)
}

func TestShowRulesDir(t *testing.T) {
	p := writeTestConfig(t, "rules_dir: /srv/yarad/rules\n")
	out, err := execute(t, "-c", p, "show-rules-dir")
	require.NoError(t, err)
	assert.Equal(t, "/srv/yarad/rules\n", out)
}

func TestCheckConfig(t *testing.T) {
	p := writeTestConfig(t, "rule_engine: literal\n")
	out, err := execute(t, "--config", p, "check-config")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	bad := writeTestConfig(t, "transport: smoke-signals\n")
	_, err = execute(t, "--config", bad, "check-config")
	assert.Error(t, err)

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yml"), "check-config")
	assert.Error(t, err)
}

func TestUnwiredCommands(t *testing.T) {
	for _, name := range []string{"status", "stop", "restart", "show-rules-name", "pid"} {
		_, err := execute(t, name)
		assert.ErrorIs(t, err, errNotImplemented, name)
	}
}

func TestStartFailsOnBadRules(t *testing.T) {
	rules := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rules, "r.sig"), []byte("no separator\n"), 0o644))
	p := writeTestConfig(t, fmt.Sprintf("rule_engine: literal\nrules_dir: %s\nlocal_socket: %s\n",
		rules, filepath.Join(t.TempDir(), "s.ctl")))
	err := runStart(context.Background(), p)
	assert.ErrorContains(t, err, "initial rules compile")
}

func TestStartServesAndShutsDown(t *testing.T) {
	rules := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rules, "r.sig"), []byte("evil:EVIL\n"), 0o644))
	sockDir, err := os.MkdirTemp("", "yd")
	require.NoError(t, err)
	defer os.RemoveAll(sockDir)
	sock := filepath.Join(sockDir, "s.ctl")
	p := writeTestConfig(t, fmt.Sprintf(
		"rule_engine: literal\nrules_dir: %s\nlocal_socket: %s\nauto_recompile_rules: false\nlog_level: error\n", rules, sock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runStart(ctx, p) }()

	var conn net.Conn
	require.Eventually(t, func() bool {
		c, err := net.Dial("unix", sock)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 5*time.Second, 20*time.Millisecond)

	_, err = conn.Write([]byte("zVERSION\x00"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	lines, err := protocol.ReadReplies(conn)
	require.NoError(t, err)
	conn.Close()
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "yarad "), lines[0])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
	_, err = os.Stat(sock)
	assert.True(t, os.IsNotExist(err))
}
