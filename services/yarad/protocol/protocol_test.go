package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPath(t *testing.T, k Kind, p string) Command {
	t.Helper()
	c, err := NewPathCommand(k, p)
	require.NoError(t, err)
	return c
}

func TestParseKeywords(t *testing.T) {
	cases := map[string]Kind{
		"PING":     KindPing,
		"VERSION":  KindVersion,
		"RELOAD":   KindReload,
		"SHUTDOWN": KindShutdown,
	}
	for text, want := range cases {
		c, err := Parse(text)
		require.NoError(t, err, text)
		assert.Equal(t, want, c.Kind())
		assert.Empty(t, c.Path())
	}
}

func TestParseTrimsArgument(t *testing.T) {
	c, err := Parse("SCAN   /tmp/a file  ")
	require.NoError(t, err)
	assert.Equal(t, KindScan, c.Kind())
	assert.Equal(t, "/tmp/a file", c.Path())

	c, err = Parse("MULTISCAN /srv")
	require.NoError(t, err)
	assert.Equal(t, KindMultiScan, c.Kind())
	assert.Equal(t, "/srv", c.Path())
}

func TestParseInvalid(t *testing.T) {
	for _, text := range []string{"", "ping", "PING ", "SCAN", "SCAN ", "SCAN    ", "SCANX /a", "FOO bar"} {
		_, err := Parse(text)
		var ic *InvalidCommandError
		require.ErrorAs(t, err, &ic, "text=%q", text)
		assert.Equal(t, text, ic.Raw)
	}
}

func TestRoundTrip(t *testing.T) {
	cmds := []Command{
		Ping, Version, Reload, Shutdown,
		mustPath(t, KindScan, "/var/tmp/x"),
		mustPath(t, KindContScan, "/home"),
		mustPath(t, KindMultiScan, "/a b/c"),
		mustPath(t, KindInstream, "stream-1"),
	}
	for _, c := range cmds {
		got, err := Parse(c.Text())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	for _, d := range []Delimiter{DelimNUL, DelimNewline} {
		wire, err := Encode(d, cmds...)
		require.NoError(t, err)
		frames, err := Decode(wire)
		require.NoError(t, err)
		require.Len(t, frames, len(cmds))
		for i, f := range frames {
			require.NoError(t, f.Err)
			assert.Equal(t, cmds[i], f.Command)
		}
	}
}

func TestNewPathCommandRejectsBareKinds(t *testing.T) {
	_, err := NewPathCommand(KindPing, "/x")
	assert.Error(t, err)
	_, err = NewPathCommand(KindScan, "  ")
	assert.Error(t, err)
}

func TestEncodeRejectsEmbeddedTerminator(t *testing.T) {
	c, err := Parse("SCAN /a\nb")
	require.NoError(t, err)
	_, err = Encode(DelimNewline, c)
	assert.Error(t, err)
	_, err = Encode(DelimNUL, c)
	assert.NoError(t, err)
}

func TestDecodeEmpty(t *testing.T) {
	frames, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, frames)
	frames, err = Decode([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestDecodeTwoCommands(t *testing.T) {
	frames, err := Decode([]byte("zPING\x00zVERSION\x00"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, Ping, frames[0].Command)
	assert.Equal(t, Version, frames[1].Command)
}

func TestDecodeBadDelimiter(t *testing.T) {
	_, err := Decode([]byte("xPING\x00"))
	assert.ErrorIs(t, err, ErrInvalidDelimiter)
}

func TestDecodeInvalidUTF8(t *testing.T) {
	_, err := Decode([]byte("zSCAN /\xff\xfe\x00"))
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestDecodeDropsUnmarkedSegments(t *testing.T) {
	frames, err := Decode([]byte("nPING\nVERSION\nnBOGUS\n\nnSCAN /x\n"))
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, Ping, frames[0].Command)
	var ic *InvalidCommandError
	require.ErrorAs(t, frames[1].Err, &ic)
	assert.Equal(t, "BOGUS", ic.Raw)
	assert.Equal(t, "/x", frames[2].Command.Path())
}

// chunkReader returns at most n bytes per Read.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

func TestReadMessageShortRead(t *testing.T) {
	got, err := ReadMessage(strings.NewReader("zPING\x00"))
	require.NoError(t, err)
	assert.Equal(t, []byte("zPING\x00"), got)
}

func TestReadMessageSpansBuffers(t *testing.T) {
	msg := append([]byte("zSCAN /"), bytes.Repeat([]byte("a"), ReadChunk+100)...)
	msg = append(msg, 0)
	got, err := ReadMessage(bytes.NewReader(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestReadMessageStopsOnShortChunk(t *testing.T) {
	// a short first Read ends the message; the rest waits for the next one
	r := &chunkReader{r: strings.NewReader("zPING\x00zVERSION\x00"), n: 6}
	got, err := ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("zPING\x00"), got)
}

func TestReadReplies(t *testing.T) {
	lines, err := ReadReplies(strings.NewReader("PONG\nyarad 1.0\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"PONG", "yarad 1.0"}, lines)
}
