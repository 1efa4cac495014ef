package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ReadChunk is the fixed read buffer size of ReadMessage.
const ReadChunk = 4096

var (
	ErrInvalidDelimiter = errors.New("invalid delimiter specification")
	ErrInvalidEncoding  = errors.New("message is not valid UTF-8")
)

// InvalidCommandError carries the raw text of a command that failed to parse.
type InvalidCommandError struct {
	Raw string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("invalid command: %q", e.Raw)
}

// Delimiter is the selector byte that opens a message.
type Delimiter byte

const (
	DelimNUL     Delimiter = 'z'
	DelimNewline Delimiter = 'n'
)

// Terminator is the byte separating commands framed with d.
func (d Delimiter) Terminator() (byte, error) {
	switch d {
	case DelimNUL:
		return 0, nil
	case DelimNewline:
		return '\n', nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDelimiter, byte(d))
}

// Frame is one decoded segment: a command or the reason it was rejected.
type Frame struct {
	Command Command
	Err     error
}

// ReadMessage drains what a client has sent: it reads into a fixed 4096-byte
// buffer and keeps going while reads fill it. A message whose length is an
// exact multiple of the buffer blocks for more input; callers bound this with a
// read deadline.
func ReadMessage(r io.Reader) ([]byte, error) {
	var out []byte
	buf := make([]byte, ReadChunk)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		if n < len(buf) {
			return out, nil
		}
	}
}

// Decode splits a message into frames. The first byte picks the delimiter for
// the whole message. Only segments that start with the selector byte are kept,
// with the selector stripped. An error return means the whole message was
// rejected; per-command parse failures are reported in the frames.
func Decode(data []byte) ([]Frame, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if !utf8.Valid(data) {
		return nil, ErrInvalidEncoding
	}
	sel := Delimiter(data[0])
	term, err := sel.Terminator()
	if err != nil {
		return nil, err
	}
	var frames []Frame
	for _, seg := range bytes.Split(data, []byte{term}) {
		if len(seg) == 0 || seg[0] != byte(sel) {
			continue
		}
		cmd, err := Parse(string(seg[1:]))
		frames = append(frames, Frame{Command: cmd, Err: err})
	}
	return frames, nil
}

// Encode frames cmds for the wire using delimiter d.
func Encode(d Delimiter, cmds ...Command) ([]byte, error) {
	term, err := d.Terminator()
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	for _, c := range cmds {
		if bytes.IndexByte([]byte(c.Text()), term) >= 0 {
			return nil, fmt.Errorf("command %q contains the frame terminator", c.Text())
		}
		b.WriteByte(byte(d))
		b.WriteString(c.Text())
		b.WriteByte(term)
	}
	return b.Bytes(), nil
}

// ReadReplies reads newline terminated reply lines until EOF.
func ReadReplies(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
