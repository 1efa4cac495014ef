// Package protocol implements the yarad control protocol: delimiter framed
// text commands in, newline terminated text lines out.
package protocol

import (
	"fmt"
	"strings"
)

// Kind tags a Command.
type Kind int

const (
	KindPing Kind = iota + 1
	KindVersion
	KindReload
	KindShutdown
	KindScan
	KindContScan
	KindMultiScan
	KindInstream
)

var keywords = map[Kind]string{
	KindPing:      "PING",
	KindVersion:   "VERSION",
	KindReload:    "RELOAD",
	KindShutdown:  "SHUTDOWN",
	KindScan:      "SCAN",
	KindContScan:  "CONTSCAN",
	KindMultiScan: "MULTISCAN",
	KindInstream:  "INSTREAM",
}

// path-taking commands, in match order
var pathKinds = []Kind{KindScan, KindContScan, KindMultiScan, KindInstream}

func (k Kind) String() string {
	if s, ok := keywords[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// TakesPath reports whether commands of this kind carry a path argument.
func (k Kind) TakesPath() bool {
	for _, pk := range pathKinds {
		if k == pk {
			return true
		}
	}
	return false
}

// Command is one parsed request. The zero value is not a valid command; use
// Parse or the constructors.
type Command struct {
	kind Kind
	path string
}

func (c Command) Kind() Kind { return c.kind }

// Path is the argument of a path-taking command, empty otherwise.
func (c Command) Path() string { return c.path }

// Text renders the command without framing.
func (c Command) Text() string {
	if c.kind.TakesPath() {
		return c.kind.String() + " " + c.path
	}
	return c.kind.String()
}

func (c Command) String() string { return c.Text() }

var (
	Ping     = Command{kind: KindPing}
	Version  = Command{kind: KindVersion}
	Reload   = Command{kind: KindReload}
	Shutdown = Command{kind: KindShutdown}
)

// NewPathCommand builds a path-taking command, applying the same validation as Parse.
func NewPathCommand(kind Kind, path string) (Command, error) {
	if !kind.TakesPath() {
		return Command{}, &InvalidCommandError{Raw: kind.String() + " " + path}
	}
	return Parse(kind.String() + " " + path)
}

// Parse turns one unframed command text into a Command. Bare keywords must
// match exactly. Path commands are the keyword, one space, and a non-empty
// argument which is trimmed of surrounding whitespace.
func Parse(text string) (Command, error) {
	switch text {
	case "PING":
		return Ping, nil
	case "VERSION":
		return Version, nil
	case "RELOAD":
		return Reload, nil
	case "SHUTDOWN":
		return Shutdown, nil
	}
	for _, k := range pathKinds {
		rest, ok := strings.CutPrefix(text, k.String()+" ")
		if !ok {
			continue
		}
		path := strings.TrimSpace(rest)
		if path == "" {
			return Command{}, &InvalidCommandError{Raw: text}
		}
		return Command{kind: k, path: path}, nil
	}
	return Command{}, &InvalidCommandError{Raw: text}
}
