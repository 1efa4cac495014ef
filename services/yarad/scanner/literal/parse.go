package literal

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// rule is one named byte pattern.
type rule struct {
	name    string
	pattern []byte
	file    string
	line    int
}

// parseRules reads the line format
//
//	# comment
//	name:literal text
//	name:hex:4d5a9000
//
// Diagnostics use the form "file:line: message".
func parseRules(file string, r io.Reader) ([]rule, []string) {
	var (
		rules []rule
		diags []string
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		name, rest, ok := strings.Cut(trimmed, ":")
		if !ok {
			diags = append(diags, fmt.Sprintf("%s:%d: missing ':' separator", file, lineNo))
			continue
		}
		name = strings.TrimSpace(name)
		if !validName(name) {
			diags = append(diags, fmt.Sprintf("%s:%d: invalid rule name %q", file, lineNo, name))
			continue
		}
		var pattern []byte
		if h, isHex := strings.CutPrefix(rest, "hex:"); isHex {
			b, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(h), " ", ""))
			if err != nil {
				diags = append(diags, fmt.Sprintf("%s:%d: bad hex pattern: %v", file, lineNo, err))
				continue
			}
			pattern = b
		} else {
			pattern = []byte(rest)
		}
		if len(pattern) == 0 {
			diags = append(diags, fmt.Sprintf("%s:%d: empty pattern for rule %s", file, lineNo, name))
			continue
		}
		rules = append(rules, rule{name: name, pattern: pattern, file: file, line: lineNo})
	}
	if err := sc.Err(); err != nil {
		diags = append(diags, fmt.Sprintf("%s:%d: %v", file, lineNo+1, err))
	}
	return rules, diags
}

// validName accepts identifiers: a letter or '_' followed by letters, digits or '_'.
func validName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
