// Package config loads and validates the yarad YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	corelog "github.com/swarmguard/yarad/libs/go/core/logging"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "/etc/yarad/config.yml"

const defaultSocketMode os.FileMode = 0o666

var (
	ErrNotFound   = errors.New("config file not found")
	ErrPermission = errors.New("config file permission denied")
)

// ParseError wraps a YAML decode failure.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse config %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// InvalidError lists every field that failed validation.
type InvalidError struct {
	Problems []string
}

func (e *InvalidError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Config is an immutable snapshot. Never modify a Config after it is handed to
// a Holder; load a new one instead.
type Config struct {
	LogLevel           string
	LocalSocket        string
	LocalSocketGroup   string
	LocalSocketMode    os.FileMode
	RulesDir           string
	RuleEngine         string
	RuleExtensions     []string
	Transport          string
	TCPPort            int
	WorkingDir         string
	User               string
	AutoRecompileRules bool
	PidFile            string
	ScanTimeout        time.Duration
	ReadTimeout        time.Duration
	WatchDebounce      time.Duration
	NATSURL            string
	NATSSubject        string
	NATSMaxRate        float64
}

// file mirrors the YAML document; pointers distinguish unset from zero.
type file struct {
	LogLevel           *string        `yaml:"log_level"`
	LocalSocket        *string        `yaml:"local_socket"`
	LocalSocketGroup   *string        `yaml:"local_socket_group"`
	LocalSocketMode    *string        `yaml:"local_socket_mode"`
	RulesDir           *string        `yaml:"rules_dir"`
	RuleEngine         *string        `yaml:"rule_engine"`
	RuleExtensions     []string       `yaml:"rule_extensions"`
	Transport          *string        `yaml:"transport"`
	TCPPort            *int           `yaml:"tcp_port"`
	WorkingDir         *string        `yaml:"working_dir"`
	User               *string        `yaml:"user"`
	AutoRecompileRules *bool          `yaml:"auto_recompile_rules"`
	PidFile            *string        `yaml:"pid_file"`
	ScanTimeout        *time.Duration `yaml:"scan_timeout"`
	ReadTimeout        *time.Duration `yaml:"read_timeout"`
	WatchDebounce      *time.Duration `yaml:"watch_debounce"`
	NATSURL            *string        `yaml:"nats_url"`
	NATSSubject        *string        `yaml:"nats_subject"`
	NATSMaxRate        *float64       `yaml:"nats_max_rate"`
}

// Default returns the configuration used for every unset field.
func Default() *Config {
	return &Config{
		LogLevel:           "warn",
		LocalSocket:        "/var/run/yarad/yarad.ctl",
		LocalSocketMode:    defaultSocketMode,
		RulesDir:           "/var/lib/yarad/rules",
		RuleEngine:         "yara",
		Transport:          "unix",
		WorkingDir:         "/var/run/yarad",
		User:               "yarad",
		AutoRecompileRules: true,
		PidFile:            "/var/run/yarad/yarad.pid",
		ScanTimeout:        60 * time.Second,
		ReadTimeout:        30 * time.Second,
		WatchDebounce:      250 * time.Millisecond,
		NATSSubject:        "yarad.detections",
		NATSMaxRate:        100,
	}
}

// Load reads path, applies defaults and environment overrides, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermission, path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document. An empty document yields the defaults.
func Parse(data []byte) (*Config, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ParseError{Err: err}
	}
	cfg := f.apply(Default())
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (f *file) apply(c *Config) *Config {
	setStr(&c.LogLevel, f.LogLevel)
	setStr(&c.LocalSocket, f.LocalSocket)
	setStr(&c.LocalSocketGroup, f.LocalSocketGroup)
	if f.LocalSocketMode != nil {
		c.LocalSocketMode = ParseMode(*f.LocalSocketMode)
	}
	setStr(&c.RulesDir, f.RulesDir)
	setStr(&c.RuleEngine, f.RuleEngine)
	if len(f.RuleExtensions) > 0 {
		c.RuleExtensions = normalizeExts(f.RuleExtensions)
	}
	setStr(&c.Transport, f.Transport)
	if f.TCPPort != nil {
		c.TCPPort = *f.TCPPort
		if c.TCPPort > 0 && f.Transport == nil {
			c.Transport = "tcp"
		}
	}
	setStr(&c.WorkingDir, f.WorkingDir)
	setStr(&c.User, f.User)
	if f.AutoRecompileRules != nil {
		c.AutoRecompileRules = *f.AutoRecompileRules
	}
	setStr(&c.PidFile, f.PidFile)
	setDur(&c.ScanTimeout, f.ScanTimeout)
	setDur(&c.ReadTimeout, f.ReadTimeout)
	setDur(&c.WatchDebounce, f.WatchDebounce)
	setStr(&c.NATSURL, f.NATSURL)
	setStr(&c.NATSSubject, f.NATSSubject)
	if f.NATSMaxRate != nil {
		c.NATSMaxRate = *f.NATSMaxRate
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	return c
}

func setStr(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDur(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, strings.ToLower(e))
	}
	return out
}

// ParseMode reads an octal permission string such as "666", "0666" or "0o666".
// Unparseable values fall back to 0o666.
func ParseMode(s string) os.FileMode {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0o"), "0O")
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil || v > 0o7777 {
		return defaultSocketMode
	}
	return os.FileMode(v)
}

func applyEnv(c *Config) {
	if v := os.Getenv("YARAD_RULES_DIR"); v != "" {
		c.RulesDir = v
	}
	if v := os.Getenv("YARAD_LOCAL_SOCKET"); v != "" {
		c.LocalSocket = v
	}
	if v := os.Getenv("YARAD_TCP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.TCPPort = p
			if p > 0 {
				c.Transport = "tcp"
			}
		}
	}
	if v := os.Getenv("YARAD_NATS_URL"); v != "" {
		c.NATSURL = v
	}
}

// Validate checks field ranges and names.
func (c *Config) Validate() error {
	var problems []string
	if !corelog.ValidLevel(c.LogLevel) {
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	switch c.RuleEngine {
	case "yara", "literal":
	default:
		problems = append(problems, fmt.Sprintf("rule_engine %q must be yara or literal", c.RuleEngine))
	}
	switch c.Transport {
	case "unix":
		if c.LocalSocket == "" {
			problems = append(problems, "local_socket must be set for the unix transport")
		}
	case "tcp":
		if c.TCPPort <= 0 {
			problems = append(problems, "tcp_port must be set for the tcp transport")
		}
	default:
		problems = append(problems, fmt.Sprintf("transport %q must be unix or tcp", c.Transport))
	}
	if c.TCPPort < 0 || c.TCPPort > 65535 {
		problems = append(problems, fmt.Sprintf("tcp_port %d out of range", c.TCPPort))
	}
	if c.RulesDir == "" {
		problems = append(problems, "rules_dir must be set")
	}
	if c.ScanTimeout <= 0 {
		problems = append(problems, "scan_timeout must be positive")
	}
	if c.ReadTimeout <= 0 {
		problems = append(problems, "read_timeout must be positive")
	}
	if c.WatchDebounce < 0 {
		problems = append(problems, "watch_debounce must not be negative")
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		problems = append(problems, "nats_subject must be set when nats_url is")
	}
	if c.NATSMaxRate <= 0 {
		problems = append(problems, "nats_max_rate must be positive")
	}
	if len(problems) > 0 {
		return &InvalidError{Problems: problems}
	}
	return nil
}
