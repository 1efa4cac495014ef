package config

import (
	"sync/atomic"
)

// Holder publishes the current Config snapshot. Readers call Current; a reload
// loads a candidate with Load and installs it with Set once it is known good.
type Holder struct {
	path string
	cur  atomic.Pointer[Config]
}

// NewHolder wraps an already loaded config. path may be empty, in which case
// Load returns the current snapshot unchanged.
func NewHolder(path string, cfg *Config) *Holder {
	h := &Holder{path: path}
	h.cur.Store(cfg)
	return h
}

// Open loads path and wraps it in a Holder.
func Open(path string) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewHolder(path, cfg), nil
}

func (h *Holder) Path() string { return h.path }

func (h *Holder) Current() *Config { return h.cur.Load() }

// Load re-reads the source file without installing the result.
func (h *Holder) Load() (*Config, error) {
	if h.path == "" {
		return h.Current(), nil
	}
	return Load(h.path)
}

// Set installs cfg as the current snapshot.
func (h *Holder) Set(cfg *Config) { h.cur.Store(cfg) }

// Refresh loads and installs in one step. On failure the current snapshot stays.
func (h *Holder) Refresh() (*Config, error) {
	cfg, err := h.Load()
	if err != nil {
		return nil, err
	}
	h.Set(cfg)
	return cfg, nil
}
