package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	logx "cronboss/pkg/logx"
)

// Manager loads the config file, layers the environment on top and keeps
// the last valid result.
type Manager struct {
	path   string
	lookup func(string) (string, bool)

	mu  sync.RWMutex
	cfg *Config

	log logx.Logger
}

// NewManager reads path (JSON, or YAML by extension). An empty path means
// defaults plus environment only.
func NewManager(path string) *Manager {
	return &Manager{path: path, lookup: os.LookupEnv}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetLookup replaces the environment source.
func (m *Manager) SetLookup(fn func(string) (string, bool)) {
	if fn != nil {
		m.lookup = fn
	}
}

func (m *Manager) Path() string { return m.path }

// Parse decodes the file over the defaults. Unknown keys and trailing data
// are rejected.
func (m *Manager) Parse() (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(m.path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, format := b, "json"
	if isYAML(m.path) {
		format = "yaml"
		if jb, err = yamlToJSON(b); err != nil {
			return nil, fmt.Errorf("%s: %w", m.path, err)
		}
	}
	if len(bytes.TrimSpace(jb)) == 0 || bytes.Equal(bytes.TrimSpace(jb), []byte("null")) {
		return cfg, nil
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s (%s): %w", m.path, format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return cfg, nil
}

// Load parses, applies environment overrides, validates and commits.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	applied, err := ApplyEnv(cfg, m.lookup)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !m.log.IsZero() && len(applied) > 0 {
		m.log.Debug("environment overrides applied", logx.Strings("keys", applied))
	}
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}
