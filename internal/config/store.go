package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotInitialized is returned by Load when no config file exists yet.
var ErrNotInitialized = errors.New("swiftly is not initialized")

// Store reads and writes the config file. It keeps no state between calls:
// every Load reads the file afresh.
type Store struct {
	Path string
}

// NewStore returns a store backed by path.
func NewStore(path string) Store {
	return Store{Path: path}
}

// Exists reports whether the config file is present.
func (s Store) Exists() (bool, error) {
	_, err := os.Stat(s.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat config: %w", err)
}

// Load reads the config file.
func (s Store) Load() (Config, error) {
	contents, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s missing (run `swiftly init`)", ErrNotInitialized, s.Path)
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{}
	if err := json.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config %s: %w", s.Path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", s.Path, err)
	}
	return cfg, nil
}

// Init writes a fresh config for platform unless one already exists, and
// returns the config in effect.
func (s Store) Init(platform PlatformDefinition) (Config, bool, error) {
	exists, err := s.Exists()
	if err != nil {
		return Config{}, false, err
	}
	if exists {
		cfg, err := s.Load()
		return cfg, false, err
	}
	cfg := New(platform)
	if err := s.Save(cfg); err != nil {
		return Config{}, false, err
	}
	return cfg, true, nil
}

// Save validates cfg and replaces the config file atomically.
func (s Store) Save(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("prepare config directory: %w", err)
	}

	buf, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	buf = append(buf, '\n')

	return writeAtomic(s.Path, "config-*.json", buf)
}

// writeAtomic replaces path with buf through a synced sibling temp file.
func writeAtomic(path, pattern string, buf []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), pattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Mutate loads the current config, applies fn and saves the result. When
// fn or validation fails nothing is written.
func (s Store) Mutate(fn func(*Config) error) (Config, error) {
	cfg, err := s.Load()
	if err != nil {
		return Config{}, err
	}
	if err := fn(&cfg); err != nil {
		return Config{}, err
	}
	if err := s.Save(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
