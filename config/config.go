// Package config loads bftnode's on-disk configuration, following the
// teacher's config.Load: decode if the file exists, write a generated
// default (with a fresh validator key) on first run.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bftlabs/bftcore/crypto"
)

// Config is a running bftnode's on-disk configuration. Interval is stored as
// a human duration string ("3s") and parsed with time.ParseDuration, matching
// cmd/consensusd's durationFlag in the teacher lineage.
type Config struct {
	DataDir      string   `toml:"DataDir"`
	ListenAddr   string   `toml:"ListenAddress"`
	ValidatorKey string   `toml:"ValidatorKey"`
	Interval     string   `toml:"Interval"`
	Authorities  []string `toml:"Authorities"`
}

// IntervalDuration parses Interval, returning fallback when it is empty or
// unparsable.
func (c *Config) IntervalDuration(fallback time.Duration) time.Duration {
	if c.Interval == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return fallback
	}
	return d
}

// Load reads path, creating a default config (with a freshly generated
// validator key) if it does not yet exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.ValidatorKey == "" {
		if err := assignKey(cfg); err != nil {
			return nil, err
		}
		if err := writeOver(path, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:    "./bftnode-data",
		ListenAddr: ":26656",
		Interval:   "3s",
	}
	if err := assignKey(cfg); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode default: %w", err)
	}
	return cfg, nil
}

func assignKey(cfg *Config) error {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("config: generate validator key: %w", err)
	}
	cfg.ValidatorKey = hex.EncodeToString(key.Bytes())
	return nil
}

func writeOver(path string, cfg *Config) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("config: reopen %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("config: re-encode %s: %w", path, err)
	}
	return nil
}
