// Package config
// Author: momentics <momentics@gmail.com>
//
// YAML configuration for the sockwire command. A missing file yields the
// defaults; keys present in the file override them individually.

package config

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/momentics/sockwire/internal/logging"
	"github.com/momentics/sockwire/resolver"
	"github.com/momentics/sockwire/sockstream"
	"github.com/momentics/sockwire/transport/tcp"
)

// Config is the whole configuration file.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Listen   ListenConfig   `yaml:"listen"`
	Resolver ResolverConfig `yaml:"resolver"`
	Stream   StreamConfig   `yaml:"stream"`
	Retry    RetryConfig    `yaml:"retry"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

type ListenConfig struct {
	Address   string `yaml:"address"`
	Interface string `yaml:"interface"`
	Port      uint16 `yaml:"port"`
	Backlog   int    `yaml:"backlog"`
	MaxConns  int    `yaml:"max_conns"`
}

// ResolverConfig selects name resolution. An empty DNSServer uses the
// system resolver.
type ResolverConfig struct {
	DNSServer string        `yaml:"dns_server"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type StreamConfig struct {
	Putback    int `yaml:"putback"`
	BufferSize int `yaml:"buffer_size"`
}

// RetryConfig is the reconnect schedule used by clients. Attempts 0
// means forever.
type RetryConfig struct {
	Interval time.Duration `yaml:"interval"`
	Attempts int           `yaml:"attempts"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "warn", Format: "text"},
		Listen: ListenConfig{
			Backlog: 4,
		},
		Resolver: ResolverConfig{
			Timeout:  5 * time.Second,
			CacheTTL: time.Minute,
		},
		Stream: StreamConfig{
			Putback:    sockstream.DefaultPutback,
			BufferSize: sockstream.DefaultSize,
		},
		Retry: RetryConfig{Interval: 5 * time.Second},
	}
}

// DefaultPath returns ~/.sockwire/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".sockwire", "config.yaml")
	}
	return filepath.Join(home, ".sockwire", "config.yaml")
}

// Load reads the configuration at path. If the file does not exist, it
// returns Default() with no error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	if c.Listen.Address != "" {
		if _, err := netip.ParseAddr(c.Listen.Address); err != nil {
			return fmt.Errorf("listen.address: %w", err)
		}
	}
	if c.Stream.Putback < 1 {
		return fmt.Errorf("stream.putback must be at least 1, got %d", c.Stream.Putback)
	}
	if c.Stream.BufferSize < 1 {
		return fmt.Errorf("stream.buffer_size must be at least 1, got %d", c.Stream.BufferSize)
	}
	if c.Retry.Interval < 0 {
		return fmt.Errorf("retry.interval must not be negative")
	}
	return nil
}

// Logging converts the log section for logging.Init.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, File: c.Log.File, Format: c.Log.Format}
}

// TCPListen converts the listen section; port overrides the file when
// non-zero.
func (c *Config) TCPListen(port uint16) tcp.ListenConfig {
	lc := tcp.ListenConfig{
		Interface: c.Listen.Interface,
		Port:      c.Listen.Port,
		Backlog:   c.Listen.Backlog,
		MaxConns:  c.Listen.MaxConns,
	}
	if addr, err := netip.ParseAddr(c.Listen.Address); err == nil {
		lc.Address = addr
	}
	if port != 0 {
		lc.Port = port
	}
	return lc
}

// NewResolver builds the configured resolver.
func (c *Config) NewResolver() resolver.Resolver {
	if c.Resolver.DNSServer == "" {
		return resolver.Default
	}
	server := c.Resolver.DNSServer
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	opts := resolver.DefaultDNSOptions(server)
	opts.Timeout = c.Resolver.Timeout
	opts.CacheTTL = c.Resolver.CacheTTL
	return resolver.NewDNS(opts)
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() tcp.RetryPolicy {
	return tcp.RetryPolicy{Interval: c.Retry.Interval, Attempts: c.Retry.Attempts}
}
