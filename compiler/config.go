package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/vecsync/flat"
	"github.com/gogpu/vecsync/lower"
)

// Config is the file form of a producer session's settings.
type Config struct {
	// Workers bounds concurrent page lowering (default: GOMAXPROCS).
	Workers int `yaml:"workers"`

	// History is how many emitted but unacknowledged generations can
	// still be acknowledged (default: 8).
	History int `yaml:"history"`

	// Queue is the actor's edit buffer (default: 16).
	Queue int `yaml:"queue"`

	// Trusted skips fingerprint verification when decoding buffers this
	// session produced itself.
	Trusted bool `yaml:"trusted"`

	// Compress makes the CLI write xz-compressed artifacts.
	Compress bool `yaml:"compress"`
}

const (
	defaultHistory = 8
	defaultQueue   = 16
)

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.History <= 0 {
		c.History = defaultHistory
	}
	if c.Queue <= 0 {
		c.Queue = defaultQueue
	}
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() *Config {
	c := &Config{}
	c.defaults()
	return c
}

// LoadConfigFile reads a YAML configuration file. Unknown keys are an
// error.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration. Empty input yields the defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("compiler: config: %w", err)
	}
	cfg.defaults()
	return &cfg, nil
}

// LowerOptions returns the lowering options c implies.
func (c *Config) LowerOptions() []lower.Option {
	return []lower.Option{lower.WithWorkers(c.Workers)}
}

// DecodeOptions returns the flat decoder options c implies.
func (c *Config) DecodeOptions() []flat.Option {
	if c.Trusted {
		return []flat.Option{flat.WithoutVerify()}
	}
	return nil
}

// Options returns the compiler options c implies.
func (c *Config) Options() []Option {
	return []Option{WithHistory(c.History)}
}
