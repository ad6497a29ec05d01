// Package config loads the verdict configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oracular/verdict/internal/attest"
)

// DefaultPath is where commands look when --config is not given.
const DefaultPath = "verdict.yaml"

// Duration is a time.Duration that unmarshals from YAML strings like
// "100ms" or "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level configuration.
type Config struct {
	// LedgerPath is the SQLite ledger file.
	LedgerPath string `yaml:"ledger_path"`

	// Oracle is the oracle identity this node arbitrates for.
	Oracle string `yaml:"oracle"`

	// Identity is the address used for participant-side writes
	// (escrows, fulfillments, arbitration requests).
	Identity string `yaml:"identity"`

	Listen ListenConfig `yaml:"listen"`
	Submit SubmitConfig `yaml:"submit"`
}

// ListenConfig bounds the listen-and-arbitrate loop.
type ListenConfig struct {
	// Timeout is the default listen window, measured from entry into the
	// listening phase. Zero listens until cancelled.
	Timeout Duration `yaml:"timeout"`
}

// SubmitConfig bounds the decision submit retry loop.
type SubmitConfig struct {
	MaxRetries      uint64   `yaml:"max_retries"`
	InitialInterval Duration `yaml:"initial_interval"`
	MaxInterval     Duration `yaml:"max_interval"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LedgerPath: "verdict.db",
		Listen: ListenConfig{
			Timeout: 0,
		},
		Submit: SubmitConfig{
			MaxRetries:      4,
			InitialInterval: Duration(100 * time.Millisecond),
			MaxInterval:     Duration(2 * time.Second),
		},
	}
}

// Load reads a YAML config file, applying defaults for absent fields.
// A missing file at the default path is not an error; a missing file at
// an explicit path is.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) && path == DefaultPath {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger_path must not be empty")
	}
	if c.Oracle != "" {
		if _, err := attest.ParseAddress(c.Oracle); err != nil {
			return fmt.Errorf("oracle: %w", err)
		}
	}
	if c.Identity != "" {
		if _, err := attest.ParseAddress(c.Identity); err != nil {
			return fmt.Errorf("identity: %w", err)
		}
	}
	return nil
}

// OracleAddress parses the configured oracle identity.
func (c *Config) OracleAddress() (attest.Address, error) {
	if c.Oracle == "" {
		return attest.ZeroAddress, fmt.Errorf("no oracle address configured")
	}
	return attest.ParseAddress(c.Oracle)
}

// IdentityAddress parses the configured participant identity.
func (c *Config) IdentityAddress() (attest.Address, error) {
	if c.Identity == "" {
		return attest.ZeroAddress, fmt.Errorf("no identity address configured")
	}
	return attest.ParseAddress(c.Identity)
}
