package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"lienchain/native/conversion"
	"lienchain/native/mortgage"
)

// Config is the node-level configuration loaded at startup.
type Config struct {
	ListenAddress string              `toml:"ListenAddress"`
	DataDir       string              `toml:"DataDir"`
	NetworkName   string              `toml:"NetworkName"`
	Environment   string              `toml:"Environment"`
	Mortgage      mortgage.Config     `toml:"mortgage"`
	Queues        []conversion.Config `toml:"queues"`
}

// Load reads the configuration from the given path, applying defaults for
// optional fields.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file %s not found", path)
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown keys: %v", path, undecoded)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8645"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./lien-data"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "lien-local"
	}
	c.Mortgage.EnsureDefaults()
	for i := range c.Queues {
		c.Queues[i].EnsureDefaults()
	}
}

// Validate rejects configurations that cannot be wired into a working node.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Queues))
	for _, queue := range c.Queues {
		symbol := strings.TrimSpace(queue.Collateral)
		if symbol == "" {
			return fmt.Errorf("config: queue collateral symbol required")
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: duplicate queue for collateral %s", symbol)
		}
		seen[symbol] = struct{}{}
	}
	return nil
}
