package mortgage

import "math/big"

// Config captures the runtime configuration for the mortgage module.
type Config struct {
	MinimumPrincipalWei *big.Int `toml:"MinimumPrincipalWei"`
	PenaltyRateBps      uint64   `toml:"PenaltyRateBps"`
	RefinanceRateBps    uint64   `toml:"RefinanceRateBps"`
	GraceWindowSeconds  int64    `toml:"GraceWindowSeconds"`
	MaxMissedPayments   uint64   `toml:"MaxMissedPayments"`
}

// EnsureDefaults populates nil big.Int fields so TOML handling is safe.
func (c *Config) EnsureDefaults() {
	if c == nil {
		return
	}
	if c.MinimumPrincipalWei == nil {
		c.MinimumPrincipalWei = big.NewInt(0)
	}
}

// Clone returns a deep copy of the config.
func (c Config) Clone() Config {
	clone := c
	if c.MinimumPrincipalWei != nil {
		clone.MinimumPrincipalWei = new(big.Int).Set(c.MinimumPrincipalWei)
	}
	return clone
}
