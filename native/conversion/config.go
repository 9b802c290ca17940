package conversion

import "math/big"

// Config captures the runtime configuration for one settlement queue.
type Config struct {
	Collateral         string   `toml:"Collateral"`
	EnqueueFeeWei      *big.Int `toml:"EnqueueFeeWei"`
	WithdrawalFeeWei   *big.Int `toml:"WithdrawalFeeWei"`
	GraceWindowSeconds int64    `toml:"GraceWindowSeconds"`
	// StaticPriceWei pins the collateral price for development networks that
	// run without an external feed adapter.
	StaticPriceWei *big.Int `toml:"StaticPriceWei"`
}

// EnsureDefaults populates nil big.Int fields so TOML handling is safe.
func (c *Config) EnsureDefaults() {
	if c == nil {
		return
	}
	if c.EnqueueFeeWei == nil {
		c.EnqueueFeeWei = big.NewInt(0)
	}
	if c.WithdrawalFeeWei == nil {
		c.WithdrawalFeeWei = big.NewInt(0)
	}
}
