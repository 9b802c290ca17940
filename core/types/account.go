package types

import "math/big"

// Account captures the balances tracked for a protocol participant. Balance is
// denominated in the underlying debt unit; NoteShares counts liability-token
// vault shares held outside of escrow.
type Account struct {
	Nonce      uint64   `json:"nonce"`
	Balance    *big.Int `json:"balance"`
	NoteShares *big.Int `json:"noteShares"`
}

// EnsureDefaults populates nil balance fields so serialization is safe.
func (a *Account) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
	if a.NoteShares == nil {
		a.NoteShares = big.NewInt(0)
	}
}
