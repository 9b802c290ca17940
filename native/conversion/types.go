package conversion

import (
	"fmt"
	"math/big"

	"lienchain/crypto"
)

// WithdrawalRequest is one pending redemption against the liability token.
// Requests are consumed strictly in FIFO order; partial fills leave the
// request at the head of the queue.
type WithdrawalRequest struct {
	// ID is the identifier assigned at request time.
	ID string
	// Requester receives converted collateral as the request fills.
	Requester crypto.Address
	// Shares is the liability-token share balance escrowed for the request.
	Shares *big.Int
	// Amount is the requested withdrawal denominated in the underlying unit.
	Amount *big.Int
	// Filled accumulates the principal converted toward the request so far.
	Filled *big.Int
	// RequestedAt is the unix timestamp the request was enqueued.
	RequestedAt int64
	// GasFee is the processor incentive escrowed when the request was
	// submitted, paid out to whichever account settles it.
	GasFee *big.Int
}

// Remaining returns the unfilled portion of the request.
func (r *WithdrawalRequest) Remaining() *big.Int {
	if r == nil || r.Amount == nil {
		return big.NewInt(0)
	}
	remaining := new(big.Int).Set(r.Amount)
	if r.Filled != nil {
		remaining.Sub(remaining, r.Filled)
	}
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// Clone returns a deep copy of the request.
func (r *WithdrawalRequest) Clone() *WithdrawalRequest {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Shares != nil {
		clone.Shares = new(big.Int).Set(r.Shares)
	}
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	}
	if r.Filled != nil {
		clone.Filled = new(big.Int).Set(r.Filled)
	}
	if r.GasFee != nil {
		clone.GasFee = new(big.Int).Set(r.GasFee)
	}
	return &clone
}

// SupplyEntry is the read-model view of one supply-list node, exposed for
// operational tooling and tests.
type SupplyEntry struct {
	PositionID   [32]byte
	TriggerPrice *big.Int
	Fee          *big.Int
}

// CapacityError reports a process call that could not deliver the requested
// number of credits. No state changes persisted.
type CapacityError struct {
	Requested   uint64
	Deliverable uint64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("conversion: insufficient withdrawal capacity: requested %d credits, deliverable %d", e.Requested, e.Deliverable)
}
