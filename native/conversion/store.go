package conversion

import (
	"fmt"
	"math/big"
	"strings"

	"lienchain/crypto"
	"lienchain/native/mortgage"
)

var queueStatePrefix = []byte("conversion/queue/")

type storedSupplyEntry struct {
	PositionID [32]byte
	Trigger    string
	Fee        string
}

type storedRequest struct {
	ID          string
	Requester   []byte
	Prefix      string
	Shares      string
	Amount      string
	Filled      string
	RequestedAt uint64
	GasFee      string
}

type storedQueue struct {
	Supply    []storedSupplyEntry
	Demand    []storedRequest
	FeeEscrow string
}

func queueKey(collateral string) []byte {
	trimmed := strings.TrimSpace(collateral)
	buf := make([]byte, len(queueStatePrefix)+len(trimmed))
	copy(buf, queueStatePrefix)
	copy(buf[len(queueStatePrefix):], trimmed)
	return buf
}

// Save snapshots the queue contents so the next call after a restart observes
// exactly the state this call left behind.
func (e *Engine) Save(store mortgage.Storage) error {
	if e == nil || store == nil {
		return fmt.Errorf("conversion engine: storage not configured")
	}
	snapshot := storedQueue{FeeEscrow: e.feeEscrow.String()}
	for _, entry := range e.supply.entries() {
		snapshot.Supply = append(snapshot.Supply, storedSupplyEntry{
			PositionID: entry.PositionID,
			Trigger:    entry.TriggerPrice.String(),
			Fee:        entry.Fee.String(),
		})
	}
	for _, request := range e.demand {
		snapshot.Demand = append(snapshot.Demand, storedRequest{
			ID:          request.ID,
			Requester:   append([]byte(nil), request.Requester.Bytes()...),
			Prefix:      string(request.Requester.Prefix()),
			Shares:      request.Shares.String(),
			Amount:      request.Amount.String(),
			Filled:      request.Filled.String(),
			RequestedAt: uint64(request.RequestedAt),
			GasFee:      request.GasFee.String(),
		})
	}
	return store.KVPut(queueKey(e.collateral), snapshot)
}

// Load restores the queue contents from a snapshot. Supply entries were
// persisted head to tail, so reinserting in order keeps every insert O(1).
func (e *Engine) Load(store mortgage.Storage) error {
	if e == nil || store == nil {
		return fmt.Errorf("conversion engine: storage not configured")
	}
	var snapshot storedQueue
	ok, err := store.KVGet(queueKey(e.collateral), &snapshot)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	supply := newSupplyList()
	var hint [32]byte
	for _, entry := range snapshot.Supply {
		trigger, err := parseStoredAmount(entry.Trigger)
		if err != nil {
			return err
		}
		fee, err := parseStoredAmount(entry.Fee)
		if err != nil {
			return err
		}
		if err := supply.insert(entry.PositionID, trigger, fee, hint); err != nil {
			return err
		}
		hint = entry.PositionID
	}
	demand := make([]*WithdrawalRequest, 0, len(snapshot.Demand))
	for _, stored := range snapshot.Demand {
		shares, err := parseStoredAmount(stored.Shares)
		if err != nil {
			return err
		}
		amount, err := parseStoredAmount(stored.Amount)
		if err != nil {
			return err
		}
		filled, err := parseStoredAmount(stored.Filled)
		if err != nil {
			return err
		}
		gasFee, err := parseStoredAmount(stored.GasFee)
		if err != nil {
			return err
		}
		demand = append(demand, &WithdrawalRequest{
			ID:          stored.ID,
			Requester:   crypto.NewAddress(crypto.AddressPrefix(stored.Prefix), stored.Requester),
			Shares:      shares,
			Amount:      amount,
			Filled:      filled,
			RequestedAt: int64(stored.RequestedAt),
			GasFee:      gasFee,
		})
	}
	escrow, err := parseStoredAmount(snapshot.FeeEscrow)
	if err != nil {
		return err
	}
	e.supply = supply
	e.demand = demand
	e.feeEscrow = escrow
	return nil
}

func parseStoredAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("conversion engine: invalid stored amount %q", raw)
	}
	return value, nil
}
