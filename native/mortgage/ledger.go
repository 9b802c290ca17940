package mortgage

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

var (
	positionRecordPrefix = []byte("mortgage/position/")
	positionIndexKey     = []byte("mortgage/position/index")
)

// Storage abstracts the subset of state management the position ledger
// requires.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out *[][]byte) error
}

type storedPosition struct {
	ID                  [32]byte
	Collateral          string
	CollateralDecimals  uint8
	CollateralAmount    string
	CollateralConverted string
	RateBps             uint64
	PremiumBps          uint64
	Originated          uint64
	TermOriginated      uint64
	TermBalance         string
	AmountBorrowed      string
	AmountPrior         string
	TermPaid            string
	TermConverted       string
	AmountConverted     string
	PenaltyAccrued      string
	PenaltyPaid         string
	PaymentsMissed      uint64
	PeriodDuration      uint64
	TotalPeriods        uint64
	HasPaymentPlan      bool
	Status              uint8
}

// Ledger persists positions and owns the custody accounting for escrowed
// collateral. All state transitions flow through the lifecycle engine;
// the ledger only stores the results.
type Ledger struct {
	store Storage
}

// NewLedger constructs a position ledger bound to the provided storage.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

func positionKey(id [32]byte) []byte {
	encoded := hex.EncodeToString(id[:])
	buf := make([]byte, len(positionRecordPrefix)+len(encoded))
	copy(buf, positionRecordPrefix)
	copy(buf[len(positionRecordPrefix):], encoded)
	return buf
}

// Put persists the position, appending new identifiers to the index.
func (l *Ledger) Put(position *Position) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("position ledger not initialised")
	}
	if position == nil {
		return fmt.Errorf("position ledger: position must not be nil")
	}
	key := positionKey(position.ID)
	var existing storedPosition
	known, err := l.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	if err := l.store.KVPut(key, toStoredPosition(position)); err != nil {
		return err
	}
	if !known {
		encoded, err := rlp.EncodeToBytes(position.ID)
		if err != nil {
			return err
		}
		return l.store.KVAppend(positionIndexKey, encoded)
	}
	return nil
}

// Get retrieves a position by identifier.
func (l *Ledger) Get(id [32]byte) (*Position, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, fmt.Errorf("position ledger not initialised")
	}
	var stored storedPosition
	ok, err := l.store.KVGet(positionKey(id), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	position, err := fromStoredPosition(&stored)
	if err != nil {
		return nil, false, err
	}
	return position, true, nil
}

// GetPosition and PutPosition satisfy the settlement engine's state
// interface.
func (l *Ledger) GetPosition(id [32]byte) (*Position, bool, error) { return l.Get(id) }

func (l *Ledger) PutPosition(position *Position) error { return l.Put(position) }

// List returns every persisted position in index order.
func (l *Ledger) List() ([]*Position, error) {
	ids, err := l.index()
	if err != nil {
		return nil, err
	}
	positions := make([]*Position, 0, len(ids))
	for _, id := range ids {
		position, ok, err := l.Get(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		positions = append(positions, position)
	}
	return positions, nil
}

// Count reports the number of positions ever originated.
func (l *Ledger) Count() (int, error) {
	ids, err := l.index()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// CollateralLiability sums the escrowed collateral the ledger still custodies
// for the given collateral symbol across active positions. Operational
// tooling reconciles this against the custody account balance.
func (l *Ledger) CollateralLiability(collateral string) (*big.Int, error) {
	positions, err := l.List()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	symbol := strings.TrimSpace(collateral)
	for _, position := range positions {
		if position.Collateral != symbol || position.Status == StatusForeclosed {
			continue
		}
		if position.Status == StatusRedeemed {
			continue
		}
		total.Add(total, position.CollateralRemaining())
	}
	return total, nil
}

func (l *Ledger) index() ([][32]byte, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("position ledger not initialised")
	}
	var raw [][]byte
	if err := l.store.KVGetList(positionIndexKey, &raw); err != nil {
		return nil, err
	}
	ids := make([][32]byte, 0, len(raw))
	for _, encoded := range raw {
		if len(encoded) == 0 {
			continue
		}
		var id [32]byte
		if err := rlp.DecodeBytes(encoded, &id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toStoredPosition(p *Position) storedPosition {
	stored := storedPosition{}
	if p == nil {
		return stored
	}
	stored.ID = p.ID
	stored.Collateral = strings.TrimSpace(p.Collateral)
	stored.CollateralDecimals = p.CollateralDecimals
	stored.CollateralAmount = bigIntString(p.CollateralAmount)
	stored.CollateralConverted = bigIntString(p.CollateralConverted)
	stored.RateBps = p.RateBps
	stored.PremiumBps = p.PremiumBps
	if p.Originated > 0 {
		stored.Originated = uint64(p.Originated)
	}
	if p.TermOriginated > 0 {
		stored.TermOriginated = uint64(p.TermOriginated)
	}
	stored.TermBalance = bigIntString(p.TermBalance)
	stored.AmountBorrowed = bigIntString(p.AmountBorrowed)
	stored.AmountPrior = bigIntString(p.AmountPrior)
	stored.TermPaid = bigIntString(p.TermPaid)
	stored.TermConverted = bigIntString(p.TermConverted)
	stored.AmountConverted = bigIntString(p.AmountConverted)
	stored.PenaltyAccrued = bigIntString(p.PenaltyAccrued)
	stored.PenaltyPaid = bigIntString(p.PenaltyPaid)
	stored.PaymentsMissed = p.PaymentsMissed
	if p.PeriodDuration > 0 {
		stored.PeriodDuration = uint64(p.PeriodDuration)
	}
	stored.TotalPeriods = p.TotalPeriods
	stored.HasPaymentPlan = p.HasPaymentPlan
	stored.Status = uint8(p.Status)
	return stored
}

func fromStoredPosition(stored *storedPosition) (*Position, error) {
	if stored == nil {
		return nil, fmt.Errorf("position ledger: nil stored position")
	}
	position := &Position{
		ID:                 stored.ID,
		Collateral:         stored.Collateral,
		CollateralDecimals: stored.CollateralDecimals,
		RateBps:            stored.RateBps,
		PremiumBps:         stored.PremiumBps,
		Originated:         int64(stored.Originated),
		TermOriginated:     int64(stored.TermOriginated),
		PaymentsMissed:     stored.PaymentsMissed,
		PeriodDuration:     int64(stored.PeriodDuration),
		TotalPeriods:       stored.TotalPeriods,
		HasPaymentPlan:     stored.HasPaymentPlan,
		Status:             Status(stored.Status),
	}
	fields := []struct {
		raw string
		dst **big.Int
	}{
		{stored.CollateralAmount, &position.CollateralAmount},
		{stored.CollateralConverted, &position.CollateralConverted},
		{stored.TermBalance, &position.TermBalance},
		{stored.AmountBorrowed, &position.AmountBorrowed},
		{stored.AmountPrior, &position.AmountPrior},
		{stored.TermPaid, &position.TermPaid},
		{stored.TermConverted, &position.TermConverted},
		{stored.AmountConverted, &position.AmountConverted},
		{stored.PenaltyAccrued, &position.PenaltyAccrued},
		{stored.PenaltyPaid, &position.PenaltyPaid},
	}
	for _, field := range fields {
		value, err := parseBigInt(field.raw)
		if err != nil {
			return nil, err
		}
		*field.dst = value
	}
	return position, nil
}

func parseBigInt(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("position ledger: invalid amount %q", raw)
	}
	return value, nil
}
