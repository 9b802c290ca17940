package conversion

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"lienchain/core/events"
	"lienchain/crypto"
	nativecommon "lienchain/native/common"
	"lienchain/native/mortgage"
)

var (
	errNilState       = errors.New("conversion engine: state not configured")
	errNilPriceSource = errors.New("conversion engine: price source not configured")
	errNilVault       = errors.New("conversion engine: share vault not configured")
	errNilBank        = errors.New("conversion engine: fee bank not configured")
	errInvalidPrice   = errors.New("conversion engine: price source returned non-positive price")

	ErrZeroAmount          = errors.New("conversion: amount must be positive")
	ErrZeroSteps           = errors.New("conversion: step count must be positive")
	ErrPositionNotFound    = errors.New("conversion: position not found")
	ErrPositionNotEligible = errors.New("conversion: position not eligible for queueing")
	ErrCollateralMismatch  = errors.New("conversion: position collateral does not match queue")
)

const moduleName = "conversion"

// PositionState is the slice of the position ledger the settlement engine
// depends on. Conversion is the engine's only ledger effect.
type PositionState interface {
	GetPosition(id [32]byte) (*mortgage.Position, bool, error)
	PutPosition(position *mortgage.Position) error
}

// PriceSource returns the current market price of a collateral, normalized to
// the underlying unit per whole collateral token.
type PriceSource interface {
	CollateralPrice(symbol string) (*big.Int, error)
}

// ShareVault is the contract with the liability-token vault. The engine only
// moves share amounts through it and never defines share accounting.
type ShareVault interface {
	SharesForAmount(amount *big.Int) (*big.Int, error)
	Escrow(owner crypto.Address, shares *big.Int) error
	Redeem(owner crypto.Address, shares *big.Int, collateral string, collateralAmount *big.Int) error
}

// FeeBank escrows and pays out the keeper incentive fees.
type FeeBank interface {
	Debit(addr crypto.Address, amount *big.Int) error
	Credit(addr crypto.Address, amount *big.Int) error
}

// Engine owns the supply list and demand queue for a single collateral type
// and drives conversion settlement through the mortgage lifecycle engine.
type Engine struct {
	collateral  string
	lifecycle   *mortgage.Engine
	supply      *supplyList
	demand      []*WithdrawalRequest
	feeEscrow   *big.Int
	enqueueFee  *big.Int
	withdrawFee *big.Int
	graceWindow int64

	state   PositionState
	prices  PriceSource
	vault   ShareVault
	bank    FeeBank
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
	idFn    func() string
}

// NewEngine constructs a settlement engine for one collateral type.
func NewEngine(collateral string, lifecycle *mortgage.Engine) *Engine {
	return &Engine{
		collateral:  strings.TrimSpace(collateral),
		lifecycle:   lifecycle,
		supply:      newSupplyList(),
		feeEscrow:   big.NewInt(0),
		enqueueFee:  big.NewInt(0),
		withdrawFee: big.NewInt(0),
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
		idFn:        func() string { return uuid.NewString() },
	}
}

// Collateral returns the collateral symbol this queue serves.
func (e *Engine) Collateral() string { return e.collateral }

// SetState wires the engine to the position ledger.
func (e *Engine) SetState(state PositionState) { e.state = state }

// SetPriceSource wires the external price feed adapter.
func (e *Engine) SetPriceSource(prices PriceSource) { e.prices = prices }

// SetVault wires the liability-token vault.
func (e *Engine) SetVault(vault ShareVault) { e.vault = vault }

// SetFeeBank wires the account store used for incentive fee escrow.
func (e *Engine) SetFeeBank(bank FeeBank) { e.bank = bank }

// SetFees configures the fixed per-operation incentive fees escrowed when a
// position is enqueued or a withdrawal is requested.
func (e *Engine) SetFees(enqueueFee, withdrawFee *big.Int) {
	e.enqueueFee = cloneOrZero(enqueueFee)
	e.withdrawFee = cloneOrZero(withdrawFee)
}

// SetGraceWindow configures the grace window forwarded to lifecycle
// conversions.
func (e *Engine) SetGraceWindow(seconds int64) { e.graceWindow = seconds }

// SetPauses wires the module pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetIDFunc overrides withdrawal request identifier generation. Intended for
// tests.
func (e *Engine) SetIDFunc(idFn func() string) {
	if idFn == nil {
		e.idFn = func() string { return uuid.NewString() }
		return
	}
	e.idFn = idFn
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Enqueue validates the position and inserts it into the supply list at the
// point preserving ascending trigger-price order. The hint names the entry to
// insert after and makes insertion O(1) when still valid; a stale hint falls
// back to a bounded scan. The enqueue incentive is escrowed from payer.
func (e *Engine) Enqueue(payer crypto.Address, positionID [32]byte, hint [32]byte) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.state == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	if e.supply.contains(positionID) {
		return fmt.Errorf("%w (position %x)", errAlreadyQueued, positionID[:])
	}
	position, ok, err := e.state.GetPosition(positionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w (position %x)", ErrPositionNotFound, positionID[:])
	}
	if position.Status != mortgage.StatusActive || position.PrincipalRemaining().Sign() == 0 {
		return fmt.Errorf("%w (position %x)", ErrPositionNotEligible, positionID[:])
	}
	if position.Collateral != e.collateral {
		return fmt.Errorf("%w (position %x: %s != %s)", ErrCollateralMismatch, positionID[:], position.Collateral, e.collateral)
	}

	fee := cloneOrZero(e.enqueueFee)
	if fee.Sign() > 0 {
		if err := e.bank.Debit(payer, fee); err != nil {
			return err
		}
	}
	trigger := position.TriggerPrice()
	if err := e.supply.insert(positionID, trigger, fee, hint); err != nil {
		return err
	}
	e.feeEscrow = new(big.Int).Add(e.feeEscrow, fee)
	e.emit(newEnqueuedEvent(e.collateral, positionID, trigger))
	return nil
}

// RequestWithdrawal escrows the requester's liability-token shares equivalent
// to amount and appends the request to the demand queue.
func (e *Engine) RequestWithdrawal(requester crypto.Address, amount *big.Int) (*WithdrawalRequest, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.vault == nil {
		return nil, errNilVault
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	shares, err := e.vault.SharesForAmount(amount)
	if err != nil {
		return nil, err
	}
	// The fee is debited before the share escrow so a requester who cannot
	// cover it never leaves value stranded in the vault.
	fee := cloneOrZero(e.withdrawFee)
	if fee.Sign() > 0 {
		if err := e.bank.Debit(requester, fee); err != nil {
			return nil, err
		}
	}
	if err := e.vault.Escrow(requester, shares); err != nil {
		if fee.Sign() > 0 {
			if cerr := e.bank.Credit(requester, fee); cerr != nil {
				return nil, errors.Join(err, cerr)
			}
		}
		return nil, err
	}
	request := &WithdrawalRequest{
		ID:          e.idFn(),
		Requester:   requester,
		Shares:      shares,
		Amount:      new(big.Int).Set(amount),
		Filled:      big.NewInt(0),
		RequestedAt: e.nowFn(),
		GasFee:      fee,
	}
	e.demand = append(e.demand, request)
	e.feeEscrow = new(big.Int).Add(e.feeEscrow, fee)
	e.emit(newWithdrawalRequestedEvent(e.collateral, request))
	return request.Clone(), nil
}

type fill struct {
	requestID  string
	requester  crypto.Address
	positionID [32]byte
	principal  *big.Int
	collateral *big.Int
	shares     *big.Int
	settled    bool
}

type prune struct {
	positionID [32]byte
	refund     *big.Int
}

type processPlan struct {
	credits   uint64
	supply    *supplyList
	demand    []*WithdrawalRequest
	positions map[[32]byte]*mortgage.Position
	order     [][32]byte
	fills     []fill
	prunes    []prune
	payout    *big.Int
}

// simulate attempts up to maxSteps credits on cloned queue state, recording
// the resulting plan without touching the engine. Each credit touches the
// supply-list head exactly once: stale heads are garbage collected for one
// credit regardless of demand-queue state, a head merely below its trigger
// price stops the loop, and an eligible head converts against the demand
// head for one credit whether the fill is partial or full.
func (e *Engine) simulate(maxSteps uint64) (*processPlan, error) {
	plan := &processPlan{
		supply:    e.supply.clone(),
		demand:    cloneRequests(e.demand),
		positions: make(map[[32]byte]*mortgage.Position),
		payout:    big.NewInt(0),
	}
	var price *big.Int
	for plan.credits < maxSteps {
		node, ok := plan.supply.headEntry()
		if !ok {
			break
		}
		position := plan.positions[node.id]
		if position == nil {
			loaded, found, err := e.state.GetPosition(node.id)
			if err != nil {
				return nil, err
			}
			if found {
				position = loaded
			}
		}
		if position == nil || position.Status != mortgage.StatusActive || position.PrincipalRemaining().Sign() == 0 {
			// Stale entry: garbage collection is creditable on its own.
			if err := plan.supply.remove(node.id); err != nil {
				return nil, err
			}
			plan.prunes = append(plan.prunes, prune{positionID: node.id, refund: node.fee})
			plan.payout = new(big.Int).Add(plan.payout, node.fee)
			plan.credits++
			continue
		}
		if price == nil {
			fetched, err := e.prices.CollateralPrice(e.collateral)
			if err != nil {
				return nil, err
			}
			if fetched == nil || fetched.Sign() <= 0 {
				return nil, errInvalidPrice
			}
			price = fetched
		}
		if price.Cmp(node.trigger) < 0 {
			// Ordering guarantees no entry behind the head is more eligible.
			break
		}
		if len(plan.demand) == 0 {
			break
		}

		request := plan.demand[0]
		principal := minBig(request.Remaining(), position.PrincipalRemaining())
		collateralOut := collateralForPrincipal(principal, position.CollateralDecimals, price)
		if remaining := position.CollateralRemaining(); collateralOut.Cmp(remaining) > 0 {
			collateralOut = remaining
		}
		updated, err := e.lifecycle.Convert(position, principal, collateralOut, e.graceWindow)
		if err != nil {
			return nil, err
		}
		if _, seen := plan.positions[node.id]; !seen {
			plan.order = append(plan.order, node.id)
		}
		plan.positions[node.id] = updated

		sharesBefore := proportionalShares(request.Shares, request.Filled, request.Amount)
		request.Filled = new(big.Int).Add(request.Filled, principal)
		settled := request.Filled.Cmp(request.Amount) >= 0
		var sharesOut *big.Int
		if settled {
			sharesOut = new(big.Int).Sub(request.Shares, sharesBefore)
		} else {
			sharesAfter := proportionalShares(request.Shares, request.Filled, request.Amount)
			sharesOut = new(big.Int).Sub(sharesAfter, sharesBefore)
		}

		step := fill{
			requestID:  request.ID,
			requester:  request.Requester,
			positionID: node.id,
			principal:  principal,
			collateral: collateralOut,
			shares:     sharesOut,
			settled:    settled,
		}
		if settled {
			plan.demand = plan.demand[1:]
			plan.payout = new(big.Int).Add(plan.payout, request.GasFee)
		}
		if updated.PrincipalRemaining().Sign() == 0 {
			if err := plan.supply.remove(node.id); err != nil {
				return nil, err
			}
		}
		plan.fills = append(plan.fills, step)
		plan.credits++
	}
	return plan, nil
}

// Process spends exactly maxSteps credits of matching work and commits the
// result, or fails with a CapacityError and leaves every queue and position
// untouched. Incentive fees for settled requests and garbage-collected
// entries are paid to caller.
func (e *Engine) Process(caller crypto.Address, maxSteps uint64) (*Receipt, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.state == nil {
		return nil, errNilState
	}
	if e.prices == nil {
		return nil, errNilPriceSource
	}
	if e.vault == nil {
		return nil, errNilVault
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if maxSteps == 0 {
		return nil, ErrZeroSteps
	}

	plan, err := e.simulate(maxSteps)
	if err != nil {
		return nil, err
	}
	if plan.credits < maxSteps {
		return nil, &CapacityError{Requested: maxSteps, Deliverable: plan.credits}
	}

	// Every fallible collaborator call runs before the queue swap below, so a
	// failing vault, bank or ledger aborts with the queues and fee escrow
	// untouched.
	receipt := &Receipt{
		CreditsSpent:       plan.credits,
		PrincipalConverted: big.NewInt(0),
		CollateralOut:      big.NewInt(0),
		FeesPaid:           plan.payout,
		EntriesPruned:      uint64(len(plan.prunes)),
	}
	for _, step := range plan.fills {
		if err := e.vault.Redeem(step.requester, step.shares, e.collateral, step.collateral); err != nil {
			return nil, err
		}
		receipt.PrincipalConverted.Add(receipt.PrincipalConverted, step.principal)
		receipt.CollateralOut.Add(receipt.CollateralOut, step.collateral)
	}
	if plan.payout.Sign() > 0 {
		if err := e.bank.Credit(caller, plan.payout); err != nil {
			return nil, err
		}
	}
	for _, id := range plan.order {
		if err := e.state.PutPosition(plan.positions[id]); err != nil {
			return nil, err
		}
	}

	// Commit point: nothing below can fail.
	e.supply = plan.supply
	e.demand = plan.demand
	e.feeEscrow = new(big.Int).Sub(e.feeEscrow, plan.payout)
	for _, step := range plan.fills {
		e.emit(newFilledEvent(e.collateral, step))
		if step.settled {
			e.emit(newRequestSettledEvent(e.collateral, step.requestID))
		}
	}
	for _, pruned := range plan.prunes {
		e.emit(newEntryPrunedEvent(e.collateral, pruned.positionID))
	}
	return receipt, nil
}

// Deliverable reports how many credits a Process call could currently spend,
// up to limit. Callers use it to size requests after a CapacityError.
func (e *Engine) Deliverable(limit uint64) (uint64, error) {
	if e.state == nil {
		return 0, errNilState
	}
	if e.prices == nil {
		return 0, errNilPriceSource
	}
	plan, err := e.simulate(limit)
	if err != nil {
		return 0, err
	}
	return plan.credits, nil
}

// Receipt summarises the work performed by one Process call.
type Receipt struct {
	CreditsSpent       uint64
	PrincipalConverted *big.Int
	CollateralOut      *big.Int
	FeesPaid           *big.Int
	EntriesPruned      uint64
}

// SupplyLen reports the number of entries in the supply list.
func (e *Engine) SupplyLen() int { return e.supply.len() }

// DemandLen reports the number of pending withdrawal requests.
func (e *Engine) DemandLen() int { return len(e.demand) }

// SupplyEntries returns the supply list head to tail.
func (e *Engine) SupplyEntries() []SupplyEntry { return e.supply.entries() }

// DemandRequests returns the demand queue in FIFO order.
func (e *Engine) DemandRequests() []*WithdrawalRequest { return cloneRequests(e.demand) }

// FeeEscrow reports the incentive fees currently escrowed by the queue.
func (e *Engine) FeeEscrow() *big.Int { return new(big.Int).Set(e.feeEscrow) }

func collateralForPrincipal(principal *big.Int, decimals uint8, price *big.Int) *big.Int {
	if principal == nil || principal.Sign() <= 0 || price == nil || price.Sign() <= 0 {
		return big.NewInt(0)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	out := new(big.Int).Mul(principal, scale)
	return out.Quo(out, price)
}

func proportionalShares(shares, filled, amount *big.Int) *big.Int {
	if shares == nil || filled == nil || filled.Sign() <= 0 || amount == nil || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(shares, filled)
	return out.Quo(out, amount)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
