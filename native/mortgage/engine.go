package mortgage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"lienchain/core/events"
	nativecommon "lienchain/native/common"
)

// Named failure conditions surfaced by the lifecycle engine. Callers recover
// by adjusting inputs; the engine never retries internally.
var (
	ErrZeroAmount            = errors.New("mortgage: amount must be positive")
	ErrCannotPartialPrepay   = errors.New("mortgage: position without payment plan cannot be partially prepaid")
	ErrUnpaidPenalties       = errors.New("mortgage: outstanding penalties must be settled first")
	ErrUnpaidPayments        = errors.New("mortgage: term balance not fully paid")
	ErrMissedPayments        = errors.New("mortgage: missed payments must be cleared first")
	ErrNotForeclosable       = errors.New("mortgage: position not eligible for foreclosure")
	ErrCannotOverConvert     = errors.New("mortgage: conversion exceeds remaining principal or collateral")
	ErrCannotOverpayPenalty  = errors.New("mortgage: no outstanding penalty to pay")
	ErrPrincipalBelowMinimum = errors.New("mortgage: principal below protocol minimum")
	ErrPositionNotActive     = errors.New("mortgage: position is not active")
	ErrInvalidSchedule       = errors.New("mortgage: schedule requires at least one period")
)

const moduleName = "mortgage"

// Engine implements the pure state transitions of the mortgage lifecycle.
// Every operation clones the input position and returns the updated clone;
// on failure the input is untouched, so callers observe fail-atomic
// semantics.
type Engine struct {
	minimumPrincipal *big.Int
	emitter          events.Emitter
	pauses           nativecommon.PauseView
	nowFn            func() int64
	idFn             func() [32]byte
}

// NewEngine constructs a lifecycle engine with the protocol principal floor.
func NewEngine(minimumPrincipal *big.Int) *Engine {
	return &Engine{
		minimumPrincipal: cloneBigInt(minimumPrincipal),
		emitter:          events.NoopEmitter{},
		nowFn:            func() int64 { return time.Now().Unix() },
		idFn:             randomPositionID,
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause switches consulted before mutations.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source. Intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetIDFunc overrides position identifier generation. Intended for tests.
func (e *Engine) SetIDFunc(idFn func() [32]byte) {
	if idFn == nil {
		e.idFn = randomPositionID
		return
	}
	e.idFn = idFn
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func randomPositionID() [32]byte {
	var id [32]byte
	if _, err := rand.Read(id[:]); err != nil {
		panic(err)
	}
	return id
}

// CreatePosition originates a new active position. The per-period payment is
// computed first and the term balance is its exact multiple, so the balance
// always divides evenly over the schedule.
func (e *Engine) CreatePosition(collateral string, collateralDecimals uint8, collateralAmount, principal *big.Int, rateBps uint64, premiumBps uint64, periodDuration int64, totalPeriods uint64, hasPaymentPlan bool) (*Position, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if principal == nil || principal.Sign() <= 0 || collateralAmount == nil || collateralAmount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if totalPeriods == 0 || periodDuration <= 0 {
		return nil, ErrInvalidSchedule
	}
	if e.minimumPrincipal != nil && principal.Cmp(e.minimumPrincipal) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrPrincipalBelowMinimum, principal, e.minimumPrincipal)
	}

	_, termBalance := termSchedule(principal, rateBps, totalPeriods)
	now := e.now()
	position := &Position{
		ID:                  e.idFn(),
		Collateral:          collateral,
		CollateralDecimals:  collateralDecimals,
		CollateralAmount:    new(big.Int).Set(collateralAmount),
		CollateralConverted: big.NewInt(0),
		RateBps:             rateBps,
		PremiumBps:          premiumBps,
		Originated:          now,
		TermOriginated:      now,
		TermBalance:         termBalance,
		AmountBorrowed:      new(big.Int).Set(principal),
		AmountPrior:         big.NewInt(0),
		TermPaid:            big.NewInt(0),
		TermConverted:       big.NewInt(0),
		AmountConverted:     big.NewInt(0),
		PenaltyAccrued:      big.NewInt(0),
		PenaltyPaid:         big.NewInt(0),
		PeriodDuration:      periodDuration,
		TotalPeriods:        totalPeriods,
		HasPaymentPlan:      hasPaymentPlan,
		Status:              StatusActive,
	}
	e.emit(newPositionEvent(EventTypePositionCreated, position))
	return position, nil
}

// Pay applies amount to the current term balance. The principal portion
// retired by the applied payment and any refund of excess are returned.
func (e *Engine) Pay(position *Position, amount *big.Int, graceWindow int64) (*Position, *big.Int, *big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, nil, err
	}
	if position == nil || position.Status != StatusActive {
		return nil, nil, nil, positionError(ErrPositionNotActive, position)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, nil, positionError(ErrZeroAmount, position)
	}
	if position.PenaltyOutstanding().Sign() > 0 {
		return nil, nil, nil, positionError(ErrUnpaidPenalties, position)
	}
	remaining := position.TermRemaining()
	if !position.HasPaymentPlan && amount.Cmp(remaining) < 0 {
		return nil, nil, nil, positionError(ErrCannotPartialPrepay, position)
	}

	updated := position.Clone()
	updated.EnsureDefaults()

	applied := minBigInt(amount, remaining)
	refund := new(big.Int).Sub(amount, applied)

	retiredBefore := principalFromPayment(updated.TermSettled(), updated.RateBps)
	updated.TermPaid = new(big.Int).Add(updated.TermPaid, applied)
	retiredAfter := principalFromPayment(updated.TermSettled(), updated.RateBps)
	principalPaid := new(big.Int).Sub(retiredAfter, retiredBefore)
	if principalPaid.Sign() < 0 {
		principalPaid = big.NewInt(0)
	}

	updated.reconcileMissed(e.now(), graceWindow)
	e.emit(newPositionEvent(EventTypePositionPaid, updated))
	return updated, principalPaid, refund, nil
}

// ApplyPenalties accrues penalties for payments newly past due since the last
// accrual. It is idempotent within the same elapsed window, and a fully paid
// term never accrues further penalty.
func (e *Engine) ApplyPenalties(position *Position, graceWindow int64, penaltyRateBps uint64) (*Position, *big.Int, uint64, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, 0, err
	}
	if position == nil || position.Status != StatusActive {
		return nil, nil, 0, positionError(ErrPositionNotActive, position)
	}

	updated := position.Clone()
	updated.EnsureDefaults()

	if updated.TermRemaining().Sign() == 0 {
		return updated, big.NewInt(0), 0, nil
	}

	elapsed := updated.PeriodsElapsed(e.now(), graceWindow)
	paid := updated.PeriodsPaid()
	missedNow := uint64(0)
	if elapsed > paid {
		missedNow = elapsed - paid
	}
	var additional uint64
	if missedNow > updated.PaymentsMissed {
		additional = missedNow - updated.PaymentsMissed
		updated.PaymentsMissed = missedNow
	}
	penalty := big.NewInt(0)
	if additional > 0 {
		base := new(big.Int).Mul(updated.PerPeriodPayment(), new(big.Int).SetUint64(additional))
		penalty = mulDivCeil(base, new(big.Int).SetUint64(penaltyRateBps), basisPoints)
		updated.PenaltyAccrued = new(big.Int).Add(updated.PenaltyAccrued, penalty)
		e.emit(newPenaltyEvent(updated, penalty, additional))
	}
	return updated, penalty, additional, nil
}

// PayPenalty settles outstanding penalties up to amount, refunding any
// excess.
func (e *Engine) PayPenalty(position *Position, amount *big.Int) (*Position, *big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if position == nil || position.Status != StatusActive {
		return nil, nil, positionError(ErrPositionNotActive, position)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, positionError(ErrZeroAmount, position)
	}
	outstanding := position.PenaltyOutstanding()
	if outstanding.Sign() == 0 {
		return nil, nil, positionError(ErrCannotOverpayPenalty, position)
	}

	updated := position.Clone()
	updated.EnsureDefaults()
	applied := minBigInt(amount, outstanding)
	refund := new(big.Int).Sub(amount, applied)
	updated.PenaltyPaid = new(big.Int).Add(updated.PenaltyPaid, applied)
	e.emit(newPositionEvent(EventTypePenaltyPaid, updated))
	return updated, refund, nil
}

// Redeem retires a fully settled position. The ownership certificate is
// burned by the orchestration layer once the status flips.
func (e *Engine) Redeem(position *Position) (*Position, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if position == nil || position.Status != StatusActive {
		return nil, positionError(ErrPositionNotActive, position)
	}
	if position.PenaltyOutstanding().Sign() > 0 {
		return nil, positionError(ErrUnpaidPenalties, position)
	}
	if position.TermRemaining().Sign() > 0 {
		return nil, positionError(ErrUnpaidPayments, position)
	}
	updated := position.Clone()
	updated.Status = StatusRedeemed
	e.emit(newPositionEvent(EventTypePositionRedeemed, updated))
	return updated, nil
}

// Refinance restarts the term over the remaining principal at a new rate and
// schedule. The refinance fee is charged and settled atomically as a
// condition of the operation and is returned for downstream collection.
func (e *Engine) Refinance(position *Position, refinanceRateBps, newRateBps, newTotalPeriods uint64) (*Position, *big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if position == nil || position.Status != StatusActive {
		return nil, nil, positionError(ErrPositionNotActive, position)
	}
	if position.PenaltyOutstanding().Sign() > 0 {
		return nil, nil, positionError(ErrUnpaidPenalties, position)
	}
	if position.PaymentsMissed > 0 {
		return nil, nil, positionError(ErrMissedPayments, position)
	}
	if newTotalPeriods == 0 {
		return nil, nil, positionError(ErrInvalidSchedule, position)
	}
	principal := position.PrincipalRemaining()
	if principal.Sign() == 0 {
		return nil, nil, positionError(ErrZeroAmount, position)
	}

	fee := mulDivCeil(principal, new(big.Int).SetUint64(refinanceRateBps), basisPoints)

	updated := position.Clone()
	updated.EnsureDefaults()
	updated.PenaltyAccrued = new(big.Int).Add(updated.PenaltyAccrued, fee)
	updated.PenaltyPaid = new(big.Int).Add(updated.PenaltyPaid, fee)
	updated.AmountPrior = new(big.Int).Sub(updated.AmountBorrowed, principal)
	updated.RateBps = newRateBps
	updated.TotalPeriods = newTotalPeriods
	updated.TermPaid = big.NewInt(0)
	updated.TermConverted = big.NewInt(0)
	updated.TermOriginated = e.now()
	_, updated.TermBalance = termSchedule(principal, newRateBps, newTotalPeriods)
	e.emit(newPositionEvent(EventTypePositionRefinanced, updated))
	return updated, fee, nil
}

// Foreclose flips a delinquent position into the terminal foreclosed status.
func (e *Engine) Foreclose(position *Position, maxMissedPayments uint64) (*Position, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if position == nil || position.Status != StatusActive {
		return nil, positionError(ErrPositionNotActive, position)
	}
	if position.PaymentsMissed <= maxMissedPayments {
		return nil, positionError(ErrNotForeclosable, position)
	}
	updated := position.Clone()
	updated.Status = StatusForeclosed
	e.emit(newPositionEvent(EventTypePositionForeclosed, updated))
	return updated, nil
}

// Convert settles principalConverting against collateralConverting released
// from escrow. The term balance and schedule are left intact so periods-paid
// accounting stays consistent; the settled portion is carried in
// TermConverted.
func (e *Engine) Convert(position *Position, principalConverting, collateralConverting *big.Int, graceWindow int64) (*Position, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if position == nil || position.Status != StatusActive {
		return nil, positionError(ErrPositionNotActive, position)
	}
	if principalConverting == nil || principalConverting.Sign() <= 0 || collateralConverting == nil || collateralConverting.Sign() < 0 {
		return nil, positionError(ErrZeroAmount, position)
	}
	if principalConverting.Cmp(position.PrincipalRemaining()) > 0 {
		return nil, positionError(ErrCannotOverConvert, position)
	}
	if collateralConverting.Cmp(position.CollateralRemaining()) > 0 {
		return nil, positionError(ErrCannotOverConvert, position)
	}

	updated := position.Clone()
	updated.EnsureDefaults()
	updated.CollateralConverted = new(big.Int).Add(updated.CollateralConverted, collateralConverting)
	settled := minBigInt(paymentFromPrincipal(principalConverting, updated.RateBps), updated.TermRemaining())
	updated.TermConverted = new(big.Int).Add(updated.TermConverted, settled)
	updated.reconcileMissed(e.now(), graceWindow)
	e.emit(newConversionEvent(updated, principalConverting, collateralConverting))
	return updated, nil
}

// ExpandBalanceSheet grows the position with fresh principal and collateral
// at a principal-weighted blended rate, re-amortized over the periods still
// remaining in the schedule.
func (e *Engine) ExpandBalanceSheet(position *Position, amountIn, collateralAmountIn *big.Int, newRateBps uint64) (*Position, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if position == nil || position.Status != StatusActive {
		return nil, positionError(ErrPositionNotActive, position)
	}
	if position.PenaltyOutstanding().Sign() > 0 {
		return nil, positionError(ErrUnpaidPenalties, position)
	}
	if position.PaymentsMissed > 0 {
		return nil, positionError(ErrMissedPayments, position)
	}
	if amountIn == nil || amountIn.Sign() <= 0 || collateralAmountIn == nil || collateralAmountIn.Sign() < 0 {
		return nil, positionError(ErrZeroAmount, position)
	}

	principal := position.PrincipalRemaining()
	blended := weightedRateBps(principal, position.RateBps, amountIn, newRateBps)

	remainingPeriods := position.TotalPeriods - position.PeriodsPaid()
	if remainingPeriods == 0 {
		remainingPeriods = position.TotalPeriods
	}

	updated := position.Clone()
	updated.EnsureDefaults()
	updated.AmountPrior = new(big.Int).Sub(updated.AmountBorrowed, principal)
	updated.AmountBorrowed = new(big.Int).Add(updated.AmountBorrowed, amountIn)
	updated.CollateralAmount = new(big.Int).Add(updated.CollateralAmount, collateralAmountIn)
	updated.RateBps = blended
	updated.TotalPeriods = remainingPeriods
	updated.TermPaid = big.NewInt(0)
	updated.TermConverted = big.NewInt(0)
	updated.TermOriginated = e.now()
	newPrincipal := new(big.Int).Add(principal, amountIn)
	_, updated.TermBalance = termSchedule(newPrincipal, blended, remainingPeriods)
	e.emit(newPositionEvent(EventTypePositionExpanded, updated))
	return updated, nil
}

// reconcileMissed lowers the stored missed-payment count after settlement
// covers previously missed periods. ApplyPenalties is the only path that
// raises it.
func (p *Position) reconcileMissed(now, graceWindow int64) {
	elapsed := p.PeriodsElapsed(now, graceWindow)
	paid := p.PeriodsPaid()
	missedNow := uint64(0)
	if elapsed > paid {
		missedNow = elapsed - paid
	}
	if missedNow < p.PaymentsMissed {
		p.PaymentsMissed = missedNow
	}
}

func positionError(err error, position *Position) error {
	if position == nil {
		return err
	}
	return fmt.Errorf("%w (position %x)", err, position.ID[:])
}
