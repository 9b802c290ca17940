package mortgage

import (
	"errors"
	"math/big"
	"testing"
)

func newTestEngine(now int64) *Engine {
	engine := NewEngine(nil)
	engine.SetNowFunc(func() int64 { return now })
	engine.SetIDFunc(func() [32]byte { return [32]byte{0x01} })
	return engine
}

func originate(t *testing.T, engine *Engine, principal int64, rateBps uint64, totalPeriods uint64) *Position {
	t.Helper()
	position, err := engine.CreatePosition("CLT", 0, big.NewInt(1_000), big.NewInt(principal), rateBps, 1_000, 100, totalPeriods, true)
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	return position
}

func TestCreatePositionScheduleDivides(t *testing.T) {
	engine := newTestEngine(1_000_000)
	position := originate(t, engine, 100_000, 1_000, 12)

	// interest = ceil(100000 * 10%) = 10000; per period = ceil(110000/12) = 9167.
	if got := position.PerPeriodPayment(); got.Cmp(big.NewInt(9_167)) != 0 {
		t.Fatalf("per period payment = %s, want 9167", got)
	}
	if got := position.TermBalance; got.Cmp(big.NewInt(110_004)) != 0 {
		t.Fatalf("term balance = %s, want 110004", got)
	}
	remainder := new(big.Int).Mod(position.TermBalance, new(big.Int).SetUint64(position.TotalPeriods))
	if remainder.Sign() != 0 {
		t.Fatalf("term balance %s does not divide over %d periods", position.TermBalance, position.TotalPeriods)
	}
}

func TestCreatePositionRejectsBadInputs(t *testing.T) {
	engine := NewEngine(big.NewInt(1_000))
	engine.SetNowFunc(func() int64 { return 1_000_000 })

	if _, err := engine.CreatePosition("CLT", 0, big.NewInt(1_000), big.NewInt(500), 1_000, 1_000, 100, 12, true); !errors.Is(err, ErrPrincipalBelowMinimum) {
		t.Fatalf("expected ErrPrincipalBelowMinimum, got %v", err)
	}
	if _, err := engine.CreatePosition("CLT", 0, big.NewInt(1_000), big.NewInt(0), 1_000, 1_000, 100, 12, true); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	if _, err := engine.CreatePosition("CLT", 0, big.NewInt(1_000), big.NewInt(5_000), 1_000, 1_000, 100, 0, true); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestPayRetiresPrincipalAndRefundsExcess(t *testing.T) {
	engine := newTestEngine(1_000_000)
	position := originate(t, engine, 100_000, 1_000, 12)

	updated, principalPaid, refund, err := engine.Pay(position, big.NewInt(9_167), 0)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	// floor(9167 * 10000 / 11000) = 8333.
	if principalPaid.Cmp(big.NewInt(8_333)) != 0 {
		t.Fatalf("principal paid = %s, want 8333", principalPaid)
	}
	if refund.Sign() != 0 {
		t.Fatalf("refund = %s, want 0", refund)
	}
	if updated.PeriodsPaid() != 1 {
		t.Fatalf("periods paid = %d, want 1", updated.PeriodsPaid())
	}
	if position.TermPaid.Sign() != 0 {
		t.Fatalf("input position mutated: term paid = %s", position.TermPaid)
	}

	remaining := updated.TermRemaining()
	over := new(big.Int).Add(remaining, big.NewInt(50))
	settled, _, refund, err := engine.Pay(updated, over, 0)
	if err != nil {
		t.Fatalf("overpay: %v", err)
	}
	if refund.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("refund = %s, want 50", refund)
	}
	if settled.TermRemaining().Sign() != 0 {
		t.Fatalf("term remaining = %s after full payment", settled.TermRemaining())
	}
	if settled.PrincipalRemaining().Sign() != 0 {
		t.Fatalf("principal remaining = %s after full payment", settled.PrincipalRemaining())
	}
}

func TestPayWithoutPlanRequiresLumpSum(t *testing.T) {
	engine := newTestEngine(1_000_000)
	position, err := engine.CreatePosition("CLT", 0, big.NewInt(1_000), big.NewInt(100_000), 1_000, 1_000, 100, 12, false)
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	if _, _, _, err := engine.Pay(position, big.NewInt(9_167), 0); !errors.Is(err, ErrCannotPartialPrepay) {
		t.Fatalf("expected ErrCannotPartialPrepay, got %v", err)
	}
	updated, _, _, err := engine.Pay(position, position.TermRemaining(), 0)
	if err != nil {
		t.Fatalf("lump sum: %v", err)
	}
	if updated.TermRemaining().Sign() != 0 {
		t.Fatalf("term remaining = %s after lump sum", updated.TermRemaining())
	}
}

func TestApplyPenaltiesIsIdempotent(t *testing.T) {
	engine := newTestEngine(1_000_000)
	position := originate(t, engine, 100_000, 1_000, 12)

	// Three whole periods elapse without payment.
	engine.SetNowFunc(func() int64 { return 1_000_300 })
	updated, penalty, missed, err := engine.ApplyPenalties(position, 0, 500)
	if err != nil {
		t.Fatalf("apply penalties: %v", err)
	}
	if missed != 3 {
		t.Fatalf("missed = %d, want 3", missed)
	}
	// ceil(3 * 9167 * 5%) = 1376.
	if penalty.Cmp(big.NewInt(1_376)) != 0 {
		t.Fatalf("penalty = %s, want 1376", penalty)
	}
	if updated.PaymentsMissed != 3 {
		t.Fatalf("payments missed = %d, want 3", updated.PaymentsMissed)
	}

	again, penalty, missed, err := engine.ApplyPenalties(updated, 0, 500)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if missed != 0 || penalty.Sign() != 0 {
		t.Fatalf("second apply accrued missed=%d penalty=%s, want zero", missed, penalty)
	}
	if again.PenaltyAccrued.Cmp(updated.PenaltyAccrued) != 0 {
		t.Fatalf("penalty accrued changed on idempotent apply")
	}
}

func TestApplyPenaltiesSkipsSettledTerm(t *testing.T) {
	engine := newTestEngine(1_000_000)
	position := originate(t, engine, 100_000, 1_000, 12)
	paid, _, _, err := engine.Pay(position, position.TermRemaining(), 0)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}

	engine.SetNowFunc(func() int64 { return 2_000_000 })
	_, penalty, missed, err := engine.ApplyPenalties(paid, 0, 500)
	if err != nil {
		t.Fatalf("apply penalties: %v", err)
	}
	if penalty.Sign() != 0 || missed != 0 {
		t.Fatalf("settled term accrued penalty=%s missed=%d", penalty, missed)
	}
}

func TestPenaltyBlocksPaymentUntilSettled(t *testing.T) {
	engine := newTestEngine(1_000_300)
	position := originate(t, engine, 100_000, 1_000, 12)
	position.TermOriginated = 1_000_000
	position.Originated = 1_000_000

	delinquent, _, _, err := engine.ApplyPenalties(position, 0, 500)
	if err != nil {
		t.Fatalf("apply penalties: %v", err)
	}
	if _, _, _, err := engine.Pay(delinquent, big.NewInt(9_167), 0); !errors.Is(err, ErrUnpaidPenalties) {
		t.Fatalf("expected ErrUnpaidPenalties, got %v", err)
	}

	outstanding := delinquent.PenaltyOutstanding()
	over := new(big.Int).Add(outstanding, big.NewInt(25))
	settled, refund, err := engine.PayPenalty(delinquent, over)
	if err != nil {
		t.Fatalf("pay penalty: %v", err)
	}
	if refund.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("refund = %s, want 25", refund)
	}
	if settled.PenaltyOutstanding().Sign() != 0 {
		t.Fatalf("penalty outstanding = %s after settlement", settled.PenaltyOutstanding())
	}
	if _, _, err := engine.PayPenalty(settled, big.NewInt(1)); !errors.Is(err, ErrCannotOverpayPenalty) {
		t.Fatalf("expected ErrCannotOverpayPenalty, got %v", err)
	}

	// Covering the missed periods reconciles the stored count back down.
	caughtUp, _, _, err := engine.Pay(settled, big.NewInt(3*9_167), 0)
	if err != nil {
		t.Fatalf("catch-up payment: %v", err)
	}
	if caughtUp.PaymentsMissed != 0 {
		t.Fatalf("payments missed = %d after catch-up, want 0", caughtUp.PaymentsMissed)
	}
}

func TestRedeemRequiresFullSettlement(t *testing.T) {
	engine := newTestEngine(1_000_000)
	position := originate(t, engine, 100_000, 1_000, 12)

	if _, err := engine.Redeem(position); !errors.Is(err, ErrUnpaidPayments) {
		t.Fatalf("expected ErrUnpaidPayments, got %v", err)
	}
	paid, _, _, err := engine.Pay(position, position.TermRemaining(), 0)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	redeemed, err := engine.Redeem(paid)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if redeemed.Status != StatusRedeemed {
		t.Fatalf("status = %s, want redeemed", redeemed.Status)
	}
	if _, _, _, err := engine.Pay(redeemed, big.NewInt(1), 0); !errors.Is(err, ErrPositionNotActive) {
		t.Fatalf("expected ErrPositionNotActive on redeemed position, got %v", err)
	}
}

func TestRefinanceRestartsTermOverRemainingPrincipal(t *testing.T) {
	engine := newTestEngine(1_000_000)
	position := originate(t, engine, 100_000, 1_000, 12)
	paid, _, _, err := engine.Pay(position, big.NewInt(2*9_167), 0)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	// floor(18334 * 10000 / 11000) = 16667 retired.
	if got := paid.PrincipalRemaining(); got.Cmp(big.NewInt(83_333)) != 0 {
		t.Fatalf("principal remaining = %s, want 83333", got)
	}

	engine.SetNowFunc(func() int64 { return 1_000_500 })
	refinanced, fee, err := engine.Refinance(paid, 100, 800, 6)
	if err != nil {
		t.Fatalf("refinance: %v", err)
	}
	// ceil(83333 * 1%) = 834, charged and settled atomically.
	if fee.Cmp(big.NewInt(834)) != 0 {
		t.Fatalf("fee = %s, want 834", fee)
	}
	if refinanced.PenaltyOutstanding().Sign() != 0 {
		t.Fatalf("refinance left penalty outstanding: %s", refinanced.PenaltyOutstanding())
	}
	if refinanced.AmountPrior.Cmp(big.NewInt(16_667)) != 0 {
		t.Fatalf("amount prior = %s, want 16667", refinanced.AmountPrior)
	}
	if refinanced.TermPaid.Sign() != 0 || refinanced.TermConverted.Sign() != 0 {
		t.Fatalf("term accumulators not reset")
	}
	if refinanced.TermOriginated != 1_000_500 {
		t.Fatalf("term originated = %d, want 1000500", refinanced.TermOriginated)
	}
	if refinanced.RateBps != 800 || refinanced.TotalPeriods != 6 {
		t.Fatalf("schedule = %d bps over %d periods, want 800 over 6", refinanced.RateBps, refinanced.TotalPeriods)
	}
	// Principal carries over unchanged through the restart.
	if got := refinanced.PrincipalRemaining(); got.Cmp(big.NewInt(83_333)) != 0 {
		t.Fatalf("principal remaining after refinance = %s, want 83333", got)
	}
}

func TestRefinanceRejectsDelinquency(t *testing.T) {
	engine := newTestEngine(1_000_300)
	position := originate(t, engine, 100_000, 1_000, 12)
	position.TermOriginated = 1_000_000

	delinquent, _, _, err := engine.ApplyPenalties(position, 0, 500)
	if err != nil {
		t.Fatalf("apply penalties: %v", err)
	}
	if _, _, err := engine.Refinance(delinquent, 100, 800, 6); !errors.Is(err, ErrUnpaidPenalties) {
		t.Fatalf("expected ErrUnpaidPenalties, got %v", err)
	}
	settled, _, err := engine.PayPenalty(delinquent, delinquent.PenaltyOutstanding())
	if err != nil {
		t.Fatalf("pay penalty: %v", err)
	}
	if _, _, err := engine.Refinance(settled, 100, 800, 6); !errors.Is(err, ErrMissedPayments) {
		t.Fatalf("expected ErrMissedPayments, got %v", err)
	}
}

func TestForecloseThreshold(t *testing.T) {
	engine := newTestEngine(1_000_300)
	position := originate(t, engine, 100_000, 1_000, 12)
	position.TermOriginated = 1_000_000

	delinquent, _, _, err := engine.ApplyPenalties(position, 0, 500)
	if err != nil {
		t.Fatalf("apply penalties: %v", err)
	}
	if _, err := engine.Foreclose(delinquent, 3); !errors.Is(err, ErrNotForeclosable) {
		t.Fatalf("expected ErrNotForeclosable at the threshold, got %v", err)
	}
	foreclosed, err := engine.Foreclose(delinquent, 2)
	if err != nil {
		t.Fatalf("foreclose: %v", err)
	}
	if foreclosed.Status != StatusForeclosed {
		t.Fatalf("status = %s, want foreclosed", foreclosed.Status)
	}
}

func TestConvertSettlesPrincipalAgainstCollateral(t *testing.T) {
	engine := newTestEngine(1_000_000)
	position := originate(t, engine, 100_000, 1_000, 12)

	converted, err := engine.Convert(position, big.NewInt(10_000), big.NewInt(50), 0)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// ceil(10000 * 11000 / 10000) = 11000 payment units settled.
	if converted.TermConverted.Cmp(big.NewInt(11_000)) != 0 {
		t.Fatalf("term converted = %s, want 11000", converted.TermConverted)
	}
	if converted.CollateralConverted.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("collateral converted = %s, want 50", converted.CollateralConverted)
	}
	if got := converted.PrincipalRemaining(); got.Cmp(big.NewInt(90_000)) != 0 {
		t.Fatalf("principal remaining = %s, want 90000", got)
	}
	if got := converted.CollateralRemaining(); got.Cmp(big.NewInt(950)) != 0 {
		t.Fatalf("collateral remaining = %s, want 950", got)
	}

	if _, err := engine.Convert(converted, big.NewInt(90_001), big.NewInt(1), 0); !errors.Is(err, ErrCannotOverConvert) {
		t.Fatalf("expected ErrCannotOverConvert on principal, got %v", err)
	}
	if _, err := engine.Convert(converted, big.NewInt(1_000), big.NewInt(951), 0); !errors.Is(err, ErrCannotOverConvert) {
		t.Fatalf("expected ErrCannotOverConvert on collateral, got %v", err)
	}
}

func TestExpandBalanceSheetBlendsRateAndReamortizes(t *testing.T) {
	engine := newTestEngine(1_000_000)
	position := originate(t, engine, 100_000, 1_000, 12)
	paid, _, _, err := engine.Pay(position, big.NewInt(6*9_167), 0)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if paid.PeriodsPaid() != 6 {
		t.Fatalf("periods paid = %d, want 6", paid.PeriodsPaid())
	}
	// floor(55002 * 10000 / 11000) = 50001 retired; 49999 remains.
	if got := paid.PrincipalRemaining(); got.Cmp(big.NewInt(49_999)) != 0 {
		t.Fatalf("principal remaining = %s, want 49999", got)
	}

	engine.SetNowFunc(func() int64 { return 1_000_600 })
	expanded, err := engine.ExpandBalanceSheet(paid, big.NewInt(50_000), big.NewInt(400), 2_000)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	// floor((49999*1000 + 50000*2000) / 99999) = 1500.
	if expanded.RateBps != 1_500 {
		t.Fatalf("blended rate = %d bps, want 1500", expanded.RateBps)
	}
	if expanded.TotalPeriods != 6 {
		t.Fatalf("total periods = %d, want the 6 remaining", expanded.TotalPeriods)
	}
	if expanded.AmountBorrowed.Cmp(big.NewInt(150_000)) != 0 {
		t.Fatalf("amount borrowed = %s, want 150000", expanded.AmountBorrowed)
	}
	if expanded.AmountPrior.Cmp(big.NewInt(50_001)) != 0 {
		t.Fatalf("amount prior = %s, want 50001", expanded.AmountPrior)
	}
	if expanded.CollateralAmount.Cmp(big.NewInt(1_400)) != 0 {
		t.Fatalf("collateral amount = %s, want 1400", expanded.CollateralAmount)
	}
	remainder := new(big.Int).Mod(expanded.TermBalance, new(big.Int).SetUint64(expanded.TotalPeriods))
	if remainder.Sign() != 0 {
		t.Fatalf("expanded term balance %s does not divide over %d periods", expanded.TermBalance, expanded.TotalPeriods)
	}
}

type pausedModules map[string]bool

func (p pausedModules) IsPaused(module string) bool { return p[module] }

func TestPauseGuardBlocksMutations(t *testing.T) {
	engine := newTestEngine(1_000_000)
	position := originate(t, engine, 100_000, 1_000, 12)
	engine.SetPauses(pausedModules{moduleName: true})

	if _, _, _, err := engine.Pay(position, big.NewInt(9_167), 0); err == nil {
		t.Fatalf("expected pause guard to reject payment")
	}
	if _, err := engine.CreatePosition("CLT", 0, big.NewInt(1_000), big.NewInt(100_000), 1_000, 1_000, 100, 12, true); err == nil {
		t.Fatalf("expected pause guard to reject origination")
	}
}

func TestTriggerPriceMarksUpPurchasePrice(t *testing.T) {
	engine := newTestEngine(1_000_000)
	position, err := engine.CreatePosition("CLT", 2, big.NewInt(50_000), big.NewInt(100_000), 0, 1_000, 100, 10, true)
	if err != nil {
		t.Fatalf("create position: %v", err)
	}
	// purchase = floor(100000 * 100 / 50000) = 200; trigger = ceil(200 * 1.1) = 220.
	if got := position.PurchasePrice(); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("purchase price = %s, want 200", got)
	}
	if got := position.TriggerPrice(); got.Cmp(big.NewInt(220)) != 0 {
		t.Fatalf("trigger price = %s, want 220", got)
	}
}
