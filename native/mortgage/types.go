package mortgage

import "math/big"

// Status tracks the lifecycle stage of a position. Redeemed and Foreclosed
// are terminal.
type Status uint8

const (
	StatusActive Status = iota
	StatusRedeemed
	StatusForeclosed
)

// String renders the status for events and diagnostics.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRedeemed:
		return "redeemed"
	case StatusForeclosed:
		return "foreclosed"
	default:
		return "unknown"
	}
}

// Position is a single borrower's amortizing loan record. Amounts are big
// integers in the smallest unit of the relevant token; rates are basis points
// (10,000 = 100%).
type Position struct {
	// ID is the opaque identifier minted at origination.
	ID [32]byte
	// Collateral names the collateral token backing the loan.
	Collateral string
	// CollateralDecimals is the precision of the collateral token.
	CollateralDecimals uint8
	// CollateralAmount is the escrowed collateral backing the loan.
	CollateralAmount *big.Int
	// CollateralConverted counts collateral already released through
	// conversion settlement.
	CollateralConverted *big.Int
	// RateBps is the interest rate for the current term.
	RateBps uint64
	// PremiumBps is the conversion premium applied over the purchase price
	// when deriving the trigger price.
	PremiumBps uint64
	// Originated is the unix timestamp of loan origination.
	Originated int64
	// TermOriginated is the unix timestamp the current term started; reset on
	// refinance and balance-sheet expansion.
	TermOriginated int64
	// TermBalance is the total owed (principal plus interest) for the current
	// term. Always an exact multiple of TotalPeriods by construction.
	TermBalance *big.Int
	// AmountBorrowed is the principal at origination or as of the last
	// refinance/expansion.
	AmountBorrowed *big.Int
	// AmountPrior is principal retired before the current term, carried
	// across refinances and expansions.
	AmountPrior *big.Int
	// TermPaid accumulates payments applied within the current term.
	TermPaid *big.Int
	// TermConverted accumulates payment-unit equivalents settled through
	// conversion within the current term.
	TermConverted *big.Int
	// AmountConverted is reserved for refinance-after-conversion accounting.
	AmountConverted *big.Int
	// PenaltyAccrued and PenaltyPaid track late-payment penalties. Accrued
	// never falls below paid.
	PenaltyAccrued *big.Int
	PenaltyPaid    *big.Int
	// PaymentsMissed counts scheduled payments currently past due.
	PaymentsMissed uint64
	// PeriodDuration is the length of one payment period in seconds.
	PeriodDuration int64
	// TotalPeriods is the number of payments in the current term.
	TotalPeriods uint64
	// HasPaymentPlan marks positions amortized over scheduled payments.
	// Positions without a plan may only be retired by a single lump sum.
	HasPaymentPlan bool
	// Status is the lifecycle stage.
	Status Status
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.CollateralAmount = cloneBigInt(p.CollateralAmount)
	clone.CollateralConverted = cloneBigInt(p.CollateralConverted)
	clone.TermBalance = cloneBigInt(p.TermBalance)
	clone.AmountBorrowed = cloneBigInt(p.AmountBorrowed)
	clone.AmountPrior = cloneBigInt(p.AmountPrior)
	clone.TermPaid = cloneBigInt(p.TermPaid)
	clone.TermConverted = cloneBigInt(p.TermConverted)
	clone.AmountConverted = cloneBigInt(p.AmountConverted)
	clone.PenaltyAccrued = cloneBigInt(p.PenaltyAccrued)
	clone.PenaltyPaid = cloneBigInt(p.PenaltyPaid)
	return &clone
}

// EnsureDefaults populates nil amount fields so decoded positions are safe to
// operate on.
func (p *Position) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.CollateralAmount == nil {
		p.CollateralAmount = big.NewInt(0)
	}
	if p.CollateralConverted == nil {
		p.CollateralConverted = big.NewInt(0)
	}
	if p.TermBalance == nil {
		p.TermBalance = big.NewInt(0)
	}
	if p.AmountBorrowed == nil {
		p.AmountBorrowed = big.NewInt(0)
	}
	if p.AmountPrior == nil {
		p.AmountPrior = big.NewInt(0)
	}
	if p.TermPaid == nil {
		p.TermPaid = big.NewInt(0)
	}
	if p.TermConverted == nil {
		p.TermConverted = big.NewInt(0)
	}
	if p.AmountConverted == nil {
		p.AmountConverted = big.NewInt(0)
	}
	if p.PenaltyAccrued == nil {
		p.PenaltyAccrued = big.NewInt(0)
	}
	if p.PenaltyPaid == nil {
		p.PenaltyPaid = big.NewInt(0)
	}
}

// PerPeriodPayment returns the scheduled payment for one period. TermBalance
// divides evenly by construction.
func (p *Position) PerPeriodPayment() *big.Int {
	if p == nil || p.TotalPeriods == 0 || p.TermBalance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(p.TermBalance, new(big.Int).SetUint64(p.TotalPeriods))
}

// TermSettled sums payments and conversions applied to the current term.
func (p *Position) TermSettled() *big.Int {
	settled := new(big.Int)
	if p == nil {
		return settled
	}
	if p.TermPaid != nil {
		settled.Add(settled, p.TermPaid)
	}
	if p.TermConverted != nil {
		settled.Add(settled, p.TermConverted)
	}
	return settled
}

// TermRemaining returns the payment-unit balance still owed for the term.
func (p *Position) TermRemaining() *big.Int {
	if p == nil || p.TermBalance == nil {
		return big.NewInt(0)
	}
	remaining := new(big.Int).Sub(p.TermBalance, p.TermSettled())
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// PeriodsPaid derives the number of whole periods covered by payments and
// conversions in the current term.
func (p *Position) PeriodsPaid() uint64 {
	per := p.PerPeriodPayment()
	if per.Sign() == 0 {
		return 0
	}
	periods := new(big.Int).Quo(p.TermSettled(), per)
	if !periods.IsUint64() {
		return p.TotalPeriods
	}
	paid := periods.Uint64()
	if paid > p.TotalPeriods {
		return p.TotalPeriods
	}
	return paid
}

// PeriodsElapsed counts whole periods since term origination, net of the
// grace window and clamped to the schedule length.
func (p *Position) PeriodsElapsed(now, graceWindow int64) uint64 {
	if p == nil || p.PeriodDuration <= 0 {
		return 0
	}
	start := p.TermOriginated + graceWindow
	if now <= start {
		return 0
	}
	elapsed := uint64((now - start) / p.PeriodDuration)
	if elapsed > p.TotalPeriods {
		return p.TotalPeriods
	}
	return elapsed
}

// PenaltyOutstanding returns accrued penalties not yet settled.
func (p *Position) PenaltyOutstanding() *big.Int {
	if p == nil || p.PenaltyAccrued == nil {
		return big.NewInt(0)
	}
	outstanding := new(big.Int).Set(p.PenaltyAccrued)
	if p.PenaltyPaid != nil {
		outstanding.Sub(outstanding, p.PenaltyPaid)
	}
	if outstanding.Sign() < 0 {
		return big.NewInt(0)
	}
	return outstanding
}

// PrincipalRemaining derives the unretired principal for the current term
// from the payment-to-principal conversion implied by the rate.
func (p *Position) PrincipalRemaining() *big.Int {
	if p == nil || p.AmountBorrowed == nil {
		return big.NewInt(0)
	}
	retired := principalFromPayment(p.TermSettled(), p.RateBps)
	remaining := new(big.Int).Sub(p.AmountBorrowed, cloneBigInt(p.AmountPrior))
	remaining.Sub(remaining, retired)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// CollateralRemaining returns the collateral not yet released through
// conversion.
func (p *Position) CollateralRemaining() *big.Int {
	if p == nil || p.CollateralAmount == nil {
		return big.NewInt(0)
	}
	remaining := new(big.Int).Set(p.CollateralAmount)
	if p.CollateralConverted != nil {
		remaining.Sub(remaining, p.CollateralConverted)
	}
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// PurchasePrice is the underlying amount paid per whole collateral unit at
// origination.
func (p *Position) PurchasePrice() *big.Int {
	if p == nil || p.CollateralAmount == nil || p.CollateralAmount.Sign() == 0 {
		return big.NewInt(0)
	}
	scale := pow10(p.CollateralDecimals)
	price := new(big.Int).Mul(p.AmountBorrowed, scale)
	return price.Quo(price, p.CollateralAmount)
}

// TriggerPrice is the market price of the collateral at which conversion
// first becomes safe: the purchase price marked up by the premium.
func (p *Position) TriggerPrice() *big.Int {
	if p == nil {
		return big.NewInt(0)
	}
	return mulDivCeil(p.PurchasePrice(), new(big.Int).SetUint64(basisPoints.Uint64()+p.PremiumBps), basisPoints)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
