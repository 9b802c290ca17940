package mortgage

import "math/big"

var basisPoints = big.NewInt(10_000)

// ceilDiv divides a by b rounding up. Penalty and fee math always rounds in
// the protocol's favour so positions are never under-charged.
func ceilDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	if a.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Add(a, new(big.Int).Sub(b, big.NewInt(1)))
	return num.Quo(num, b)
}

// mulDivCeil computes ceil(a*n/d).
func mulDivCeil(a, n, d *big.Int) *big.Int {
	if a == nil || n == nil {
		return big.NewInt(0)
	}
	return ceilDiv(new(big.Int).Mul(a, n), d)
}

// paymentFromPrincipal converts a principal amount into the payment units owed
// for it at the given rate, rounding up.
func paymentFromPrincipal(principal *big.Int, rateBps uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	markup := new(big.Int).SetUint64(basisPoints.Uint64() + rateBps)
	return mulDivCeil(principal, markup, basisPoints)
}

// principalFromPayment converts payment units into the principal they retire
// at the given rate, rounding down.
func principalFromPayment(payment *big.Int, rateBps uint64) *big.Int {
	if payment == nil || payment.Sign() <= 0 {
		return big.NewInt(0)
	}
	markup := new(big.Int).SetUint64(basisPoints.Uint64() + rateBps)
	principal := new(big.Int).Mul(payment, basisPoints)
	return principal.Quo(principal, markup)
}

// weightedRateBps blends two interest rates by their principal weights using
// floor division.
func weightedRateBps(principalA *big.Int, rateA uint64, principalB *big.Int, rateB uint64) uint64 {
	if principalA == nil {
		principalA = big.NewInt(0)
	}
	if principalB == nil {
		principalB = big.NewInt(0)
	}
	total := new(big.Int).Add(principalA, principalB)
	if total.Sign() == 0 {
		return 0
	}
	weighted := new(big.Int).Mul(principalA, new(big.Int).SetUint64(rateA))
	weighted.Add(weighted, new(big.Int).Mul(principalB, new(big.Int).SetUint64(rateB)))
	weighted.Quo(weighted, total)
	if !weighted.IsUint64() {
		return 0
	}
	return weighted.Uint64()
}

// termSchedule derives the per-period payment and term balance for a
// principal at a rate over a schedule. The per-period payment is computed
// first and the balance is its exact multiple, so divisibility holds by
// construction.
func termSchedule(principal *big.Int, rateBps, totalPeriods uint64) (perPeriod, termBalance *big.Int) {
	if principal == nil || principal.Sign() <= 0 || totalPeriods == 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	interest := mulDivCeil(principal, new(big.Int).SetUint64(rateBps), basisPoints)
	owed := new(big.Int).Add(principal, interest)
	perPeriod = ceilDiv(owed, new(big.Int).SetUint64(totalPeriods))
	termBalance = new(big.Int).Mul(perPeriod, new(big.Int).SetUint64(totalPeriods))
	return perPeriod, termBalance
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

func minBigInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
