package mortgage

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"lienchain/core/types"
)

const (
	EventTypePositionCreated    = "mortgage.created"
	EventTypePositionPaid       = "mortgage.paid"
	EventTypePenaltyApplied     = "mortgage.penalty_applied"
	EventTypePenaltyPaid        = "mortgage.penalty_paid"
	EventTypePositionRedeemed   = "mortgage.redeemed"
	EventTypePositionRefinanced = "mortgage.refinanced"
	EventTypePositionForeclosed = "mortgage.foreclosed"
	EventTypePositionConverted  = "mortgage.converted"
	EventTypePositionExpanded   = "mortgage.expanded"
)

type positionEvent struct {
	evt *types.Event
}

func (e positionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e positionEvent) Event() *types.Event { return e.evt }

func newPositionEvent(eventType string, p *Position) positionEvent {
	return positionEvent{evt: &types.Event{Type: eventType, Attributes: positionAttributes(p)}}
}

func newPenaltyEvent(p *Position, penalty *big.Int, additionalMissed uint64) positionEvent {
	attrs := positionAttributes(p)
	attrs["penalty"] = bigIntString(penalty)
	attrs["additionalMissed"] = strconv.FormatUint(additionalMissed, 10)
	return positionEvent{evt: &types.Event{Type: EventTypePenaltyApplied, Attributes: attrs}}
}

func newConversionEvent(p *Position, principal, collateral *big.Int) positionEvent {
	attrs := positionAttributes(p)
	attrs["principalConverted"] = bigIntString(principal)
	attrs["collateralConverted"] = bigIntString(collateral)
	return positionEvent{evt: &types.Event{Type: EventTypePositionConverted, Attributes: attrs}}
}

func positionAttributes(p *Position) map[string]string {
	attrs := make(map[string]string)
	if p == nil {
		return attrs
	}
	attrs["positionId"] = hex.EncodeToString(p.ID[:])
	attrs["collateral"] = p.Collateral
	attrs["status"] = p.Status.String()
	attrs["termBalance"] = bigIntString(p.TermBalance)
	attrs["termPaid"] = bigIntString(p.TermPaid)
	attrs["termConverted"] = bigIntString(p.TermConverted)
	attrs["paymentsMissed"] = strconv.FormatUint(p.PaymentsMissed, 10)
	return attrs
}

func bigIntString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
