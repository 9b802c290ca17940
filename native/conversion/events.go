package conversion

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"lienchain/core/types"
)

const (
	EventTypeEnqueued            = "conversion.enqueued"
	EventTypeWithdrawalRequested = "conversion.withdrawal_requested"
	EventTypeFilled              = "conversion.filled"
	EventTypeRequestSettled      = "conversion.request_settled"
	EventTypeEntryPruned         = "conversion.entry_pruned"
)

type queueEvent struct {
	evt *types.Event
}

func (e queueEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e queueEvent) Event() *types.Event { return e.evt }

func newQueueEvent(eventType, collateral string, attrs map[string]string) queueEvent {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs["collateral"] = collateral
	return queueEvent{evt: &types.Event{Type: eventType, Attributes: attrs}}
}

func newEnqueuedEvent(collateral string, positionID [32]byte, trigger *big.Int) queueEvent {
	return newQueueEvent(EventTypeEnqueued, collateral, map[string]string{
		"positionId":   hex.EncodeToString(positionID[:]),
		"triggerPrice": trigger.String(),
	})
}

func newWithdrawalRequestedEvent(collateral string, request *WithdrawalRequest) queueEvent {
	attrs := map[string]string{
		"requestId": request.ID,
		"requester": request.Requester.String(),
		"amount":    request.Amount.String(),
		"shares":    request.Shares.String(),
	}
	return newQueueEvent(EventTypeWithdrawalRequested, collateral, attrs)
}

func newFilledEvent(collateral string, step fill) queueEvent {
	return newQueueEvent(EventTypeFilled, collateral, map[string]string{
		"requestId":     step.requestID,
		"positionId":    hex.EncodeToString(step.positionID[:]),
		"principal":     step.principal.String(),
		"collateralOut": step.collateral.String(),
		"settled":       strconv.FormatBool(step.settled),
	})
}

func newRequestSettledEvent(collateral, requestID string) queueEvent {
	return newQueueEvent(EventTypeRequestSettled, collateral, map[string]string{
		"requestId": requestID,
	})
}

func newEntryPrunedEvent(collateral string, positionID [32]byte) queueEvent {
	return newQueueEvent(EventTypeEntryPruned, collateral, map[string]string{
		"positionId": hex.EncodeToString(positionID[:]),
	})
}
