package escrow

import (
	"encoding/hex"
	"strconv"

	"escrowledger/core/types"
)

const (
	EventTypeEscrowInitiated = "escrow.initiated"
	EventTypeEscrowDeposited = "escrow.deposited"
	EventTypeEscrowCompleted = "escrow.completed"
	EventTypeEscrowCanceled  = "escrow.canceled"
)

// NewInitiatedEvent returns the canonical event payload for a newly created
// escrow, carrying the full agreement terms.
func NewInitiatedEvent(e *Escrow) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowInitiated, e)
	if e == nil {
		return evt
	}
	evt.Attributes["buyer"] = hex.EncodeToString(e.Buyer[:])
	evt.Attributes["seller"] = hex.EncodeToString(e.Seller[:])
	evt.Attributes["amount"] = amountString(e)
	return evt
}

// NewDepositedEvent returns the canonical event payload emitted when the
// buyer funds the escrow.
func NewDepositedEvent(e *Escrow) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowDeposited, e)
	if e == nil {
		return evt
	}
	evt.Attributes["amount"] = amountString(e)
	return evt
}

// NewCompletedEvent returns the canonical event payload for a settled escrow.
func NewCompletedEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowCompleted, e)
}

// NewCanceledEvent returns the canonical event payload for a canceled escrow.
func NewCanceledEvent(e *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowCanceled, e)
}

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e != nil {
		attrs["id"] = strconv.FormatUint(uint64(e.ID), 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func amountString(e *Escrow) string {
	if e.Amount == nil {
		return "0"
	}
	return e.Amount.String()
}
