package escrow

import (
	"fmt"
	"math/big"
)

// EscrowID is the unique handle for an escrow record. IDs come from a
// monotonic counter starting at zero and are never reused, not even after
// cancellation.
type EscrowID uint64

// EscrowState represents the lifecycle states of a two-party escrow.
type EscrowState uint8

const (
	EscrowCreated EscrowState = iota
	EscrowFunded
	EscrowCompleted
	EscrowCanceled
)

// Escrow captures one negotiated transfer between a buyer and a seller. The
// participants and amount are fixed at creation; only the approval flags and
// the state change afterwards.
type Escrow struct {
	ID             EscrowID
	Buyer          [20]byte
	Seller         [20]byte
	Amount         *big.Int
	BuyerApproved  bool
	SellerApproved bool
	State          EscrowState
	CreatedAt      int64
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Valid reports whether the state value is within the supported range.
func (s EscrowState) Valid() bool {
	switch s {
	case EscrowCreated, EscrowFunded, EscrowCompleted, EscrowCanceled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state admits no further transitions.
func (s EscrowState) Terminal() bool {
	return s == EscrowCompleted || s == EscrowCanceled
}

func (s EscrowState) String() string {
	switch s {
	case EscrowCreated:
		return "created"
	case EscrowFunded:
		return "funded"
	case EscrowCompleted:
		return "completed"
	case EscrowCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// transitions is the closed legality table for the state machine. The key is
// the current state, the value the set of reachable successor states.
// Terminal states map to an empty set.
var transitions = map[EscrowState][]EscrowState{
	EscrowCreated:   {EscrowFunded, EscrowCanceled},
	EscrowFunded:    {EscrowCompleted, EscrowCanceled},
	EscrowCompleted: {},
	EscrowCanceled:  {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to EscrowState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SanitizeEscrow validates and normalises the supplied escrow record,
// returning a cloned instance with a non-nil amount field. The function does
// not mutate the original value.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("escrow amount must be non-negative")
	}
	if clone.Buyer == clone.Seller {
		return nil, fmt.Errorf("escrow buyer and seller must differ")
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("invalid escrow state: %d", clone.State)
	}
	return clone, nil
}
