package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"escrowledger/core/events"
	"escrowledger/core/types"
)

var errNilState = errors.New("escrow engine: state not configured")

// engineState is the backend contract the engine requires: record storage
// with a monotonic id allocator, a per-escrow custody sub-ledger, and the
// account ledger used to move funds. The hosting environment serializes all
// calls, so implementations need no internal locking on behalf of the engine.
type engineState interface {
	EscrowPut(*Escrow) error
	EscrowGet(id EscrowID) (*Escrow, bool)
	EscrowNextID() (EscrowID, error)
	EscrowCredit(id EscrowID, amt *big.Int) error
	EscrowDebit(id EscrowID, amt *big.Int) error
	EscrowVaultAddress() ([20]byte, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine implements the escrow state machine. Each exported operation is a
// single atomic unit of work: it validates caller, state and amount
// preconditions before any mutation, persists whole records, moves funds
// through the account ledger and emits a domain event. The one documented
// exception is a settlement transfer failing after both approvals have been
// persisted; see Complete.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) loadEscrow(id EscrowID) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	esc, ok := e.state.EscrowGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return esc, nil
}

func (e *Engine) storeEscrow(esc *Escrow) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.EscrowPut(esc)
}

// transfer moves amount between two ledger accounts. A zero amount is a
// no-op; the move either fully applies to both accounts or not at all.
func (e *Engine) transfer(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("escrow: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("escrow: insufficient balance")
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// Initiate creates a new escrow agreement between the caller (the buyer) and
// the seller. No funds move; the record starts in the created state. The id
// is allocated only after every other precondition has passed, so a rejected
// initiation never consumes an id.
func (e *Engine) Initiate(caller, seller [20]byte, amount *big.Int) (EscrowID, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if caller == seller {
		return 0, ErrInvalidParticipants
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return 0, ErrInvalidAmount
	}
	id, err := e.state.EscrowNextID()
	if err != nil {
		return 0, err
	}
	esc := &Escrow{
		ID:        id,
		Buyer:     caller,
		Seller:    seller,
		Amount:    amt,
		State:     EscrowCreated,
		CreatedAt: e.now(),
	}
	if err := e.storeEscrow(esc); err != nil {
		return 0, err
	}
	e.emit(NewInitiatedEvent(esc))
	return id, nil
}

// Deposit funds the escrow with the value attached to the call. The attached
// value must match the agreed amount exactly; on any rejection nothing has
// moved and the environment returns the value to the caller.
func (e *Engine) Deposit(caller [20]byte, id EscrowID, attached *big.Int) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Buyer {
		return ErrUnauthorized
	}
	if !CanTransition(esc.State, EscrowFunded) {
		return ErrInvalidState
	}
	if cloneBigInt(attached).Cmp(esc.Amount) != 0 {
		return ErrInvalidAmount
	}
	vault, err := e.state.EscrowVaultAddress()
	if err != nil {
		return err
	}
	if err := e.transfer(esc.Buyer, vault, esc.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.state.EscrowCredit(id, esc.Amount); err != nil {
		return err
	}
	esc.State = EscrowFunded
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewDepositedEvent(esc))
	return nil
}

// Complete records the caller's approval and, once both parties have
// approved, settles the escrow in favour of the seller. Approval flags are
// persisted before settlement is attempted, so a failed settlement leaves a
// funded record with both approvals set; re-invoking Complete retries the
// settlement once the underlying transfer fault is fixed.
func (e *Engine) Complete(caller [20]byte, id EscrowID) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if !CanTransition(esc.State, EscrowCompleted) {
		return ErrInvalidState
	}
	switch caller {
	case esc.Buyer:
		if esc.BuyerApproved {
			if esc.SellerApproved {
				return e.settle(esc)
			}
			return ErrAlreadyApproved
		}
		esc.BuyerApproved = true
	case esc.Seller:
		if esc.SellerApproved {
			if esc.BuyerApproved {
				return e.settle(esc)
			}
			return ErrAlreadyApproved
		}
		esc.SellerApproved = true
	default:
		return ErrUnauthorized
	}
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	if esc.BuyerApproved && esc.SellerApproved {
		return e.settle(esc)
	}
	return nil
}

func (e *Engine) settle(esc *Escrow) error {
	vault, err := e.state.EscrowVaultAddress()
	if err != nil {
		return err
	}
	if err := e.transfer(vault, esc.Seller, esc.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.state.EscrowDebit(esc.ID, esc.Amount); err != nil {
		return err
	}
	esc.State = EscrowCompleted
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(esc))
	return nil
}

// Cancel terminates the escrow before completion. Either party may cancel.
// A funded escrow refunds the buyer first; a refund transfer failure leaves
// the record funded so the cancellation can be retried. Terminal records
// cannot be canceled again.
func (e *Engine) Cancel(caller [20]byte, id EscrowID) error {
	esc, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != esc.Buyer && caller != esc.Seller {
		return ErrUnauthorized
	}
	if !CanTransition(esc.State, EscrowCanceled) {
		return ErrInvalidState
	}
	if esc.State == EscrowFunded {
		vault, err := e.state.EscrowVaultAddress()
		if err != nil {
			return err
		}
		if err := e.transfer(vault, esc.Buyer, esc.Amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		if err := e.state.EscrowDebit(esc.ID, esc.Amount); err != nil {
			return err
		}
	}
	esc.State = EscrowCanceled
	if err := e.storeEscrow(esc); err != nil {
		return err
	}
	e.emit(NewCanceledEvent(esc))
	return nil
}

// Get returns a copy of the escrow record, or false when no record exists.
// The lookup is side-effect free and available to any caller.
func (e *Engine) Get(id EscrowID) (*Escrow, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	return e.state.EscrowGet(id)
}
