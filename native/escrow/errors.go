package escrow

import "errors"

// Every validation failure maps onto exactly one of these sentinels so
// callers can branch with errors.Is. All of them short-circuit before any
// mutation, with the single documented exception of a settlement transfer
// failing after both approvals have been persisted.
var (
	// ErrUnauthorized rejects a caller that is not a permitted party for the
	// requested action.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrInvalidState rejects an operation that is not legal in the record's
	// current state.
	ErrInvalidState = errors.New("escrow: operation not valid in current state")
	// ErrInvalidAmount rejects an attached value that does not match the
	// agreed amount.
	ErrInvalidAmount = errors.New("escrow: amount mismatch")
	// ErrAlreadyApproved rejects a party approving the same escrow twice.
	ErrAlreadyApproved = errors.New("escrow: party already approved")
	// ErrInvalidParticipants rejects creation with identical buyer and seller.
	ErrInvalidParticipants = errors.New("escrow: buyer and seller must differ")
	// ErrTransferFailed wraps a rejected fund movement. Retryable by
	// re-invoking the same call once the underlying cause is fixed.
	ErrTransferFailed = errors.New("escrow: fund transfer failed")
	// ErrNotFound reports that no record exists for the given id.
	ErrNotFound = errors.New("escrow: not found")
	// ErrIDOverflow reports exhaustion of the id space. Fatal for new
	// escrows; existing records are unaffected.
	ErrIDOverflow = errors.New("escrow: id space exhausted")
)
