package types

import "math/big"

// Account holds the ledger state for a single address. The escrow ledger is
// single-asset, so one balance field covers every participant and the module
// vault alike.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}
