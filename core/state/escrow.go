package state

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"escrowledger/native/escrow"
)

var (
	escrowPrefix      = []byte("escrow:")
	escrowVaultPrefix = []byte("escrow-vault:")
	escrowSeqKey      = ethcrypto.Keccak256([]byte("escrow-seq"))
	vaultAddrPreimage = []byte("escrowledger/module-vault")
)

func escrowKey(id escrow.EscrowID) []byte {
	buf := make([]byte, len(escrowPrefix)+8)
	copy(buf, escrowPrefix)
	binary.BigEndian.PutUint64(buf[len(escrowPrefix):], uint64(id))
	return ethcrypto.Keccak256(buf)
}

func escrowVaultKey(id escrow.EscrowID) []byte {
	buf := make([]byte, len(escrowVaultPrefix)+8)
	copy(buf, escrowVaultPrefix)
	binary.BigEndian.PutUint64(buf[len(escrowVaultPrefix):], uint64(id))
	return ethcrypto.Keccak256(buf)
}

// storedEscrow is the RLP shape of an escrow record. RLP only encodes
// unsigned scalars, so the enum and timestamp widen at the boundary.
type storedEscrow struct {
	ID             uint64
	Buyer          [20]byte
	Seller         [20]byte
	Amount         *big.Int
	BuyerApproved  bool
	SellerApproved bool
	State          uint8
	CreatedAt      uint64
}

// EscrowNextID returns the current id counter and advances it. The counter
// only ever increments; ids are never recycled. Callers must invoke this
// only after every other initiation precondition has passed so a rejected
// initiation never consumes an id.
func (m *Manager) EscrowNextID() (escrow.EscrowID, error) {
	data, err := m.db.Get(escrowSeqKey)
	if err != nil {
		return 0, err
	}
	var current uint64
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &current); err != nil {
			return 0, err
		}
	}
	if current == math.MaxUint64 {
		return 0, escrow.ErrIDOverflow
	}
	encoded, err := rlp.EncodeToBytes(current + 1)
	if err != nil {
		return 0, err
	}
	if err := m.db.Put(escrowSeqKey, encoded); err != nil {
		return 0, err
	}
	return escrow.EscrowID(current), nil
}

// EscrowPut sanitizes and persists the escrow record, replacing the stored
// value as a whole.
func (m *Manager) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	if sanitized.CreatedAt < 0 {
		return fmt.Errorf("state: negative escrow timestamp")
	}
	stored := &storedEscrow{
		ID:             uint64(sanitized.ID),
		Buyer:          sanitized.Buyer,
		Seller:         sanitized.Seller,
		Amount:         sanitized.Amount,
		BuyerApproved:  sanitized.BuyerApproved,
		SellerApproved: sanitized.SellerApproved,
		State:          uint8(sanitized.State),
		CreatedAt:      uint64(sanitized.CreatedAt),
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return m.db.Put(escrowKey(sanitized.ID), encoded)
}

// EscrowGet returns a copy of the stored escrow record, or false when no
// record exists for the id.
func (m *Manager) EscrowGet(id escrow.EscrowID) (*escrow.Escrow, bool) {
	data, err := m.db.Get(escrowKey(id))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedEscrow)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	esc := &escrow.Escrow{
		ID:             escrow.EscrowID(stored.ID),
		Buyer:          stored.Buyer,
		Seller:         stored.Seller,
		Amount:         stored.Amount,
		BuyerApproved:  stored.BuyerApproved,
		SellerApproved: stored.SellerApproved,
		State:          escrow.EscrowState(stored.State),
		CreatedAt:      int64(stored.CreatedAt),
	}
	return esc.Clone(), true
}

// EscrowHas reports record existence without decoding the stored value. It
// is an optimisation only; EscrowGet returning false remains the single
// source of truth for not-found.
func (m *Manager) EscrowHas(id escrow.EscrowID) bool {
	ok, err := m.db.Has(escrowKey(id))
	return err == nil && ok
}

// EscrowVaultAddress returns the deterministic address of the module vault
// account holding custodied funds.
func (m *Manager) EscrowVaultAddress() ([20]byte, error) {
	hash := ethcrypto.Keccak256(vaultAddrPreimage)
	var addr [20]byte
	copy(addr[:], hash[len(hash)-20:])
	return addr, nil
}

func (m *Manager) escrowVaultBalance(id escrow.EscrowID) (*big.Int, error) {
	data, err := m.db.Get(escrowVaultKey(id))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return big.NewInt(0), nil
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(data, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (m *Manager) writeEscrowVaultBalance(id escrow.EscrowID, balance *big.Int) error {
	encoded, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return err
	}
	return m.db.Put(escrowVaultKey(id), encoded)
}

// EscrowCredit records custody taken for the escrow. The record must exist
// and the amount must be non-negative.
func (m *Manager) EscrowCredit(id escrow.EscrowID, amt *big.Int) error {
	if amt == nil {
		amt = big.NewInt(0)
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("state: negative escrow credit")
	}
	if !m.EscrowHas(id) {
		return fmt.Errorf("state: credit for unknown escrow %d", id)
	}
	balance, err := m.escrowVaultBalance(id)
	if err != nil {
		return err
	}
	return m.writeEscrowVaultBalance(id, new(big.Int).Add(balance, amt))
}

// EscrowDebit releases custody held for the escrow. Debiting more than the
// held balance fails without mutating state.
func (m *Manager) EscrowDebit(id escrow.EscrowID, amt *big.Int) error {
	if amt == nil {
		amt = big.NewInt(0)
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("state: negative escrow debit")
	}
	balance, err := m.escrowVaultBalance(id)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("state: escrow balance underflow")
	}
	return m.writeEscrowVaultBalance(id, new(big.Int).Sub(balance, amt))
}

// EscrowVaultBalance reports how much custody the vault currently holds for
// the escrow.
func (m *Manager) EscrowVaultBalance(id escrow.EscrowID) (*big.Int, error) {
	return m.escrowVaultBalance(id)
}
