package state

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"escrowledger/core/types"
	"escrowledger/native/escrow"
	"escrowledger/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db)
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestEscrowPutGetRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	esc := &escrow.Escrow{
		ID:             4,
		Buyer:          testAddr(0x01),
		Seller:         testAddr(0x02),
		Amount:         big.NewInt(1_000_000),
		BuyerApproved:  true,
		SellerApproved: false,
		State:          escrow.EscrowFunded,
		CreatedAt:      1_695_000_000,
	}
	if err := mgr.EscrowPut(esc); err != nil {
		t.Fatalf("EscrowPut: %v", err)
	}
	stored, ok := mgr.EscrowGet(4)
	if !ok {
		t.Fatalf("EscrowGet: expected escrow to exist")
	}
	if stored.ID != esc.ID || stored.Buyer != esc.Buyer || stored.Seller != esc.Seller {
		t.Fatalf("identity fields mutated during round trip: %+v", stored)
	}
	if stored.Amount == nil || stored.Amount.Cmp(esc.Amount) != 0 {
		t.Fatalf("unexpected amount: %v", stored.Amount)
	}
	if stored.Amount == esc.Amount {
		t.Fatalf("EscrowGet should clone the amount pointer")
	}
	if !stored.BuyerApproved || stored.SellerApproved {
		t.Fatalf("approval flags mutated during round trip")
	}
	if stored.State != escrow.EscrowFunded {
		t.Fatalf("unexpected state: %s", stored.State)
	}
	if stored.CreatedAt != esc.CreatedAt {
		t.Fatalf("unexpected createdAt: %d", stored.CreatedAt)
	}

	// Reads are copies: mutating the returned record must not leak into the
	// store.
	stored.Amount.SetInt64(1)
	stored.State = escrow.EscrowCanceled
	fresh, _ := mgr.EscrowGet(4)
	if fresh.Amount.Cmp(esc.Amount) != 0 || fresh.State != escrow.EscrowFunded {
		t.Fatalf("store must hold records by value, got %+v", fresh)
	}
}

func TestEscrowGetMissing(t *testing.T) {
	mgr := newTestManager(t)
	if esc, ok := mgr.EscrowGet(0); ok || esc != nil {
		t.Fatalf("expected missing escrow to return nothing, got %+v", esc)
	}
	if mgr.EscrowHas(0) {
		t.Fatalf("EscrowHas must be false for missing records")
	}
}

func TestEscrowHas(t *testing.T) {
	mgr := newTestManager(t)
	esc := &escrow.Escrow{
		ID:     11,
		Buyer:  testAddr(0x01),
		Seller: testAddr(0x02),
		Amount: big.NewInt(5),
		State:  escrow.EscrowCreated,
	}
	if err := mgr.EscrowPut(esc); err != nil {
		t.Fatalf("EscrowPut: %v", err)
	}
	if !mgr.EscrowHas(11) {
		t.Fatalf("EscrowHas must report stored records")
	}
}

func TestEscrowNextIDMonotonic(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := NewManager(db)
	for want := uint64(0); want < 5; want++ {
		id, err := mgr.EscrowNextID()
		if err != nil {
			t.Fatalf("EscrowNextID #%d: %v", want, err)
		}
		if uint64(id) != want {
			t.Fatalf("expected id %d, got %d", want, id)
		}
	}
	// The counter is persisted, not in-memory: a fresh manager over the same
	// database continues the sequence.
	reopened := NewManager(db)
	id, err := reopened.EscrowNextID()
	if err != nil {
		t.Fatalf("EscrowNextID after reopen: %v", err)
	}
	if id != 5 {
		t.Fatalf("expected id 5 after reopen, got %d", id)
	}
}

func TestEscrowNextIDOverflow(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	mgr := NewManager(db)
	encoded, err := rlp.EncodeToBytes(uint64(math.MaxUint64))
	if err != nil {
		t.Fatalf("encode counter: %v", err)
	}
	if err := db.Put(escrowSeqKey, encoded); err != nil {
		t.Fatalf("seed counter: %v", err)
	}
	if _, err := mgr.EscrowNextID(); !errors.Is(err, escrow.ErrIDOverflow) {
		t.Fatalf("expected ErrIDOverflow, got %v", err)
	}
	// The failed allocation must not disturb the counter.
	if _, err := mgr.EscrowNextID(); !errors.Is(err, escrow.ErrIDOverflow) {
		t.Fatalf("expected ErrIDOverflow on retry, got %v", err)
	}
}

func TestEscrowCreditDebit(t *testing.T) {
	mgr := newTestManager(t)
	esc := &escrow.Escrow{
		ID:     2,
		Buyer:  testAddr(0x04),
		Seller: testAddr(0x05),
		Amount: big.NewInt(5000),
		State:  escrow.EscrowCreated,
	}
	if err := mgr.EscrowPut(esc); err != nil {
		t.Fatalf("EscrowPut: %v", err)
	}
	if err := mgr.EscrowCredit(2, big.NewInt(5)); err != nil {
		t.Fatalf("credit #1 failed: %v", err)
	}
	if err := mgr.EscrowCredit(2, big.NewInt(7)); err != nil {
		t.Fatalf("credit #2 failed: %v", err)
	}
	if err := mgr.EscrowDebit(2, big.NewInt(4)); err != nil {
		t.Fatalf("debit #1 failed: %v", err)
	}
	if err := mgr.EscrowDebit(2, big.NewInt(9)); err == nil {
		t.Fatalf("expected debit to fail when exceeding balance")
	}
	if err := mgr.EscrowDebit(2, big.NewInt(8)); err != nil {
		t.Fatalf("debit #2 failed: %v", err)
	}
	if err := mgr.EscrowDebit(2, big.NewInt(1)); err == nil {
		t.Fatalf("expected debit on empty balance to fail")
	}
	if err := mgr.EscrowCredit(2, big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative credit to fail")
	}
	if err := mgr.EscrowCredit(99, big.NewInt(1)); err == nil {
		t.Fatalf("expected credit on unknown escrow to fail")
	}
}

func TestAccountRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	addr := testAddr(0x07)
	acc, err := mgr.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acc.Balance == nil || acc.Balance.Sign() != 0 {
		t.Fatalf("absent account must read as zero balance, got %v", acc.Balance)
	}
	if err := mgr.PutAccount(addr[:], &types.Account{Nonce: 3, Balance: big.NewInt(42)}); err != nil {
		t.Fatalf("PutAccount: %v", err)
	}
	stored, err := mgr.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if stored.Nonce != 3 || stored.Balance.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected account after round trip: %+v", stored)
	}
	if err := mgr.PutAccount(addr[:], &types.Account{Balance: big.NewInt(-1)}); err == nil {
		t.Fatalf("expected negative balance to be rejected")
	}
	if err := mgr.PutAccount(addr[:], nil); err == nil {
		t.Fatalf("expected nil account to be rejected")
	}
}

func TestEscrowVaultAddressDeterministic(t *testing.T) {
	mgr := newTestManager(t)
	first, err := mgr.EscrowVaultAddress()
	if err != nil {
		t.Fatalf("EscrowVaultAddress: %v", err)
	}
	if first == ([20]byte{}) {
		t.Fatalf("vault address must be non-zero")
	}
	second, _ := newTestManager(t).EscrowVaultAddress()
	if first != second {
		t.Fatalf("vault address must be deterministic: %x vs %x", first, second)
	}
}
