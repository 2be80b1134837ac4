package blockchain

import (
	"testing"

	"github.com/evice-network/evice-chain/internal/chain"
	"github.com/evice-network/evice-chain/internal/cryptoutil"
	"github.com/evice-network/evice-chain/internal/state"
)

func newTestChain(t *testing.T, allow AllowListFunc) (*Blockchain, *state.Store) {
	t.Helper()
	store, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	bc, err := Open(store, allow)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return bc, store
}

func signerFor(kp cryptoutil.KeyPair) func(chain.Block) chain.Signature {
	return func(b chain.Block) chain.Signature { return chain.SignBlock(b.Hash, kp) }
}

func TestOpenInitializesGenesis(t *testing.T) {
	bc, _ := newTestChain(t, nil)
	if bc.Height() != 0 {
		t.Fatalf("expected height 0, got %d", bc.Height())
	}
	if bc.Tip().Hash != chain.Genesis().Hash {
		t.Fatal("expected tip to be the genesis block")
	}
}

func TestCreateBlockAppendsAndPersists(t *testing.T) {
	bc, _ := newTestChain(t, nil)
	authorityKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	authority := chain.NewAddress(authorityKP.PublicKey)

	senderKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	senderAddr := chain.NewAddress(senderKP.PublicKey)
	if err := bc.store.SetAccount(senderAddr, chain.Account{Balance: 100, Nonce: 0}); err != nil {
		t.Fatalf("SetAccount: %v", err)
	}
	recipientKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	recipientAddr := chain.NewAddress(recipientKP.PublicKey)

	tx := chain.Sign(chain.Transaction{Sender: senderAddr, Recipient: recipientAddr, Amount: 40, Nonce: 0}, senderKP)

	block, err := bc.CreateBlock([]chain.Transaction{tx}, authority, signerFor(authorityKP))
	if err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	if block.Index != 1 {
		t.Fatalf("expected index 1, got %d", block.Index)
	}
	if bc.Height() != 1 {
		t.Fatalf("expected chain height 1, got %d", bc.Height())
	}

	acc, _, err := bc.Account(recipientAddr)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acc.Balance != 40 {
		t.Fatalf("expected recipient balance 40, got %d", acc.Balance)
	}
}

func TestCreateBlockRejectsUnauthorizedAuthority(t *testing.T) {
	authorityKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	allow := func(addr chain.Address) bool { return false }
	bc, _ := newTestChain(t, allow)
	authority := chain.NewAddress(authorityKP.PublicKey)

	if _, err := bc.CreateBlock(nil, authority, signerFor(authorityKP)); err == nil {
		t.Fatal("expected error for unauthorized authority")
	}
}

func TestAddBlockRejectsWrongIndex(t *testing.T) {
	bc, _ := newTestChain(t, nil)
	authorityKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	authority := chain.NewAddress(authorityKP.PublicKey)

	b := chain.Block{Index: 5, PrevHash: bc.Tip().Hash, Authority: authority}
	b.Hash = b.ComputeHash()
	b.Signature = chain.SignBlock(b.Hash, authorityKP)

	if err := bc.AddBlock(b); err == nil {
		t.Fatal("expected error for non-contiguous index")
	}
}

func TestAddBlockRejectsBadPrevHash(t *testing.T) {
	bc, _ := newTestChain(t, nil)
	authorityKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	authority := chain.NewAddress(authorityKP.PublicKey)

	b := chain.Block{Index: 1, PrevHash: chain.Hash{0xFF}, Authority: authority}
	b.Hash = b.ComputeHash()
	b.Signature = chain.SignBlock(b.Hash, authorityKP)

	if err := bc.AddBlock(b); err == nil {
		t.Fatal("expected error for mismatched prev_hash")
	}
}

func TestAddBlockRejectsBadBlockSignature(t *testing.T) {
	bc, _ := newTestChain(t, nil)
	authorityKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	otherKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	authority := chain.NewAddress(authorityKP.PublicKey)

	b := chain.Block{Index: 1, PrevHash: bc.Tip().Hash, Authority: authority}
	b.Hash = b.ComputeHash()
	b.Signature = chain.SignBlock(b.Hash, otherKP) // signed by the wrong key

	if err := bc.AddBlock(b); err == nil {
		t.Fatal("expected error for invalid block signature")
	}
}

func TestAddBlockRejectsInvalidTransaction(t *testing.T) {
	bc, _ := newTestChain(t, nil)
	authorityKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	authority := chain.NewAddress(authorityKP.PublicKey)

	senderKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	recipientKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	tx := chain.Sign(chain.Transaction{
		Sender:    chain.NewAddress(senderKP.PublicKey),
		Recipient: chain.NewAddress(recipientKP.PublicKey),
		Amount:    1,
		Nonce:     0,
	}, senderKP)
	tx.Amount = 999 // tamper after signing

	b := chain.Block{Index: 1, PrevHash: bc.Tip().Hash, Authority: authority, Transactions: []chain.Transaction{tx}}
	b.Hash = b.ComputeHash()
	b.Signature = chain.SignBlock(b.Hash, authorityKP)

	if err := bc.AddBlock(b); err == nil {
		t.Fatal("expected error for invalid transaction signature")
	}
}

func TestReopenReconstructsChainFromStore(t *testing.T) {
	dir := t.TempDir()
	store, err := state.Open(dir)
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}

	bc, err := Open(store, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	authorityKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	authority := chain.NewAddress(authorityKP.PublicKey)
	if _, err := bc.CreateBlock(nil, authority, signerFor(authorityKP)); err != nil {
		t.Fatalf("CreateBlock: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := state.Open(dir)
	if err != nil {
		t.Fatalf("state.Open (reopen): %v", err)
	}
	defer reopened.Close()

	bc2, err := Open(reopened, nil)
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	if bc2.Height() != 1 {
		t.Fatalf("expected reconstructed height 1, got %d", bc2.Height())
	}
}
