package chain

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/evice-network/evice-chain/internal/cryptoutil"
)

// Transaction moves Amount from Sender to Recipient. The Signature is over
// MessageHash and is itself excluded from that hash, so signing never
// includes its own output.
type Transaction struct {
	Sender    Address   `json:"sender"`
	Recipient Address   `json:"recipient"`
	Amount    uint64    `json:"amount"`
	Nonce     uint64    `json:"nonce"`
	Signature Signature `json:"signature"`
}

// MessageHash returns the SHA-256 digest of the canonical signed payload:
// sender ‖ recipient ‖ amount(BE 8) ‖ nonce(BE 8).
func (tx Transaction) MessageHash() [32]byte {
	buf := make([]byte, 0, AddressSize*2+16)
	buf = append(buf, tx.Sender[:]...)
	buf = append(buf, tx.Recipient[:]...)
	var amt, nonce [8]byte
	binary.BigEndian.PutUint64(amt[:], tx.Amount)
	binary.BigEndian.PutUint64(nonce[:], tx.Nonce)
	buf = append(buf, amt[:]...)
	buf = append(buf, nonce[:]...)
	return sha256.Sum256(buf)
}

// Verify checks the transaction's signature against its sender address.
func (tx Transaction) Verify() bool {
	hash := tx.MessageHash()
	return cryptoutil.Verify(tx.Sender[:], hash[:], tx.Signature[:])
}

// Sign computes the transaction's message hash and signs it with kp,
// returning a copy of tx with the Signature field populated. kp's public
// key is expected (but not enforced here) to equal tx.Sender.
func Sign(tx Transaction, kp cryptoutil.KeyPair) Transaction {
	hash := tx.MessageHash()
	sig := kp.Sign(hash[:])
	var out Transaction = tx
	copy(out.Signature[:], sig)
	return out
}

// EqualityKey returns a value suitable for use as a map key that
// distinguishes transactions by every field, signature included — two
// different signed forms of the same logical transfer are distinct
// transactions for mempool and chain purposes.
func (tx Transaction) EqualityKey() [32]byte {
	buf := make([]byte, 0, AddressSize*2+16+len(tx.Signature))
	buf = append(buf, tx.Sender[:]...)
	buf = append(buf, tx.Recipient[:]...)
	var amt, nonce [8]byte
	binary.BigEndian.PutUint64(amt[:], tx.Amount)
	binary.BigEndian.PutUint64(nonce[:], tx.Nonce)
	buf = append(buf, amt[:]...)
	buf = append(buf, nonce[:]...)
	buf = append(buf, tx.Signature[:]...)
	return sha256.Sum256(buf)
}
