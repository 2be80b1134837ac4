package chain

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/evice-network/evice-chain/internal/cryptoutil"
)

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

func (h Hash) Bytes() []byte {
	out := make([]byte, len(h))
	copy(out, h[:])
	return out
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return marshalFixedBytes(h[:])
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	b, err := unmarshalFixedBytes(data, 32)
	if err != nil {
		return err
	}
	copy(h[:], b)
	return nil
}

// GenesisTimestampMillis is the fixed wall-clock value (ms since epoch)
// embedded in the genesis block, identical on every node so genesis hashes
// match byte for byte. Equivalent to 2024-01-01T00:00:00Z.
const GenesisTimestampMillis uint64 = 1704067200000

// Block is a cryptographically linked unit of the chain: an ordered list
// of transactions, signed by the authority that produced it.
type Block struct {
	Index        uint64        `json:"index"`
	TimestampMS  uint64        `json:"timestamp_ms"`
	PrevHash     Hash          `json:"prev_hash"`
	Hash         Hash          `json:"hash"`
	Transactions []Transaction `json:"transactions"`
	Signature    Signature     `json:"signature"`
	Authority    Address       `json:"authority"`
}

// ComputeHash returns the canonical block hash: SHA-256 over
// index(BE8) ‖ timestamp(BE16, high half zero) ‖ prev_hash ‖ authority ‖
// H(concat of each transaction's message hash). Neither Hash nor Signature
// participate in their own computation.
func (b Block) ComputeHash() Hash {
	txDigest := hashTransactionList(b.Transactions)

	buf := make([]byte, 0, 8+16+32+AddressSize+32)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], b.Index)
	buf = append(buf, idx[:]...)

	var ts [16]byte
	binary.BigEndian.PutUint64(ts[8:], b.TimestampMS) // high half always zero
	buf = append(buf, ts[:]...)

	buf = append(buf, b.PrevHash[:]...)
	buf = append(buf, b.Authority[:]...)
	buf = append(buf, txDigest[:]...)

	return sha256.Sum256(buf)
}

// hashTransactionList is the single-pass digest (not a Merkle root) over
// the concatenation of each transaction's message hash, in block order.
func hashTransactionList(txs []Transaction) [32]byte {
	h := sha256.New()
	for _, tx := range txs {
		mh := tx.MessageHash()
		h.Write(mh[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SignBlock signs a block's hash with the authority's key pair, returning
// the detached signature to embed in the block's Signature field.
func SignBlock(hash Hash, kp cryptoutil.KeyPair) Signature {
	raw := kp.Sign(hash[:])
	var sig Signature
	copy(sig[:], raw)
	return sig
}

// VerifyBlockSignature checks that sig is a valid signature by authority
// over hash.
func VerifyBlockSignature(authority Address, hash Hash, sig Signature) bool {
	return cryptoutil.Verify(authority[:], hash[:], sig[:])
}

// Genesis returns the fixed genesis block. It is pure and deterministic:
// every node that calls it computes byte-identical output, including Hash.
func Genesis() Block {
	b := Block{
		Index:        0,
		TimestampMS:  GenesisTimestampMillis,
		PrevHash:     Hash{}, // 32 zero bytes
		Transactions: nil,
		Signature:    Signature{},
		Authority:    ZeroAddress,
	}
	b.Hash = b.ComputeHash()
	return b
}
