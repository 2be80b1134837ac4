// Package chain defines the canonical block and transaction data model:
// the wire and hashing layout shared by the state machine, the blockchain
// validation pipeline, the mempool, and the P2P gossip/sync codecs.
package chain

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/evice-network/evice-chain/internal/cryptoutil"
)

// AddressSize is the length in bytes of an Address, fixed by the signature
// scheme's public key size.
const AddressSize = cryptoutil.PublicKeySize

// Address identifies an account; it is the account's Ed25519 public key.
type Address [AddressSize]byte

// ZeroAddress is the all-zero address used by the genesis block, which has
// no real authority.
var ZeroAddress Address

// NewAddress copies b into a fixed-size Address. It panics if b is not
// exactly AddressSize bytes, which indicates a programming error at the
// call site (malformed wire input is rejected earlier, during decode).
func NewAddress(b []byte) Address {
	var a Address
	if len(b) != AddressSize {
		panic("chain: address must be exactly AddressSize bytes")
	}
	copy(a[:], b)
	return a
}

// Bytes returns a independent copy of the address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out
}

func (a Address) String() string {
	return base64.StdEncoding.EncodeToString(a[:])
}

// MarshalJSON encodes the address as a base64 string, matching Go's
// standard encoding for byte slices and keeping the gossip wire format
// simple JSON.
func (a Address) MarshalJSON() ([]byte, error) {
	return marshalFixedBytes(a[:])
}

// UnmarshalJSON decodes a base64-encoded address.
func (a *Address) UnmarshalJSON(data []byte) error {
	b, err := unmarshalFixedBytes(data, AddressSize)
	if err != nil {
		return err
	}
	copy(a[:], b)
	return nil
}

// Signature is a detached signature over a message hash.
type Signature [cryptoutil.SignatureSize]byte

func (s Signature) Bytes() []byte {
	out := make([]byte, len(s))
	copy(out, s[:])
	return out
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return marshalFixedBytes(s[:])
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	b, err := unmarshalFixedBytes(data, cryptoutil.SignatureSize)
	if err != nil {
		return err
	}
	copy(s[:], b)
	return nil
}

// Account is the per-address state: spendable balance and the count of
// transactions already applied from this account (equal to the next
// acceptable nonce).
type Account struct {
	Balance uint64
	Nonce   uint64
}

// accountEncodingSize is the fixed length of an Account's on-disk binary
// encoding: 8 bytes balance, 8 bytes nonce, both big-endian.
const accountEncodingSize = 16

// EncodeAccount serializes an Account to its fixed-length on-disk form.
func EncodeAccount(a Account) []byte {
	buf := make([]byte, accountEncodingSize)
	binary.BigEndian.PutUint64(buf[0:8], a.Balance)
	binary.BigEndian.PutUint64(buf[8:16], a.Nonce)
	return buf
}

// DecodeAccount parses an Account from its on-disk form. It fails if buf is
// not exactly the expected length.
func DecodeAccount(buf []byte) (Account, error) {
	if len(buf) != accountEncodingSize {
		return Account{}, ErrCorruptAccountRecord
	}
	return Account{
		Balance: binary.BigEndian.Uint64(buf[0:8]),
		Nonce:   binary.BigEndian.Uint64(buf[8:16]),
	}, nil
}
