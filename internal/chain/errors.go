package chain

import "errors"

// Sentinel errors surfaced by the data model and consumed by the
// blockchain validation pipeline and the mempool. Each maps to one row of
// the error taxonomy: reject the offending item, log at the severity named
// there, never panic on attacker-controlled input.
var (
	ErrCorruptAccountRecord = errors.New("chain: corrupt account record")
	ErrFixedBytesWrongSize  = errors.New("chain: fixed-size field has wrong byte length")
	ErrBadSignature         = errors.New("chain: bad signature")
	ErrBadNonce             = errors.New("chain: nonce does not match account nonce")
	ErrStaleNonce           = errors.New("chain: nonce already used or replayed")
	ErrUnknownSender        = errors.New("chain: unknown sender account")
	ErrInsufficientBalance  = errors.New("chain: insufficient balance")
	ErrBalanceOverflow      = errors.New("chain: recipient balance overflow")
	ErrNonceOverflow        = errors.New("chain: sender nonce overflow")
)
