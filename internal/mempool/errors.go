package mempool

import "errors"

// ErrDuplicateTransaction is returned when a transaction with the same
// full field equality (sender, recipient, amount, nonce, and signature)
// has already been admitted.
var ErrDuplicateTransaction = errors.New("mempool: duplicate transaction")

// ErrPoolFull is returned when the mempool has reached its configured
// capacity and cannot admit another transaction.
var ErrPoolFull = errors.New("mempool: pool is full")
