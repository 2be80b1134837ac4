// Package mempool holds unconfirmed transactions pending inclusion in a
// block. Admission from a local client is strict (signature, nonce,
// balance, dedup); admission relayed from the network skips the
// account-state checks, since a peer's transaction may reference state
// this node has not caught up to yet.
package mempool

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/evice-network/evice-chain/internal/chain"
)

// AccountSource is the read-only view of account state the mempool needs
// to pre-screen submissions. *blockchain.Blockchain satisfies it.
type AccountSource interface {
	Account(addr chain.Address) (chain.Account, bool, error)
}

// Mempool is a synchronized FIFO queue of pending transactions, keyed for
// dedup by full field equality.
type Mempool struct {
	mu       sync.Mutex
	queue    []chain.Transaction
	lookup   map[[32]byte]struct{}
	capacity int
	source   AccountSource
	logger   *log.Entry
}

// New creates an empty mempool bounded at capacity transactions, backed
// by source for nonce and balance pre-screening.
func New(capacity int, source AccountSource) *Mempool {
	return &Mempool{
		queue:    make([]chain.Transaction, 0, capacity),
		lookup:   make(map[[32]byte]struct{}),
		capacity: capacity,
		source:   source,
		logger:   log.WithField("component", "mempool"),
	}
}

// Submit admits a transaction originating from a local client. It
// verifies the signature, requires the sender to be a known account,
// requires tx.Nonce >= account.Nonce (a relaxation of the block
// pipeline's strict equality, since several pending transactions from
// the same sender may be queued at once), pre-screens the balance
// against the sender's last known balance, and rejects exact duplicates.
func (m *Mempool) Submit(tx chain.Transaction) error {
	if !tx.Verify() {
		return chain.ErrBadSignature
	}

	account, exists, err := m.source.Account(tx.Sender)
	if err != nil {
		return err
	}
	if !exists {
		return chain.ErrUnknownSender
	}
	if tx.Nonce < account.Nonce {
		return chain.ErrStaleNonce
	}
	if tx.Amount > account.Balance {
		return chain.ErrInsufficientBalance
	}

	return m.admit(tx)
}

// AdmitFromNetwork admits a transaction relayed by a peer. Only the
// signature is checked: nonce and balance may reference state this node
// has not yet observed, so those checks are deferred to block validation.
func (m *Mempool) AdmitFromNetwork(tx chain.Transaction) error {
	if !tx.Verify() {
		return chain.ErrBadSignature
	}
	return m.admit(tx)
}

func (m *Mempool) admit(tx chain.Transaction) error {
	key := tx.EqualityKey()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.lookup[key]; dup {
		return ErrDuplicateTransaction
	}
	if m.capacity > 0 && len(m.queue) >= m.capacity {
		return ErrPoolFull
	}

	m.lookup[key] = struct{}{}
	m.queue = append(m.queue, tx)

	m.logger.WithField("pool_size", len(m.queue)).Debug("admitted transaction")
	return nil
}

// Has reports whether a transaction with the given equality key is
// already in the pool.
func (m *Mempool) Has(key [32]byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup[key]
	return ok
}

// Size returns the number of transactions currently queued.
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Drain removes up to max transactions from the pool and returns them,
// grouped by sender in first-seen order and sorted by ascending nonce
// within each sender's group, so a block assembled directly from the
// result satisfies the chain's strict nonce-equality validation.
func (m *Mempool) Drain(max int) []chain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	if max <= 0 || max > len(m.queue) {
		max = len(m.queue)
	}
	selected := m.queue[:max]
	remaining := make([]chain.Transaction, len(m.queue)-max)
	copy(remaining, m.queue[max:])
	m.queue = remaining
	for _, tx := range selected {
		delete(m.lookup, tx.EqualityKey())
	}

	return orderBySenderThenNonce(selected)
}

// orderBySenderThenNonce groups txs by sender in first-seen order and
// sorts each group by ascending nonce, without disturbing the relative
// order between different senders' groups.
func orderBySenderThenNonce(txs []chain.Transaction) []chain.Transaction {
	order := make([]chain.Address, 0)
	groups := make(map[chain.Address][]chain.Transaction)
	for _, tx := range txs {
		if _, seen := groups[tx.Sender]; !seen {
			order = append(order, tx.Sender)
		}
		groups[tx.Sender] = append(groups[tx.Sender], tx)
	}

	out := make([]chain.Transaction, 0, len(txs))
	for _, sender := range order {
		group := groups[sender]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Nonce < group[j].Nonce })
		out = append(out, group...)
	}
	return out
}
