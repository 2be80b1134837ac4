// Package state persists accounts and blocks in an embedded ordered
// key-value store and implements the block-scoped staging algorithm that
// decides whether a block's transactions may be applied atomically.
package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
	log "github.com/sirupsen/logrus"

	"github.com/evice-network/evice-chain/internal/chain"
)

// Key namespace: a one-byte prefix keeps accounts, blocks, and chain
// metadata in disjoint key ranges within the same underlying database,
// the same layout certenIO's ledger store uses for its own tables.
const (
	prefixAccount byte = 0x01
	prefixBlock   byte = 0x02
	prefixMeta    byte = 0x03
)

var keyTip = []byte{prefixMeta, 't', 'i', 'p'}

func accountKey(addr chain.Address) []byte {
	buf := make([]byte, 0, 1+chain.AddressSize)
	buf = append(buf, prefixAccount)
	buf = append(buf, addr[:]...)
	return buf
}

func blockKey(index uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = prefixBlock
	binary.BigEndian.PutUint64(buf[1:], index)
	return buf
}

// Store is the embedded KV-backed ledger: account balances/nonces and the
// full block history. It assumes single-writer access, serialized
// upstream by the blockchain's lock; Store itself does no locking.
type Store struct {
	db     dbm.DB
	logger *log.Entry
}

// Open opens (creating if necessary) a GoLevelDB database rooted at dir.
func Open(dir string) (*Store, error) {
	db, err := dbm.NewGoLevelDB("evice-chain", dir)
	if err != nil {
		return nil, fmt.Errorf("state: open goleveldb at %s: %w", dir, err)
	}
	return &Store{
		db:     db,
		logger: log.WithField("component", "state"),
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetAccount returns the account stored at addr. exists is false when no
// record has ever been written for addr, in which case account is the
// zero value.
func (s *Store) GetAccount(addr chain.Address) (account chain.Account, exists bool, err error) {
	raw, err := s.db.Get(accountKey(addr))
	if err != nil {
		return chain.Account{}, false, fmt.Errorf("state: get account: %w", err)
	}
	if raw == nil {
		return chain.Account{}, false, nil
	}
	acc, err := chain.DecodeAccount(raw)
	if err != nil {
		return chain.Account{}, false, err
	}
	return acc, true, nil
}

// SetAccount writes a as the account record for addr, outside of the
// batch-commit path. Used for genesis and test setup.
func (s *Store) SetAccount(addr chain.Address, a chain.Account) error {
	return s.db.SetSync(accountKey(addr), chain.EncodeAccount(a))
}

// GetBlock returns the persisted block at index.
func (s *Store) GetBlock(index uint64) (chain.Block, error) {
	raw, err := s.db.Get(blockKey(index))
	if err != nil {
		return chain.Block{}, fmt.Errorf("state: get block: %w", err)
	}
	if raw == nil {
		return chain.Block{}, ErrBlockNotFound
	}
	var b chain.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return chain.Block{}, fmt.Errorf("state: decode block %d: %w", index, err)
	}
	return b, nil
}

// Tip returns the index of the most recently committed block.
func (s *Store) Tip() (uint64, error) {
	raw, err := s.db.Get(keyTip)
	if err != nil {
		return 0, fmt.Errorf("state: get tip: %w", err)
	}
	if raw == nil {
		return 0, ErrNoTip
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("state: corrupt tip record")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// StagedAccounts is the copy-on-write snapshot of every account touched by
// a candidate block, keyed by address.
type StagedAccounts map[chain.Address]chain.Account

// ValidateAndStage runs every transaction in txs against the persisted
// account state, in order, without writing anything. It builds up a
// staged snapshot so each transaction sees the effects of the ones before
// it in the same block, then returns that snapshot only if every
// transaction was valid. A single invalid transaction fails the whole
// batch: nothing is staged for a block that does not fully apply.
func (s *Store) ValidateAndStage(txs []chain.Transaction) (StagedAccounts, error) {
	staged := make(StagedAccounts)

	lookup := func(addr chain.Address) (chain.Account, bool, error) {
		if acc, ok := staged[addr]; ok {
			return acc, true, nil
		}
		return s.GetAccount(addr)
	}

	for i, tx := range txs {
		if !tx.Verify() {
			return nil, fmt.Errorf("tx %d: %w", i, chain.ErrBadSignature)
		}

		sender, exists, err := lookup(tx.Sender)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("tx %d: %w", i, chain.ErrUnknownSender)
		}
		if tx.Nonce != sender.Nonce {
			return nil, fmt.Errorf("tx %d: %w", i, chain.ErrBadNonce)
		}
		if sender.Balance < tx.Amount {
			return nil, fmt.Errorf("tx %d: %w", i, chain.ErrInsufficientBalance)
		}
		if sender.Nonce == ^uint64(0) {
			return nil, fmt.Errorf("tx %d: %w", i, chain.ErrNonceOverflow)
		}

		newSenderBalance := sender.Balance - tx.Amount
		newSenderNonce := sender.Nonce + 1

		if tx.Sender == tx.Recipient {
			// Self-transfer: the single account record is debited and
			// credited in the same step: balance is unchanged, the nonce
			// still advances exactly once.
			staged[tx.Sender] = chain.Account{Balance: newSenderBalance + tx.Amount, Nonce: newSenderNonce}
			continue
		}

		recipient, _, err := lookup(tx.Recipient)
		if err != nil {
			return nil, err
		}
		if recipient.Balance > ^uint64(0)-tx.Amount {
			return nil, fmt.Errorf("tx %d: %w", i, chain.ErrBalanceOverflow)
		}

		staged[tx.Sender] = chain.Account{Balance: newSenderBalance, Nonce: newSenderNonce}
		staged[tx.Recipient] = chain.Account{Balance: recipient.Balance + tx.Amount, Nonce: recipient.Nonce}
	}

	return staged, nil
}

// CommitBlock writes a block and its staged account updates in a single
// atomic batch, along with advancing the tip pointer. Either every key
// lands or none does.
func (s *Store) CommitBlock(b chain.Block, staged StagedAccounts) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	blockJSON, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("state: encode block %d: %w", b.Index, err)
	}
	if err := batch.Set(blockKey(b.Index), blockJSON); err != nil {
		return fmt.Errorf("state: stage block %d: %w", b.Index, err)
	}

	for addr, acc := range staged {
		if err := batch.Set(accountKey(addr), chain.EncodeAccount(acc)); err != nil {
			return fmt.Errorf("state: stage account: %w", err)
		}
	}

	var tip [8]byte
	binary.BigEndian.PutUint64(tip[:], b.Index)
	if err := batch.Set(keyTip, tip[:]); err != nil {
		return fmt.Errorf("state: stage tip: %w", err)
	}

	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("state: commit block %d: %w", b.Index, err)
	}

	s.logger.WithFields(log.Fields{
		"index":        b.Index,
		"accounts_set": len(staged),
		"tx_count":     len(b.Transactions),
	}).Debug("committed block")

	return nil
}
