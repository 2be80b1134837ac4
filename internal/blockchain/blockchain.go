// Package blockchain owns the canonical chain of blocks: producing new
// blocks from a candidate transaction set, validating and appending
// blocks received from peers, and reconstructing the chain from the
// state store at startup.
package blockchain

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/evice-network/evice-chain/internal/chain"
	"github.com/evice-network/evice-chain/internal/state"
)

// AllowListFunc reports whether addr is authorized to produce blocks.
// A nil AllowListFunc means any authority address is accepted, which is
// the single-authority default: the one configured signer is the only
// caller of CreateBlock in that process.
type AllowListFunc func(addr chain.Address) bool

// Blockchain guards the canonical chain and its account state behind a
// single lock: every read and write to either goes through Blockchain,
// mirroring how a single-writer ledger is expected to be used.
type Blockchain struct {
	mu sync.RWMutex

	store     *state.Store
	tipBlock  chain.Block
	allowlist AllowListFunc

	logger *log.Entry
}

// Open loads (or initializes) the chain backed by store. If the store has
// no tip yet, genesis is committed as block 0.
func Open(store *state.Store, allowlist AllowListFunc) (*Blockchain, error) {
	bc := &Blockchain{
		store:     store,
		allowlist: allowlist,
		logger:    log.WithField("component", "blockchain"),
	}

	tipIndex, err := store.Tip()
	if err == state.ErrNoTip {
		genesis := chain.Genesis()
		if err := store.CommitBlock(genesis, state.StagedAccounts{}); err != nil {
			return nil, fmt.Errorf("blockchain: commit genesis: %w", err)
		}
		bc.tipBlock = genesis
		bc.logger.Info("initialized chain with genesis block")
		return bc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blockchain: read tip: %w", err)
	}

	tip, err := store.GetBlock(tipIndex)
	if err != nil {
		return nil, fmt.Errorf("blockchain: load tip block %d: %w", tipIndex, err)
	}
	bc.tipBlock = tip
	bc.logger.WithField("height", tipIndex).Info("loaded existing chain")
	return bc, nil
}

// Height returns the index of the current tip block.
func (bc *Blockchain) Height() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tipBlock.Index
}

// Tip returns a copy of the current tip block.
func (bc *Blockchain) Tip() chain.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tipBlock
}

// Block returns the block at index, or an error if it has not been
// persisted.
func (bc *Blockchain) Block(index uint64) (chain.Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.store.GetBlock(index)
}

// CreateBlock builds, validates, stages, and commits a new block on top
// of the current tip containing txs, signed by authority's key pair. It
// is the entry point used by the authority's own production loop.
func (bc *Blockchain) CreateBlock(txs []chain.Transaction, authority chain.Address, sign func(chain.Block) chain.Signature) (chain.Block, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.allowlist != nil && !bc.allowlist(authority) {
		return chain.Block{}, fmt.Errorf("blockchain: %s is not an authorized authority", authority)
	}

	staged, err := bc.store.ValidateAndStage(txs)
	if err != nil {
		return chain.Block{}, fmt.Errorf("blockchain: stage candidate block: %w", err)
	}

	candidate := chain.Block{
		Index:        bc.tipBlock.Index + 1,
		PrevHash:     bc.tipBlock.Hash,
		Transactions: txs,
		Authority:    authority,
	}
	candidate.TimestampMS = nowMillis()
	candidate.Hash = candidate.ComputeHash()
	candidate.Signature = sign(candidate)

	if err := bc.store.CommitBlock(candidate, staged); err != nil {
		return chain.Block{}, fmt.Errorf("blockchain: commit block %d: %w", candidate.Index, err)
	}
	bc.tipBlock = candidate

	bc.logger.WithFields(log.Fields{
		"height":   candidate.Index,
		"tx_count": len(txs),
	}).Info("produced block")

	return candidate, nil
}

// AddBlock validates and appends a block received from the network. It
// runs the full eight-step pipeline: index continuity, previous-hash
// linkage, hash recomputation, authority authorization, signature
// verification, per-transaction signature checks, staged ledger
// validation, and finally atomic commit.
func (bc *Blockchain) AddBlock(b chain.Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if b.Index != bc.tipBlock.Index+1 {
		return fmt.Errorf("blockchain: block index %d does not follow tip %d", b.Index, bc.tipBlock.Index)
	}
	if b.PrevHash != bc.tipBlock.Hash {
		return fmt.Errorf("blockchain: block %d prev_hash does not match tip hash", b.Index)
	}
	if b.ComputeHash() != b.Hash {
		return fmt.Errorf("blockchain: block %d hash does not match its contents", b.Index)
	}
	if bc.allowlist != nil && !bc.allowlist(b.Authority) {
		return fmt.Errorf("blockchain: block %d authority %s is not authorized", b.Index, b.Authority)
	}
	blockHash := b.Hash
	if !chain.VerifyBlockSignature(b.Authority, blockHash, b.Signature) {
		return fmt.Errorf("blockchain: block %d: %w", b.Index, chain.ErrBadSignature)
	}

	for i, tx := range b.Transactions {
		if !tx.Verify() {
			return fmt.Errorf("blockchain: block %d tx %d: %w", b.Index, i, chain.ErrBadSignature)
		}
	}

	staged, err := bc.store.ValidateAndStage(b.Transactions)
	if err != nil {
		return fmt.Errorf("blockchain: block %d: %w", b.Index, err)
	}

	if err := bc.store.CommitBlock(b, staged); err != nil {
		bc.logger.WithError(err).WithField("height", b.Index).Error("failed to commit block")
		return fmt.Errorf("blockchain: commit block %d: %w", b.Index, err)
	}
	bc.tipBlock = b

	bc.logger.WithFields(log.Fields{
		"height":   b.Index,
		"tx_count": len(b.Transactions),
	}).Info("appended block from network")

	return nil
}

// Account returns the current balance/nonce for addr.
func (bc *Blockchain) Account(addr chain.Address) (chain.Account, bool, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.store.GetAccount(addr)
}
