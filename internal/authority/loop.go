// Package authority runs the single-authority block production loop: a
// fixed-interval ticker that drains pending transactions from the
// mempool, assembles and signs a block, commits it locally, and hands it
// off for gossip.
package authority

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/evice-network/evice-chain/internal/chain"
	"github.com/evice-network/evice-chain/internal/cryptoutil"
)

// DefaultInterval is the reference tick period between block production
// attempts.
const DefaultInterval = 10 * time.Second

// DefaultMaxTransactionsPerBlock bounds how many pending transactions a
// single block may include.
const DefaultMaxTransactionsPerBlock = 10

// Drainer supplies the pending transactions a new block may include.
type Drainer interface {
	Drain(max int) []chain.Transaction
}

// Chain is the subset of *blockchain.Blockchain the authority loop needs
// to produce a block.
type Chain interface {
	CreateBlock(txs []chain.Transaction, authority chain.Address, sign func(chain.Block) chain.Signature) (chain.Block, error)
}

// Loop owns the authority's signing key and drives periodic block
// production.
type Loop struct {
	interval      time.Duration
	maxTxPerBlock int

	chain   Chain
	pool    Drainer
	keyPair cryptoutil.KeyPair
	address chain.Address

	publish func(chain.Block)

	logger *log.Entry
}

// Option customizes a Loop's construction.
type Option func(*Loop)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

// WithMaxTransactionsPerBlock overrides DefaultMaxTransactionsPerBlock.
func WithMaxTransactionsPerBlock(n int) Option {
	return func(l *Loop) { l.maxTxPerBlock = n }
}

// New constructs a Loop that signs with keyPair and hands every produced
// block to publish.
func New(chainHandle Chain, pool Drainer, keyPair cryptoutil.KeyPair, publish func(chain.Block), opts ...Option) *Loop {
	l := &Loop{
		interval:      DefaultInterval,
		maxTxPerBlock: DefaultMaxTransactionsPerBlock,
		chain:         chainHandle,
		pool:          pool,
		keyPair:       keyPair,
		address:       chain.NewAddress(keyPair.PublicKey),
		publish:       publish,
		logger:        log.WithField("component", "authority"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run blocks, ticking every l.interval, until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.WithFields(log.Fields{
		"interval":      l.interval,
		"max_per_block": l.maxTxPerBlock,
	}).Info("authority loop starting")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("authority loop stopping")
			return
		case <-ticker.C:
			if l.tick() {
				l.logger.Warn("authority loop stopping: publish channel closed")
				return
			}
		}
	}
}

// tick drains the mempool, produces and commits one block if there is
// anything to include, and publishes it. It reports stop=true when the
// publish channel has been closed underneath it, the signal that the
// network layer is gone and the loop should exit rather than keep ticking.
func (l *Loop) tick() (stop bool) {
	txs := l.pool.Drain(l.maxTxPerBlock)
	if len(txs) == 0 {
		return false
	}

	block, err := l.chain.CreateBlock(txs, l.address, func(b chain.Block) chain.Signature {
		return chain.SignBlock(b.Hash, l.keyPair)
	})
	if err != nil {
		l.logger.WithError(err).Error("failed to produce block")
		return false
	}

	l.logger.WithFields(log.Fields{
		"index":    block.Index,
		"tx_count": len(txs),
	}).Info("produced and committed block")

	return l.publishBlock(block)
}

// publishBlock calls l.publish, recovering a panic from a send on a closed
// publish channel (the network layer having shut down) into stop=true
// instead of letting it crash the process.
func (l *Loop) publishBlock(block chain.Block) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			stop = true
		}
	}()
	l.publish(block)
	return false
}
