package p2p

import "github.com/evice-network/evice-chain/internal/chain"

// GossipTopic is the single pubsub topic blocks and transactions are
// broadcast on.
const GossipTopic = "evice-blockchain-topic"

// SyncProtocolID names the stream protocol used for block-range catch-up.
const SyncProtocolID = "/evice-blockchain/sync/1.0"

// ChainMessage is the JSON tagged union gossiped over GossipTopic: exactly
// one of Block or Transaction is set, selected by Kind.
type ChainMessage struct {
	Kind        string             `json:"kind"`
	Block       *chain.Block       `json:"block,omitempty"`
	Transaction *chain.Transaction `json:"transaction,omitempty"`
}

const (
	kindBlock = "block"
	kindTx    = "tx"
)

// NewBlockMessage wraps a block for gossip.
func NewBlockMessage(b chain.Block) ChainMessage {
	return ChainMessage{Kind: kindBlock, Block: &b}
}

// NewTransactionMessage wraps a transaction for gossip.
func NewTransactionMessage(tx chain.Transaction) ChainMessage {
	return ChainMessage{Kind: kindTx, Transaction: &tx}
}

// SyncRequest asks a peer for every block after SinceIndex.
type SyncRequest struct {
	SinceIndex uint64 `cbor:"since_index"`
}

// SyncResponse carries the requested blocks in ascending index order.
type SyncResponse struct {
	Blocks []chain.Block `cbor:"blocks"`
}
