// Package p2p composes a libp2p host with gossip broadcast, mDNS and DHT
// discovery, and a block-range sync protocol into the node's network
// behavior, mirroring the corpus's NewNode-plus-discovery-notifee
// composition style.
package p2p

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	log "github.com/sirupsen/logrus"

	"github.com/evice-network/evice-chain/internal/chain"
	"github.com/evice-network/evice-chain/internal/mempool"
)

const discoveryTag = "evice-blockchain-mdns"

// ChainView is the subset of *blockchain.Blockchain the P2P node needs:
// enough to answer sync requests and append blocks learned from peers.
type ChainView interface {
	Height() uint64
	Tip() chain.Block
	Block(index uint64) (chain.Block, error)
	AddBlock(b chain.Block) error
}

// Node is this process's libp2p presence: a host, a gossip topic, and a
// sync stream handler, wired to the local chain and mempool.
type Node struct {
	host   host.Host
	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	dht    *dht.IpfsDHT

	chain ChainView
	pool  *mempool.Mempool

	ctx    context.Context
	cancel context.CancelFunc

	outbound  chan ChainMessage
	closeOnce sync.Once

	logger *log.Entry
}

// Config configures a Node at construction time.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	Chain          ChainView
	Mempool        *mempool.Mempool
}

// outboundCapacity bounds the authority loop's publish channel: large
// enough that a 10s tick producing one bounded block never blocks in
// practice, small enough to catch a stuck P2P task quickly.
const outboundCapacity = 100

// New creates and starts a libp2p node: host, gossipsub with strict
// signing, the sync protocol handler, mDNS discovery, and (if any
// bootstrap peer is configured) a Kademlia DHT client.
func New(cfg Config) (*Node, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("p2p: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h, pubsub.WithMessageSignaturePolicy(pubsub.StrictSign))
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("p2p: create gossipsub: %w", err)
	}

	n := &Node{
		host:     h,
		pubsub:   ps,
		chain:    cfg.Chain,
		pool:     cfg.Mempool,
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan ChainMessage, outboundCapacity),
		logger:   log.WithField("component", "p2p"),
	}

	topic, err := ps.Join(GossipTopic)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("p2p: join topic %s: %w", GossipTopic, err)
	}
	n.topic = topic

	sub, err := topic.Subscribe()
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("p2p: subscribe topic %s: %w", GossipTopic, err)
	}
	n.sub = sub

	h.SetStreamHandler(SyncProtocolID, n.handleSyncStream)
	h.Network().Notify(&connNotifiee{node: n})

	mdns.NewMdnsService(h, discoveryTag, &mdnsNotifee{node: n})

	if len(cfg.BootstrapPeers) > 0 {
		kad, err := dht.New(ctx, h, dht.Mode(dht.ModeClient))
		if err != nil {
			n.logger.WithError(err).Warn("kademlia DHT init failed")
		} else {
			n.dht = kad
			if err := kad.Bootstrap(ctx); err != nil {
				n.logger.WithError(err).Warn("kademlia bootstrap query failed")
			}
		}
		n.dialSeeds(cfg.BootstrapPeers)
	}

	go n.gossipLoop()
	go n.outboundLoop()

	return n, nil
}

func (n *Node) dialSeeds(seeds []string) {
	for _, addr := range seeds {
		maddr, err := ma.NewMultiaddr(addr)
		if err != nil {
			n.logger.WithError(err).WithField("addr", addr).Warn("invalid bootstrap multiaddr")
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			n.logger.WithError(err).WithField("addr", addr).Warn("invalid bootstrap peer info")
			continue
		}
		if err := n.host.Connect(n.ctx, *info); err != nil {
			n.logger.WithError(err).WithField("peer", info.ID).Warn("failed to dial bootstrap peer")
			continue
		}
		n.logger.WithField("peer", info.ID).Info("connected to bootstrap peer")
	}
}

// Publish enqueues msg for broadcast on the gossip topic. It blocks if
// the outbound channel is full rather than dropping the message, which
// under the reference 10-second tick and bounded block size should not
// happen in steady state. Once the node is closed the outbound channel is
// closed too, so a Publish call racing a shutdown panics on a send to a
// closed channel rather than hanging forever; callers that may outlive
// the node (the authority loop) recover from that panic themselves.
func (n *Node) Publish(msg ChainMessage) {
	n.outbound <- msg
}

// Close tears down the node: stops the sync/gossip goroutines, closes the
// outbound publish channel so callers still holding Publish learn the node
// is gone, and closes the libp2p host.
func (n *Node) Close() error {
	n.cancel()
	n.closeOnce.Do(func() { close(n.outbound) })
	if n.dht != nil {
		_ = n.dht.Close()
	}
	return n.host.Close()
}

// ID returns this node's libp2p peer ID.
func (n *Node) ID() peer.ID { return n.host.ID() }

// Addrs returns this node's listen multiaddresses.
func (n *Node) Addrs() []ma.Multiaddr { return n.host.Addrs() }

var _ network.Notifiee = (*connNotifiee)(nil)
