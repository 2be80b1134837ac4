package p2p

import (
	"encoding/json"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/evice-network/evice-chain/internal/chain"
)

// connNotifiee reacts to new libp2p connections by kicking off a sync
// request against the newly connected peer, so a node that just joined
// (or reconnected) catches up immediately rather than waiting for the
// next gossip message.
type connNotifiee struct{ node *Node }

func (c *connNotifiee) Listen(network.Network, ma.Multiaddr)      {}
func (c *connNotifiee) ListenClose(network.Network, ma.Multiaddr) {}
func (c *connNotifiee) Disconnected(network.Network, network.Conn) {}

func (c *connNotifiee) Connected(_ network.Network, conn network.Conn) {
	remote := conn.RemotePeer()
	if remote == c.node.host.ID() {
		return
	}
	go c.node.requestSync(remote)
}

// mdnsNotifee connects to peers discovered on the local network.
type mdnsNotifee struct{ node *Node }

func (m *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	n := m.node
	if info.ID == n.host.ID() {
		return
	}
	if err := n.host.Connect(n.ctx, info); err != nil {
		n.logger.WithError(err).WithField("peer", info.ID).Warn("failed to connect to mDNS peer")
		return
	}
	n.logger.WithField("peer", info.ID).Info("connected to peer via mDNS")
}

// gossipLoop reads every message delivered on the gossip subscription
// and dispatches it by kind. Decode failures and application errors are
// logged and the message is dropped; a single bad message never brings
// down the loop.
func (n *Node) gossipLoop() {
	for {
		msg, err := n.sub.Next(n.ctx)
		if err != nil {
			if n.ctx.Err() != nil {
				return
			}
			n.logger.WithError(err).Warn("gossip subscription error")
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}

		var cm ChainMessage
		if err := json.Unmarshal(msg.Data, &cm); err != nil {
			n.logger.WithError(err).Error("failed to decode gossip message")
			continue
		}

		switch cm.Kind {
		case kindBlock:
			n.handleGossipBlock(cm.Block)
		case kindTx:
			n.handleGossipTx(cm.Transaction)
		default:
			n.logger.WithField("kind", cm.Kind).Warn("unknown gossip message kind")
		}
	}
}

func (n *Node) handleGossipBlock(b *chain.Block) {
	if b == nil {
		return
	}
	if b.Index <= n.chain.Height() {
		return
	}
	if err := n.chain.AddBlock(*b); err != nil {
		n.logger.WithError(err).WithField("index", b.Index).Warn("rejected gossiped block")
	}
}

func (n *Node) handleGossipTx(tx *chain.Transaction) {
	if tx == nil {
		return
	}
	if err := n.pool.AdmitFromNetwork(*tx); err != nil {
		n.logger.WithError(err).Debug("rejected gossiped transaction")
	}
}

// outboundLoop drains the authority loop's publish channel and gossips
// each message, in order.
func (n *Node) outboundLoop() {
	for {
		select {
		case <-n.ctx.Done():
			return
		case msg, ok := <-n.outbound:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				n.logger.WithError(err).Error("failed to encode outbound gossip message")
				continue
			}
			if err := n.topic.Publish(n.ctx, data); err != nil {
				n.logger.WithError(err).Warn("failed to publish gossip message")
			}
		}
	}
}
