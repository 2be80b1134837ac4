package p2p

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
)

// maxFrameSize bounds a single CBOR frame on the sync protocol, guarding
// against a misbehaving peer claiming an unbounded length prefix.
const maxFrameSize = 64 << 20

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("p2p: sync frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// handleSyncStream serves one inbound sync request: decode the request,
// gather every block with index strictly greater than SinceIndex, and
// write back the CBOR-encoded response.
func (n *Node) handleSyncStream(s network.Stream) {
	defer s.Close()

	reqBytes, err := readFrame(s)
	if err != nil {
		n.logger.WithError(err).Warn("failed to read sync request")
		return
	}
	var req SyncRequest
	if err := cbor.Unmarshal(reqBytes, &req); err != nil {
		n.logger.WithError(err).Warn("failed to decode sync request")
		return
	}

	resp := SyncResponse{}
	tip := n.chain.Height()
	for i := req.SinceIndex + 1; i <= tip; i++ {
		b, err := n.chain.Block(i)
		if err != nil {
			n.logger.WithError(err).WithField("index", i).Warn("failed to load block for sync response")
			break
		}
		resp.Blocks = append(resp.Blocks, b)
	}

	respBytes, err := cbor.Marshal(resp)
	if err != nil {
		n.logger.WithError(err).Error("failed to encode sync response")
		return
	}
	if err := writeFrame(s, respBytes); err != nil {
		n.logger.WithError(err).Warn("failed to write sync response")
	}
}

// requestSync asks remote for every block after our current tip and
// applies the response in order, stopping at the first block AddBlock
// rejects rather than skipping ahead.
func (n *Node) requestSync(remote peer.ID) {
	s, err := n.host.NewStream(n.ctx, remote, SyncProtocolID)
	if err != nil {
		n.logger.WithError(err).WithField("peer", remote).Warn("failed to open sync stream")
		return
	}
	defer s.Close()

	req := SyncRequest{SinceIndex: n.chain.Height()}
	reqBytes, err := cbor.Marshal(req)
	if err != nil {
		n.logger.WithError(err).Error("failed to encode sync request")
		return
	}
	if err := writeFrame(s, reqBytes); err != nil {
		n.logger.WithError(err).Warn("failed to write sync request")
		return
	}

	respBytes, err := readFrame(s)
	if err != nil {
		n.logger.WithError(err).WithField("peer", remote).Warn("failed to read sync response")
		return
	}
	var resp SyncResponse
	if err := cbor.Unmarshal(respBytes, &resp); err != nil {
		n.logger.WithError(err).Warn("failed to decode sync response")
		return
	}

	for _, b := range resp.Blocks {
		if b.Index <= n.chain.Height() {
			continue
		}
		if err := n.chain.AddBlock(b); err != nil {
			n.logger.WithError(err).WithField("index", b.Index).Warn("stopping sync: block rejected")
			return
		}
	}
}
