package rpcserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evice-network/evice-chain/internal/chain"
	"github.com/evice-network/evice-chain/internal/cryptoutil"
)

type fakeChainReader struct {
	height uint64
	blocks map[uint64]chain.Block
}

func (f *fakeChainReader) Height() uint64 { return f.height }

func (f *fakeChainReader) Block(index uint64) (chain.Block, error) {
	b, ok := f.blocks[index]
	if !ok {
		return chain.Block{}, chain.ErrCorruptAccountRecord // stand-in not-found error for this fake
	}
	return b, nil
}

type fakeSubmitter struct {
	accept bool
	last   chain.Transaction
}

func (f *fakeSubmitter) Submit(tx chain.Transaction) error {
	f.last = tx
	if !f.accept {
		return chain.ErrUnknownSender
	}
	return nil
}

func newTestServer(reader *fakeChainReader, submitter *fakeSubmitter, gossip func(chain.Transaction)) *Server {
	return New(":0", reader, submitter, gossip)
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(&fakeChainReader{}, &fakeSubmitter{accept: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("expected body 'ok', got %q", rec.Body.String())
	}
}

func TestHandleBlockCount(t *testing.T) {
	s := newTestServer(&fakeChainReader{height: 4}, &fakeSubmitter{accept: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/block_count", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var count uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &count); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected block count 5 (height+1), got %d", count)
	}
}

func TestHandleBlockFound(t *testing.T) {
	genesis := chain.Genesis()
	reader := &fakeChainReader{height: 0, blocks: map[uint64]chain.Block{0: genesis}}
	s := newTestServer(reader, &fakeSubmitter{accept: true}, nil)

	req := httptest.NewRequest(http.MethodGet, "/block/0", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var decoded chain.Block
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Hash != genesis.Hash {
		t.Fatal("returned block hash mismatch")
	}
}

func TestHandleBlockNotFound(t *testing.T) {
	reader := &fakeChainReader{height: 0, blocks: map[uint64]chain.Block{}}
	s := newTestServer(reader, &fakeSubmitter{accept: true}, nil)

	req := httptest.NewRequest(http.MethodGet, "/block/99", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleBlockBadIndex(t *testing.T) {
	s := newTestServer(&fakeChainReader{}, &fakeSubmitter{accept: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/block/not-a-number", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func newSampleTx(t *testing.T) chain.Transaction {
	t.Helper()
	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	recipientKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return chain.Sign(chain.Transaction{
		Sender:    chain.NewAddress(kp.PublicKey),
		Recipient: chain.NewAddress(recipientKP.PublicKey),
		Amount:    1,
		Nonce:     0,
	}, kp)
}

func TestHandleTransactionAdmitsAndBroadcasts(t *testing.T) {
	tx := newSampleTx(t)
	submitter := &fakeSubmitter{accept: true}
	var broadcast chain.Transaction
	gossiped := false
	s := newTestServer(&fakeChainReader{}, submitter, func(t chain.Transaction) {
		gossiped = true
		broadcast = t
	})

	body, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/transaction", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !gossiped {
		t.Fatal("expected transaction to be broadcast")
	}
	if broadcast.Sender != tx.Sender {
		t.Fatal("broadcast transaction did not match submitted transaction")
	}
}

func TestHandleTransactionRejectsInvalid(t *testing.T) {
	tx := newSampleTx(t)
	s := newTestServer(&fakeChainReader{}, &fakeSubmitter{accept: false}, nil)

	body, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/transaction", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleTransactionRejectsMalformedBody(t *testing.T) {
	s := newTestServer(&fakeChainReader{}, &fakeSubmitter{accept: true}, nil)
	req := httptest.NewRequest(http.MethodPost, "/transaction", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
