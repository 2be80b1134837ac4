// Package rpcserver exposes the node's HTTP/JSON surface: transaction
// submission and chain queries, plus the ambient health check every
// long-running node in this style of deployment carries.
package rpcserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/evice-network/evice-chain/internal/chain"
)

// ChainReader is the subset of *blockchain.Blockchain the RPC surface
// reads from.
type ChainReader interface {
	Height() uint64
	Block(index uint64) (chain.Block, error)
}

// TransactionSubmitter admits a client-submitted transaction into the
// mempool.
type TransactionSubmitter interface {
	Submit(tx chain.Transaction) error
}

// Server wraps a go-chi router exposing the node's RPC surface over
// HTTP/JSON.
type Server struct {
	router chi.Router

	chain   ChainReader
	pool    TransactionSubmitter
	gossip  func(tx chain.Transaction)
	logger  *log.Entry
	httpSrv *http.Server
}

// New builds the router. gossipFn is called with every transaction
// admitted through POST /transaction so it can be published to peers;
// pass nil to disable broadcast (e.g. in tests).
func New(addr string, chainReader ChainReader, pool TransactionSubmitter, gossipFn func(tx chain.Transaction)) *Server {
	s := &Server{
		chain:  chainReader,
		pool:   pool,
		gossip: gossipFn,
		logger: log.WithField("component", "rpc"),
	}
	s.routes()
	s.httpSrv = &http.Server{Addr: addr, Handler: s.router}
	return s
}

// Start blocks, serving HTTP until the server is closed or errors.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpSrv.Addr).Info("rpc server listening")
	return s.httpSrv.ListenAndServe()
}

// Close shuts the HTTP server down.
func (s *Server) Close() error {
	return s.httpSrv.Close()
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/block_count", s.handleBlockCount)
	r.Get("/block/{index}", s.handleBlock)
	r.Post("/transaction", s.handleTransaction)

	s.router = r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (s *Server) handleBlockCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.chain.Height()+1)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	indexStr := chi.URLParam(r, "index")
	index, err := strconv.ParseUint(indexStr, 10, 64)
	if err != nil {
		http.Error(w, "bad block index", http.StatusBadRequest)
		return
	}
	block, err := s.chain.Block(index)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, block)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var tx chain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, "malformed transaction body", http.StatusBadRequest)
		return
	}

	if err := s.pool.Submit(tx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.gossip != nil {
		broadcastFailed := func() (failed bool) {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("broadcast channel unavailable")
					failed = true
				}
			}()
			s.gossip(tx)
			return false
		}()
		if broadcastFailed {
			http.Error(w, "broadcast channel closed", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, map[string]string{"status": "admitted"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode response body")
	}
}
