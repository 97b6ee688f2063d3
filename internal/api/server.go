package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/lp-intermediary/swapd/internal/btcwatcher"
	"github.com/lp-intermediary/swapd/internal/config"
	"github.com/lp-intermediary/swapd/internal/identity"
	"github.com/lp-intermediary/swapd/internal/lightning"
	"github.com/lp-intermediary/swapd/internal/quote"
	"github.com/lp-intermediary/swapd/internal/storage"
	"github.com/lp-intermediary/swapd/pkg/logging"
)

// Server is the REST surface spec.md §6 describes, built on net/http the
// way the teacher's internal/rpc.Server is, generalized from a single
// JSON-RPC method table to a per-direction mux plus the numeric envelope.
type Server struct {
	cfg      *config.Config
	quotes   *quote.Engine
	store    *storage.Storage
	identity *identity.Service
	btc       *btcwatcher.Watcher
	ln        lightning.Node
	depositKey *btcec.PrivateKey
	btcParams  *chaincfg.Params
	log        *logging.Logger

	server   *http.Server
	listener net.Listener
	wsHub    *WSHub
}

// New wires a Server from its collaborators. ln may be nil if no configured
// direction uses Lightning. depositKey derives each FromBtc swap's one-off
// deposit address (internal/btcsend.DeriveDepositAddress); it may be nil if
// no configured direction uses from-btc-onchain.
func New(cfg *config.Config, quotes *quote.Engine, store *storage.Storage, id *identity.Service, btc *btcwatcher.Watcher, ln lightning.Node, depositKey *btcec.PrivateKey, btcParams *chaincfg.Params) *Server {
	return &Server{
		cfg:        cfg,
		quotes:     quotes,
		store:      store,
		identity:   id,
		btc:        btc,
		ln:         ln,
		depositKey: depositKey,
		btcParams:  btcParams,
		log:        logging.GetDefault().Component("api"),
	}
}

// Start binds addr and begins serving the REST surface plus the WebSocket
// status-streaming endpoint.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.wsHub = NewWSHub()
	go s.wsHub.Run()

	mux := http.NewServeMux()
	for _, dir := range config.AllDirections {
		d := dir // capture
		mux.HandleFunc("POST /"+string(d)+"/getAddress", s.withTimeout(s.handleCreateQuote(d)))
		mux.HandleFunc("POST /"+string(d)+"/createInvoice", s.withTimeout(s.handleCreateQuote(d)))
		mux.HandleFunc("POST /"+string(d)+"/payInvoice", s.withTimeout(s.handleCreateQuote(d)))
		mux.HandleFunc("GET /"+string(d)+"/getInvoiceStatus", s.withTimeout(s.handleStatus(d)))
	}
	mux.HandleFunc("POST /info", s.withTimeout(s.handleInfo))
	mux.HandleFunc("GET /ws", s.handleWS)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  s.cfg.RequestTimeout,
		WriteTimeout: s.cfg.RequestTimeout,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("api server error", "err", err)
		}
	}()

	s.log.Info("api server started", "addr", addr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// withTimeout applies the composite cancellation signal spec.md §5 requires:
// the request's own context (cancelled on client disconnect or server
// shutdown) bounded by RequestTimeout.
func (s *Server) withTimeout(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		h(w, r.WithContext(ctx))
	}
}
