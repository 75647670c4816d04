// Package rpc serves the HTTP view of the primary ledger and its mirrors:
// entitlement status, price quotes, tree roots and the Merkle proofs
// relayers submit to secondary chains. The only write is the proof
// submission itself, which needs no credentials because the mirror checks
// every proof against a relayed root.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"subsync/core"
	"subsync/crypto"
	nativecommon "subsync/native/common"
	"subsync/native/mirror"
	"subsync/native/pricing"
	"subsync/native/subscription"
	"subsync/storage/smt"
)

const maxRequestBody = 64 << 10

// PrimaryBackend is the read surface of the primary chain.
type PrimaryBackend interface {
	SubscriptionStatus(account [20]byte) (*core.Status, error)
	Cost(account [20]byte, token string, duration uint64, badge [20]byte) (*pricing.Quote, error)
	SyncRoot() (common.Hash, error)
	Proof(account [20]byte) (*smt.Proof, error)
}

// MirrorBackend is the surface of one secondary chain.
type MirrorBackend interface {
	SubscriptionStatus(account [20]byte) (*core.Status, error)
	LatestRoot() (*core.Checkpoint, error)
	SyncSubscription(ctx context.Context, account [20]byte, window subscription.Window, proof *smt.Proof) error
}

type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    float64
	Burst        int
}

type Server struct {
	cfg     Config
	chainID uint16
	primary PrimaryBackend
	mirrors map[uint16]MirrorBackend
	logger  *slog.Logger
	limiter *rateLimiter
	handler http.Handler
	http    *http.Server
}

// NewServer builds the router. mirrors is keyed by secondary chain id.
func NewServer(cfg Config, chainID uint16, primary PrimaryBackend, mirrors map[uint16]MirrorBackend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if mirrors == nil {
		mirrors = map[uint16]MirrorBackend{}
	}
	s := &Server{
		cfg:     cfg,
		chainID: chainID,
		primary: primary,
		mirrors: mirrors,
		logger:  logger.With(slog.String("component", "rpc")),
		limiter: newRateLimiter(cfg.RateLimit, cfg.Burst),
	}
	s.handler = otelhttp.NewHandler(s.routes(), "subsync-rpc")
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(observe(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.limiter.middleware)
		v1.Get("/subscriptions/{account}", s.handleSubscription)
		v1.Get("/pricing/cost", s.handleCost)
		v1.Get("/sync/root", s.handleSyncRoot)
		v1.Get("/sync/proof/{account}", s.handleProof)
		v1.Get("/mirror/{chain}/subscriptions/{account}", s.handleMirrorSubscription)
		v1.Get("/mirror/{chain}/roots/latest", s.handleMirrorRoot)
		v1.Post("/mirror/{chain}/sync", s.handleMirrorSync)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("rpc listening", slog.String("address", s.cfg.Address))
		errs <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			_ = s.http.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	status, err := s.primary.SubscriptionStatus(account)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse(account, s.chainID, status))
}

func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	account, err := crypto.ParseAddress(query.Get("account"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_account", err.Error())
		return
	}
	token := strings.TrimSpace(query.Get("token"))
	if token == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_token", "token is required")
		return
	}
	duration, err := strconv.ParseUint(strings.TrimSpace(query.Get("duration")), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_duration", "duration must be an unsigned integer of seconds")
		return
	}
	var badge [20]byte
	if raw := strings.TrimSpace(query.Get("badge")); raw != "" {
		if badge, err = crypto.ParseAddress(raw); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_badge", err.Error())
			return
		}
	}
	quote, err := s.primary.Cost(account, token, duration, badge)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse(account, quote))
}

func (s *Server) handleSyncRoot(w http.ResponseWriter, r *http.Request) {
	root, err := s.primary.SyncRoot()
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RootResponse{ChainID: s.chainID, Root: root.Hex(), Known: true})
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	proof, err := s.primary.Proof(account)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	resp, err := proofResponse(account, proof)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMirrorSubscription(w http.ResponseWriter, r *http.Request) {
	chainID, backend, ok := s.mirrorParam(w, r)
	if !ok {
		return
	}
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	status, err := backend.SubscriptionStatus(account)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse(account, chainID, status))
}

func (s *Server) handleMirrorRoot(w http.ResponseWriter, r *http.Request) {
	chainID, backend, ok := s.mirrorParam(w, r)
	if !ok {
		return
	}
	cp, err := backend.LatestRoot()
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rootResponse(chainID, cp))
}

func (s *Server) handleMirrorSync(w http.ResponseWriter, r *http.Request) {
	chainID, backend, ok := s.mirrorParam(w, r)
	if !ok {
		return
	}
	var req MirrorSyncRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	account, err := crypto.ParseAddress(req.Account)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_account", err.Error())
		return
	}
	raw, err := hexutil.Decode(req.Proof)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_proof", err.Error())
		return
	}
	proof, err := smt.DecodeProof(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_proof", err.Error())
		return
	}
	window := subscription.Window{Start: req.Start, End: req.End}
	if err := backend.SyncSubscription(r.Context(), account, window, proof); err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	status, err := backend.SubscriptionStatus(account)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse(account, chainID, status))
}

func (s *Server) accountParam(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	account, err := crypto.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_account", err.Error())
		return [20]byte{}, false
	}
	return account, true
}

func (s *Server) mirrorParam(w http.ResponseWriter, r *http.Request) (uint16, MirrorBackend, bool) {
	chainID, ok := parseChain(chi.URLParam(r, "chain"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid_chain", "chain must be a non-zero 16-bit id")
		return 0, nil, false
	}
	backend, ok := s.mirrors[chainID]
	if !ok {
		writeError(w, r, http.StatusNotFound, "unknown_chain", "no mirror for chain "+strconv.Itoa(int(chainID)))
		return 0, nil, false
	}
	return chainID, backend, true
}

var badRequestErrors = []error{
	pricing.ErrUnsupportedToken,
	pricing.ErrDurationTooShort,
	pricing.ErrZeroDuration,
	pricing.ErrZeroAddress,
	pricing.ErrUnsupportedBadge,
	mirror.ErrInvalidWindow,
}

// proofErrors reject a submitted window without touching the mirror.
var proofErrors = []error{
	mirror.ErrUnknownRoot,
	mirror.ErrInvalidProofKey,
	mirror.ErrInvalidProofValue,
	mirror.ErrInvalidProof,
}

func (s *Server) writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			writeError(w, r, http.StatusBadRequest, "rejected", err.Error())
			return
		}
	}
	for _, target := range proofErrors {
		if errors.Is(err, target) {
			writeError(w, r, http.StatusUnprocessableEntity, "proof_rejected", err.Error())
			return
		}
	}
	if errors.Is(err, nativecommon.ErrModulePaused) {
		writeError(w, r, http.StatusConflict, "paused", err.Error())
		return
	}
	if errors.Is(err, core.ErrChainClosed) {
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	s.logger.Error("rpc backend failure",
		slog.String("path", r.URL.Path),
		slog.String("request_id", requestID(r.Context())),
		slog.Any("error", err))
	writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
}
