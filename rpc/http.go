package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError       = -32700
	codeInvalidRequest   = -32600
	codeMethodNotFound   = -32601
	codeInvalidParams    = -32602
	codeServerError      = -32000
	codeUnauthorized     = -32001
	codeNotFound         = -32004
	codeInvalidState     = -32009
	codeCapacityExceeded = -32011
	codeTransferFailure  = -32012
)

// Server exposes the staking engine over JSON-RPC 2.0. Administrative methods
// require the configured bearer token; everything else is open.
type Server struct {
	engine    *staking.Engine
	authToken string
	log       *slog.Logger
	persist   func() error
}

// Option configures a Server.
type Option func(*Server)

// WithPersist registers a hook invoked after every successful mutating call,
// used by the daemon to write a ledger snapshot.
func WithPersist(persist func() error) Option {
	return func(s *Server) { s.persist = persist }
}

// WithAuthToken overrides the token read from STAKEVAULT_RPC_TOKEN.
func WithAuthToken(token string) Option {
	return func(s *Server) { s.authToken = token }
}

func NewServer(engine *staking.Engine, log *slog.Logger, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		authToken: strings.TrimSpace(os.Getenv("STAKEVAULT_RPC_TOKEN")),
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Router mounts the RPC endpoint alongside health and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on the given address, blocking until the listener
// fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeEngineError maps engine sentinel errors onto JSON-RPC codes.
func writeEngineError(w http.ResponseWriter, id interface{}, method string, err error) {
	metrics.Staking().ObserveError(method)
	switch {
	case errors.Is(err, staking.ErrInvalidParameter):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error())
	case errors.Is(err, staking.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, err.Error())
	case errors.Is(err, staking.ErrInvalidState):
		writeError(w, http.StatusConflict, id, codeInvalidState, err.Error())
	case errors.Is(err, staking.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, id, codeCapacityExceeded, err.Error())
	case errors.Is(err, staking.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error())
	case errors.Is(err, staking.ErrTransferFailure):
		writeError(w, http.StatusBadGateway, id, codeTransferFailure, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error())
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body")
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large")
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
		return
	}
	if handler.admin && !s.authorized(r) {
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, "administrative method requires a valid bearer token")
		return
	}

	handler.fn(w, req)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return false
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

type method struct {
	admin bool
	fn    func(http.ResponseWriter, RPCRequest)
}

func (s *Server) methods() map[string]method {
	return map[string]method{
		"staking_deposit":           {fn: s.handleDeposit},
		"staking_withdraw":          {fn: s.handleWithdraw},
		"staking_emergencyWithdraw": {fn: s.handleEmergencyWithdraw},
		"staking_claim":             {fn: s.handleClaim},
		"staking_position":          {fn: s.handlePosition},
		"staking_positionCount":     {fn: s.handlePositionCount},
		"staking_totalStaked":       {fn: s.handleTotalStaked},
		"staking_tierCount":         {fn: s.handleTierCount},
		"staking_tiers":             {fn: s.handleTiers},
		"staking_setRewardRate":     {admin: true, fn: s.handleSetRewardRate},
		"staking_setStakingCap":     {admin: true, fn: s.handleSetStakingCap},
		"staking_addTier":           {admin: true, fn: s.handleAddTier},
		"staking_recoverToken":      {admin: true, fn: s.handleRecoverToken},
	}
}

// afterMutation drains engine events into the log and runs the persistence
// hook. Snapshot failures are logged, not surfaced: the in-memory ledger, not
// the snapshot, is authoritative.
func (s *Server) afterMutation() {
	for _, evt := range s.engine.DrainEvents() {
		attrs := make([]any, 0, len(evt.Attributes)*2)
		for k, v := range evt.Attributes {
			attrs = append(attrs, k, v)
		}
		s.log.Info(evt.Type, attrs...)
	}
	if s.persist != nil {
		if err := s.persist(); err != nil {
			s.log.Error("snapshot persist failed", "error", err)
		}
	}
}

func decodeParams(w http.ResponseWriter, req RPCRequest, dst interface{}) bool {
	if len(req.Params) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "missing params")
		return false
	}
	if err := json.Unmarshal(req.Params, dst); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "malformed params")
		return false
	}
	return true
}

func parseOwner(w http.ResponseWriter, req RPCRequest, raw string) (crypto.Address, bool) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("invalid address: %v", err))
		return crypto.Address{}, false
	}
	return addr, true
}

func parseBigAmount(w http.ResponseWriter, req RPCRequest, field, raw string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("%s must be a base-10 integer", field))
		return nil, false
	}
	return v, true
}
