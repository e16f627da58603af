// Package rpc exposes the marketplace ledger over JSON-RPC: a single HTTP
// endpoint for request/response methods, a websocket stream for events and a
// line-delimited stdio transport for embedding.
package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"marketplaced/core"
	"marketplaced/inspect"
	"marketplaced/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeConflict       = -32010
	codeRateLimited    = -32020
)

// Server routes JSON-RPC requests to the node and the read-only inspector.
type Server struct {
	node      *core.Node
	inspector *inspect.Service
	log       *slog.Logger

	authToken string

	limiterMu  sync.Mutex
	limiters   map[string]*rate.Limiter
	limitRate  rate.Limit
	limitBurst int
}

// Option customizes server construction.
type Option func(*Server)

// WithAuthToken sets the bearer token required for mutating methods. An empty
// token leaves writes disabled over HTTP.
func WithAuthToken(token string) Option {
	return func(s *Server) { s.authToken = strings.TrimSpace(token) }
}

// WithRateLimit overrides the per-source request budget.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 {
			s.limitRate = rate.Limit(perSecond)
		}
		if burst > 0 {
			s.limitBurst = burst
		}
	}
}

// WithLogger sets the structured logger used for request diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer wires a JSON-RPC server around the given node.
func NewServer(node *core.Node, opts ...Option) *Server {
	s := &Server{
		node:       node,
		inspector:  inspect.NewService(node, node.Program()),
		log:        slog.Default(),
		limiters:   make(map[string]*rate.Limiter),
		limitRate:  rate.Limit(50),
		limitBurst: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler tree: the JSON-RPC endpoint at /, the event
// stream at /ws/events, liveness at /healthz and prometheus at /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/", otelhttp.NewHandler(http.HandlerFunc(s.handle), "rpc"))
	r.Get("/ws/events", s.handleEventsWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id interface{}, rpcErr *RPCError) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func errObj(code int, message string, data interface{}) *RPCError {
	e := &RPCError{Code: code, Message: message}
	if data != nil {
		e.Data = data
	}
	return e
}

// handle is the main request handler for the HTTP transport.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	if !s.allowSource(clientIP(r)) {
		observability.RPC().RecordThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, errObj(codeRateLimited, "too many requests", nil))
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, errObj(codeInvalidRequest, message, err.Error()))
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, errObj(codeInvalidRequest, "request body required", nil))
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, errObj(codeParseError, "invalid JSON payload", err.Error()))
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, errObj(codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC))
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, errObj(codeInvalidRequest, "method required", nil))
		return
	}

	if mutatingMethods[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			observability.RPC().RecordThrottle("unauthorized")
			writeError(w, http.StatusUnauthorized, req.ID, authErr)
			return
		}
	}

	start := time.Now()
	result, rpcErr := s.dispatch(req)
	if rpcErr != nil {
		observability.RPC().Observe(req.Method, rpcErr.Code, time.Since(start))
		s.log.Warn("rpc call failed", "method", req.Method, "code", rpcErr.Code, "error", rpcErr.Message)
		writeError(w, httpStatusFor(rpcErr.Code), req.ID, rpcErr)
		return
	}
	observability.RPC().Observe(req.Method, 0, time.Since(start))
	writeResult(w, req.ID, result)
}

func httpStatusFor(code int) int {
	switch code {
	case codeMethodNotFound, codeNotFound:
		return http.StatusNotFound
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeServerError:
		return http.StatusInternalServerError
	case codeConflict:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return errObj(codeUnauthorized, "RPC authentication token not configured", nil)
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return errObj(codeUnauthorized, "missing Authorization header", nil)
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return errObj(codeUnauthorized, "Authorization header must use Bearer scheme", nil)
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return errObj(codeUnauthorized, "missing bearer token", nil)
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return errObj(codeUnauthorized, "invalid RPC credentials", nil)
	}
	return nil
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.limitRate, s.limitBurst)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
