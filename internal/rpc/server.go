// Package rpc implements the JSON-RPC 2.0 API server.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/lashd/config"
	"github.com/Klingon-tech/lashd/internal/electrum"
	"github.com/Klingon-tech/lashd/internal/gate"
	klog "github.com/Klingon-tech/lashd/internal/log"
	"github.com/Klingon-tech/lashd/internal/metrics"
	"github.com/Klingon-tech/lashd/internal/payment"
	"github.com/Klingon-tech/lashd/internal/queue"
	"github.com/Klingon-tech/lashd/internal/store"
	"github.com/Klingon-tech/lashd/pkg/nostr"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Payments sends payments and looks up their receipts.
type Payments interface {
	SendTransaction(ctx context.Context, req *payment.TransactionRequest) *payment.TransactionResult
	SendBatch(ctx context.Context, req *payment.BatchRequest) *payment.BatchResult
	IntentReceipt(ctx context.Context, txHash, intentID string) (*payment.IntentReceipt, error)
}

// Eligibility answers rate gate checks.
type Eligibility interface {
	Check(ctx context.Context, sender string) (*gate.Eligibility, error)
}

// Chain reads chain state through the Electrum client.
type Chain interface {
	Tip(ctx context.Context, eps []electrum.Endpoint) (*electrum.Header, error)
	FetchBalances(ctx context.Context, eps []electrum.Endpoint, addresses []string) (*electrum.BalanceReport, error)
}

// Events is the relay publisher and pending event queue.
type Events interface {
	Enqueue(ctx context.Context, ev *nostr.Event, owner string) (*store.PendingEvent, error)
	PublishOrEnqueue(ctx context.Context, ev *nostr.Event, owner string) (*queue.Delivery, error)
	Pending(ctx context.Context, owner string) ([]*store.PendingEvent, error)
	Retry(ctx context.Context, oldEventID string, ev *nostr.Event, owner string) (*queue.Delivery, error)
	Resolve(ctx context.Context, eventID, reason string) error
}

// Backend groups the services exposed over RPC. A nil service disables
// its methods.
type Backend struct {
	Payments    Payments
	Eligibility Eligibility
	Chain       Chain
	Events      Events
}

// Server is the JSON-RPC 2.0 HTTP server.
type Server struct {
	addr        string
	backend     Backend
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new RPC server. The rpcCfg parameter controls IP filtering
// and CORS. A zero-value RPCConfig allows all IPs and disables CORS.
// Metrics are served on /metrics when withMetrics is set; /healthz is
// always served.
func New(addr string, backend Backend, rpcCfg config.RPCConfig, withMetrics bool) *Server {
	s := &Server{
		addr:        addr,
		backend:     backend,
		logger:      klog.WithComponent("rpc"),
		allowedNets: parseAllowedIPs(rpcCfg.AllowedIPs),
		corsOrigins: rpcCfg.CORSOrigins,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	mux.HandleFunc("/healthz", metrics.Health)
	if withMetrics {
		mux.Handle("/metrics", metrics.Handler())
	}

	s.server = &http.Server{
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		// Sends wait on several Electrum round trips and a broadcast.
		WriteTimeout: 2 * time.Minute,
	}

	return s
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("RPC server listening")
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleRequest is the main HTTP handler for JSON-RPC requests.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	// IP filtering.
	if len(s.allowedNets) > 0 {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ip := net.ParseIP(host)
		if ip == nil || !s.isIPAllowed(ip) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}

	// CORS headers.
	s.setCORSHeaders(w, r)

	// Handle CORS preflight.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, nil, CodeInvalidRequest, "only POST method is allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		writeError(w, nil, CodeParseError, "failed to read request body")
		return
	}
	if len(body) > maxBodySize {
		writeError(w, nil, CodeInvalidRequest, "request body too large")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, CodeParseError, "invalid JSON")
		return
	}

	if req.JSONRPC != "2.0" {
		writeError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	start := time.Now()
	result, rpcErr := s.dispatch(r.Context(), &req)
	if rpcErr != nil {
		s.logger.Debug().Str("method", req.Method).Int("code", rpcErr.Code).
			Dur("took", time.Since(start)).Msg(rpcErr.Message)
		writeJSON(w, Response{
			JSONRPC: "2.0",
			Error:   rpcErr,
			ID:      req.ID,
		})
		return
	}
	s.logger.Debug().Str("method", req.Method).Dur("took", time.Since(start)).Msg("RPC call")

	writeJSON(w, Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

// dispatch routes a request to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, req *Request) (interface{}, *Error) {
	switch req.Method {
	case "payment_send":
		return s.handlePaymentSend(ctx, req)
	case "payment_sendBatch":
		return s.handlePaymentSendBatch(ctx, req)
	case "payment_getReceipt":
		return s.handlePaymentGetReceipt(ctx, req)
	case "wallet_getBalances":
		return s.handleWalletGetBalances(ctx, req)
	case "gate_checkEligibility":
		return s.handleGateCheckEligibility(ctx, req)
	case "chain_getHeight":
		return s.handleChainGetHeight(ctx, req)
	case "relay_publish":
		return s.handleRelayPublish(ctx, req)
	case "relay_queueEvent":
		return s.handleRelayQueueEvent(ctx, req)
	case "relay_getPending":
		return s.handleRelayGetPending(ctx, req)
	case "relay_retryEvent":
		return s.handleRelayRetryEvent(ctx, req)
	case "relay_resolveEvent":
		return s.handleRelayResolveEvent(ctx, req)
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

// writeJSON writes a JSON-RPC response.
func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON-RPC error response.
func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	writeJSON(w, Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	})
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// parseParams unmarshals the request params into the given target.
func parseParams(req *Request, target interface{}) *Error {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return &Error{Code: CodeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(req.Params, target); err != nil {
		return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// parseEndpoints parses an optional endpoint override list.
func parseEndpoints(list []string) ([]electrum.Endpoint, *Error) {
	if len(list) == 0 {
		return nil, nil
	}
	eps, err := electrum.ParseEndpoints(list)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	return eps, nil
}

func invalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: msg}
}

func disabled(what string) *Error {
	return &Error{Code: CodeUnavailable, Message: what + " not enabled"}
}
