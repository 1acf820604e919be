package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/circuitbreaker"
	"github.com/yourorg/cctpr-engine/internal/config"
	"github.com/yourorg/cctpr-engine/internal/enterprise"
	"github.com/yourorg/cctpr-engine/internal/route"
	"github.com/yourorg/cctpr-engine/internal/security"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// trackTimeout bounds how long a tracked transfer is followed.
const trackTimeout = 45 * time.Minute

// Deps are the external collaborators of the server.
type Deps struct {
	Fast         cctpr.FastBurnSource
	Gasless      route.GaslessQuoter
	Attestations route.AttestationFinder
	Receives     route.ReceiveFinder
	// Signer, when set, signs route responses and issues off-chain quotes.
	Signer *security.Signer
}

// Server represents the route service instance
type Server struct {
	config config.Config
	deps   Deps

	finder   *route.Finder
	breaker  *circuitbreaker.CircuitBreaker
	tracker  *route.Executor
	bus      *route.Bus
	exporter *enterprise.EventExporter

	metrics   *serverMetrics
	rateLimit *rate.Limiter
	server    *http.Server

	trackCtx    context.Context
	trackCancel context.CancelFunc
	tracking    sync.WaitGroup
}

// NewServer creates a new server instance with its route finder and breaker
func NewServer(cfg config.Config, deps Deps) *Server {
	thresholds := circuitbreaker.Thresholds{MaxFeeChange: cfg.MaxFeeChange}
	if cfg.MaxRelayFeeUsdc > 0 {
		ceiling, err := amount.Parse(amount.Usdc, fmt.Sprintf("%g", cfg.MaxRelayFeeUsdc), "USDC")
		if err == nil {
			thresholds.MaxRelayFee = ceiling
		}
	}

	bus := route.NewBus(route.DefaultBusBuffer)
	s := &Server{
		config:    cfg,
		deps:      deps,
		bus:       bus,
		rateLimit: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		metrics:   registerMetrics(func() float64 { return float64(bus.Dropped()) }),
	}
	s.breaker = circuitbreaker.New(thresholds).
		WithTripCallback(func(lane circuitbreaker.Lane, reason string) {
			s.metrics.breakerState.WithLabelValues(lane.String()).Set(float64(circuitbreaker.StateOpen))
		})
	if cfg.CircuitResetDelay > 0 {
		s.breaker.WithResetDelay(cfg.CircuitResetDelay)
	}

	s.finder = route.NewFinder(deps.Fast).WithBreaker(s.breaker)
	if deps.Gasless != nil {
		s.finder.WithGasless(deps.Gasless)
	}
	s.tracker = route.NewExecutor(nil, nil, deps.Attestations, deps.Receives).WithBus(bus)

	if cfg.WebhookURL != "" {
		s.exporter = enterprise.NewEventExporter(enterprise.ExporterConfig{
			WebhookURL:     cfg.WebhookURL,
			WebhookAPIKey:  cfg.WebhookAPIKey,
			BatchSize:      cfg.WebhookBatch,
			ExportInterval: cfg.WebhookFlushAt,
		}, bus)
		if deps.Signer != nil {
			s.exporter.WithSigner(deps.Signer)
		}
	}
	s.trackCtx, s.trackCancel = context.WithCancel(context.Background())

	logrus.WithFields(logrus.Fields{
		"port":     cfg.Port,
		"network":  cfg.Network,
		"gasless":  deps.Gasless != nil,
		"signing":  deps.Signer != nil,
		"exporter": s.exporter != nil,
	}).Info("Server initialized")
	return s
}

// Handler returns the HTTP routes of the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /routes", s.instrument("routes", s.handleRoutes))
	mux.Handle("GET /corridors", s.instrument("corridors", s.handleCorridors))
	mux.Handle("POST /quotes", s.instrument("quotes", s.handleQuote))
	mux.Handle("POST /track", s.instrument("track", s.handleTrack))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /breaker", s.handleBreaker)
	mux.HandleFunc("POST /breaker", s.handleBreaker)
	return mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if s.exporter != nil {
		s.exporter.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Server starting on port %s", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("error starting server: %w", err)
	case <-ctx.Done():
	}

	logrus.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.Close()
	logrus.Info("Server stopped")
	return nil
}

// Close stops tracking transfers and flushes the exporter.
func (s *Server) Close() {
	s.trackCancel()
	s.tracking.Wait()
	if s.exporter != nil {
		if err := s.exporter.Stop(); err != nil {
			logrus.WithError(err).Debug("Exporter stop")
		}
	}
	s.bus.Close()
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument applies rate limiting and request metrics to an API endpoint.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		if !s.rateLimit.Allow() {
			s.errorResponse(rec, http.StatusTooManyRequests, "Rate limit exceeded")
		} else {
			h(rec, r)
		}
		status := "success"
		if rec.status >= 400 {
			status = "error"
		}
		s.metrics.requestCounter.WithLabelValues(status, endpoint).Inc()
		s.metrics.requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}

// errorResponse returns a formatted error response
func (s *Server) errorResponse(w http.ResponseWriter, statusCode int, errorMsg string) {
	logrus.WithField("status", statusCode).Warn(errorMsg)
	writeJSON(w, statusCode, map[string]any{
		"status": "error",
		"error":  errorMsg,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("Failed to write response")
	}
}

// writeSigned writes v and, with a signer, its signature in the
// X-Cctpr-Signature header.
func (s *Server) writeSigned(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to encode response")
		return
	}
	if s.deps.Signer != nil {
		signed, err := s.deps.Signer.SignPayload(json.RawMessage(body))
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, "Failed to sign response")
			return
		}
		w.Header().Set(enterprise.SignatureHeader, signed.Signature)
		w.Header().Set("X-Cctpr-Signer", signed.Signer)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

// statusFor maps route finding errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, route.ErrInvalidIntent),
		errors.Is(err, cctpr.ErrSameDomain),
		errors.Is(err, cctpr.ErrUnsupportedDomain),
		errors.Is(err, cctpr.ErrGasDropoffLimitExceeded),
		errors.Is(err, cctpr.ErrCorridorNotSupported),
		errors.Is(err, amount.ErrUnknownUnit):
		return http.StatusBadRequest
	case errors.Is(err, route.ErrNoRoutes):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// RoutesRequest is the body of POST /routes. Amounts are human readable
// decimals: USDC for amount, the destination gas token for gas_dropoff.
type RoutesRequest struct {
	Source                  string  `json:"source"`
	Destination             string  `json:"destination"`
	Sender                  string  `json:"sender"`
	Recipient               string  `json:"recipient"`
	Amount                  string  `json:"amount"`
	Direction               string  `json:"direction,omitempty"`
	GasDropoff              string  `json:"gas_dropoff,omitempty"`
	PaymentToken            string  `json:"payment_token,omitempty"`
	UsePermit               *bool   `json:"use_permit,omitempty"`
	RelayFeeMaxChangeMargin float64 `json:"relay_fee_max_change_margin,omitempty"`
}

// Intent converts the request for network n.
func (req RoutesRequest) Intent(n types.Network, defaultMargin float64) (route.Intent, error) {
	src, err := types.ParseDomain(req.Source)
	if err != nil {
		return route.Intent{}, fmt.Errorf("%w: %v", route.ErrInvalidIntent, err)
	}
	dst, err := types.ParseDomain(req.Destination)
	if err != nil {
		return route.Intent{}, fmt.Errorf("%w: %v", route.ErrInvalidIntent, err)
	}
	amt, err := amount.Parse(amount.Usdc, req.Amount, "USDC")
	if err != nil {
		return route.Intent{}, fmt.Errorf("%w: amount: %v", route.ErrInvalidIntent, err)
	}
	in := route.Intent{
		Network:                 n,
		Source:                  src,
		Destination:             dst,
		Sender:                  req.Sender,
		Recipient:               req.Recipient,
		Amount:                  amt,
		Direction:               cctpr.Direction(strings.ToLower(req.Direction)),
		PaymentToken:            route.PaymentToken(strings.ToLower(req.PaymentToken)),
		UsePermit:               req.UsePermit,
		RelayFeeMaxChangeMargin: req.RelayFeeMaxChangeMargin,
	}
	if in.RelayFeeMaxChangeMargin == 0 {
		in.RelayFeeMaxChangeMargin = defaultMargin
	}
	if req.GasDropoff != "" {
		in.GasDropoff, err = amount.Parse(types.GasTokenKind(dst), req.GasDropoff, "human")
		if err != nil {
			return route.Intent{}, fmt.Errorf("%w: gas_dropoff: %v", route.ErrInvalidIntent, err)
		}
	}
	return in, nil
}

// handleRoutes finds the routes of an intent and marks the fastest and the
// cheapest.
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	var req RoutesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	in, err := req.Intent(s.config.Network, s.config.RelayFeeMaxChangeMargin)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()
	routes, err := s.finder.FindRoutes(ctx, in)
	s.metrics.observeBreaker(s.breaker)
	if err != nil {
		code := statusFor(err)
		if code >= 500 {
			s.metrics.quoteErrors.WithLabelValues(string(in.Source)).Inc()
		}
		s.errorResponse(w, code, fmt.Sprintf("Error finding routes: %v", err))
		return
	}
	s.metrics.routeCandidates.Observe(float64(len(routes)))
	s.writeSigned(w, route.Summarize(routes))
}

// CorridorView is the JSON form of one quoted corridor.
type CorridorView struct {
	Corridor      cctpr.Corridor `json:"corridor"`
	RelayFeeUsdc  amount.Amount  `json:"relay_fee_usdc"`
	RelayFeeGas   amount.Amount  `json:"relay_fee_gas"`
	FastFeeRate   *amount.Amount `json:"fast_fee_rate,omitempty"`
	TransferTime  amount.Amount  `json:"transfer_time"`
	FastAllowance amount.Amount  `json:"fast_burn_allowance"`
}

func corridorViews(c cctpr.Corridors) []CorridorView {
	out := make([]CorridorView, len(c.Stats))
	for i, st := range c.Stats {
		out[i] = CorridorView{
			Corridor:      st.Corridor,
			RelayFeeUsdc:  st.Cost.Relay.Usdc,
			RelayFeeGas:   st.Cost.Relay.GasToken,
			FastFeeRate:   st.Cost.Fast,
			TransferTime:  st.TransferTime,
			FastAllowance: c.FastBurnAllowance,
		}
	}
	return out
}

// handleCorridors quotes the corridors from source to destination, or to
// every supported domain when destination is omitted.
func (s *Server) handleCorridors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src, err := types.ParseDomain(q.Get("source"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	if dstName := q.Get("destination"); dstName != "" {
		dst, err := types.ParseDomain(dstName)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		c, err := cctpr.GetCorridors(ctx, s.config.Network, src, dst, amount.Amount{}, s.deps.Fast)
		if err != nil {
			s.metrics.quoteErrors.WithLabelValues(string(src)).Inc()
			s.errorResponse(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"source":      src,
			"destination": dst,
			"corridors":   corridorViews(c),
		})
		return
	}

	all, err := cctpr.GetCorridorsToAll(ctx, s.config.Network, src, types.SupportedDomains(s.config.Network), s.deps.Fast)
	failures := map[types.Domain]string{}
	var multi cctpr.MultiError
	if errors.As(err, &multi) {
		for d, derr := range multi {
			failures[d] = derr.Error()
			s.metrics.quoteErrors.WithLabelValues(string(d)).Inc()
		}
	} else if err != nil {
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}
	views := make(map[types.Domain][]CorridorView, len(all))
	for d, c := range all {
		views[d] = corridorViews(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source":       src,
		"destinations": views,
		"errors":       failures,
	})
}

// QuoteRequest is the body of POST /quotes.
type QuoteRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Corridor    string `json:"corridor"`
	GasDropoff  string `json:"gas_dropoff,omitempty"`
	// PayIn is "usdc" (default) or "gas".
	PayIn string `json:"pay_in,omitempty"`
}

// QuoteResponse is a signed off-chain quote.
type QuoteResponse struct {
	Quoter          string        `json:"quoter"`
	RelayFee        amount.Amount `json:"relay_fee"`
	ExpirationTime  time.Time     `json:"expiration_time"`
	QuoterSignature string        `json:"quoter_signature"`
}

// handleQuote issues an off-chain quote at the current on-chain relay cost of
// the corridor.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if s.deps.Signer == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Off-chain quoting not configured")
		return
	}
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	qr, err := s.quoteRequest(req)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()
	corridors, err := cctpr.GetCorridors(ctx, s.config.Network, qr.Source, qr.Destination, qr.GasDropoff, s.deps.Fast)
	if err != nil {
		s.metrics.quoteErrors.WithLabelValues(string(qr.Source)).Inc()
		s.errorResponse(w, statusFor(err), err.Error())
		return
	}
	var found bool
	for _, st := range corridors.Stats {
		if st.Corridor == qr.Corridor {
			qr.RelayFee = st.Cost.Relay.In(!strings.EqualFold(req.PayIn, "gas"))
			found = true
		}
	}
	if !found {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("corridor %s not available from %s to %s", qr.Corridor, qr.Source, qr.Destination))
		return
	}

	quote, err := s.deps.Signer.SignQuote(qr)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, QuoteResponse{
		Quoter:          s.deps.Signer.Address().Hex(),
		RelayFee:        quote.RelayFee,
		ExpirationTime:  quote.ExpirationTime,
		QuoterSignature: fmt.Sprintf("0x%x", quote.QuoterSignature),
	})
}

func (s *Server) quoteRequest(req QuoteRequest) (security.QuoteRequest, error) {
	src, err := types.ParseDomain(req.Source)
	if err != nil {
		return security.QuoteRequest{}, err
	}
	dst, err := types.ParseDomain(req.Destination)
	if err != nil {
		return security.QuoteRequest{}, err
	}
	corridor, err := cctpr.ParseCorridor(req.Corridor)
	if err != nil {
		return security.QuoteRequest{}, err
	}
	qr := security.QuoteRequest{Source: src, Destination: dst, Corridor: corridor}
	if req.GasDropoff != "" {
		qr.GasDropoff, err = amount.Parse(types.GasTokenKind(dst), req.GasDropoff, "human")
		if err != nil {
			return security.QuoteRequest{}, fmt.Errorf("gas_dropoff: %w", err)
		}
	}
	return qr, nil
}

// TrackRequest is the body of POST /track.
type TrackRequest struct {
	Source  string `json:"source"`
	TxHash  string `json:"tx_hash"`
	RouteID string `json:"route_id,omitempty"`
}

// handleTrack follows a sent transfer in the background. Its progress
// reaches the webhook exporter through the event bus.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	src, err := types.ParseDomain(req.Source)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TxHash == "" {
		s.errorResponse(w, http.StatusBadRequest, "tx_hash is required")
		return
	}
	if req.RouteID == "" {
		req.RouteID = uuid.NewString()
	}

	s.tracking.Add(1)
	go func() {
		defer s.tracking.Done()
		ctx, cancel := context.WithTimeout(s.trackCtx, trackTimeout)
		defer cancel()
		if _, err := s.tracker.Track(ctx, req.RouteID, s.config.Network, src, req.TxHash); err != nil {
			logrus.WithError(err).WithField("route", req.RouteID).Debug("Tracking ended")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"route_id": req.RouteID, "status": "tracking"})
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	domains := types.SupportedDomains(s.config.Network)
	configured := make([]types.Domain, 0, len(domains))
	for _, d := range domains {
		if _, ok := s.config.RPC(d); ok {
			configured = append(configured, d)
		}
	}
	status := map[string]any{
		"status":            "operational",
		"uptime":            time.Since(startTime).String(),
		"version":           version,
		"network":           s.config.Network,
		"supported_domains": domains,
		"rpc_domains":       configured,
		"gasless":           s.deps.Gasless != nil,
		"platforms":         cctpr.Platforms.Platforms(),
		"events_dropped":    s.bus.Dropped(),
	}
	if s.deps.Signer != nil {
		status["quoter"] = s.deps.Signer.Address().Hex()
	}
	if s.exporter != nil {
		status["exporter"] = s.exporter.Status()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleBreaker shows the relay quote breaker and resets it on
// POST ?action=reset.
func (s *Server) handleBreaker(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{}
	if r.Method == http.MethodPost {
		if r.URL.Query().Get("action") != "reset" {
			s.errorResponse(w, http.StatusBadRequest, "Unknown action")
			return
		}
		s.breaker.Reset()
		response["message"] = "Circuit breaker reset"
	}
	s.metrics.observeBreaker(s.breaker)
	response["lanes"] = s.breaker.Status()
	writeJSON(w, http.StatusOK, response)
}
