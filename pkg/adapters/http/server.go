// Package http exposes the gateway service over HTTP using the Infobip USSD callback
// contract, plus status, health and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/ussdflow/internal/logging"
	"github.com/aretw0/ussdflow/pkg/domain"
	"github.com/aretw0/ussdflow/pkg/sanitize"
	"github.com/aretw0/ussdflow/pkg/telemetry"
)

// MenuUnavailable is shown when a request cannot be handled at all.
const MenuUnavailable = "Service unavailable. Please try again later."

// Gateway handles the session events. *gateway.Service satisfies it.
type Gateway interface {
	Start(ctx context.Context, sessionID string, req domain.Request) domain.Envelope
	Continue(ctx context.Context, sessionID string, req domain.Request) domain.Envelope
	End(ctx context.Context, sessionID string) domain.Ack
}

// Recorder receives request timings. *telemetry.Monitor satisfies it.
type Recorder interface {
	RecordRequest(kind string, success bool, d time.Duration)
}

// DetailFunc builds the body of GET /status/detailed.
type DetailFunc func(ctx context.Context) (any, error)

// HealthFunc reports whether dependencies are reachable.
type HealthFunc func(ctx context.Context) error

// Server serves the USSD callbacks.
type Server struct {
	gateway  Gateway
	recorder Recorder
	metrics  http.Handler
	detail   DetailFunc
	health   HealthFunc
	version  string
	started  time.Time
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMonitor records request timings and serves /metrics from the monitor.
func WithMonitor(m *telemetry.Monitor) Option {
	return func(s *Server) {
		s.recorder = m
		s.metrics = m.Handler()
	}
}

// WithDetailedStatus enables GET /status/detailed.
func WithDetailedStatus(fn DetailFunc) Option {
	return func(s *Server) {
		s.detail = fn
	}
}

// WithHealthCheck makes GET /health report dependency failures.
func WithHealthCheck(fn HealthFunc) Option {
	return func(s *Server) {
		s.health = fn
	}
}

// WithVersion sets the version reported by GET /status.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates the server.
func NewServer(gw Gateway, opts ...Option) *Server {
	s := &Server{
		gateway: gw,
		version: "dev",
		started: time.Now(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, s.requestLogger)

	r.Post("/session/{sessionId}/start", s.Start)
	r.Put("/session/{sessionId}/response", s.Response)
	r.Put("/session/{sessionId}/end", s.End)

	r.Get("/status", s.Status)
	if s.detail != nil {
		r.Get("/status/detailed", s.DetailedStatus)
	}
	r.Get("/health", s.Health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// inboundRequest is the Infobip callback body.
type inboundRequest struct {
	MSISDN      string `json:"msisdn"`
	SessionID   string `json:"sessionId"`
	ShortCode   string `json:"shortCode"`
	Text        string `json:"text"`
	NetworkName string `json:"networkName"`
	CountryName string `json:"countryName"`
	USSDNodeID  string `json:"ussdNodeId"`
}

// Start handles POST /session/{sessionId}/start.
func (s *Server) Start(w http.ResponseWriter, r *http.Request) {
	s.event(w, r, telemetry.RequestStart, s.gateway.Start)
}

// Response handles PUT /session/{sessionId}/response.
func (s *Server) Response(w http.ResponseWriter, r *http.Request) {
	s.event(w, r, telemetry.RequestResponse, s.gateway.Continue)
}

type eventFunc func(ctx context.Context, sessionID string, req domain.Request) domain.Envelope

func (s *Server) event(w http.ResponseWriter, r *http.Request, kind string, fn eventFunc) {
	start := time.Now()
	sessionID := chi.URLParam(r, "sessionId")
	logger := s.logger.With("session_id", sessionID, "request_id", RequestIDFrom(r.Context()), "endpoint", kind)

	req, err := s.decode(r, sessionID)
	if err != nil {
		logger.Error("Invalid request body", "err", err)
		s.writeJSON(w, domain.Fault(MenuUnavailable, MenuUnavailable))
		s.record(kind, false, start)
		return
	}
	logger.Info("USSD request", "msisdn", req.MSISDN, "short_code", req.ShortCode)

	env := fn(r.Context(), sessionID, req)

	logger.Info("USSD response",
		"should_close", env.ShouldClose,
		"exit_code", env.ResponseExitCode,
		"duration", time.Since(start),
	)
	s.writeJSON(w, env)
	s.record(kind, !env.IsFault(), start)
}

func (s *Server) decode(r *http.Request, sessionID string) (domain.Request, error) {
	var in inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		return domain.Request{}, err
	}

	input, truncated := sanitize.Input(in.Text)
	if truncated {
		s.logger.Warn("Input truncated", "session_id", sessionID, "max", sanitize.MaxInputLength)
	}
	if in.SessionID == "" {
		in.SessionID = sessionID
	}
	return domain.Request{
		MSISDN:      in.MSISDN,
		SessionID:   in.SessionID,
		ShortCode:   in.ShortCode,
		Input:       input,
		NetworkName: in.NetworkName,
		CountryName: in.CountryName,
		USSDNodeID:  in.USSDNodeID,
	}, nil
}

// End handles PUT /session/{sessionId}/end.
func (s *Server) End(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sessionID := chi.URLParam(r, "sessionId")

	ack := s.gateway.End(r.Context(), sessionID)
	s.logger.Info("USSD end",
		"session_id", sessionID,
		"request_id", RequestIDFrom(r.Context()),
		"exit_code", ack.ResponseExitCode,
	)
	s.writeJSON(w, ack)
	s.record(telemetry.RequestEnd, ack.ResponseExitCode == domain.ExitOK, start)
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime"`
}

// Status handles GET /status.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, StatusResponse{
		Status:  "ok",
		Message: "USSD flow engine running",
		Version: s.version,
		Uptime:  int64(time.Since(s.started).Seconds()),
	})
}

// DetailedStatus handles GET /status/detailed.
func (s *Server) DetailedStatus(w http.ResponseWriter, r *http.Request) {
	body, err := s.detail(r.Context())
	if err != nil {
		s.logger.Error("Error generating status", "err", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "error",
			"message": "Error generating status",
			"error":   err.Error(),
		})
		return
	}
	s.writeJSON(w, body)
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// writeJSON always answers 200: the gateway reads the outcome from the body.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func (s *Server) record(kind string, success bool, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordRequest(kind, success, time.Since(start))
	}
}
