// Package httpapi is the thin HTTP translation layer over the engine.
// It resolves the tenant, decodes requests, invokes engine operations
// and maps typed errors to status codes. No business logic lives here.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulsewatch/internal/engine"
	"pulsewatch/internal/logger"
	"pulsewatch/internal/metrics"
	"pulsewatch/pkg/models"
)

// Signature headers carried on ping requests.
const (
	HeaderTimestamp = "X-Pulse-Timestamp"
	HeaderSignature = "X-Pulse-Signature"
)

// Server routes HTTP requests to engine operations.
type Server struct {
	engine     *engine.Engine
	adminToken string
	metrics    *metrics.Collector
	mux        *http.ServeMux
}

// NewServer builds the router. adminToken guards config writes; empty
// means config writes are rejected as a host misconfiguration.
func NewServer(eng *engine.Engine, adminToken string, collector *metrics.Collector) *Server {
	s := &Server{engine: eng, adminToken: adminToken, metrics: collector}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /t/{tenant}/ping", s.handlePing)
	mux.HandleFunc("GET /t/{tenant}/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /t/{tenant}/clients", s.handleClients)
	mux.HandleFunc("GET /t/{tenant}/config", s.handleGetConfig)
	mux.HandleFunc("PUT /t/{tenant}/config", s.handlePutConfig)
	mux.HandleFunc("POST /t/{tenant}/facts", s.handlePostFact)
	mux.HandleFunc("GET /t/{tenant}/facts", s.handleListFacts)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.mux = mux
	return s
}

// ServeHTTP applies CORS headers and request timing around the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+HeaderTimestamp+", "+HeaderSignature)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)

	_, pattern := s.mux.Handler(r)
	if pattern == "" {
		pattern = "unmatched"
	}
	s.metrics.ObserveRequest(pattern, time.Since(start).Seconds())
}

type pingBody struct {
	ID   string          `json:"id"`
	Meta json.RawMessage `json:"meta"`
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	var body pingBody
	if r.Body != nil {
		// Body is optional; the id may arrive as a query parameter.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	id := body.ID
	if q := r.URL.Query().Get("id"); q != "" {
		id = q
	}

	st, err := s.engine.IngestPing(r.Context(), tenant, engine.PingInput{
		ID:        id,
		Timestamp: r.Header.Get(HeaderTimestamp),
		Signature: r.Header.Get(HeaderSignature),
		SourceIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		Meta:      body.Meta,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.GetStatus(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.engine.ListClients(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients, "count": len(clients)})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.GetConfig(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type configBody struct {
	Tier            string `json:"tier"`
	AlertWebhookURL string `json:"alert_webhook_url"`
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.checkAdmin(r); err != nil {
		s.writeError(w, err)
		return
	}

	var body configBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &engine.ValidationError{Reason: "invalid config body"})
		return
	}

	cfg, err := s.engine.SetConfig(r.Context(), r.PathValue("tenant"), body.Tier, body.AlertWebhookURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type factBody struct {
	Source string          `json:"source"`
	Type   string          `json:"type"`
	Entity string          `json:"entity"`
	Meta   json.RawMessage `json:"meta"`
}

func (s *Server) handlePostFact(w http.ResponseWriter, r *http.Request) {
	var body factBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &engine.ValidationError{Reason: "invalid fact body"})
		return
	}

	fact, err := s.engine.RecordFact(r.Context(), r.PathValue("tenant"), body.Source, body.Type, body.Entity, body.Meta)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fact)
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := s.engine.ListFacts(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if facts == nil {
		facts = []*models.Fact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": facts, "count": len(facts)})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) checkAdmin(r *http.Request) error {
	if s.adminToken == "" {
		return &engine.ConfigError{Reason: "admin token is not configured"}
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
		return &engine.AuthError{Reason: "invalid admin token"}
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		verr *engine.ValidationError
		aerr *engine.AuthError
		cerr *engine.ConfigError
		nerr *engine.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Reason})
	case errors.As(err, &aerr):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": aerr.Reason})
	case errors.As(err, &nerr):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nerr.Error()})
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": cerr.Reason})
	default:
		logger.Errorf("Internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// socket peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
