package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"matter-light-bridge/internal/automation"
	"matter-light-bridge/internal/datamodel"
	"matter-light-bridge/internal/device"
	"matter-light-bridge/internal/endpoint"
	"matter-light-bridge/internal/host"
)

// Lights looks up bridged lights.
type Lights interface {
	Lights() []*device.Light
	Light(ep datamodel.EndpointID) (*device.Light, bool)
}

// Host is the framework surface the API reads and writes through.
type Host interface {
	ReadAttribute(ctx context.Context, path datamodel.AttributePath) (any, datamodel.Status, error)
	WriteAttribute(ctx context.Context, path datamodel.AttributePath, value any) (datamodel.Status, error)
	Endpoints() *host.EndpointTable
	Events() *host.EventBus
}

// Registrar removes bridged devices from the framework.
type Registrar interface {
	Unregister(dev endpoint.Device) (int, error)
}

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication on /api/.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed CORS and WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithAutomation enables the automation endpoints.
func WithAutomation(engine *automation.Engine, mgr *automation.Manager) ServerOption {
	return func(s *Server) {
		s.autoEngine = engine
		s.scriptMgr = mgr
	}
}

// WithRegistrar enables DELETE /api/devices/{endpoint}.
func WithRegistrar(r Registrar) ServerOption {
	return func(s *Server) {
		s.registrar = r
	}
}

// WithVersion sets the version reported by /api/version.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP API of the bridge.
type Server struct {
	lights         Lights
	host           Host
	clusters       *datamodel.Registry
	registrar      Registrar
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	apiKey         string
	allowedOrigins []string
	scriptMgr      *automation.Manager
	autoEngine     *automation.Engine
	version        string
	started        time.Time
	wg             sync.WaitGroup
	unsubEvents    func()
}

// NewServer creates the API server and starts its WebSocket hub.
func NewServer(lights Lights, h Host, clusters *datamodel.Registry, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		lights:   lights,
		host:     h,
		clusters: clusters,
		logger:   logger.With("component", "web"),
		mux:      http.NewServeMux(),
		version:  "dev",
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.wsHub.Run()
	}()

	s.unsubEvents = h.Events().OnAll(func(event host.Event) {
		s.wsHub.Broadcast(event)
	})

	s.routes()
	return s
}

// Stop shuts down the WebSocket hub and waits for it.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.wsHub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/devices", s.handleAPIListDevices)
	s.mux.HandleFunc("GET /api/devices/{endpoint}", s.handleAPIGetDevice)
	s.mux.HandleFunc("PATCH /api/devices/{endpoint}", s.handleAPIUpdateDevice)
	s.mux.HandleFunc("DELETE /api/devices/{endpoint}", s.handleAPIRemoveDevice)
	s.mux.HandleFunc("GET /api/devices/{endpoint}/attributes/{cluster}/{attribute}", s.handleAPIReadAttribute)
	s.mux.HandleFunc("PUT /api/devices/{endpoint}/attributes/{cluster}/{attribute}", s.handleAPIWriteAttribute)
	s.mux.HandleFunc("GET /api/endpoints", s.handleAPIListEndpoints)
	s.mux.HandleFunc("GET /api/clusters", s.handleAPIListClusters)
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)
	s.mux.HandleFunc("GET /api/health", s.handleAPIHealth)

	s.mux.HandleFunc("GET /api/automations", s.handleAPIListAutomations)
	s.mux.HandleFunc("GET /api/automations/{id}", s.handleAPIGetAutomation)
	s.mux.HandleFunc("POST /api/automations", s.handleAPICreateAutomation)
	s.mux.HandleFunc("PUT /api/automations/{id}", s.handleAPIUpdateAutomation)
	s.mux.HandleFunc("DELETE /api/automations/{id}", s.handleAPIDeleteAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/toggle", s.handleAPIToggleAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/run", s.handleAPIRunAutomation)

	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler, applying auth and CORS checks.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && len(s.allowedOrigins) > 0 {
		allowed := s.isOriginAllowed(origin)
		if r.Method == http.MethodOptions {
			if !allowed {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "3600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			if !allowed {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
	}

	// Browsers cannot set headers on a WebSocket upgrade, so /ws relies on
	// the origin check instead.
	if s.apiKey != "" && strings.HasPrefix(r.URL.Path, "/api/") && r.URL.Path != "/api/health" {
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	lights := s.lights.Lights()
	reachable := 0
	for _, l := range lights {
		if l.Reachable() {
			reachable++
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"lights":     len(lights),
		"reachable":  reachable,
		"ws_clients": s.wsHub.Clients(),
		"uptime":     time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
