package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"prop-leaderboard-go/internal/connector"

	"go.uber.org/zap"
)

// APIServer provides the daemon-side HTTP interface: manual sync
// triggers and credential testing.
type APIServer struct {
	server       *http.Server
	orchestrator *Orchestrator
	logger       *zap.Logger
}

// NewAPIServer creates a new APIServer listening on port.
func NewAPIServer(orchestrator *Orchestrator, logger *zap.Logger, port int) *APIServer {
	mux := http.NewServeMux()
	s := &APIServer{
		server:       &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux},
		orchestrator: orchestrator,
		logger:       logger.Named("api-server"),
	}

	mux.HandleFunc("/api/sync", s.syncHandler)
	mux.HandleFunc("/api/credentials/test", s.credentialTestHandler)
	mux.HandleFunc("/api/health", s.healthHandler)

	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")
	return s.server.Shutdown(ctx)
}

// syncHandler triggers a sync. With ?trader_id= it refreshes one
// trader, otherwise the whole fleet.
func (s *APIServer) syncHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if idParam := r.URL.Query().Get("trader_id"); idParam != "" {
		traderID, err := strconv.ParseUint(idParam, 10, 32)
		if err != nil {
			http.Error(w, "invalid trader_id", http.StatusBadRequest)
			return
		}
		result := s.orchestrator.SyncTrader(r.Context(), uint(traderID))
		json.NewEncoder(w).Encode(result)
		return
	}

	results := s.orchestrator.SyncFleet(r.Context())
	json.NewEncoder(w).Encode(results)
}

type credentialTestRequest struct {
	ConnectionType string `json:"connectionType"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
}

type credentialTestResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// credentialTestHandler verifies credentials without registering
// anything. The response is deliberately uniform: callers learn whether
// the credentials work, never which upstream detail rejected them.
func (s *APIServer) credentialTestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	conn, err := s.orchestrator.registry.Lookup(req.ConnectionType)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(credentialTestResponse{Message: "unsupported connection type"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	_, err = conn.Authenticate(ctx, connector.Credentials{
		ConnectionType: req.ConnectionType,
		Username:       req.Username,
		Password:       req.Password,
		APIKey:         req.APIKey,
	})
	if err != nil {
		s.logger.Debug("credential test failed", zap.String("connection_type", req.ConnectionType), zap.Error(err))
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(credentialTestResponse{Message: "invalid credentials"})
		return
	}

	json.NewEncoder(w).Encode(credentialTestResponse{Valid: true})
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
