package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/davrk/syncpad/internal/collab"
	"github.com/davrk/syncpad/internal/ws"
)

// Server is the transport boundary: it upgrades WebSocket connections into
// document participants and exposes a read-only snapshot endpoint.
type Server struct {
	manager  *collab.Manager
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// ServerConfig holds configuration for creating a server.
type ServerConfig struct {
	Manager *collab.Manager
	Hub     *ws.Hub
	Logger  zerolog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		manager: cfg.Manager,
		hub:     cfg.Hub,
		logger:  cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool {
				return true // Origin checks are the embedding product's concern
			},
		},
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.Handle("/ws", s.identityMiddleware(http.HandlerFunc(s.handleWebSocket))).Methods(http.MethodGet)
	r.Handle("/documents/{id}", s.identityMiddleware(http.HandlerFunc(s.handleGetDocument))).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	return r
}

// GetDocumentResponse is the response body for the snapshot endpoint.
type GetDocumentResponse struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Revision int    `json:"revision"`
}

// handleGetDocument handles GET /documents/{id}: a point-in-time snapshot
// of the authoritative session state.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["id"]

	session, err := s.manager.Session(r.Context(), docID)
	if err != nil {
		if errors.Is(err, collab.ErrLoadTimeout) {
			http.Error(w, "document load timed out", http.StatusGatewayTimeout)

			return
		}

		http.Error(w, "failed to load document", http.StatusInternalServerError)

		return
	}

	content, revision := session.State()

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(GetDocumentResponse{
		ID:       docID,
		Content:  content,
		Revision: revision,
	}); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode document response")
	}
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
