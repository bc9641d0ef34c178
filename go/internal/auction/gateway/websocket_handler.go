package gateway

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests from auction clients
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleConnection upgrades a client connection. The bidder_id query
// parameter is optional; anonymous observers may still watch every item.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	bidderID := strings.TrimSpace(r.URL.Query().Get("bidder_id"))

	if err := h.connectionManager.UpgradeConnection(w, r, bidderID); err != nil {
		log.Error().
			Err(err).
			Str("bidder_id", bidderID).
			Msg("failed to upgrade WebSocket connection")
		// The upgrader has already written an HTTP error response
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleConnection).Methods(http.MethodGet)
	router.HandleFunc("/ws/stats", h.HandleConnectionStats).Methods(http.MethodGet)
}
