package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction/store"
	"github.com/mcdev12/liveauction/go/internal/models"
)

// Auctions defines the read and admin operations exposed over HTTP
type Auctions interface {
	ListItems() (time.Time, []models.Item)
	Winner(itemID string) (models.Winner, bool, error)
	Reset() uint64
}

// Clock reports the authoritative server instant
type Clock interface {
	Now() time.Time
}

// ItemsResponse seeds a newly joining client
type ItemsResponse struct {
	ServerTime time.Time     `json:"server_time"`
	Items      []models.Item `json:"items"`
}

// TimeResponse reports the server clock
type TimeResponse struct {
	ServerTime time.Time `json:"server_time"`
}

// ResetResponse acknowledges a reset
type ResetResponse struct {
	OK         bool   `json:"ok"`
	Generation uint64 `json:"generation"`
}

// HTTPHandler serves the auction REST endpoints
type HTTPHandler struct {
	auctions Auctions
	clock    Clock
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(auctions Auctions, clock Clock) *HTTPHandler {
	return &HTTPHandler{
		auctions: auctions,
		clock:    clock,
	}
}

// ListItems handles GET /items
func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	now, items := h.auctions.ListItems()
	respondJSON(w, http.StatusOK, ItemsResponse{ServerTime: now, Items: items})
}

// GetWinner handles GET /items/{id}/winner
func (h *HTTPHandler) GetWinner(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]

	winner, ended, err := h.auctions.Winner(itemID)
	switch {
	case errors.Is(err, store.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item not found")
		return
	case err != nil:
		log.Error().Err(err).Str("item_id", itemID).Msg("failed to look up winner")
		respondError(w, http.StatusInternalServerError, "failed to look up winner")
		return
	case !ended:
		respondError(w, http.StatusConflict, "auction has not ended")
		return
	}

	respondJSON(w, http.StatusOK, winner)
}

// GetTime handles GET /time
func (h *HTTPHandler) GetTime(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, TimeResponse{ServerTime: h.clock.Now()})
}

// Reset handles POST /__reset. It is an unauthenticated demo hook.
func (h *HTTPHandler) Reset(w http.ResponseWriter, r *http.Request) {
	gen := h.auctions.Reset()
	respondJSON(w, http.StatusOK, ResetResponse{OK: true, Generation: gen})
}

// Health handles GET /health
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// RegisterRoutes registers the REST routes
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/items", h.ListItems).Methods(http.MethodGet)
	router.HandleFunc("/items/{id}/winner", h.GetWinner).Methods(http.MethodGet)
	router.HandleFunc("/time", h.GetTime).Methods(http.MethodGet)
	router.HandleFunc("/__reset", h.Reset).Methods(http.MethodPost)
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
