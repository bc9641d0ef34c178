package gateway

import (
	"context"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/auction"
	"github.com/mcdev12/liveauction/go/internal/auction/timesync"
)

// Service is the auction gateway: WebSocket connections plus the REST
// endpoints around them.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	httpHandler       *HTTPHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService wires the connection manager to the auction app. The manager
// is created first because the app broadcasts through it.
func NewService(cm *ConnectionManager, app *auction.App, clock *timesync.Service) *Service {
	cm.SetBidPlacer(app)

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
		httpHandler:       NewHTTPHandler(app, clock),
	}
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting auction gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("auction gateway service stopped")
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(router *mux.Router) {
	s.wsHandler.RegisterRoutes(router)
	s.httpHandler.RegisterRoutes(router)
	log.Info().Msg("auction gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
