package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Game is everything the gateway serves on behalf of the game
type Game interface {
	Actions
	LobbyService

	// TrackConnections lets the game tell a stale transport disconnect from
	// a live one
	TrackConnections(hasConnection func(code, username string) bool)
}

// Service is the gateway service that handles WebSocket connections, event
// fan-out and the lobby REST endpoints
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	lobbyHandler      *LobbyHandler
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

// NewService creates the gateway service. Its connection manager is the
// game's broadcaster, so the game is attached afterwards with Attach.
func NewService(config Config) *Service {
	return &Service{
		connectionManager: NewConnectionManager(config.ConnectionConfig),
	}
}

// ConnectionManager returns the broadcaster backing this service
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.connectionManager
}

// Attach wires the game into the socket and HTTP handlers
func (s *Service) Attach(g Game) {
	s.connectionManager.SetActions(g)
	g.TrackConnections(s.connectionManager.HasConnection)
	s.wsHandler = NewWebSocketHandler(s.connectionManager, g, g)
	s.lobbyHandler = NewLobbyHandler(g)
}

// Start runs the broadcast pump until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and lobby HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.lobbyHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
