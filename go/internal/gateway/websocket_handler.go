package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/ratethis/go/internal/lobby"
)

// WebSocketHandler handles WebSocket upgrade requests for lobby rooms
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	lobbies           LobbyService
	actions           Actions
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, lobbies LobbyService, actions Actions) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		lobbies:           lobbies,
		actions:           actions,
	}
}

// HandleLobbyConnection handles GET /ws/lobby?code=...&username=...
//
// The socket is registered in the room before the join is applied so the
// client sees its own lobby-updated.
func (h *WebSocketHandler) HandleLobbyConnection(w http.ResponseWriter, r *http.Request) {
	code := lobby.NormalizeCode(r.URL.Query().Get("code"))
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	username, err := lobby.ValidateUsername(r.URL.Query().Get("username"))
	if err != nil {
		http.Error(w, "username must be at least 2 characters", http.StatusBadRequest)
		return
	}

	if _, err := h.lobbies.LobbySnapshot(code); err != nil {
		if errors.Is(err, lobby.ErrNotFound) {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}
		http.Error(w, "invalid lobby code", http.StatusBadRequest)
		return
	}

	conn, err := h.connectionManager.UpgradeConnection(w, r, code, username)
	if err != nil {
		// The upgrader has already replied to the client
		log.Error().
			Err(err).
			Str("lobby_code", code).
			Str("username", username).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	if _, _, err := h.actions.JoinLobby(code, username); err != nil {
		log.Warn().Err(err).Str("lobby_code", code).Str("username", username).Msg("join over socket failed")
		conn.replyError(joinErrorMessage(err))
		conn.left.Store(true)
		h.connectionManager.unregisterConnection(conn)
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/lobby", h.HandleLobbyConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
