package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/ratethis/go/internal/game"
	"github.com/mcdev12/ratethis/go/internal/game/events"
	"github.com/mcdev12/ratethis/go/internal/lobby"
)

// LobbyService is what the HTTP surface needs from the game
type LobbyService interface {
	CreateLobby(username string) (lobby.Snapshot, error)
	JoinLobby(code, username string) (lobby.Snapshot, bool, error)
	LobbySnapshot(code string) (lobby.Snapshot, error)
	SessionState(code string) (events.SessionSnapshot, error)
}

// LobbyRequest is the body of create and join requests
type LobbyRequest struct {
	Username string `json:"username"`
}

// LobbyResponse is returned by create, join and get
type LobbyResponse struct {
	Code         string         `json:"code"`
	Lobby        lobby.Snapshot `json:"lobby"`
	Reconnection bool           `json:"reconnection,omitempty"`
}

// ErrorResponse is the body of every failed HTTP request
type ErrorResponse struct {
	Error string `json:"error"`
}

// LobbyHandler serves the lobby REST endpoints
type LobbyHandler struct {
	lobbies LobbyService
}

// NewLobbyHandler creates a new lobby handler
func NewLobbyHandler(lobbies LobbyService) *LobbyHandler {
	return &LobbyHandler{lobbies: lobbies}
}

// HandleCreateLobby handles POST /api/lobbies
func (h *LobbyHandler) HandleCreateLobby(w http.ResponseWriter, r *http.Request) {
	var req LobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.lobbies.CreateLobby(req.Username)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, LobbyResponse{Code: snap.Code, Lobby: snap})
}

// HandleJoinLobby handles POST /api/lobbies/{code}/join
func (h *LobbyHandler) HandleJoinLobby(w http.ResponseWriter, r *http.Request) {
	var req LobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, reconnected, err := h.lobbies.JoinLobby(r.PathValue("code"), req.Username)
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LobbyResponse{Code: snap.Code, Lobby: snap, Reconnection: reconnected})
}

// HandleGetLobby handles GET /api/lobbies/{code}
func (h *LobbyHandler) HandleGetLobby(w http.ResponseWriter, r *http.Request) {
	snap, err := h.lobbies.LobbySnapshot(r.PathValue("code"))
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LobbyResponse{Code: snap.Code, Lobby: snap})
}

// HandleGetSessionState handles GET /api/lobbies/{code}/state
func (h *LobbyHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	state, err := h.lobbies.SessionState(r.PathValue("code"))
	if err != nil {
		writeLobbyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// RegisterRoutes registers the lobby routes
func (h *LobbyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/lobbies", h.HandleCreateLobby)
	mux.HandleFunc("POST /api/lobbies/{code}/join", h.HandleJoinLobby)
	mux.HandleFunc("GET /api/lobbies/{code}", h.HandleGetLobby)
	mux.HandleFunc("GET /api/lobbies/{code}/state", h.HandleGetSessionState)
}

func writeLobbyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lobby.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid username or lobby code")
	case errors.Is(err, lobby.ErrNotFound):
		writeError(w, http.StatusNotFound, "lobby not found")
	case errors.Is(err, game.ErrNoSession):
		writeError(w, http.StatusNotFound, "no game in progress")
	default:
		log.Error().Err(err).Msg("lobby request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
