package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/ratethis/go/internal/game"
	"github.com/mcdev12/ratethis/go/internal/game/events"
	"github.com/mcdev12/ratethis/go/internal/lobby"
)

// Actions is what the gateway needs from the game to serve socket clients
type Actions interface {
	JoinLobby(code, username string) (lobby.Snapshot, bool, error)
	LeaveLobby(code, username string) error
	Disconnect(code, username string) error
	StartGame(code, username string) error
	RestartGame(code, username string) error
	CastVote(code, username, category string) error
	RequestSync(code, username string) error
}

// MessageType identifies an inbound client message
type MessageType string

const (
	MessageTypeJoinLobby   MessageType = "join-lobby"
	MessageTypeLeaveLobby  MessageType = "leave-lobby"
	MessageTypeStartGame   MessageType = "start-game"
	MessageTypeCastVote    MessageType = "cast-vote"
	MessageTypeRequestSync MessageType = "request-sync"
	MessageTypeRestartGame MessageType = "restart-game"
)

// ClientMessage is the JSON body of an inbound socket frame. The lobby and
// username come from the connection.
type ClientMessage struct {
	Type     MessageType `json:"type"`
	Category string      `json:"category,omitempty"`
}

// handleClientMessage routes a client message to the game
func (c *Connection) handleClientMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("malformed client message")
		c.replyError("malformed message")
		return
	}

	actions := c.Manager.actions
	if actions == nil {
		return
	}

	logger := log.With().
		Str("connection_id", c.ID).
		Str("lobby_code", c.LobbyCode).
		Str("username", c.Username).
		Str("message_type", string(msg.Type)).
		Logger()

	var err error
	switch msg.Type {
	case MessageTypeJoinLobby:
		_, _, err = actions.JoinLobby(c.LobbyCode, c.Username)
		if err != nil {
			c.replyError(joinErrorMessage(err))
		}
	case MessageTypeLeaveLobby:
		c.left.Store(true)
		err = actions.LeaveLobby(c.LobbyCode, c.Username)
		c.Manager.unregisterConnection(c)
	case MessageTypeStartGame:
		err = actions.StartGame(c.LobbyCode, c.Username)
	case MessageTypeRestartGame:
		err = actions.RestartGame(c.LobbyCode, c.Username)
	case MessageTypeCastVote:
		err = actions.CastVote(c.LobbyCode, c.Username, msg.Category)
	case MessageTypeRequestSync:
		err = actions.RequestSync(c.LobbyCode, c.Username)
	default:
		logger.Debug().Msg("unknown client message type")
		c.replyError("unknown message type")
		return
	}

	switch {
	case err == nil:
		logger.Debug().Msg("client message handled")
	case game.IsClientError(err):
		logger.Debug().Err(err).Msg("client message rejected")
	default:
		logger.Error().Err(err).Msg("failed to handle client message")
	}
}

func (c *Connection) replyError(message string) {
	event, err := events.New(c.LobbyCode, events.EventTypeError, events.ErrorPayload{Message: message}, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to build error event")
		return
	}
	c.sendEvent(event)
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, lobby.ErrNotFound):
		return "lobby not found"
	case errors.Is(err, lobby.ErrInvalidInput):
		return "username must be at least 2 characters"
	default:
		return "could not join lobby"
	}
}
