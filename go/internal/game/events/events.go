package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every outbound message
type Event struct {
	ID        string          `json:"id"`         // Event UUID
	LobbyCode string          `json:"lobby_code"` // Lobby the event belongs to
	Type      EventType       `json:"type"`       // Event type
	Timestamp time.Time       `json:"timestamp"`  // Event creation time
	Data      json.RawMessage `json:"data"`       // Event-specific payload
}

// EventType represents the type of outbound event
type EventType string

const (
	EventTypeLobbyUpdated  EventType = "lobby-updated"
	EventTypeLobbyClosed   EventType = "lobby-closed"
	EventTypeGameStarted   EventType = "game-started"
	EventTypeImageSelected EventType = "image-selected"
	EventTypePhaseUpdate   EventType = "game-phase-update"
	EventTypeTimer         EventType = "game-timer"
	EventTypeRoundResults  EventType = "round-results"
	EventTypeScoreboard    EventType = "scoreboard-update"
	EventTypeGameEnded     EventType = "game-ended"
	EventTypeError         EventType = "error"
	EventTypeSyncGameState EventType = "sync-game-state"
)

// New builds an event with a marshalled payload
func New(lobbyCode string, eventType EventType, payload any, at time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		LobbyCode: lobbyCode,
		Type:      eventType,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// Decode unmarshals the event payload into dst
func (e *Event) Decode(dst any) error {
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
