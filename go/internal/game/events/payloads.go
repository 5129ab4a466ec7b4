package events

import (
	"time"

	"github.com/mcdev12/ratethis/go/internal/catalog"
	"github.com/mcdev12/ratethis/go/internal/lobby"
)

// Payload types shared between the game and gateway packages

// LobbyUpdatedPayload carries the current lobby membership
type LobbyUpdatedPayload struct {
	Lobby lobby.Snapshot `json:"lobby"`
}

// LobbyClosedPayload is sent when a lobby is destroyed
type LobbyClosedPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// SessionSnapshot is the full observable state of a game session
type SessionSnapshot struct {
	SessionID     string         `json:"session_id"`
	Phase         string         `json:"phase"`
	Round         int            `json:"round"`
	TotalRounds   int            `json:"total_rounds"`
	Image         *catalog.Image `json:"image,omitempty"`
	TimeRemaining int            `json:"time_remaining_sec"`
	Scores        map[string]int `json:"scores"`
	LastTally     *TallyPayload  `json:"last_tally,omitempty"`
	ImagesUsed    int            `json:"images_used"`
	StartedAt     time.Time      `json:"started_at"`
}

// GameStartedPayload is sent when a session is created or replaced
type GameStartedPayload struct {
	Lobby   lobby.Snapshot  `json:"lobby"`
	Session SessionSnapshot `json:"session"`
}

// ImageSelectedPayload announces the image for a new round
type ImageSelectedPayload struct {
	Image catalog.Image `json:"image"`
	Round int           `json:"round"`
}

// PhaseUpdatePayload announces a phase transition
type PhaseUpdatePayload struct {
	Phase string `json:"phase"`
	Round int    `json:"round"`
}

// TimerPayload contains the countdown for the current phase
type TimerPayload struct {
	TimeRemainingSec int `json:"time_remaining_sec"`
}

// TallyPayload contains the vote counts for a round
type TallyPayload struct {
	Counts   map[string]int `json:"counts"`
	Majority *string        `json:"majority"`
	Image    *catalog.Image `json:"image,omitempty"`
	Round    int            `json:"round"`
}

// ScoresPayload carries cumulative scores
type ScoresPayload struct {
	Scores map[string]int `json:"scores"`
	Round  int            `json:"round"`
}

// GameEndedPayload carries the final scores
type GameEndedPayload struct {
	Scores       map[string]int `json:"scores"`
	RoundsPlayed int            `json:"rounds_played"`
}

// ErrorPayload is sent to a single client whose request was rejected
type ErrorPayload struct {
	Message string `json:"message"`
}

// SyncGameStatePayload resynchronizes a single client
type SyncGameStatePayload struct {
	SessionSnapshot
	MyVote *string `json:"my_vote,omitempty"`
}
