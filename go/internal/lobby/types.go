package lobby

import (
	"sync"
	"time"
)

// Participant is a member of a lobby. The username is the identity key.
type Participant struct {
	Username  string `json:"username"`
	IsHost    bool   `json:"is_host"`
	Connected bool   `json:"connected"`
}

// Lobby is a group of players sharing a join code.
//
// Membership methods are not synchronized on their own; callers hold the
// lobby lock (Lock/Unlock) for the whole read-modify-broadcast sequence.
type Lobby struct {
	Code         string
	Host         string
	Participants []*Participant
	CreatedAt    time.Time
	Started      bool

	closed bool
	mu     sync.Mutex
}

// Snapshot is an immutable copy of a lobby suitable for serialization
type Snapshot struct {
	Code         string        `json:"code"`
	Host         string        `json:"host"`
	Participants []Participant `json:"participants"`
	CreatedAt    time.Time     `json:"created_at"`
	Started      bool          `json:"started"`
}

// Lock acquires the lobby's lock
func (l *Lobby) Lock() {
	l.mu.Lock()
}

// Unlock releases the lobby's lock
func (l *Lobby) Unlock() {
	l.mu.Unlock()
}

// Closed reports whether the lobby was removed from the directory.
// Callers that waited on the lock check this before mutating.
func (l *Lobby) Closed() bool {
	return l.closed
}

// Participant returns the participant with the given username, or nil
func (l *Lobby) Participant(username string) *Participant {
	for _, p := range l.Participants {
		if p.Username == username {
			return p
		}
	}
	return nil
}

// Join adds username to the lobby. If the username is already a participant
// the call is a reconnection: the participant is marked connected and
// membership is otherwise unchanged.
func (l *Lobby) Join(username string) (reconnected bool) {
	if p := l.Participant(username); p != nil {
		p.Connected = true
		return true
	}
	l.Participants = append(l.Participants, &Participant{
		Username:  username,
		Connected: true,
	})
	return false
}

// SetConnected updates the connectivity flag. Returns false if username is
// not a participant.
func (l *Lobby) SetConnected(username string, connected bool) bool {
	p := l.Participant(username)
	if p == nil {
		return false
	}
	p.Connected = connected
	return true
}

// Remove drops username from the participant list
func (l *Lobby) Remove(username string) bool {
	for i, p := range l.Participants {
		if p.Username == username {
			l.Participants = append(l.Participants[:i], l.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// IsHost reports whether username holds host rights
func (l *Lobby) IsHost(username string) bool {
	return l.Host == username
}

// IsEmpty reports whether the lobby has no participants left
func (l *Lobby) IsEmpty() bool {
	return len(l.Participants) == 0
}

// PromoteHost hands host rights to the first connected participant, falling
// back to the first participant. Returns the new host or "" when empty.
func (l *Lobby) PromoteHost() string {
	if len(l.Participants) == 0 {
		l.Host = ""
		return ""
	}
	next := l.Participants[0]
	for _, p := range l.Participants {
		if p.Connected {
			next = p
			break
		}
	}
	for _, p := range l.Participants {
		p.IsHost = p == next
	}
	l.Host = next.Username
	return l.Host
}

// Usernames returns all participant usernames in join order
func (l *Lobby) Usernames() []string {
	names := make([]string, 0, len(l.Participants))
	for _, p := range l.Participants {
		names = append(names, p.Username)
	}
	return names
}

// ConnectedUsernames returns the usernames currently connected
func (l *Lobby) ConnectedUsernames() []string {
	names := make([]string, 0, len(l.Participants))
	for _, p := range l.Participants {
		if p.Connected {
			names = append(names, p.Username)
		}
	}
	return names
}

// Snapshot copies the lobby state
func (l *Lobby) Snapshot() Snapshot {
	participants := make([]Participant, 0, len(l.Participants))
	for _, p := range l.Participants {
		participants = append(participants, *p)
	}
	return Snapshot{
		Code:         l.Code,
		Host:         l.Host,
		Participants: participants,
		CreatedAt:    l.CreatedAt,
		Started:      l.Started,
	}
}
