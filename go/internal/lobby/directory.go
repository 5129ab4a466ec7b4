package lobby

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Directory maps lobby codes to lobbies
type Directory struct {
	lobbies map[string]*Lobby
	mu      sync.RWMutex

	clock   clockwork.Clock
	newCode func() string
}

// NewDirectory creates an empty lobby directory
func NewDirectory(clock clockwork.Clock) *Directory {
	return &Directory{
		lobbies: make(map[string]*Lobby),
		clock:   clock,
		newCode: GenerateCode,
	}
}

// Create registers a new lobby hosted by username under a fresh code
func (d *Directory) Create(username string) (*Lobby, error) {
	username, err := ValidateUsername(username)
	if err != nil {
		return nil, fmt.Errorf("create lobby: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	code := d.newCode()
	for d.lobbies[code] != nil {
		code = d.newCode()
	}

	l := &Lobby{
		Code: code,
		Host: username,
		Participants: []*Participant{
			{Username: username, IsHost: true, Connected: true},
		},
		CreatedAt: d.clock.Now(),
	}
	d.lobbies[code] = l

	log.Info().
		Str("lobby_code", code).
		Str("host", username).
		Msg("lobby created")

	return l, nil
}

// Get looks up a lobby by code
func (d *Directory) Get(code string) (*Lobby, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidInput
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	l, exists := d.lobbies[code]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return l, nil
}

// Delete removes a lobby and marks it closed. The caller holds the lobby lock.
func (d *Directory) Delete(l *Lobby) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lobbies[l.Code] == l {
		delete(d.lobbies, l.Code)
	}
	l.closed = true

	log.Info().Str("lobby_code", l.Code).Msg("lobby removed")
}

// Count returns the number of registered lobbies
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.lobbies)
}

// All returns every registered lobby
func (d *Directory) All() []*Lobby {
	d.mu.RLock()
	defer d.mu.RUnlock()
	all := make([]*Lobby, 0, len(d.lobbies))
	for _, l := range d.lobbies {
		all = append(all, l)
	}
	return all
}
