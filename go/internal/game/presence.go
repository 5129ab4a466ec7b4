package game

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type presenceKey struct {
	code     string
	username string
}

// DisconnectRecord notes when a participant dropped out of a running session
type DisconnectRecord struct {
	LobbyCode      string
	Username       string
	DisconnectedAt time.Time
}

// PresenceTracker remembers participants who disconnected during a session
type PresenceTracker struct {
	mu      sync.Mutex
	records map[presenceKey]time.Time
}

// NewPresenceTracker creates an empty tracker
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{records: make(map[presenceKey]time.Time)}
}

// Record notes a disconnect, replacing any earlier one for the same user
func (p *PresenceTracker) Record(code, username string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[presenceKey{code, username}] = at
}

// Clear forgets a participant's disconnect. Returns true if one was recorded.
func (p *PresenceTracker) Clear(code, username string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := presenceKey{code, username}
	_, ok := p.records[key]
	delete(p.records, key)
	return ok
}

// ClearExpired forgets a disconnect only if it happened at or before cutoff
func (p *PresenceTracker) ClearExpired(code, username string, cutoff time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := presenceKey{code, username}
	at, ok := p.records[key]
	if !ok || at.After(cutoff) {
		return false
	}
	delete(p.records, key)
	return true
}

// ForgetLobby drops every record for a lobby
func (p *PresenceTracker) ForgetLobby(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.records {
		if key.code == code {
			delete(p.records, key)
		}
	}
}

// Expired lists records made at or before cutoff
func (p *PresenceTracker) Expired(cutoff time.Time) []DisconnectRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	var expired []DisconnectRecord
	for key, at := range p.records {
		if !at.After(cutoff) {
			expired = append(expired, DisconnectRecord{
				LobbyCode:      key.code,
				Username:       key.username,
				DisconnectedAt: at,
			})
		}
	}
	return expired
}

// Len returns the number of tracked disconnects
func (p *PresenceTracker) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// RunPresenceSweeper evicts participants whose grace period ran out, once per
// SweepInterval, until ctx is cancelled.
func (a *App) RunPresenceSweeper(ctx context.Context) {
	ticker := a.clock.NewTicker(a.config.SweepInterval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", a.config.SweepInterval).
		Dur("grace", a.config.DisconnectGrace).
		Msg("presence sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("presence sweeper stopped")
			return
		case <-ticker.Chan():
			a.SweepDisconnected()
		}
	}
}

// SweepDisconnected removes every participant who has been disconnected for
// longer than the grace period. Returns the number evicted.
func (a *App) SweepDisconnected() int {
	cutoff := a.clock.Now().Add(-a.config.DisconnectGrace)
	evicted := 0
	for _, rec := range a.presence.Expired(cutoff) {
		if a.evict(rec, cutoff) {
			evicted++
		}
	}
	if evicted > 0 {
		log.Info().Int("evicted", evicted).Msg("presence sweep finished")
	}
	return evicted
}

// evict removes one expired participant. A departing host hands the role to
// the next participant; the last participant out closes the lobby.
func (a *App) evict(rec DisconnectRecord, cutoff time.Time) bool {
	l, err := a.lockLobby(rec.LobbyCode)
	if err != nil {
		a.presence.Clear(rec.LobbyCode, rec.Username)
		return false
	}
	defer l.Unlock()

	// The participant may have reconnected, or dropped again more recently,
	// since the record list was taken.
	if !a.presence.ClearExpired(l.Code, rec.Username, cutoff) {
		return false
	}
	p := l.Participant(rec.Username)
	if p == nil || p.Connected {
		return false
	}

	wasHost := l.IsHost(rec.Username)
	l.Remove(rec.Username)

	logger := log.With().Str("lobby_code", l.Code).Str("username", rec.Username).Logger()

	if l.IsEmpty() {
		logger.Info().Msg("last participant evicted, closing lobby")
		a.destroyLobby(l, "empty")
		return true
	}
	if wasHost {
		newHost := l.PromoteHost()
		logger.Info().Str("new_host", newHost).Msg("host evicted, promoted new host")
	} else {
		logger.Info().Msg("participant evicted")
	}
	a.broadcastLobby(l)
	return true
}
