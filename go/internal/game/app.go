package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/ratethis/go/internal/catalog"
	"github.com/mcdev12/ratethis/go/internal/game/events"
	"github.com/mcdev12/ratethis/go/internal/lobby"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) clockwork.Timer
	NewTicker(d time.Duration) clockwork.Ticker
}

// Broadcaster delivers events to connected clients. Implementations must not
// block: they are called with a lobby lock held.
type Broadcaster interface {
	BroadcastToLobby(code string, event *events.Event)
	BroadcastToUser(code, username string, event *events.Event)
}

// ImageSource provides the current image catalog
type ImageSource interface {
	Images() []catalog.Image
}

// App owns lobbies, sessions and presence tracking
type App struct {
	directory   *lobby.Directory
	images      ImageSource
	broadcaster Broadcaster
	presence    *PresenceTracker
	clock       Clock
	config      Config

	// pick returns a random index in [0, n)
	pick func(n int) int

	// hasConnection reports whether the user still holds an open socket in
	// the lobby. Nil means transport state is not tracked.
	hasConnection func(code, username string) bool

	sessionsMu sync.RWMutex
	sessions   map[string]*Session
}

// NewApp creates the game application
func NewApp(directory *lobby.Directory, images ImageSource, broadcaster Broadcaster, clock Clock, config Config) *App {
	return &App{
		directory:   directory,
		images:      images,
		broadcaster: broadcaster,
		presence:    NewPresenceTracker(),
		clock:       clock,
		config:      config,
		pick:        rand.IntN,
		sessions:    make(map[string]*Session),
	}
}

// Stats is a point-in-time count of live objects
type Stats struct {
	Lobbies        int `json:"lobbies"`
	Sessions       int `json:"sessions"`
	ActiveSessions int `json:"active_sessions"`
	Disconnected   int `json:"disconnected"`
}

// CreateLobby creates a lobby hosted by username
func (a *App) CreateLobby(username string) (lobby.Snapshot, error) {
	l, err := a.directory.Create(username)
	if err != nil {
		return lobby.Snapshot{}, err
	}
	l.Lock()
	defer l.Unlock()
	return l.Snapshot(), nil
}

// JoinLobby adds username to the lobby, or reconnects them if they are
// already a participant. Everyone in the lobby receives lobby-updated.
func (a *App) JoinLobby(code, username string) (lobby.Snapshot, bool, error) {
	username, err := lobby.ValidateUsername(username)
	if err != nil {
		return lobby.Snapshot{}, false, fmt.Errorf("join lobby: %w", err)
	}
	l, err := a.lockLobby(code)
	if err != nil {
		return lobby.Snapshot{}, false, fmt.Errorf("join lobby: %w", err)
	}
	defer l.Unlock()

	reconnected := l.Join(username)
	a.presence.Clear(l.Code, username)

	if s := a.session(l.Code); s != nil && s.Active() {
		if _, ok := s.Scores[username]; !ok {
			s.Scores[username] = 0
		}
		if s.Phase != PhaseWaiting {
			a.scheduleResync(l.Code, username)
		}
	}

	log.Info().
		Str("lobby_code", l.Code).
		Str("username", username).
		Bool("reconnected", reconnected).
		Msg("participant joined")

	a.broadcastLobby(l)
	return l.Snapshot(), reconnected, nil
}

// TrackConnections installs the transport's view of open sockets. A
// disconnect reported for a user who already has a new socket is ignored.
func (a *App) TrackConnections(hasConnection func(code, username string) bool) {
	a.hasConnection = hasConnection
}

// LeaveLobby handles an explicit leave request
func (a *App) LeaveLobby(code, username string) error {
	return a.depart(code, username, "left")
}

// Disconnect handles a dropped connection
func (a *App) Disconnect(code, username string) error {
	return a.depart(code, username, reasonDisconnected)
}

const reasonDisconnected = "disconnected"

// depart marks username as gone. While a session is active the participant
// keeps their seat for the grace period; otherwise they are removed, and a
// departing host takes the lobby down with them.
func (a *App) depart(code, username, reason string) error {
	l, err := a.lockLobby(code)
	if err != nil {
		return fmt.Errorf("%s: %w", reason, err)
	}
	defer l.Unlock()

	if l.Participant(username) == nil {
		return fmt.Errorf("%s: %w: %s", reason, ErrNotParticipant, username)
	}

	logger := log.With().Str("lobby_code", l.Code).Str("username", username).Str("reason", reason).Logger()

	// Checked under the lobby lock: a reconnect registers its socket before
	// joining, so either it is visible here or its join runs after us
	if reason == reasonDisconnected && a.hasConnection != nil && a.hasConnection(l.Code, username) {
		logger.Debug().Msg("stale disconnect ignored, participant has an open socket")
		return nil
	}

	if s := a.session(l.Code); s != nil && s.Active() {
		l.SetConnected(username, false)
		a.presence.Record(l.Code, username, a.clock.Now())
		logger.Info().Str("phase", s.Phase.String()).Msg("participant disconnected during game")
		a.broadcastLobby(l)
		return nil
	}

	wasHost := l.IsHost(username)
	l.Remove(username)
	a.presence.Clear(l.Code, username)

	if wasHost || l.IsEmpty() {
		logger.Info().Bool("host", wasHost).Msg("closing lobby")
		a.destroyLobby(l, "host "+reason)
		return nil
	}

	logger.Info().Msg("participant removed")
	a.broadcastLobby(l)
	return nil
}

// StartGame begins a session. Only the host may start, and not while a
// session is already running.
func (a *App) StartGame(code, username string) error {
	l, err := a.lockLobby(code)
	if err != nil {
		return fmt.Errorf("start game: %w", err)
	}
	defer l.Unlock()

	if !l.IsHost(username) {
		return fmt.Errorf("start game: %w", ErrNotHost)
	}
	if s := a.session(l.Code); s != nil && s.Active() {
		return fmt.Errorf("start game: %w: session already running", ErrPreconditionFailed)
	}
	return a.startSession(l, username)
}

// RestartGame replaces the current session with a fresh one, whatever phase
// it is in. Any timer of the old session is cancelled and its late fires are
// dropped. Without a current session it behaves like StartGame.
func (a *App) RestartGame(code, username string) error {
	l, err := a.lockLobby(code)
	if err != nil {
		return fmt.Errorf("restart game: %w", err)
	}
	defer l.Unlock()

	if !l.IsHost(username) {
		return fmt.Errorf("restart game: %w", ErrNotHost)
	}
	return a.startSession(l, username)
}

// startSession checks preconditions and installs a new session.
// Caller holds the lobby lock.
func (a *App) startSession(l *lobby.Lobby, requester string) error {
	if len(l.Participants) < a.config.MinParticipants {
		a.sendError(l.Code, requester, fmt.Sprintf("need at least %d players to start", a.config.MinParticipants))
		return fmt.Errorf("%w: %d participants", ErrPreconditionFailed, len(l.Participants))
	}
	images := a.images.Images()
	if len(images) == 0 {
		a.sendError(l.Code, requester, "no images available")
		return fmt.Errorf("%w: empty catalog", ErrPreconditionFailed)
	}

	if old := a.session(l.Code); old != nil {
		a.cancelTimer(old)
		log.Info().
			Str("lobby_code", l.Code).
			Str("session_id", old.ID.String()).
			Msg("replacing session")
	}

	s := newSession(l.Code, l.Usernames(), images, a.config.TotalRounds, a.clock.Now())
	a.setSession(l.Code, s)
	l.Started = true

	log.Info().
		Str("lobby_code", l.Code).
		Str("session_id", s.ID.String()).
		Int("participants", len(l.Participants)).
		Int("images", len(images)).
		Msg("game started")

	a.broadcast(l.Code, events.EventTypeGameStarted, events.GameStartedPayload{
		Lobby:   l.Snapshot(),
		Session: s.snapshot(),
	})
	a.schedule(l, s, a.config.StartDelay, a.beginRound)
	return nil
}

// CastVote records a participant's vote for the current round. The first
// vote stands; later ones are ignored.
func (a *App) CastVote(code, username, category string) error {
	l, err := a.lockLobby(code)
	if err != nil {
		return fmt.Errorf("vote: %w", err)
	}
	defer l.Unlock()

	if l.Participant(username) == nil {
		return fmt.Errorf("vote: %w: %s", ErrNotParticipant, username)
	}
	s := a.session(l.Code)
	if s == nil || s.Phase != PhaseVoting {
		return fmt.Errorf("vote: %w", ErrVotingClosed)
	}
	vote, ok := ParseCategory(category)
	if !ok {
		a.sendError(l.Code, username, fmt.Sprintf("invalid vote category %q", category))
		return fmt.Errorf("vote: %w: %q", ErrInvalidCategory, category)
	}
	if _, voted := s.Votes[username]; voted {
		return fmt.Errorf("vote: %w", ErrAlreadyVoted)
	}

	s.Votes[username] = vote
	log.Debug().
		Str("lobby_code", l.Code).
		Str("username", username).
		Str("category", string(vote)).
		Int("round", s.Round).
		Msg("vote recorded")
	return nil
}

// RequestSync sends the current session state to a single participant
func (a *App) RequestSync(code, username string) error {
	l, err := a.lockLobby(code)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	defer l.Unlock()

	s := a.session(l.Code)
	if s == nil {
		return fmt.Errorf("sync: %w", ErrNoSession)
	}
	a.sendTo(l.Code, username, events.EventTypeSyncGameState, s.syncPayload(username))
	return nil
}

// LobbySnapshot returns the current lobby state
func (a *App) LobbySnapshot(code string) (lobby.Snapshot, error) {
	l, err := a.lockLobby(code)
	if err != nil {
		return lobby.Snapshot{}, err
	}
	defer l.Unlock()
	return l.Snapshot(), nil
}

// SessionState returns the observable state of the lobby's session
func (a *App) SessionState(code string) (events.SessionSnapshot, error) {
	l, err := a.lockLobby(code)
	if err != nil {
		return events.SessionSnapshot{}, err
	}
	defer l.Unlock()

	s := a.session(l.Code)
	if s == nil {
		return events.SessionSnapshot{}, ErrNoSession
	}
	return s.snapshot(), nil
}

// Stats returns counts of lobbies, sessions and disconnected participants
func (a *App) Stats() Stats {
	a.sessionsMu.RLock()
	sessions := make([]*Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.sessionsMu.RUnlock()

	stats := Stats{
		Lobbies:      a.directory.Count(),
		Sessions:     len(sessions),
		Disconnected: a.presence.Len(),
	}
	for _, l := range a.directory.All() {
		l.Lock()
		if s := a.session(l.Code); s != nil && s.Active() {
			stats.ActiveSessions++
		}
		l.Unlock()
	}
	return stats
}

// Shutdown cancels every pending session timer
func (a *App) Shutdown() {
	for _, l := range a.directory.All() {
		l.Lock()
		if s := a.session(l.Code); s != nil {
			a.cancelTimer(s)
		}
		l.Unlock()
	}
	log.Info().Msg("game timers cancelled")
}

// destroyLobby removes the lobby, its session and presence records, and
// notifies remaining clients. Caller holds the lobby lock.
func (a *App) destroyLobby(l *lobby.Lobby, reason string) {
	if s := a.session(l.Code); s != nil {
		a.cancelTimer(s)
	}
	a.sessionsMu.Lock()
	delete(a.sessions, l.Code)
	a.sessionsMu.Unlock()

	a.presence.ForgetLobby(l.Code)
	a.directory.Delete(l)

	a.broadcast(l.Code, events.EventTypeLobbyClosed, events.LobbyClosedPayload{
		Code:   l.Code,
		Reason: reason,
	})
}

// lockLobby looks up a lobby and acquires its lock. A lobby that was
// removed while we waited for the lock reports as not found.
func (a *App) lockLobby(code string) (*lobby.Lobby, error) {
	l, err := a.directory.Get(code)
	if err != nil {
		return nil, err
	}
	l.Lock()
	if l.Closed() {
		l.Unlock()
		return nil, fmt.Errorf("%w: %s", lobby.ErrNotFound, l.Code)
	}
	return l, nil
}

func (a *App) session(code string) *Session {
	a.sessionsMu.RLock()
	defer a.sessionsMu.RUnlock()
	return a.sessions[code]
}

func (a *App) setSession(code string, s *Session) {
	a.sessionsMu.Lock()
	defer a.sessionsMu.Unlock()
	a.sessions[code] = s
}

func (a *App) broadcastLobby(l *lobby.Lobby) {
	a.broadcast(l.Code, events.EventTypeLobbyUpdated, events.LobbyUpdatedPayload{Lobby: l.Snapshot()})
}

func (a *App) broadcast(code string, eventType events.EventType, payload any) {
	event, err := events.New(code, eventType, payload, a.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("lobby_code", code).Msg("failed to build event")
		return
	}
	a.broadcaster.BroadcastToLobby(code, event)
}

func (a *App) sendTo(code, username string, eventType events.EventType, payload any) {
	event, err := events.New(code, eventType, payload, a.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("lobby_code", code).Str("username", username).Msg("failed to build event")
		return
	}
	a.broadcaster.BroadcastToUser(code, username, event)
}

func (a *App) sendError(code, username, message string) {
	a.sendTo(code, username, events.EventTypeError, events.ErrorPayload{Message: message})
}

// IsClientError reports whether err was caused by the caller's input rather
// than a server fault
func IsClientError(err error) bool {
	for _, target := range []error{
		lobby.ErrInvalidInput, lobby.ErrNotFound,
		ErrPreconditionFailed, ErrNotHost, ErrNoSession,
		ErrVotingClosed, ErrAlreadyVoted, ErrInvalidCategory, ErrNotParticipant,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
