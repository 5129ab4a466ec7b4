package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/ratethis/go/internal/catalog"
	"github.com/mcdev12/ratethis/go/internal/game/events"
	"github.com/mcdev12/ratethis/go/internal/lobby"
)

type sentEvent struct {
	username string
	event    *events.Event
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	toLobby []*events.Event
	toUsers []sentEvent
}

func (f *fakeBroadcaster) BroadcastToLobby(_ string, event *events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toLobby = append(f.toLobby, event)
}

func (f *fakeBroadcaster) BroadcastToUser(_ string, username string, event *events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toUsers = append(f.toUsers, sentEvent{username: username, event: event})
}

func (f *fakeBroadcaster) ofType(eventType events.EventType) []*events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*events.Event
	for _, e := range f.toLobby {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeBroadcaster) sentTo(username string, eventType events.EventType) []*events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*events.Event
	for _, s := range f.toUsers {
		if s.username == username && s.event.Type == eventType {
			out = append(out, s.event)
		}
	}
	return out
}

type staticImages []catalog.Image

func (s staticImages) Images() []catalog.Image {
	return slices.Clone(s)
}

func testImages(n int) staticImages {
	images := make(staticImages, n)
	for i := range images {
		name := fmt.Sprintf("img%02d.jpg", i)
		images[i] = catalog.Image{Index: i, Name: name, URL: "/images/" + name}
	}
	return images
}

func shortConfig() Config {
	cfg := DefaultConfig()
	cfg.StartDelay = time.Second
	cfg.Discussion = 2 * time.Second
	cfg.Voting = 2 * time.Second
	cfg.Results = time.Second
	cfg.Scoreboard = time.Second
	cfg.Waiting = time.Second
	return cfg
}

// idleConfig keeps a started session in the waiting phase so the clock can
// be moved across the grace period without firing any round timers.
func idleConfig() Config {
	cfg := DefaultConfig()
	cfg.StartDelay = time.Hour
	return cfg
}

func newTestApp(t *testing.T, config Config, imageCount int) (*App, *clockwork.FakeClock, *fakeBroadcaster) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	b := &fakeBroadcaster{}
	app := NewApp(lobby.NewDirectory(clock), testImages(imageCount), b, clock, config)
	app.pick = func(int) int { return 0 }
	t.Cleanup(app.Shutdown)
	return app, clock, b
}

// setupLobby creates a lobby hosted by the first name and joins the rest
func setupLobby(t *testing.T, app *App, host string, others ...string) string {
	t.Helper()
	snap, err := app.CreateLobby(host)
	require.NoError(t, err)
	for _, name := range others {
		_, reconnected, err := app.JoinLobby(snap.Code, name)
		require.NoError(t, err)
		require.False(t, reconnected)
	}
	return snap.Code
}

func waitForTimers(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n), "timed out waiting for %d timers", n)
}

func tick(t *testing.T, clock *clockwork.FakeClock, d time.Duration) {
	t.Helper()
	waitForTimers(t, clock, 1)
	clock.Advance(d)
}

func tickSeconds(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		tick(t, clock, time.Second)
	}
}

// settledState waits for the next timer to be armed, then reads the session
func settledState(t *testing.T, app *App, clock *clockwork.FakeClock, code string) events.SessionSnapshot {
	t.Helper()
	waitForTimers(t, clock, 1)
	state, err := app.SessionState(code)
	require.NoError(t, err)
	return state
}

// runToEnd advances one second at a time until no timer is left
func runToEnd(t *testing.T, app *App, clock *clockwork.FakeClock, code string) events.SessionSnapshot {
	t.Helper()
	for i := 0; i < 1000; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		err := clock.BlockUntilContext(ctx, 1)
		cancel()
		if err != nil {
			break
		}
		clock.Advance(time.Second)
	}
	var state events.SessionSnapshot
	require.Eventually(t, func() bool {
		var err error
		state, err = app.SessionState(code)
		return err == nil && state.Phase == PhaseEnded.String()
	}, 2*time.Second, 10*time.Millisecond)
	return state
}

func TestApp_FullRound(t *testing.T) {
	app, clock, b := newTestApp(t, DefaultConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")

	startedAt := clock.Now()
	require.NoError(t, app.StartGame(code, "alice"))
	require.Len(t, b.ofType(events.EventTypeGameStarted), 1)

	state := settledState(t, app, clock, code)
	assert.Equal(t, PhaseWaiting.String(), state.Phase)
	assert.True(t, startedAt.Equal(state.StartedAt))
	assert.Equal(t, 1, state.Round)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, state.Scores)

	tick(t, clock, 2*time.Second)
	state = settledState(t, app, clock, code)
	assert.Equal(t, PhaseDiscussion.String(), state.Phase)
	assert.Equal(t, 60, state.TimeRemaining)
	require.NotNil(t, state.Image)
	assert.Equal(t, "img00.jpg", state.Image.Name)

	selected := b.ofType(events.EventTypeImageSelected)
	require.Len(t, selected, 1)
	var img events.ImageSelectedPayload
	require.NoError(t, selected[0].Decode(&img))
	assert.Equal(t, 1, img.Round)

	// Votes are rejected outside the voting phase
	assert.ErrorIs(t, app.CastVote(code, "alice", "overrated"), ErrVotingClosed)

	tickSeconds(t, clock, 59)
	state = settledState(t, app, clock, code)
	assert.Equal(t, PhaseDiscussion.String(), state.Phase)
	assert.Equal(t, 1, state.TimeRemaining)

	tickSeconds(t, clock, 1)
	state = settledState(t, app, clock, code)
	assert.Equal(t, PhaseVoting.String(), state.Phase)
	assert.Equal(t, 30, state.TimeRemaining)

	require.NoError(t, app.CastVote(code, "alice", "overrated"))
	require.NoError(t, app.CastVote(code, "bob", "overrated"))
	assert.ErrorIs(t, app.CastVote(code, "bob", "underrated"), ErrAlreadyVoted)

	tickSeconds(t, clock, 30)
	state = settledState(t, app, clock, code)
	assert.Equal(t, PhaseResults.String(), state.Phase)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 1}, state.Scores)
	require.NotNil(t, state.LastTally)
	require.NotNil(t, state.LastTally.Majority)
	assert.Equal(t, "overrated", *state.LastTally.Majority)
	assert.Equal(t, 2, state.LastTally.Counts["overrated"])

	results := b.ofType(events.EventTypeRoundResults)
	require.Len(t, results, 1)

	tick(t, clock, 5*time.Second)
	state = settledState(t, app, clock, code)
	assert.Equal(t, PhaseScoreboard.String(), state.Phase)
	require.Len(t, b.ofType(events.EventTypeScoreboard), 1)

	tick(t, clock, 5*time.Second)
	state = settledState(t, app, clock, code)
	assert.Equal(t, PhaseWaiting.String(), state.Phase)
	assert.Equal(t, 2, state.Round)
	assert.Nil(t, state.Image)

	tick(t, clock, 3*time.Second)
	state = settledState(t, app, clock, code)
	assert.Equal(t, PhaseDiscussion.String(), state.Phase)
	assert.Equal(t, 2, state.Round)
	require.NotNil(t, state.Image)
	assert.Equal(t, "img01.jpg", state.Image.Name)
	assert.Equal(t, 2, state.ImagesUsed)
}

func TestApp_ThreeWayTieAwardsNothing(t *testing.T) {
	app, clock, b := newTestApp(t, shortConfig(), 5)
	code := setupLobby(t, app, "alice", "bob", "carol")
	require.NoError(t, app.StartGame(code, "alice"))

	tick(t, clock, time.Second) // start delay
	tickSeconds(t, clock, 2)    // discussion
	state := settledState(t, app, clock, code)
	require.Equal(t, PhaseVoting.String(), state.Phase)

	require.NoError(t, app.CastVote(code, "alice", "overrated"))
	require.NoError(t, app.CastVote(code, "bob", "fairlyRated"))
	require.NoError(t, app.CastVote(code, "carol", "underrated"))

	tickSeconds(t, clock, 2)
	state = settledState(t, app, clock, code)
	require.Equal(t, PhaseResults.String(), state.Phase)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0, "carol": 0}, state.Scores)

	results := b.ofType(events.EventTypeRoundResults)
	require.Len(t, results, 1)
	var tally events.TallyPayload
	require.NoError(t, results[0].Decode(&tally))
	assert.Nil(t, tally.Majority)
	assert.Equal(t, map[string]int{"overrated": 1, "fairlyRated": 1, "underrated": 1}, tally.Counts)
}

func TestApp_DisconnectedVoteExcludedFromTally(t *testing.T) {
	app, clock, _ := newTestApp(t, shortConfig(), 5)
	code := setupLobby(t, app, "alice", "bob", "carol")
	require.NoError(t, app.StartGame(code, "alice"))

	tick(t, clock, time.Second)
	tickSeconds(t, clock, 2)
	state := settledState(t, app, clock, code)
	require.Equal(t, PhaseVoting.String(), state.Phase)

	require.NoError(t, app.CastVote(code, "alice", "overrated"))
	require.NoError(t, app.CastVote(code, "bob", "underrated"))
	require.NoError(t, app.CastVote(code, "carol", "underrated"))
	require.NoError(t, app.Disconnect(code, "bob"))
	require.NoError(t, app.Disconnect(code, "carol"))

	tickSeconds(t, clock, 2)
	state = settledState(t, app, clock, code)
	require.Equal(t, PhaseResults.String(), state.Phase)
	require.NotNil(t, state.LastTally.Majority)
	assert.Equal(t, "overrated", *state.LastTally.Majority)
	assert.Equal(t, 0, state.LastTally.Counts["underrated"])
	assert.Equal(t, map[string]int{"alice": 1, "bob": 0, "carol": 0}, state.Scores)
}

func TestApp_DisconnectedMajorityVoterStillScores(t *testing.T) {
	app, clock, _ := newTestApp(t, shortConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))

	tick(t, clock, time.Second)
	tickSeconds(t, clock, 2)
	settledState(t, app, clock, code)

	require.NoError(t, app.CastVote(code, "alice", "fairlyRated"))
	require.NoError(t, app.CastVote(code, "bob", "fairlyRated"))
	require.NoError(t, app.Disconnect(code, "bob"))

	tickSeconds(t, clock, 2)
	state := settledState(t, app, clock, code)
	assert.Equal(t, 1, state.LastTally.Counts["fairlyRated"])
	assert.Equal(t, map[string]int{"alice": 1, "bob": 1}, state.Scores)
}

func TestApp_CastVoteInvalidCategory(t *testing.T) {
	app, clock, b := newTestApp(t, shortConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))

	tick(t, clock, time.Second)
	tickSeconds(t, clock, 2)
	settledState(t, app, clock, code)

	err := app.CastVote(code, "bob", "brilliant")
	assert.ErrorIs(t, err, ErrInvalidCategory)
	assert.True(t, IsClientError(err))
	require.Len(t, b.sentTo("bob", events.EventTypeError), 1)

	// The rejected value does not count as bob's vote
	require.NoError(t, app.CastVote(code, "bob", "underrated"))

	assert.ErrorIs(t, app.CastVote(code, "mallory", "underrated"), ErrNotParticipant)
}

func TestApp_StartGamePreconditions(t *testing.T) {
	t.Run("non host is rejected", func(t *testing.T) {
		app, _, b := newTestApp(t, DefaultConfig(), 5)
		code := setupLobby(t, app, "alice", "bob")

		assert.ErrorIs(t, app.StartGame(code, "bob"), ErrNotHost)
		assert.Empty(t, b.ofType(events.EventTypeGameStarted))
		assert.Empty(t, b.sentTo("bob", events.EventTypeError))
	})

	t.Run("needs two participants", func(t *testing.T) {
		app, _, b := newTestApp(t, DefaultConfig(), 5)
		code := setupLobby(t, app, "alice")

		assert.ErrorIs(t, app.StartGame(code, "alice"), ErrPreconditionFailed)
		assert.Len(t, b.sentTo("alice", events.EventTypeError), 1)
		_, err := app.SessionState(code)
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("needs images", func(t *testing.T) {
		app, _, b := newTestApp(t, DefaultConfig(), 0)
		code := setupLobby(t, app, "alice", "bob")

		assert.ErrorIs(t, app.StartGame(code, "alice"), ErrPreconditionFailed)
		assert.Len(t, b.sentTo("alice", events.EventTypeError), 1)
	})

	t.Run("rejects a second start", func(t *testing.T) {
		app, _, b := newTestApp(t, DefaultConfig(), 5)
		code := setupLobby(t, app, "alice", "bob")

		require.NoError(t, app.StartGame(code, "alice"))
		assert.ErrorIs(t, app.StartGame(code, "alice"), ErrPreconditionFailed)
		assert.Len(t, b.ofType(events.EventTypeGameStarted), 1)
	})

	t.Run("unknown lobby", func(t *testing.T) {
		app, _, _ := newTestApp(t, DefaultConfig(), 5)
		assert.ErrorIs(t, app.StartGame("ZZZZZZ", "alice"), lobby.ErrNotFound)
	})
}

func TestApp_GameEndsAfterTotalRounds(t *testing.T) {
	app, clock, b := newTestApp(t, shortConfig(), 10)
	app.pick = func(n int) int { return n - 1 }
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))

	state := runToEnd(t, app, clock, code)
	assert.Equal(t, 5, state.Round)
	assert.Equal(t, 5, state.ImagesUsed)

	ended := b.ofType(events.EventTypeGameEnded)
	require.Len(t, ended, 1)
	var payload events.GameEndedPayload
	require.NoError(t, ended[0].Decode(&payload))
	assert.Equal(t, 5, payload.RoundsPlayed)

	seen := map[string]bool{}
	for _, e := range b.ofType(events.EventTypeImageSelected) {
		var img events.ImageSelectedPayload
		require.NoError(t, e.Decode(&img))
		assert.False(t, seen[img.Image.Name], "image %s shown twice", img.Image.Name)
		seen[img.Image.Name] = true
	}
	assert.Len(t, seen, 5)

	for _, e := range b.ofType(events.EventTypePhaseUpdate) {
		var phase events.PhaseUpdatePayload
		require.NoError(t, e.Decode(&phase))
		assert.LessOrEqual(t, phase.Round, 5)
	}

	snap, err := app.LobbySnapshot(code)
	require.NoError(t, err)
	assert.False(t, snap.Started)
}

func TestApp_GameEndsWhenImagesRunOut(t *testing.T) {
	app, clock, b := newTestApp(t, shortConfig(), 3)
	app.pick = rand.IntN
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))

	state := runToEnd(t, app, clock, code)
	assert.Equal(t, 3, state.Round)
	assert.Equal(t, 3, state.ImagesUsed)

	var payload events.GameEndedPayload
	ended := b.ofType(events.EventTypeGameEnded)
	require.Len(t, ended, 1)
	require.NoError(t, ended[0].Decode(&payload))
	assert.Equal(t, 3, payload.RoundsPlayed)

	names := map[string]bool{}
	for _, e := range b.ofType(events.EventTypeImageSelected) {
		var img events.ImageSelectedPayload
		require.NoError(t, e.Decode(&img))
		names[img.Image.Name] = true
	}
	assert.Len(t, names, 3)
}

func TestApp_RestartDropsStaleTimers(t *testing.T) {
	app, clock, b := newTestApp(t, shortConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))

	tick(t, clock, time.Second)
	first := settledState(t, app, clock, code)
	require.Equal(t, PhaseDiscussion.String(), first.Phase)

	old := app.session(code)
	l, err := app.directory.Get(code)
	require.NoError(t, err)
	l.Lock()
	oldSeq := old.timerSeq
	l.Unlock()

	assert.ErrorIs(t, app.RestartGame(code, "bob"), ErrNotHost)
	require.NoError(t, app.RestartGame(code, "alice"))
	require.Len(t, b.ofType(events.EventTypeGameStarted), 2)

	restarted := settledState(t, app, clock, code)
	assert.NotEqual(t, first.SessionID, restarted.SessionID)
	assert.Equal(t, PhaseWaiting.String(), restarted.Phase)
	assert.Equal(t, map[string]int{"alice": 0, "bob": 0}, restarted.Scores)

	// A fire belonging to the replaced session is dropped
	called := false
	app.fire(code, old, oldSeq, func(*lobby.Lobby, *Session) { called = true })
	assert.False(t, called)

	// So is an outdated arm of the current session
	current := app.session(code)
	app.fire(code, current, 0, func(*lobby.Lobby, *Session) { called = true })
	assert.False(t, called)

	tick(t, clock, time.Second)
	state := settledState(t, app, clock, code)
	assert.Equal(t, restarted.SessionID, state.SessionID)
	assert.Equal(t, PhaseDiscussion.String(), state.Phase)
	assert.Equal(t, 1, state.Round)
}

func TestApp_RestartAfterGameEnded(t *testing.T) {
	app, clock, _ := newTestApp(t, shortConfig(), 1)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))
	runToEnd(t, app, clock, code)

	require.NoError(t, app.StartGame(code, "alice"))
	state := settledState(t, app, clock, code)
	assert.Equal(t, PhaseWaiting.String(), state.Phase)
	assert.Equal(t, 0, state.ImagesUsed)
}

func TestApp_LeaveBeforeStart(t *testing.T) {
	t.Run("participant is removed", func(t *testing.T) {
		app, _, b := newTestApp(t, DefaultConfig(), 5)
		code := setupLobby(t, app, "alice", "bob")

		require.NoError(t, app.LeaveLobby(code, "bob"))

		snap, err := app.LobbySnapshot(code)
		require.NoError(t, err)
		require.Len(t, snap.Participants, 1)
		assert.Equal(t, "alice", snap.Participants[0].Username)
		assert.Len(t, b.ofType(events.EventTypeLobbyUpdated), 2)
	})

	t.Run("host leaving closes the lobby", func(t *testing.T) {
		app, _, b := newTestApp(t, DefaultConfig(), 5)
		code := setupLobby(t, app, "alice", "bob")

		require.NoError(t, app.LeaveLobby(code, "alice"))

		_, err := app.LobbySnapshot(code)
		assert.ErrorIs(t, err, lobby.ErrNotFound)
		closed := b.ofType(events.EventTypeLobbyClosed)
		require.Len(t, closed, 1)
		var payload events.LobbyClosedPayload
		require.NoError(t, closed[0].Decode(&payload))
		assert.Equal(t, code, payload.Code)

		_, _, err = app.JoinLobby(code, "bob")
		assert.ErrorIs(t, err, lobby.ErrNotFound)
	})

	t.Run("unknown participant", func(t *testing.T) {
		app, _, _ := newTestApp(t, DefaultConfig(), 5)
		code := setupLobby(t, app, "alice")
		assert.ErrorIs(t, app.LeaveLobby(code, "zed"), ErrNotParticipant)
	})
}

func TestApp_DisconnectDuringGameKeepsSeat(t *testing.T) {
	app, _, _ := newTestApp(t, idleConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))

	require.NoError(t, app.Disconnect(code, "alice"))

	snap, err := app.LobbySnapshot(code)
	require.NoError(t, err)
	require.Len(t, snap.Participants, 2)
	assert.Equal(t, "alice", snap.Host)
	assert.False(t, snap.Participants[0].Connected)
	assert.Equal(t, 1, app.Stats().Disconnected)
}

func TestApp_ReconnectWithinGrace(t *testing.T) {
	app, clock, _ := newTestApp(t, idleConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))
	require.NoError(t, app.Disconnect(code, "bob"))

	clock.Advance(2 * time.Minute)
	snap, reconnected, err := app.JoinLobby(code, "bob")
	require.NoError(t, err)
	assert.True(t, reconnected)
	assert.True(t, snap.Participants[1].Connected)

	clock.Advance(4 * time.Minute)
	assert.Equal(t, 0, app.SweepDisconnected())

	snap, err = app.LobbySnapshot(code)
	require.NoError(t, err)
	assert.Len(t, snap.Participants, 2)
}

func TestApp_DisconnectIgnoredWhileSocketOpen(t *testing.T) {
	app, _, _ := newTestApp(t, idleConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))

	open := map[string]bool{"bob": true}
	app.TrackConnections(func(c, username string) bool { return c == code && open[username] })

	// bob's new socket is already open when the old one's disconnect arrives
	require.NoError(t, app.Disconnect(code, "bob"))
	snap, err := app.LobbySnapshot(code)
	require.NoError(t, err)
	assert.True(t, snap.Participants[1].Connected)
	assert.Equal(t, 0, app.Stats().Disconnected)

	open["bob"] = false
	require.NoError(t, app.Disconnect(code, "bob"))
	snap, err = app.LobbySnapshot(code)
	require.NoError(t, err)
	assert.False(t, snap.Participants[1].Connected)
	assert.Equal(t, 1, app.Stats().Disconnected)

	// An explicit leave is never second-guessed
	open["alice"] = true
	require.NoError(t, app.LeaveLobby(code, "alice"))
	snap, err = app.LobbySnapshot(code)
	require.NoError(t, err)
	assert.False(t, snap.Participants[0].Connected)
	assert.Equal(t, 2, app.Stats().Disconnected)
}

func TestApp_EvictAfterGrace(t *testing.T) {
	app, clock, b := newTestApp(t, idleConfig(), 5)
	code := setupLobby(t, app, "alice", "bob", "carol")
	require.NoError(t, app.StartGame(code, "alice"))
	require.NoError(t, app.Disconnect(code, "alice"))

	clock.Advance(4 * time.Minute)
	assert.Equal(t, 0, app.SweepDisconnected())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, app.SweepDisconnected())

	snap, err := app.LobbySnapshot(code)
	require.NoError(t, err)
	assert.Equal(t, "bob", snap.Host)
	require.Len(t, snap.Participants, 2)
	assert.True(t, snap.Participants[0].IsHost)

	// A late rejoin is a fresh participant
	_, reconnected, err := app.JoinLobby(code, "alice")
	require.NoError(t, err)
	assert.False(t, reconnected)

	updates := b.ofType(events.EventTypeLobbyUpdated)
	require.NotEmpty(t, updates)
}

func TestApp_EvictingEveryoneClosesLobby(t *testing.T) {
	app, clock, b := newTestApp(t, idleConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))
	require.NoError(t, app.Disconnect(code, "alice"))
	require.NoError(t, app.Disconnect(code, "bob"))

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 2, app.SweepDisconnected())

	_, err := app.LobbySnapshot(code)
	assert.ErrorIs(t, err, lobby.ErrNotFound)
	assert.Len(t, b.ofType(events.EventTypeLobbyClosed), 1)
	assert.Equal(t, 0, app.Stats().Disconnected)
	assert.Equal(t, 0, app.Stats().Sessions)
}

func TestApp_PresenceSweeperRuns(t *testing.T) {
	app, clock, _ := newTestApp(t, idleConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))
	require.NoError(t, app.Disconnect(code, "bob"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		app.RunPresenceSweeper(ctx)
	}()

	// start-delay timer plus the sweep ticker
	waitForTimers(t, clock, 2)
	clock.Advance(6 * time.Minute)

	assert.Eventually(t, func() bool {
		snap, err := app.LobbySnapshot(code)
		return err == nil && len(snap.Participants) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestApp_ReconnectMidRoundResyncs(t *testing.T) {
	app, clock, b := newTestApp(t, DefaultConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))
	tick(t, clock, 2*time.Second)
	settledState(t, app, clock, code)

	require.NoError(t, app.Disconnect(code, "bob"))
	_, reconnected, err := app.JoinLobby(code, "bob")
	require.NoError(t, err)
	require.True(t, reconnected)

	// round tick plus the pending resync
	waitForTimers(t, clock, 2)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return len(b.sentTo("bob", events.EventTypeSyncGameState)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var payload events.SyncGameStatePayload
	require.NoError(t, b.sentTo("bob", events.EventTypeSyncGameState)[0].Decode(&payload))
	assert.Equal(t, PhaseDiscussion.String(), payload.Phase)
	assert.Nil(t, payload.MyVote)
	assert.Empty(t, b.sentTo("alice", events.EventTypeSyncGameState))
}

func TestApp_JoinDuringWaitingSkipsResync(t *testing.T) {
	app, clock, b := newTestApp(t, idleConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))

	_, _, err := app.JoinLobby(code, "carol")
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	assert.Empty(t, b.sentTo("carol", events.EventTypeSyncGameState))

	state, err := app.SessionState(code)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Scores["carol"])
}

func TestApp_RequestSyncIncludesOwnVote(t *testing.T) {
	app, clock, b := newTestApp(t, shortConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")

	assert.ErrorIs(t, app.RequestSync(code, "bob"), ErrNoSession)

	require.NoError(t, app.StartGame(code, "alice"))
	tick(t, clock, time.Second)
	tickSeconds(t, clock, 2)
	settledState(t, app, clock, code)
	require.NoError(t, app.CastVote(code, "bob", "underrated"))

	require.NoError(t, app.RequestSync(code, "bob"))
	sent := b.sentTo("bob", events.EventTypeSyncGameState)
	require.Len(t, sent, 1)
	var payload events.SyncGameStatePayload
	require.NoError(t, sent[0].Decode(&payload))
	require.NotNil(t, payload.MyVote)
	assert.Equal(t, "underrated", *payload.MyVote)
	assert.Equal(t, PhaseVoting.String(), payload.Phase)
}

func TestApp_VotesClearedWhenDiscussionStarts(t *testing.T) {
	app, clock, b := newTestApp(t, shortConfig(), 5)
	code := setupLobby(t, app, "alice", "bob")
	require.NoError(t, app.StartGame(code, "alice"))

	tick(t, clock, time.Second)
	tickSeconds(t, clock, 2)
	settledState(t, app, clock, code)
	require.NoError(t, app.CastVote(code, "bob", "overrated"))

	myVote := func() *string {
		require.NoError(t, app.RequestSync(code, "bob"))
		sent := b.sentTo("bob", events.EventTypeSyncGameState)
		require.NotEmpty(t, sent)
		var payload events.SyncGameStatePayload
		require.NoError(t, sent[len(sent)-1].Decode(&payload))
		return payload.MyVote
	}

	// voting -> results -> scoreboard -> waiting for round 2
	tickSeconds(t, clock, 2)
	tick(t, clock, time.Second)
	tick(t, clock, time.Second)
	state := settledState(t, app, clock, code)
	require.Equal(t, PhaseWaiting.String(), state.Phase)
	require.Equal(t, 2, state.Round)
	vote := myVote()
	require.NotNil(t, vote)
	assert.Equal(t, "overrated", *vote)

	tick(t, clock, time.Second)
	state = settledState(t, app, clock, code)
	require.Equal(t, PhaseDiscussion.String(), state.Phase)
	assert.Nil(t, myVote())
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(fmt.Errorf("wrap: %w", ErrNotHost)))
	assert.True(t, IsClientError(lobby.ErrInvalidInput))
	assert.False(t, IsClientError(errors.New("boom")))
}
