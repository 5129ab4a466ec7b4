package game

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/ratethis/go/internal/game/events"
	"github.com/mcdev12/ratethis/go/internal/lobby"
)

// beginRound selects an unused image and opens discussion. The session ends
// instead when no image is left or every round has been played.
func (a *App) beginRound(l *lobby.Lobby, s *Session) {
	unused := s.unusedImages()
	if len(unused) == 0 || s.Round > s.TotalRounds {
		a.endSession(l, s)
		return
	}

	img := unused[a.pick(len(unused))]
	s.markUsed(img)
	s.CurrentImage = &img
	s.Votes = make(map[string]Category)
	s.Phase = PhaseDiscussion
	s.TimeRemaining = countdownSeconds(a.config.Discussion)

	log.Info().
		Str("lobby_code", l.Code).
		Int("round", s.Round).
		Str("image", img.Name).
		Msg("round started")

	a.broadcast(l.Code, events.EventTypeImageSelected, events.ImageSelectedPayload{Image: img, Round: s.Round})
	a.broadcastPhase(l, s)
	a.broadcastTimer(l, s)
	a.schedule(l, s, tickInterval, a.countdownTick)
}

// countdownTick runs once per second during discussion and voting
func (a *App) countdownTick(l *lobby.Lobby, s *Session) {
	s.TimeRemaining--
	if s.TimeRemaining < 0 {
		s.TimeRemaining = 0
	}
	a.broadcastTimer(l, s)

	if s.TimeRemaining > 0 {
		a.schedule(l, s, tickInterval, a.countdownTick)
		return
	}

	switch s.Phase {
	case PhaseDiscussion:
		a.openVoting(l, s)
	case PhaseVoting:
		a.closeVoting(l, s)
	default:
		log.Warn().Str("lobby_code", l.Code).Str("phase", s.Phase.String()).Msg("countdown finished in unexpected phase")
	}
}

func (a *App) openVoting(l *lobby.Lobby, s *Session) {
	s.Phase = PhaseVoting
	s.TimeRemaining = countdownSeconds(a.config.Voting)
	a.broadcastPhase(l, s)
	a.broadcastTimer(l, s)
	a.schedule(l, s, tickInterval, a.countdownTick)
}

// closeVoting tallies the connected participants' votes and awards points
func (a *App) closeVoting(l *lobby.Lobby, s *Session) {
	counts := CountVotes(s.Votes, l.ConnectedUsernames())
	majority, ok := Majority(counts)

	tally := &Tally{
		Counts:      counts,
		Majority:    majority,
		HasMajority: ok,
		Image:       s.CurrentImage,
		Round:       s.Round,
	}
	var scored []string
	if ok {
		scored = ApplyScores(s.Scores, s.Votes, majority)
	}
	s.LastTally = tally
	s.RoundsPlayed++
	s.Phase = PhaseResults
	s.TimeRemaining = 0

	log.Info().
		Str("lobby_code", l.Code).
		Int("round", s.Round).
		Str("majority", string(majority)).
		Bool("has_majority", ok).
		Strs("scored", scored).
		Msg("voting closed")

	a.broadcastPhase(l, s)
	a.broadcast(l.Code, events.EventTypeRoundResults, tally.payload())
	a.schedule(l, s, a.config.Results, a.showScoreboard)
}

func (a *App) showScoreboard(l *lobby.Lobby, s *Session) {
	s.Phase = PhaseScoreboard
	a.broadcastPhase(l, s)
	a.broadcast(l.Code, events.EventTypeScoreboard, events.ScoresPayload{Scores: s.snapshot().Scores, Round: s.Round})
	a.schedule(l, s, a.config.Scoreboard, a.advanceRound)
}

// advanceRound moves to the next round after a short wait, or ends the
// session. The round counter never passes TotalRounds.
func (a *App) advanceRound(l *lobby.Lobby, s *Session) {
	if s.Round >= s.TotalRounds || len(s.unusedImages()) == 0 {
		a.endSession(l, s)
		return
	}
	s.Round++
	s.Phase = PhaseWaiting
	s.CurrentImage = nil
	a.broadcastPhase(l, s)
	a.schedule(l, s, a.config.Waiting, a.beginRound)
}

func (a *App) endSession(l *lobby.Lobby, s *Session) {
	a.cancelTimer(s)
	s.Phase = PhaseEnded
	s.TimeRemaining = 0
	l.Started = false

	log.Info().
		Str("lobby_code", l.Code).
		Str("session_id", s.ID.String()).
		Int("rounds_played", s.RoundsPlayed).
		Msg("game ended")

	a.broadcastPhase(l, s)
	a.broadcast(l.Code, events.EventTypeGameEnded, events.GameEndedPayload{
		Scores:       s.snapshot().Scores,
		RoundsPlayed: s.RoundsPlayed,
	})
	a.broadcastLobby(l)
}

func (a *App) broadcastPhase(l *lobby.Lobby, s *Session) {
	a.broadcast(l.Code, events.EventTypePhaseUpdate, events.PhaseUpdatePayload{Phase: s.Phase.String(), Round: s.Round})
}

func (a *App) broadcastTimer(l *lobby.Lobby, s *Session) {
	a.broadcast(l.Code, events.EventTypeTimer, events.TimerPayload{TimeRemainingSec: s.TimeRemaining})
}

// scheduleResync sends a targeted sync-game-state shortly after a
// participant (re)joins a running session. The payload is built when the
// timer fires so it reflects the state at delivery.
func (a *App) scheduleResync(code, username string) {
	a.clock.AfterFunc(a.config.ResyncDelay, func() {
		l, err := a.lockLobby(code)
		if err != nil {
			return
		}
		defer l.Unlock()

		s := a.session(l.Code)
		if s == nil || l.Participant(username) == nil {
			return
		}
		log.Debug().Str("lobby_code", l.Code).Str("username", username).Str("phase", s.Phase.String()).Msg("sending resync")
		a.sendTo(l.Code, username, events.EventTypeSyncGameState, s.syncPayload(username))
	})
}
