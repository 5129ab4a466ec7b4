package game

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/ratethis/go/internal/lobby"
)

// stepFunc advances a session. It runs with the lobby lock held.
type stepFunc func(l *lobby.Lobby, s *Session)

// schedule arms the session's single timer, replacing any pending one.
// Every arm bumps timerSeq so a callback that was already waiting on the
// lobby lock when it got replaced can tell it is stale.
// Caller holds the lobby lock.
func (a *App) schedule(l *lobby.Lobby, s *Session, d time.Duration, step stepFunc) {
	a.cancelTimer(s)

	s.timerSeq++
	seq := s.timerSeq
	code := l.Code
	s.timer = a.clock.AfterFunc(d, func() {
		a.fire(code, s, seq, step)
	})

	log.Debug().
		Str("lobby_code", code).
		Str("phase", s.Phase.String()).
		Uint64("seq", seq).
		Dur("duration", d).
		Msg("scheduled session timer")
}

// fire runs a timer callback if the session and arm are still current
func (a *App) fire(code string, s *Session, seq uint64, step stepFunc) {
	l, err := a.directory.Get(code)
	if err != nil {
		log.Debug().Str("lobby_code", code).Uint64("seq", seq).Msg("timer fired for removed lobby")
		return
	}

	l.Lock()
	defer l.Unlock()

	if l.Closed() || a.session(code) != s || s.timerSeq != seq {
		log.Debug().
			Str("lobby_code", code).
			Uint64("seq", seq).
			Uint64("current_seq", s.timerSeq).
			Msg("dropping stale timer fire")
		return
	}
	s.timer = nil
	step(l, s)
}

// cancelTimer stops the pending timer, if any. The sequence is bumped so an
// in-flight callback is dropped. Caller holds the lobby lock.
func (a *App) cancelTimer(s *Session) {
	s.timerSeq++
	if s.timer == nil {
		return
	}
	stopAndDrainTimer(s.timer)
	s.timer = nil
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
