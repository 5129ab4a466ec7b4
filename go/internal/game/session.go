package game

import (
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/ratethis/go/internal/catalog"
	"github.com/mcdev12/ratethis/go/internal/game/events"
)

// Session is one play-through of a lobby. All fields are guarded by the
// owning lobby's lock.
type Session struct {
	ID            uuid.UUID
	LobbyCode     string
	Phase         Phase
	Round         int
	TotalRounds   int
	RoundsPlayed  int
	TimeRemaining int
	CurrentImage  *catalog.Image
	Votes         map[string]Category
	Scores        map[string]int
	LastTally     *Tally
	StartedAt     time.Time

	// images is the catalog as it was when the session started; used
	// holds indices into it.
	images []catalog.Image
	used   map[int]struct{}

	timer    clockwork.Timer
	timerSeq uint64
}

func newSession(code string, participants []string, images []catalog.Image, totalRounds int, now time.Time) *Session {
	scores := make(map[string]int, len(participants))
	for _, username := range participants {
		scores[username] = 0
	}
	return &Session{
		ID:          uuid.New(),
		LobbyCode:   code,
		Phase:       PhaseWaiting,
		Round:       1,
		TotalRounds: totalRounds,
		Votes:       make(map[string]Category),
		Scores:      scores,
		StartedAt:   now,
		images:      images,
		used:        make(map[int]struct{}),
	}
}

// Active reports whether the session is still being played
func (s *Session) Active() bool {
	return s.Phase != PhaseEnded
}

// unusedImages returns the snapshot images not yet shown, in catalog order
func (s *Session) unusedImages() []catalog.Image {
	unused := make([]catalog.Image, 0, len(s.images)-len(s.used))
	for _, img := range s.images {
		if _, seen := s.used[img.Index]; !seen {
			unused = append(unused, img)
		}
	}
	return unused
}

func (s *Session) markUsed(img catalog.Image) {
	s.used[img.Index] = struct{}{}
}

func (s *Session) snapshot() events.SessionSnapshot {
	snap := events.SessionSnapshot{
		SessionID:     s.ID.String(),
		Phase:         s.Phase.String(),
		Round:         s.Round,
		TotalRounds:   s.TotalRounds,
		TimeRemaining: s.TimeRemaining,
		Scores:        maps.Clone(s.Scores),
		LastTally:     s.LastTally.payload(),
		ImagesUsed:    len(s.used),
		StartedAt:     s.StartedAt,
	}
	if s.CurrentImage != nil {
		img := *s.CurrentImage
		snap.Image = &img
	}
	return snap
}

func (s *Session) syncPayload(username string) events.SyncGameStatePayload {
	payload := events.SyncGameStatePayload{SessionSnapshot: s.snapshot()}
	if vote, ok := s.Votes[username]; ok {
		v := string(vote)
		payload.MyVote = &v
	}
	return payload
}
