package game

// Phase is the current stage of a round
type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseDiscussion Phase = "discussion"
	PhaseVoting     Phase = "voting"
	PhaseResults    Phase = "results"
	PhaseScoreboard Phase = "scoreboard"
	PhaseEnded      Phase = "ended"
)

// String returns the string representation of the phase
func (p Phase) String() string {
	return string(p)
}

// Category is a vote value
type Category string

const (
	CategoryOverrated   Category = "overrated"
	CategoryFairlyRated Category = "fairlyRated"
	CategoryUnderrated  Category = "underrated"
)

// Categories lists every accepted vote value in display order
var Categories = []Category{CategoryOverrated, CategoryFairlyRated, CategoryUnderrated}

// ParseCategory validates a raw vote value against the closed category set
func ParseCategory(raw string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == raw {
			return c, true
		}
	}
	return "", false
}
