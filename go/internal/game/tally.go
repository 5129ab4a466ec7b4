package game

import (
	"github.com/mcdev12/ratethis/go/internal/catalog"
	"github.com/mcdev12/ratethis/go/internal/game/events"
)

// Tally is the outcome of one round of voting
type Tally struct {
	Counts      map[Category]int
	Majority    Category
	HasMajority bool
	Image       *catalog.Image
	Round       int
}

// CountVotes counts votes per category, restricted to the connected usernames.
// Votes recorded for anyone else stay in the map but are not counted.
func CountVotes(votes map[string]Category, connected []string) map[Category]int {
	counts := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		counts[c] = 0
	}
	for _, username := range connected {
		vote, ok := votes[username]
		if !ok {
			continue
		}
		if _, valid := counts[vote]; valid {
			counts[vote]++
		}
	}
	return counts
}

// Majority returns the category with the strictly highest count. Any tie for
// the top count, including everyone at zero, means there is no majority.
func Majority(counts map[Category]int) (Category, bool) {
	var best Category
	top, tied := 0, 0
	for _, c := range Categories {
		n := counts[c]
		switch {
		case n > top:
			best, top, tied = c, n, 1
		case n == top:
			tied++
		}
	}
	if top == 0 || tied > 1 {
		return "", false
	}
	return best, true
}

// ApplyScores gives +1 to every recorded vote matching the majority,
// regardless of the voter's connectivity. Returns the usernames scored.
func ApplyScores(scores map[string]int, votes map[string]Category, majority Category) []string {
	var scored []string
	for username, vote := range votes {
		if vote != majority {
			continue
		}
		scores[username]++
		scored = append(scored, username)
	}
	return scored
}

func (t *Tally) payload() *events.TallyPayload {
	if t == nil {
		return nil
	}
	counts := make(map[string]int, len(t.Counts))
	for c, n := range t.Counts {
		counts[string(c)] = n
	}
	p := &events.TallyPayload{
		Counts: counts,
		Image:  t.Image,
		Round:  t.Round,
	}
	if t.HasMajority {
		majority := string(t.Majority)
		p.Majority = &majority
	}
	return p
}
