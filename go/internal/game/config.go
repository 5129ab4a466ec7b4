package game

import "time"

// Config holds session timing and sizing rules
type Config struct {
	TotalRounds     int           `yaml:"total_rounds"`
	MinParticipants int           `yaml:"min_participants"`
	StartDelay      time.Duration `yaml:"start_delay"`
	Discussion      time.Duration `yaml:"discussion"`
	Voting          time.Duration `yaml:"voting"`
	Results         time.Duration `yaml:"results"`
	Scoreboard      time.Duration `yaml:"scoreboard"`
	Waiting         time.Duration `yaml:"waiting"`
	ResyncDelay     time.Duration `yaml:"resync_delay"`
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	DisconnectGrace time.Duration `yaml:"disconnect_grace"`
}

// DefaultConfig returns the standard game rules
func DefaultConfig() Config {
	return Config{
		TotalRounds:     5,
		MinParticipants: 2,
		StartDelay:      2 * time.Second,
		Discussion:      60 * time.Second,
		Voting:          30 * time.Second,
		Results:         5 * time.Second,
		Scoreboard:      5 * time.Second,
		Waiting:         3 * time.Second,
		ResyncDelay:     time.Second,
		SweepInterval:   60 * time.Second,
		DisconnectGrace: 5 * time.Minute,
	}
}

// tickInterval is the granularity of the discussion and voting countdowns
const tickInterval = time.Second

// countdownSeconds converts a phase duration to whole countdown seconds
func countdownSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
