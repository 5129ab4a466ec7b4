package game

import "errors"

var (
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotHost            = errors.New("only the host can do that")
	ErrNoSession          = errors.New("no game session")
	ErrVotingClosed       = errors.New("voting is not open")
	ErrAlreadyVoted       = errors.New("vote already recorded")
	ErrInvalidCategory    = errors.New("invalid vote category")
	ErrNotParticipant     = errors.New("not a participant")
)
