package lobby

import "errors"

var (
	// ErrInvalidInput is returned for malformed usernames or lobby codes
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when no lobby is registered under a code
	ErrNotFound = errors.New("lobby not found")
)
