package lobby

import (
	crand "crypto/rand"
	"math/big"
	"math/rand"
	"strings"
	"unicode/utf8"
)

const (
	// CodeLength is the length of generated lobby codes
	CodeLength = 6

	// CodeChars excludes characters that are easy to misread (0/O, 1/I)
	CodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// MinUsernameLength is the minimum number of characters in a username
	MinUsernameLength = 2
)

// GenerateCode creates a random lobby code
func GenerateCode() string {
	code := make([]byte, CodeLength)
	for i := range CodeLength {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(CodeChars))))
		if err != nil {
			code[i] = CodeChars[rand.Intn(len(CodeChars))]
			continue
		}
		code[i] = CodeChars[n.Int64()]
	}
	return string(code)
}

// NormalizeCode upper-cases and trims a user supplied code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateUsername trims the username and checks its length
func ValidateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if utf8.RuneCountInString(username) < MinUsernameLength {
		return "", ErrInvalidInput
	}
	return username, nil
}
