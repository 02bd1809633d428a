package protocol

import (
	"regexp"
	"strings"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxUsernameLength bounds claimed usernames.
const MaxUsernameLength = 32

// ValidateUsername checks a claimed username before it enters the registry.
func ValidateUsername(username string) error {
	if len(username) < 1 || len(username) > MaxUsernameLength {
		return ErrInvalidUsername
	}
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateContent rejects blank chat content.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	return nil
}
