package guard

import (
	"unicode"

	"github.com/google/uuid"
)

const (
	maxUsernameLength = 64
	maxPasswordLength = 1024
	minPasswordLength = 8
)

// validUsername checks the shape of a username: non-empty, bounded, and
// free of spaces and control characters. Existence is not checked here.
func validUsername(username string) bool {
	if username == "" || len(username) > maxUsernameLength {
		return false
	}
	for _, r := range username {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// validPasswordInput checks the shape of a password presented for
// verification. Deliberately loose: legacy passwords shorter than the
// current registration minimum must still be able to log in.
func validPasswordInput(password string) bool {
	return password != "" && len(password) <= maxPasswordLength
}

// validNewPassword checks a password being set, enforcing the minimum
// length that registration and password changes require.
func validNewPassword(password string) bool {
	return len(password) >= minPasswordLength && len(password) <= maxPasswordLength
}

// validSessionID checks that an identifier has the UUID shape the store
// issues. Malformed IDs are rejected before they reach the store.
func validSessionID(sessionID string) bool {
	_, err := uuid.Parse(sessionID)
	return err == nil
}
