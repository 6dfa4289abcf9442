package guard

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenIssuer is the external collaborator that mints short-lived bearer
// tokens for authenticated principals.
type TokenIssuer interface {
	Issue(username string) (string, error)
}

// RandomTokenIssuer mints opaque tokens from 256 bits of randomness. The
// token carries no structure; callers that need claims plug in their own
// issuer.
type RandomTokenIssuer struct{}

// Issue returns a fresh opaque bearer token.
func (RandomTokenIssuer) Issue(string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
