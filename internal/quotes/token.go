package quotes

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

const approvalTokenBytes = 32

// NewApprovalToken returns 32 random bytes encoded as unpadded base64url.
func NewApprovalToken() (string, error) {
	buf := make([]byte, approvalTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokenExpired reports whether a token with the given expiry is unusable at now.
func TokenExpired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return now.After(*expiresAt)
}
