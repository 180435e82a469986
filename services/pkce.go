package services

import (
	"crypto/sha256"
	"encoding/base64"
)

// ValidatePKCEChallenge validates a code verifier against a code challenge.
func ValidatePKCEChallenge(challenge, method, verifier string) bool {
	if method == "plain" {
		return challenge == verifier
	}

	// S256
	h := sha256.New()
	h.Write([]byte(verifier))
	calculated := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	return challenge == calculated
}
