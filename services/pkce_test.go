package services

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePKCEChallenge(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	s256 := base64.RawURLEncoding.EncodeToString(sum[:])

	assert.True(t, ValidatePKCEChallenge(s256, "S256", verifier))
	assert.False(t, ValidatePKCEChallenge(s256, "S256", "wrong"))

	assert.True(t, ValidatePKCEChallenge("plain-value", "plain", "plain-value"))
	assert.False(t, ValidatePKCEChallenge("plain-value", "plain", "other"))

	// A plain verifier never satisfies an S256 challenge.
	assert.False(t, ValidatePKCEChallenge(s256, "S256", s256))
}
