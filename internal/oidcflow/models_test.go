package oidcflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlowToken(t *testing.T) {
	seen := make(map[string]struct{})
	for range 64 {
		token, err := NewFlowToken()
		require.NoError(t, err)
		assert.Len(t, token, 43) // 32 random bytes, base64url without padding
		_, dup := seen[token]
		assert.False(t, dup)
		seen[token] = struct{}{}
	}
}

func TestFlowExpired(t *testing.T) {
	now := time.Now()
	flow := &Flow{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, flow.Expired(now))
	assert.True(t, flow.Expired(now.Add(2*time.Minute)))
}
