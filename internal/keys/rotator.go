package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SigningKey pairs an RSA private key with its key ID.
type SigningKey struct {
	ID      string
	Private *rsa.PrivateKey
}

// snapshot is an immutable view of the published key set. Validation reads it
// lock-free through an atomic pointer; rotation builds a new snapshot and
// swaps it in. retired is ordered newest first so eviction always drops the
// oldest generation.
type snapshot struct {
	current *SigningKey
	retired []*SigningKey
	keys    map[string]*SigningKey
}

// Rotator owns the server's signing keys. Signing always uses the newest
// key; validation accepts any key still published. Keys live only in memory,
// so after a restart previously issued tokens fail validation — callers must
// treat that as transient and retry the flow, not as a hard failure.
type Rotator struct {
	keep int

	mu   sync.Mutex // serializes rotation only
	snap atomic.Pointer[snapshot]
}

// NewRotator creates a Rotator holding one freshly generated key. keep is the
// number of retired keys left published for validation after each rotation.
func NewRotator(keep int) (*Rotator, error) {
	if keep < 1 {
		keep = 1
	}
	r := &Rotator{keep: keep}
	if err := r.Rotate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Rotate generates a new signing key and publishes a new snapshot with the
// new key current and at most keep prior keys still valid for validation.
func (r *Rotator) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	private, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key: %w", err)
	}
	next := &SigningKey{ID: uuid.NewString(), Private: private}

	// Retire the previous current key at the head of the list, drop the
	// oldest generations past keep, so tokens signed just before rotation
	// still validate for keep more rotations.
	var retired []*SigningKey
	if old := r.snap.Load(); old != nil && old.current != nil {
		retired = append([]*SigningKey{old.current}, old.retired...)
		if len(retired) > r.keep {
			retired = retired[:r.keep]
		}
	}

	keys := map[string]*SigningKey{next.ID: next}
	for _, k := range retired {
		keys[k.ID] = k
	}

	r.snap.Store(&snapshot{current: next, retired: retired, keys: keys})
	return nil
}

// Current returns the key ID and private key used for signing.
func (r *Rotator) Current() (string, *rsa.PrivateKey) {
	s := r.snap.Load()
	return s.current.ID, s.current.Private
}

// PublicKey returns the published public key with the given ID.
func (r *Rotator) PublicKey(keyID string) (*rsa.PublicKey, bool) {
	s := r.snap.Load()
	k, ok := s.keys[keyID]
	if !ok {
		return nil, false
	}
	return &k.Private.PublicKey, true
}

// StartRotation rotates keys on the given period until ctx is canceled.
func (r *Rotator) StartRotation(ctx context.Context, period time.Duration) {
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Rotate(); err != nil {
					log.Error().Err(err).Msg("failed to rotate signing keys")
				}
			}
		}
	}()
}

// JSONWebKey is the public portion of a signing key in JWK format.
type JSONWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JSONWebKeySet is the document served at the JWKS endpoint.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// JWKS returns the public portion of every published key.
func (r *Rotator) JWKS() JSONWebKeySet {
	s := r.snap.Load()

	keys := make([]JSONWebKey, 0, len(s.keys))
	for kid, k := range s.keys {
		pub := &k.Private.PublicKey
		keys = append(keys, JSONWebKey{
			Kid: kid,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}

	return JSONWebKeySet{Keys: keys}
}
