package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lucidauth/lucid/domain"
)

// SessionStore implements domain.SessionStore backed by Redis so that every
// server instance sees the same SSO session.
type SessionStore struct {
	client *redis.Client
	prefix string
}

// NewSessionStore creates a new [SessionStore] instance.
func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefix}
}

func (r *SessionStore) key(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, sessionID)
}

// Save implements domain.SessionStore. The Redis key expires with the
// session, so terminated-by-timeout sessions disappear on their own.
func (r *SessionStore) Save(ctx context.Context, session *domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return r.Delete(ctx, session.ID)
	}
	if err := r.client.Set(ctx, r.key(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

// Get implements domain.SessionStore.
func (r *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	payload, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Expired(time.Now()) {
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

const appendClientRetries = 5

// AppendClient records a client's participation in the session with a
// WATCH/MULTI compare-and-set, so concurrent touches from different server
// instances never lose an entry from the participation set.
func (r *SessionStore) AppendClient(ctx context.Context, sessionID, clientID string) error {
	key := r.key(sessionID)
	txf := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return domain.ErrSessionNotFound
			}
			return fmt.Errorf("failed to get session from redis: %w", err)
		}

		var session domain.Session
		if err := json.Unmarshal(payload, &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		if session.Expired(time.Now()) {
			return domain.ErrSessionNotFound
		}
		if session.HasClient(clientID) {
			return nil
		}
		session.Clients = append(session.Clients, clientID)

		updated, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, time.Until(session.ExpiresAt))
			return nil
		})
		return err
	}

	for i := 0; i < appendClientRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to record session client after %d attempts: %w", appendClientRetries, redis.TxFailedErr)
}

// Delete implements domain.SessionStore.
func (r *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}
