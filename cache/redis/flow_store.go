package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lucidauth/lucid/internal/oidcflow"
)

// FlowStore implements oidcflow.FlowStore backed by Redis. Any server
// instance can resume a suspended flow given its token, which is what lets
// login start on one instance and consent finish on another.
type FlowStore struct {
	client *redis.Client
	prefix string
}

// NewFlowStore creates a new [FlowStore] instance.
func NewFlowStore(client *redis.Client, prefix string) *FlowStore {
	return &FlowStore{client: client, prefix: prefix}
}

func (r *FlowStore) key(flowToken string) string {
	return fmt.Sprintf("%s:flow:%s", r.prefix, flowToken)
}

// StoreFlow implements oidcflow.FlowStore.
func (r *FlowStore) StoreFlow(ctx context.Context, flow *oidcflow.Flow) error {
	payload, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	ttl := time.Until(flow.ExpiresAt)
	if ttl <= 0 {
		return oidcflow.ErrFlowExpired
	}
	if err := r.client.Set(ctx, r.key(flow.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store flow in redis: %w", err)
	}
	return nil
}

// GetFlow implements oidcflow.FlowStore.
func (r *FlowStore) GetFlow(ctx context.Context, flowToken string) (*oidcflow.Flow, error) {
	payload, err := r.client.Get(ctx, r.key(flowToken)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, oidcflow.ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to get flow from redis: %w", err)
	}

	var flow oidcflow.Flow
	if err := json.Unmarshal(payload, &flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}
	if flow.Expired(time.Now()) {
		return nil, oidcflow.ErrFlowExpired
	}
	return &flow, nil
}

// UpdateFlow implements oidcflow.FlowStore.
func (r *FlowStore) UpdateFlow(ctx context.Context, flow *oidcflow.Flow) error {
	exists, err := r.client.Exists(ctx, r.key(flow.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check flow in redis: %w", err)
	}
	if exists == 0 {
		return oidcflow.ErrFlowNotFound
	}
	return r.StoreFlow(ctx, flow)
}

// DeleteFlow implements oidcflow.FlowStore.
func (r *FlowStore) DeleteFlow(ctx context.Context, flowToken string) error {
	if err := r.client.Del(ctx, r.key(flowToken)).Err(); err != nil {
		return fmt.Errorf("failed to delete flow from redis: %w", err)
	}
	return nil
}
