package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lucidauth/lucid/domain"
)

// ConsentRepository implements domain.ConsentStore over MongoDB for
// persistent grants. Session-scoped grants never reach this store.
type ConsentRepository struct {
	grants *mongo.Collection
}

// NewConsentRepository creates a consent repository and ensures its indexes.
func NewConsentRepository(ctx context.Context, db *mongo.Database) (*ConsentRepository, error) {
	repo := &ConsentRepository{grants: db.Collection(ConsentsCollection)}

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "subject", Value: 1}, {Key: "client_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Expired grants drop out on their own.
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := repo.grants.Indexes().CreateMany(ctx, models); err != nil {
		return nil, fmt.Errorf("failed to create indexes for consent collection: %w", err)
	}
	return repo, nil
}

// GetGrant implements domain.ConsentStore.
func (r *ConsentRepository) GetGrant(ctx context.Context, subject, clientID string) (*domain.ConsentGrant, error) {
	var grant domain.ConsentGrant
	err := r.grants.FindOne(ctx, bson.M{"subject": subject, "client_id": clientID}).Decode(&grant)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrConsentNotFound
		}
		return nil, fmt.Errorf("failed to find consent grant: %w", err)
	}
	if !grant.ExpiresAt.IsZero() && time.Now().After(grant.ExpiresAt) {
		return nil, domain.ErrConsentNotFound
	}
	return &grant, nil
}

// SaveGrant implements domain.ConsentStore. Saving replaces any prior grant
// for the (subject, client) pair.
func (r *ConsentRepository) SaveGrant(ctx context.Context, grant *domain.ConsentGrant) error {
	filter := bson.M{"subject": grant.Subject, "client_id": grant.ClientID}
	opts := options.Replace().SetUpsert(true)
	if _, err := r.grants.ReplaceOne(ctx, filter, grant, opts); err != nil {
		return fmt.Errorf("failed to upsert consent grant: %w", err)
	}
	return nil
}

// DeleteGrant implements domain.ConsentStore.
func (r *ConsentRepository) DeleteGrant(ctx context.Context, subject, clientID string) error {
	if _, err := r.grants.DeleteOne(ctx, bson.M{"subject": subject, "client_id": clientID}); err != nil {
		return fmt.Errorf("failed to delete consent grant: %w", err)
	}
	return nil
}
