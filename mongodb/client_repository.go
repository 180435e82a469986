package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/lucidauth/lucid/domain"
)

// ClientRepository implements domain.ClientRepository over MongoDB. The
// engine only reads; writes happen through administrative tooling.
type ClientRepository struct {
	clients *mongo.Collection
}

// NewClientRepository creates a client repository.
func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{clients: db.Collection(ClientsCollection)}
}

// RegisterClient inserts a client registration.
func (r *ClientRepository) RegisterClient(ctx context.Context, client *domain.Client) error {
	if _, err := r.clients.InsertOne(ctx, client); err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

// GetClient implements domain.ClientRepository.
func (r *ClientRepository) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var client domain.Client
	err := r.clients.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&client)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to find client: %w", err)
	}
	return &client, nil
}
