package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/mongodb"
)

const usersCollection = "users"

// UserDirectory resolves email contacts from the platform's users collection.
// The collection is owned by the user service; this repository only reads it.
type UserDirectory struct {
	client *mongodb.MongoClient
}

// NewUserDirectory creates a new user directory
func NewUserDirectory(client *mongodb.MongoClient) *UserDirectory {
	return &UserDirectory{client: client}
}

// Lookup returns the contact record of a user
func (d *UserDirectory) Lookup(ctx context.Context, userID string) (*domain.Recipient, error) {
	var r domain.Recipient
	err := d.client.Collection(usersCollection).FindOne(ctx,
		bson.M{"userId": userID},
		options.FindOne().SetProjection(bson.M{"userId": 1, "email": 1, "name": 1}),
	).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewNotFoundError("user not found", err)
	}
	if err != nil {
		return nil, err
	}
	if r.Email == "" {
		return nil, apperrors.NewNotFoundError("user has no email address", nil)
	}
	return &r, nil
}
