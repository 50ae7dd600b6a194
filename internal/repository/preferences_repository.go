package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/mongodb"
)

const preferencesCollection = "notification_preferences"

// PreferencesRepository handles notification preferences data operations
type PreferencesRepository struct {
	client *mongodb.MongoClient
}

// NewPreferencesRepository creates a new preferences repository
func NewPreferencesRepository(client *mongodb.MongoClient) *PreferencesRepository {
	return &PreferencesRepository{client: client}
}

func (r *PreferencesRepository) collection() *mongo.Collection {
	return r.client.Collection(preferencesCollection)
}

// EnsureIndexes creates the unique user index and the digest subscriber index
func (r *PreferencesRepository) EnsureIndexes(ctx context.Context) error {
	return r.client.CreateIndexes(ctx, preferencesCollection, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("user_id_idx").SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "emailDigest.enabled", Value: 1},
				{Key: "emailDigest.frequency", Value: 1},
			},
			Options: options.Index().SetName("digest_subscribers_idx"),
		},
	})
}

// GetByUserID retrieves preferences for a specific user
func (r *PreferencesRepository) GetByUserID(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	var prefs domain.NotificationPreferences
	err := r.collection().FindOne(ctx, bson.M{"userId": userID}).Decode(&prefs)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewNotFoundError("preferences not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

// Create inserts preferences for a new user. A record that already exists
// is a CONFLICT.
func (r *PreferencesRepository) Create(ctx context.Context, prefs *domain.NotificationPreferences) error {
	now := time.Now().UTC()
	prefs.ID = primitive.NewObjectID()
	prefs.CreatedAt = now
	prefs.UpdatedAt = now

	_, err := r.collection().InsertOne(ctx, prefs)
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.NewConflictError("preferences already exist", err)
	}
	return err
}

// Update replaces the stored preferences of prefs.UserID, creating the record if needed
func (r *PreferencesRepository) Update(ctx context.Context, prefs *domain.NotificationPreferences) error {
	now := time.Now().UTC()
	if prefs.CreatedAt.IsZero() {
		prefs.CreatedAt = now
	}
	prefs.UpdatedAt = now

	set := *prefs
	set.ID = primitive.NilObjectID

	_, err := r.collection().UpdateOne(ctx,
		bson.M{"userId": prefs.UserID},
		bson.M{"$set": set},
		options.Update().SetUpsert(true),
	)
	return err
}

// Delete removes a user's preferences
func (r *PreferencesRepository) Delete(ctx context.Context, userID string) error {
	res, err := r.collection().DeleteOne(ctx, bson.M{"userId": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperrors.NewNotFoundError("preferences not found", mongo.ErrNoDocuments)
	}
	return nil
}

// FindEnabledUserIDs returns every user with notifications globally enabled
func (r *PreferencesRepository) FindEnabledUserIDs(ctx context.Context) ([]string, error) {
	cursor, err := r.collection().Find(ctx,
		bson.M{"enabled": true},
		options.Find().SetProjection(bson.M{"userId": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		UserID string `bson:"userId"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	return ids, nil
}

// FindDigestSubscribers returns the preferences of users subscribed to a digest frequency
func (r *PreferencesRepository) FindDigestSubscribers(ctx context.Context, frequency domain.DigestFrequency) ([]*domain.NotificationPreferences, error) {
	cursor, err := r.collection().Find(ctx, digestSubscribersQuery(frequency))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domain.NotificationPreferences
	if err = cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func digestSubscribersQuery(frequency domain.DigestFrequency) bson.M {
	return bson.M{
		"enabled":               true,
		"emailDigest.enabled":   true,
		"emailDigest.frequency": frequency,
	}
}
