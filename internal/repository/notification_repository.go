package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/mongodb"
)

const notificationsCollection = "notifications"

// NotificationRepository handles notification data operations
type NotificationRepository struct {
	client *mongodb.MongoClient
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(client *mongodb.MongoClient) *NotificationRepository {
	return &NotificationRepository{client: client}
}

func (r *NotificationRepository) collection() *mongo.Collection {
	return r.client.Collection(notificationsCollection)
}

// EnsureIndexes creates the indexes used by listing, delivery and digest queries
func (r *NotificationRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "notificationId", Value: 1}},
			Options: options.Index().SetName("notification_id_idx").SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "isArchived", Value: 1},
				{Key: "createdAt", Value: -1},
			},
			Options: options.Index().SetName("user_archived_created_idx"),
		},
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "isRead", Value: 1},
			},
			Options: options.Index().SetName("user_read_idx"),
		},
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "digestedAt", Value: 1},
				{Key: "createdAt", Value: 1},
			},
			Options: options.Index().SetName("user_digest_idx"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("expires_at_idx").SetSparse(true),
		},
	}
	for _, ch := range domain.AllChannels {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{
				{Key: deliveryField(ch, "status"), Value: 1},
				{Key: deliveryField(ch, "retryCount"), Value: 1},
			},
			Options: options.Index().SetName(ch.Key() + "_delivery_idx").SetSparse(true),
		})
	}

	return r.client.CreateIndexes(ctx, notificationsCollection, indexes)
}

// Create persists a new notification. Missing identifiers and delivery
// entries are filled in before the insert.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	now := time.Now().UTC()
	n.ID = primitive.NewObjectID()
	if n.NotificationID == "" {
		n.NotificationID = uuid.New().String()
	}
	if n.DeliveryStatus == nil {
		n.DeliveryStatus = domain.NewDeliveryStatus(n.Channels)
	}
	n.CreatedAt = now
	n.UpdatedAt = now

	_, err := r.collection().InsertOne(ctx, n)
	return err
}

// FindByID finds a notification owned by userID
func (r *NotificationRepository) FindByID(ctx context.Context, userID, notificationID string) (*domain.Notification, error) {
	var n domain.Notification
	err := r.collection().FindOne(ctx, bson.M{"notificationId": notificationID, "userId": userID}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NewNotFoundError("notification not found", err)
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Find lists a user's notifications with filtering, pagination and sorting
func (r *NotificationRepository) Find(ctx context.Context, filter domain.NotificationFilter) (*domain.NotificationPage, error) {
	NormalizeFilter(&filter)
	query := buildNotificationQuery(filter)

	total, err := r.collection().CountDocuments(ctx, query)
	if err != nil {
		return nil, err
	}

	cursor, err := r.collection().Find(ctx, query, buildFindOptions(filter))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]*domain.Notification, 0, filter.Limit)
	if err = cursor.All(ctx, &items); err != nil {
		return nil, err
	}

	return &domain.NotificationPage{
		Items: items,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}, nil
}

// MarkAsRead marks the given notifications read; already-read items are untouched
func (r *NotificationRepository) MarkAsRead(ctx context.Context, userID string, notificationIDs []string) (int64, error) {
	if len(notificationIDs) == 0 {
		return 0, nil
	}
	return r.markRead(ctx, bson.M{
		"userId":         userID,
		"notificationId": bson.M{"$in": notificationIDs},
		"isRead":         false,
	})
}

// MarkAllAsRead marks every unread notification of the user read
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	return r.markRead(ctx, bson.M{"userId": userID, "isRead": false})
}

func (r *NotificationRepository) markRead(ctx context.Context, query bson.M) (int64, error) {
	now := time.Now().UTC()
	res, err := r.collection().UpdateMany(ctx, query, bson.M{
		"$set": bson.M{"isRead": true, "readAt": now, "updatedAt": now},
	})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Archive archives one notification
func (r *NotificationRepository) Archive(ctx context.Context, userID, notificationID string) error {
	now := time.Now().UTC()
	res, err := r.collection().UpdateOne(ctx,
		bson.M{"notificationId": notificationID, "userId": userID},
		bson.M{"$set": bson.M{"isArchived": true, "archivedAt": now, "updatedAt": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.NewNotFoundError("notification not found", mongo.ErrNoDocuments)
	}
	return nil
}

// Delete removes one notification
func (r *NotificationRepository) Delete(ctx context.Context, userID, notificationID string) error {
	res, err := r.collection().DeleteOne(ctx, bson.M{"notificationId": notificationID, "userId": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return apperrors.NewNotFoundError("notification not found", mongo.ErrNoDocuments)
	}
	return nil
}

// DeleteMany removes the given notifications and returns how many were deleted
func (r *NotificationRepository) DeleteMany(ctx context.Context, userID string, notificationIDs []string) (int64, error) {
	if len(notificationIDs) == 0 {
		return 0, nil
	}
	res, err := r.collection().DeleteMany(ctx, bson.M{
		"userId":         userID,
		"notificationId": bson.M{"$in": notificationIDs},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

type countBucket struct {
	Key   string `bson:"_id"`
	Count int64  `bson:"count"`
}

type summaryFacets struct {
	Total      []countBucket `bson:"total"`
	Unread     []countBucket `bson:"unread"`
	ByCategory []countBucket `bson:"byCategory"`
	ByPriority []countBucket `bson:"byPriority"`
}

// GetSummary aggregates counts for a user's notifications
func (r *NotificationRepository) GetSummary(ctx context.Context, userID string) (*domain.NotificationSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"userId": userID}}},
		{{Key: "$facet", Value: bson.M{
			"total":      bson.A{bson.M{"$count": "count"}},
			"unread":     bson.A{bson.M{"$match": bson.M{"isRead": false}}, bson.M{"$count": "count"}},
			"byCategory": bson.A{bson.M{"$group": bson.M{"_id": "$category", "count": bson.M{"$sum": 1}}}},
			"byPriority": bson.A{bson.M{"$group": bson.M{"_id": "$priority", "count": bson.M{"$sum": 1}}}},
		}}},
	}

	cursor, err := r.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var facets []summaryFacets
	if err = cursor.All(ctx, &facets); err != nil {
		return nil, err
	}

	summary := &domain.NotificationSummary{
		CountByCategory: make(map[domain.Category]int64),
		CountByPriority: make(map[domain.Priority]int64),
	}
	if len(facets) > 0 {
		f := facets[0]
		if len(f.Total) > 0 {
			summary.TotalCount = f.Total[0].Count
		}
		if len(f.Unread) > 0 {
			summary.UnreadCount = f.Unread[0].Count
		}
		for _, b := range f.ByCategory {
			summary.CountByCategory[domain.Category(b.Key)] = b.Count
		}
		for _, b := range f.ByPriority {
			summary.CountByPriority[domain.Priority(b.Key)] = b.Count
		}
	}

	if summary.LatestNotification, err = r.findOne(ctx,
		bson.M{"userId": userID},
		bson.D{{Key: "createdAt", Value: -1}},
	); err != nil {
		return nil, err
	}
	if summary.OldestUnread, err = r.findOne(ctx,
		bson.M{"userId": userID, "isRead": false},
		bson.D{{Key: "createdAt", Value: 1}},
	); err != nil {
		return nil, err
	}

	return summary, nil
}

func (r *NotificationRepository) findOne(ctx context.Context, query bson.M, sort bson.D) (*domain.Notification, error) {
	var n domain.Notification
	err := r.collection().FindOne(ctx, query, options.FindOne().SetSort(sort)).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateChannelStatus replaces the delivery entry of a single channel.
// Only that channel's fields are written so concurrent channel updates of
// the same notification do not clobber each other.
func (r *NotificationRepository) UpdateChannelStatus(ctx context.Context, notificationID string, ch domain.Channel, d domain.ChannelDelivery) error {
	res, err := r.collection().UpdateOne(ctx,
		bson.M{"notificationId": notificationID},
		channelStatusUpdate(ch, d, time.Now().UTC()),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperrors.NewNotFoundError("notification not found", mongo.ErrNoDocuments)
	}
	return nil
}

// GetPendingForChannel returns the oldest notifications still PENDING on ch
func (r *NotificationRepository) GetPendingForChannel(ctx context.Context, ch domain.Channel, limit int) ([]*domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.findMany(ctx, pendingForChannelQuery(ch), opts)
}

// GetFailedForRetry returns notifications FAILED on ch with fewer than maxRetries attempts
func (r *NotificationRepository) GetFailedForRetry(ctx context.Context, ch domain.Channel, maxRetries int) ([]*domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: deliveryField(ch, "lastRetryAt"), Value: 1}})
	return r.findMany(ctx, failedForRetryQuery(ch, maxRetries), opts)
}

// CountExhausted counts notifications FAILED on ch that reached maxRetries
func (r *NotificationRepository) CountExhausted(ctx context.Context, ch domain.Channel, maxRetries int) (int64, error) {
	return r.collection().CountDocuments(ctx, bson.M{
		deliveryField(ch, "status"):     domain.DeliveryFailed,
		deliveryField(ch, "retryCount"): bson.M{"$gte": maxRetries},
	})
}

// FindUndigested returns the user's notifications created in [from, to]
// that have not yet been included in a digest
func (r *NotificationRepository) FindUndigested(ctx context.Context, userID string, from, to time.Time) ([]*domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.findMany(ctx, undigestedQuery(userID, from, to), opts)
}

// MarkDigested stamps digestedAt on the given notifications in one batched
// update. Already digested items keep their original timestamp.
func (r *NotificationRepository) MarkDigested(ctx context.Context, notificationIDs []string, at time.Time) (int64, error) {
	if len(notificationIDs) == 0 {
		return 0, nil
	}
	res, err := r.collection().UpdateMany(ctx,
		bson.M{
			"notificationId": bson.M{"$in": notificationIDs},
			"digestedAt":     bson.M{"$exists": false},
		},
		bson.M{"$set": bson.M{"digestedAt": at, "updatedAt": at}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *NotificationRepository) findMany(ctx context.Context, query bson.M, opts *options.FindOptions) ([]*domain.Notification, error) {
	cursor, err := r.collection().Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domain.Notification
	if err = cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
