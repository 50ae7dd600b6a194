package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var sortableFields = map[string]string{
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"priority":  "priority",
	"type":      "type",
	"category":  "category",
}

// NormalizeFilter fills paging and sort defaults in place
func NormalizeFilter(f *domain.NotificationFilter) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	if _, ok := sortableFields[f.SortBy]; !ok {
		f.SortBy = "createdAt"
	}
	if f.SortOrder != domain.SortAsc {
		f.SortOrder = domain.SortDesc
	}
}

func buildNotificationQuery(f domain.NotificationFilter) bson.M {
	query := bson.M{"userId": f.UserID}

	if f.Type != "" {
		query["type"] = f.Type
	}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if f.Priority != "" {
		query["priority"] = f.Priority
	}
	if f.IsRead != nil {
		query["isRead"] = *f.IsRead
	}
	if f.IsArchived != nil {
		query["isArchived"] = *f.IsArchived
	}
	if f.GroupKey != "" {
		query["groupKey"] = f.GroupKey
	}
	if f.SourceID != "" {
		query["sourceId"] = f.SourceID
	}
	if f.SourceType != "" {
		query["sourceType"] = f.SourceType
	}

	if f.From != nil || f.To != nil {
		created := bson.M{}
		if f.From != nil {
			created["$gte"] = *f.From
		}
		if f.To != nil {
			created["$lte"] = *f.To
		}
		query["createdAt"] = created
	}

	return query
}

func buildFindOptions(f domain.NotificationFilter) *options.FindOptions {
	dir := -1
	if f.SortOrder == domain.SortAsc {
		dir = 1
	}
	sort := bson.D{{Key: sortableFields[f.SortBy], Value: dir}}
	if f.SortBy != "createdAt" {
		sort = append(sort, bson.E{Key: "createdAt", Value: -1})
	}

	return options.Find().
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit)).
		SetSort(sort)
}

func deliveryField(ch domain.Channel, field string) string {
	return "deliveryStatus." + ch.Key() + "." + field
}

func channelStatusUpdate(ch domain.Channel, d domain.ChannelDelivery, now time.Time) bson.M {
	set := bson.M{
		deliveryField(ch, "status"):     d.Status,
		deliveryField(ch, "retryCount"): d.RetryCount,
		"updatedAt":                     now,
	}
	unset := bson.M{}

	optional := map[string]*time.Time{
		"sentAt":      d.SentAt,
		"deliveredAt": d.DeliveredAt,
		"lastRetryAt": d.LastRetryAt,
	}
	for field, v := range optional {
		if v != nil {
			set[deliveryField(ch, field)] = *v
		}
	}

	if d.Error != "" {
		set[deliveryField(ch, "error")] = d.Error
	} else {
		unset[deliveryField(ch, "error")] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func pendingForChannelQuery(ch domain.Channel) bson.M {
	return bson.M{deliveryField(ch, "status"): domain.DeliveryPending}
}

func failedForRetryQuery(ch domain.Channel, maxRetries int) bson.M {
	return bson.M{
		deliveryField(ch, "status"):     domain.DeliveryFailed,
		deliveryField(ch, "retryCount"): bson.M{"$lt": maxRetries},
	}
}

func undigestedQuery(userID string, from, to time.Time) bson.M {
	return bson.M{
		"userId":     userID,
		"digestedAt": bson.M{"$exists": false},
		"createdAt":  bson.M{"$gte": from, "$lte": to},
	}
}
