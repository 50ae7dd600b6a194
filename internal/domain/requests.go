package domain

import "time"

// CreateNotificationRequest describes a notification to evaluate and deliver
type CreateNotificationRequest struct {
	UserID     string           `json:"userId"`
	Type       NotificationType `json:"type" binding:"required"`
	Title      string           `json:"title" binding:"required"`
	Message    string           `json:"message" binding:"required"`
	Data       map[string]any   `json:"data,omitempty"`
	Category   Category         `json:"category,omitempty"`
	Priority   Priority         `json:"priority,omitempty"`
	Channels   []Channel        `json:"channels,omitempty"` // restricts the evaluated set when given
	Action     *Action          `json:"action,omitempty"`
	GroupKey   string           `json:"groupKey,omitempty"`
	SourceID   string           `json:"sourceId,omitempty"`
	SourceType string           `json:"sourceType,omitempty"`
	ExpiresAt  *time.Time       `json:"expiresAt,omitempty"`
	OccurredAt *time.Time       `json:"occurredAt,omitempty"` // evaluation timestamp, defaults to now
}

// BulkNotificationRequest fans one notification out to many users
type BulkNotificationRequest struct {
	UserIDs      []string                  `json:"userIds" binding:"required,min=1"`
	Notification CreateNotificationRequest `json:"notification"`
}

// BroadcastNotificationRequest sends one notification to every enabled user
type BroadcastNotificationRequest struct {
	ExcludeUserIDs []string                  `json:"excludeUserIds,omitempty"`
	Notification   CreateNotificationRequest `json:"notification"`
}

// EvaluateRequest asks for a preference decision without creating anything
type EvaluateRequest struct {
	Type       NotificationType `json:"type" binding:"required"`
	Priority   Priority         `json:"priority,omitempty"`
	OccurredAt *time.Time       `json:"occurredAt,omitempty"`
}

// SortOrder values for NotificationFilter
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// NotificationFilter selects notifications for listing
type NotificationFilter struct {
	UserID     string           `form:"-"`
	Type       NotificationType `form:"type"`
	Category   Category         `form:"category"`
	Priority   Priority         `form:"priority"`
	IsRead     *bool            `form:"isRead"`
	IsArchived *bool            `form:"isArchived"`
	GroupKey   string           `form:"groupKey"`
	SourceID   string           `form:"sourceId"`
	SourceType string           `form:"sourceType"`
	From       *time.Time       `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time       `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page       int              `form:"page"`
	Limit      int              `form:"limit"`
	SortBy     string           `form:"sortBy"`
	SortOrder  string           `form:"sortOrder"`
}

// NotificationPage is one page of a listing
type NotificationPage struct {
	Items []*Notification `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// NotificationSummary aggregates a user's notifications
type NotificationSummary struct {
	UnreadCount        int64              `json:"unreadCount"`
	TotalCount         int64              `json:"totalCount"`
	CountByCategory    map[Category]int64 `json:"countByCategory"`
	CountByPriority    map[Priority]int64 `json:"countByPriority"`
	LatestNotification *Notification      `json:"latestNotification,omitempty"`
	OldestUnread       *Notification      `json:"oldestUnread,omitempty"`
}
