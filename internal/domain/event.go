package domain

import "time"

// Event is a domain event consumed from the broker
type Event struct {
	Type           NotificationType `json:"type"`
	UserID         string           `json:"userId,omitempty"`
	UserIDs        []string         `json:"userIds,omitempty"`
	Broadcast      bool             `json:"broadcast,omitempty"`
	ExcludeUserIDs []string         `json:"excludeUserIds,omitempty"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Data           map[string]any   `json:"data,omitempty"`
	Priority       Priority         `json:"priority,omitempty"`
	Channels       []Channel        `json:"channels,omitempty"`
	Action         *Action          `json:"action,omitempty"`
	GroupKey       string           `json:"groupKey,omitempty"`
	SourceID       string           `json:"sourceId,omitempty"`
	SourceType     string           `json:"sourceType,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// ToRequest converts the event into a create request for one user
func (e *Event) ToRequest(userID string) CreateNotificationRequest {
	req := CreateNotificationRequest{
		UserID:     userID,
		Type:       e.Type,
		Title:      e.Title,
		Message:    e.Message,
		Data:       e.Data,
		Priority:   e.Priority,
		Channels:   e.Channels,
		Action:     e.Action,
		GroupKey:   e.GroupKey,
		SourceID:   e.SourceID,
		SourceType: e.SourceType,
	}
	if !e.Timestamp.IsZero() {
		ts := e.Timestamp
		req.OccurredAt = &ts
	}
	return req
}
