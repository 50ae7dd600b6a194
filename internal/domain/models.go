package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Channel is a delivery medium
type Channel string

const (
	ChannelInApp   Channel = "IN_APP"
	ChannelEmail   Channel = "EMAIL"
	ChannelPush    Channel = "PUSH"
	ChannelSMS     Channel = "SMS"
	ChannelWebhook Channel = "WEBHOOK"
)

// AllChannels lists every known channel in dispatch order
var AllChannels = []Channel{ChannelInApp, ChannelEmail, ChannelPush, ChannelSMS, ChannelWebhook}

var channelKeys = map[Channel]string{
	ChannelInApp:   "inApp",
	ChannelEmail:   "email",
	ChannelPush:    "push",
	ChannelSMS:     "sms",
	ChannelWebhook: "webhook",
}

// Key returns the persisted deliveryStatus key for the channel
func (c Channel) Key() string {
	return channelKeys[c]
}

// Valid reports whether c is a known channel
func (c Channel) Valid() bool {
	_, ok := channelKeys[c]
	return ok
}

// ChannelFromKey resolves a persisted deliveryStatus key
func ChannelFromKey(key string) (Channel, bool) {
	for ch, k := range channelKeys {
		if k == key {
			return ch, true
		}
	}
	return "", false
}

// ContainsChannel reports whether channels includes ch
func ContainsChannel(channels []Channel, ch Channel) bool {
	for _, c := range channels {
		if c == ch {
			return true
		}
	}
	return false
}

// UniqueChannels returns channels with repeats dropped, keeping first occurrences in order
func UniqueChannels(channels []Channel) []Channel {
	out := make([]Channel, 0, len(channels))
	for _, c := range channels {
		if !ContainsChannel(out, c) {
			out = append(out, c)
		}
	}
	return out
}

// WithoutChannel returns a copy of channels with ch removed
func WithoutChannel(channels []Channel, ch Channel) []Channel {
	out := make([]Channel, 0, len(channels))
	for _, c := range channels {
		if c != ch {
			out = append(out, c)
		}
	}
	return out
}

// DeliveryState is the per-channel delivery status
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "PENDING"
	DeliverySent      DeliveryState = "SENT"
	DeliveryDelivered DeliveryState = "DELIVERED"
	DeliveryFailed    DeliveryState = "FAILED"
)

// ChannelDelivery tracks delivery of one notification over one channel
type ChannelDelivery struct {
	Status      DeliveryState `json:"status" bson:"status"`
	RetryCount  int           `json:"retryCount" bson:"retryCount"`
	SentAt      *time.Time    `json:"sentAt,omitempty" bson:"sentAt,omitempty"`
	DeliveredAt *time.Time    `json:"deliveredAt,omitempty" bson:"deliveredAt,omitempty"`
	LastRetryAt *time.Time    `json:"lastRetryAt,omitempty" bson:"lastRetryAt,omitempty"`
	Error       string        `json:"error,omitempty" bson:"error,omitempty"`
}

// DeliveryStatus is keyed by Channel.Key()
type DeliveryStatus map[string]ChannelDelivery

// NewDeliveryStatus returns one PENDING entry per channel
func NewDeliveryStatus(channels []Channel) DeliveryStatus {
	status := make(DeliveryStatus, len(channels))
	for _, ch := range channels {
		status[ch.Key()] = ChannelDelivery{Status: DeliveryPending}
	}
	return status
}

// Action is an optional call to action attached to a notification
type Action struct {
	Label string `json:"label" bson:"label"`
	URL   string `json:"url" bson:"url"`
}

// Notification represents a notification record
type Notification struct {
	ID             primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	NotificationID string             `json:"notificationId" bson:"notificationId"`
	UserID         string             `json:"userId" bson:"userId"`
	Type           NotificationType   `json:"type" bson:"type"`
	Category       Category           `json:"category" bson:"category"`
	Priority       Priority           `json:"priority" bson:"priority"`
	Title          string             `json:"title" bson:"title"`
	Message        string             `json:"message" bson:"message"`
	Data           map[string]any     `json:"data,omitempty" bson:"data,omitempty"`
	Channels       []Channel          `json:"channels" bson:"channels"`
	DeliveryStatus DeliveryStatus     `json:"deliveryStatus" bson:"deliveryStatus"`
	IsRead         bool               `json:"isRead" bson:"isRead"`
	ReadAt         *time.Time         `json:"readAt,omitempty" bson:"readAt,omitempty"`
	IsArchived     bool               `json:"isArchived" bson:"isArchived"`
	ArchivedAt     *time.Time         `json:"archivedAt,omitempty" bson:"archivedAt,omitempty"`
	Action         *Action            `json:"action,omitempty" bson:"action,omitempty"`
	GroupKey       string             `json:"groupKey,omitempty" bson:"groupKey,omitempty"`
	SourceID       string             `json:"sourceId,omitempty" bson:"sourceId,omitempty"`
	SourceType     string             `json:"sourceType,omitempty" bson:"sourceType,omitempty"`
	ExpiresAt      *time.Time         `json:"expiresAt,omitempty" bson:"expiresAt,omitempty"`
	DigestedAt     *time.Time         `json:"digestedAt,omitempty" bson:"digestedAt,omitempty"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Snapshot copies n so the copy can be read while n's delivery status is
// being updated. Data is shared; nothing mutates it after creation.
func (n *Notification) Snapshot() *Notification {
	cp := *n
	cp.Channels = append([]Channel(nil), n.Channels...)
	if n.DeliveryStatus != nil {
		cp.DeliveryStatus = make(DeliveryStatus, len(n.DeliveryStatus))
		for k, v := range n.DeliveryStatus {
			cp.DeliveryStatus[k] = v
		}
	}
	return &cp
}

// Delivery returns the delivery entry for a channel
func (n *Notification) Delivery(ch Channel) (ChannelDelivery, bool) {
	d, ok := n.DeliveryStatus[ch.Key()]
	return d, ok
}
