package domain

import "time"

// Email templates known to the renderer
const (
	TemplateNotification = "notification"
	TemplateDigest       = "digest"
)

// EmailJob is a unit of work on the email dispatch queue
type EmailJob struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId,omitempty"`
	NotificationID string         `json:"notificationId,omitempty"`
	To             string         `json:"to"`
	Subject        string         `json:"subject"`
	Template       string         `json:"template"`
	Data           map[string]any `json:"data,omitempty"`
	Priority       int            `json:"priority"` // 1 = most urgent
	Attempt        int            `json:"attempt"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// QueueResult reports how an email was handled; exactly one of JobID or
// Sent is meaningful, selected by Queued.
type QueueResult struct {
	JobID  string `json:"jobId,omitempty"`
	Queued bool   `json:"queued"`
	Sent   bool   `json:"sent"`
	Error  string `json:"error,omitempty"`
}

// JobPriority maps a notification priority to a queue priority
// (CRITICAL=1 ... LOW=4, lower is more urgent).
func JobPriority(p Priority) int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	default:
		return 4
	}
}

// JobState is the lifecycle state of an email job record
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRetrying  JobState = "retrying"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// EmailJobRecord is the retained status of an email job
type EmailJobRecord struct {
	JobID          string    `json:"jobId"`
	NotificationID string    `json:"notificationId,omitempty"`
	State          JobState  `json:"state"`
	Attempts       int       `json:"attempts"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Recipient is the contact record of a user
type Recipient struct {
	UserID string `json:"userId" bson:"userId"`
	Email  string `json:"email" bson:"email"`
	Name   string `json:"name,omitempty" bson:"name,omitempty"`
}
