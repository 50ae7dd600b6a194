package domain

// DigestStats summarises the notifications in one digest
type DigestStats struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"byCategory"`
	ByPriority map[Priority]int `json:"byPriority"`
}

// DigestGroup is one category section of a digest email
type DigestGroup struct {
	Category      Category        `json:"category"`
	Notifications []*Notification `json:"notifications"`
}

// DigestRunResult reports the outcome of one aggregator run
type DigestRunResult struct {
	Frequency           DigestFrequency `json:"frequency"`
	UsersProcessed      int             `json:"usersProcessed"`
	DigestsSent         int             `json:"digestsSent"`
	NotificationsMarked int             `json:"notificationsMarked"`
	Failures            int             `json:"failures"`
}
