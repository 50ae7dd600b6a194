package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DigestFrequency controls how often batched digest emails go out
type DigestFrequency string

const (
	FrequencyImmediate DigestFrequency = "IMMEDIATE"
	FrequencyHourly    DigestFrequency = "HOURLY"
	FrequencyDaily     DigestFrequency = "DAILY"
	FrequencyWeekly    DigestFrequency = "WEEKLY"
)

// LookbackHours returns the digest window for the frequency
func (f DigestFrequency) LookbackHours() int {
	switch f {
	case FrequencyHourly:
		return 1
	case FrequencyDaily:
		return 24
	case FrequencyWeekly:
		return 168
	default:
		return 0
	}
}

// Valid reports whether f is a known frequency
func (f DigestFrequency) Valid() bool {
	switch f {
	case FrequencyImmediate, FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

// CategoryPreference is the per-category rule
type CategoryPreference struct {
	Enabled     bool      `json:"enabled" bson:"enabled"`
	Channels    []Channel `json:"channels" bson:"channels"`
	MinPriority Priority  `json:"minPriority,omitempty" bson:"minPriority,omitempty"`
}

// EventOverride supersedes category rules for a single notification type
type EventOverride struct {
	Type     NotificationType `json:"type" bson:"type"`
	Enabled  bool             `json:"enabled" bson:"enabled"`
	Channels []Channel        `json:"channels" bson:"channels"`
	Priority Priority         `json:"priority,omitempty" bson:"priority,omitempty"`
}

// EmailDigest configures batched digest emails
type EmailDigest struct {
	Enabled           bool            `json:"enabled" bson:"enabled"`
	Frequency         DigestFrequency `json:"frequency" bson:"frequency"`
	Time              string          `json:"time,omitempty" bson:"time,omitempty"` // "09:00"
	DayOfWeek         *int            `json:"dayOfWeek,omitempty" bson:"dayOfWeek,omitempty"`
	Timezone          string          `json:"timezone,omitempty" bson:"timezone,omitempty"`
	IncludeCategories []Category      `json:"includeCategories,omitempty" bson:"includeCategories,omitempty"`
	MinPriority       Priority        `json:"minPriority,omitempty" bson:"minPriority,omitempty"`
}

// QuietHours suppresses non-critical notifications during a daily window
type QuietHours struct {
	Enabled       bool   `json:"enabled" bson:"enabled"`
	Start         string `json:"start" bson:"start"` // "22:00"
	End           string `json:"end" bson:"end"`     // "08:00"
	Timezone      string `json:"timezone" bson:"timezone"`
	AllowCritical bool   `json:"allowCritical" bson:"allowCritical"`
	DaysOfWeek    []int  `json:"daysOfWeek,omitempty" bson:"daysOfWeek,omitempty"` // 0 = Sunday
}

// AdvancedSettings holds client-side presentation flags
type AdvancedSettings struct {
	BatchNotifications   bool `json:"batchNotifications" bson:"batchNotifications"`
	BatchWindowMinutes   int  `json:"batchWindowMinutes" bson:"batchWindowMinutes"`
	Sound                bool `json:"sound" bson:"sound"`
	DesktopNotifications bool `json:"desktopNotifications" bson:"desktopNotifications"`
}

// NotificationPreferences represents user notification preferences
type NotificationPreferences struct {
	ID              primitive.ObjectID              `json:"-" bson:"_id,omitempty"`
	UserID          string                          `json:"userId" bson:"userId"`
	Enabled         bool                            `json:"enabled" bson:"enabled"`
	DefaultChannels []Channel                       `json:"defaultChannels" bson:"defaultChannels"`
	Categories      map[Category]CategoryPreference `json:"categories" bson:"categories"`
	EventOverrides  []EventOverride                 `json:"eventOverrides" bson:"eventOverrides"`
	EmailDigest     EmailDigest                     `json:"emailDigest" bson:"emailDigest"`
	QuietHours      QuietHours                      `json:"quietHours" bson:"quietHours"`
	Advanced        AdvancedSettings                `json:"advanced" bson:"advanced"`
	CreatedAt       time.Time                       `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time                       `json:"updatedAt" bson:"updatedAt"`
}

// OverrideFor returns the active override for t, if any
func (p *NotificationPreferences) OverrideFor(t NotificationType) *EventOverride {
	for i := range p.EventOverrides {
		if p.EventOverrides[i].Type == t {
			return &p.EventOverrides[i]
		}
	}
	return nil
}

// DigestActive reports whether email is batched instead of sent immediately
// for a notification of the given priority.
func (p *NotificationPreferences) DigestActive(priority Priority) bool {
	return p.EmailDigest.Enabled &&
		p.EmailDigest.Frequency != FrequencyImmediate &&
		priority != PriorityCritical
}

// PreferenceEvaluationResult is the outcome of evaluating preferences for one event
type PreferenceEvaluationResult struct {
	ShouldNotify bool      `json:"shouldNotify"`
	Channels     []Channel `json:"channels"`
	Reason       string    `json:"reason,omitempty"`
	IsQuietHours bool      `json:"isQuietHours,omitempty"`
	IsDigestMode bool      `json:"isDigestMode,omitempty"`
}

// PreferencesUpdate is a partial update; nil fields are left unchanged
type PreferencesUpdate struct {
	Enabled         *bool                                 `json:"enabled,omitempty"`
	DefaultChannels []Channel                             `json:"defaultChannels,omitempty"`
	Categories      map[Category]CategoryPreferenceUpdate `json:"categories,omitempty"`
	EventOverrides  []EventOverride                       `json:"eventOverrides,omitempty"`
	EmailDigest     *EmailDigestUpdate                    `json:"emailDigest,omitempty"`
	QuietHours      *QuietHoursUpdate                     `json:"quietHours,omitempty"`
	Advanced        *AdvancedSettingsUpdate               `json:"advanced,omitempty"`
}

// CategoryPreferenceUpdate is a partial category rule
type CategoryPreferenceUpdate struct {
	Enabled     *bool     `json:"enabled,omitempty"`
	Channels    []Channel `json:"channels,omitempty"`
	MinPriority *Priority `json:"minPriority,omitempty"`
}

// EmailDigestUpdate is a partial digest configuration
type EmailDigestUpdate struct {
	Enabled           *bool            `json:"enabled,omitempty"`
	Frequency         *DigestFrequency `json:"frequency,omitempty"`
	Time              *string          `json:"time,omitempty"`
	DayOfWeek         *int             `json:"dayOfWeek,omitempty"`
	Timezone          *string          `json:"timezone,omitempty"`
	IncludeCategories []Category       `json:"includeCategories,omitempty"`
	MinPriority       *Priority        `json:"minPriority,omitempty"`
}

// QuietHoursUpdate is a partial quiet hours configuration
type QuietHoursUpdate struct {
	Enabled       *bool   `json:"enabled,omitempty"`
	Start         *string `json:"start,omitempty"`
	End           *string `json:"end,omitempty"`
	Timezone      *string `json:"timezone,omitempty"`
	AllowCritical *bool   `json:"allowCritical,omitempty"`
	DaysOfWeek    []int   `json:"daysOfWeek,omitempty"`
}

// AdvancedSettingsUpdate is a partial advanced settings update
type AdvancedSettingsUpdate struct {
	BatchNotifications   *bool `json:"batchNotifications,omitempty"`
	BatchWindowMinutes   *int  `json:"batchWindowMinutes,omitempty"`
	Sound                *bool `json:"sound,omitempty"`
	DesktopNotifications *bool `json:"desktopNotifications,omitempty"`
}
