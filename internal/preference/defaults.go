package preference

import (
	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
)

// DefaultPreferences returns a fresh default preference document for userID
func DefaultPreferences(userID string) domain.NotificationPreferences {
	inAppEmail := []domain.Channel{domain.ChannelInApp, domain.ChannelEmail}
	inApp := []domain.Channel{domain.ChannelInApp}

	return domain.NotificationPreferences{
		UserID:          userID,
		Enabled:         true,
		DefaultChannels: inAppEmail,
		Categories: map[domain.Category]domain.CategoryPreference{
			domain.CategoryHRActivities:   {Enabled: true, Channels: inAppEmail},
			domain.CategorySecurityAlerts: {Enabled: true, Channels: inAppEmail},
			domain.CategorySystemUpdates:  {Enabled: true, Channels: inApp},
			domain.CategoryCollaboration:  {Enabled: true, Channels: inAppEmail},
			domain.CategoryAIInsights:     {Enabled: true, Channels: inApp},
			domain.CategoryReports:        {Enabled: true, Channels: inAppEmail},
			domain.CategoryReminders:      {Enabled: true, Channels: inAppEmail},
		},
		EventOverrides: []domain.EventOverride{},
		EmailDigest: domain.EmailDigest{
			Enabled:   false,
			Frequency: domain.FrequencyDaily,
			Time:      "09:00",
			Timezone:  "UTC",
		},
		QuietHours: domain.QuietHours{
			Enabled:       false,
			Start:         "22:00",
			End:           "08:00",
			Timezone:      "UTC",
			AllowCritical: true,
		},
		Advanced: domain.AdvancedSettings{
			BatchNotifications:   false,
			BatchWindowMinutes:   5,
			Sound:                true,
			DesktopNotifications: true,
		},
	}
}

// MergeDefaults builds a new preference document by applying partial on top
// of a copy of defaults. Neither argument is modified.
func MergeDefaults(partial domain.PreferencesUpdate, defaults domain.NotificationPreferences) domain.NotificationPreferences {
	merged := Clone(defaults)
	ApplyUpdate(&merged, partial)
	return merged
}

// FillMissing completes a stored document that predates newer fields:
// absent categories, empty channel lists and blank enum fields take the
// default values. Fields already present are kept.
func FillMissing(prefs *domain.NotificationPreferences, defaults domain.NotificationPreferences) {
	if len(prefs.DefaultChannels) == 0 {
		prefs.DefaultChannels = cloneChannels(defaults.DefaultChannels)
	}
	if prefs.Categories == nil {
		prefs.Categories = make(map[domain.Category]domain.CategoryPreference, len(defaults.Categories))
	}
	for cat, cfg := range defaults.Categories {
		if _, ok := prefs.Categories[cat]; !ok {
			prefs.Categories[cat] = cloneCategory(cfg)
		}
	}
	if prefs.EventOverrides == nil {
		prefs.EventOverrides = []domain.EventOverride{}
	}
	if prefs.EmailDigest.Frequency == "" {
		prefs.EmailDigest.Frequency = defaults.EmailDigest.Frequency
	}
	if prefs.QuietHours.Start == "" {
		prefs.QuietHours.Start = defaults.QuietHours.Start
	}
	if prefs.QuietHours.End == "" {
		prefs.QuietHours.End = defaults.QuietHours.End
	}
	if prefs.QuietHours.Timezone == "" {
		prefs.QuietHours.Timezone = defaults.QuietHours.Timezone
	}
	if prefs.Advanced.BatchWindowMinutes == 0 {
		prefs.Advanced.BatchWindowMinutes = defaults.Advanced.BatchWindowMinutes
	}
}

// Clone deep-copies a preference document
func Clone(p domain.NotificationPreferences) domain.NotificationPreferences {
	out := p
	out.DefaultChannels = cloneChannels(p.DefaultChannels)
	if p.Categories != nil {
		out.Categories = make(map[domain.Category]domain.CategoryPreference, len(p.Categories))
		for k, v := range p.Categories {
			out.Categories[k] = cloneCategory(v)
		}
	}
	if p.EventOverrides != nil {
		out.EventOverrides = make([]domain.EventOverride, len(p.EventOverrides))
		for i, o := range p.EventOverrides {
			o.Channels = cloneChannels(o.Channels)
			out.EventOverrides[i] = o
		}
	}
	if p.EmailDigest.DayOfWeek != nil {
		d := *p.EmailDigest.DayOfWeek
		out.EmailDigest.DayOfWeek = &d
	}
	if p.EmailDigest.IncludeCategories != nil {
		out.EmailDigest.IncludeCategories = append([]domain.Category{}, p.EmailDigest.IncludeCategories...)
	}
	if p.QuietHours.DaysOfWeek != nil {
		out.QuietHours.DaysOfWeek = append([]int{}, p.QuietHours.DaysOfWeek...)
	}
	return out
}

func cloneChannels(in []domain.Channel) []domain.Channel {
	if in == nil {
		return nil
	}
	return append([]domain.Channel{}, in...)
}

func cloneCategory(c domain.CategoryPreference) domain.CategoryPreference {
	c.Channels = cloneChannels(c.Channels)
	return c
}
