package preference

import (
	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
)

// ApplyUpdate applies a partial update in place
func ApplyUpdate(p *domain.NotificationPreferences, u domain.PreferencesUpdate) {
	if u.Enabled != nil {
		p.Enabled = *u.Enabled
	}
	if u.DefaultChannels != nil {
		p.DefaultChannels = cloneChannels(u.DefaultChannels)
	}
	for cat, cu := range u.Categories {
		ApplyCategoryUpdate(p, cat, cu)
	}
	for _, o := range u.EventOverrides {
		SetOverride(p, o)
	}
	if u.EmailDigest != nil {
		ApplyDigestUpdate(&p.EmailDigest, *u.EmailDigest)
	}
	if u.QuietHours != nil {
		ApplyQuietHoursUpdate(&p.QuietHours, *u.QuietHours)
	}
	if u.Advanced != nil {
		applyAdvancedUpdate(&p.Advanced, *u.Advanced)
	}
}

// ApplyCategoryUpdate merges a partial rule into one category
func ApplyCategoryUpdate(p *domain.NotificationPreferences, cat domain.Category, u domain.CategoryPreferenceUpdate) {
	if p.Categories == nil {
		p.Categories = make(map[domain.Category]domain.CategoryPreference)
	}
	cfg, ok := p.Categories[cat]
	if !ok {
		cfg = domain.CategoryPreference{Enabled: true, Channels: cloneChannels(p.DefaultChannels)}
	}
	if u.Enabled != nil {
		cfg.Enabled = *u.Enabled
	}
	if u.Channels != nil {
		cfg.Channels = cloneChannels(u.Channels)
	}
	if u.MinPriority != nil {
		cfg.MinPriority = *u.MinPriority
	}
	p.Categories[cat] = cfg
}

// SetOverride installs o, replacing any existing override for the same type
func SetOverride(p *domain.NotificationPreferences, o domain.EventOverride) {
	RemoveOverride(p, o.Type)
	o.Channels = cloneChannels(o.Channels)
	p.EventOverrides = append(p.EventOverrides, o)
}

// RemoveOverride deletes the override for t and reports whether one existed
func RemoveOverride(p *domain.NotificationPreferences, t domain.NotificationType) bool {
	kept := p.EventOverrides[:0]
	removed := false
	for _, o := range p.EventOverrides {
		if o.Type == t {
			removed = true
			continue
		}
		kept = append(kept, o)
	}
	p.EventOverrides = kept
	return removed
}

// ApplyDigestUpdate merges a partial digest configuration
func ApplyDigestUpdate(d *domain.EmailDigest, u domain.EmailDigestUpdate) {
	if u.Enabled != nil {
		d.Enabled = *u.Enabled
	}
	if u.Frequency != nil {
		d.Frequency = *u.Frequency
	}
	if u.Time != nil {
		d.Time = *u.Time
	}
	if u.DayOfWeek != nil {
		day := *u.DayOfWeek
		d.DayOfWeek = &day
	}
	if u.Timezone != nil {
		d.Timezone = *u.Timezone
	}
	if u.IncludeCategories != nil {
		d.IncludeCategories = append([]domain.Category{}, u.IncludeCategories...)
	}
	if u.MinPriority != nil {
		d.MinPriority = *u.MinPriority
	}
}

// ApplyQuietHoursUpdate merges a partial quiet hours configuration
func ApplyQuietHoursUpdate(q *domain.QuietHours, u domain.QuietHoursUpdate) {
	if u.Enabled != nil {
		q.Enabled = *u.Enabled
	}
	if u.Start != nil {
		q.Start = *u.Start
	}
	if u.End != nil {
		q.End = *u.End
	}
	if u.Timezone != nil {
		q.Timezone = *u.Timezone
	}
	if u.AllowCritical != nil {
		q.AllowCritical = *u.AllowCritical
	}
	if u.DaysOfWeek != nil {
		q.DaysOfWeek = append([]int{}, u.DaysOfWeek...)
	}
}

func applyAdvancedUpdate(a *domain.AdvancedSettings, u domain.AdvancedSettingsUpdate) {
	if u.BatchNotifications != nil {
		a.BatchNotifications = *u.BatchNotifications
	}
	if u.BatchWindowMinutes != nil {
		a.BatchWindowMinutes = *u.BatchWindowMinutes
	}
	if u.Sound != nil {
		a.Sound = *u.Sound
	}
	if u.DesktopNotifications != nil {
		a.DesktopNotifications = *u.DesktopNotifications
	}
}
