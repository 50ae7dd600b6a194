package preference

import (
	"fmt"
	"time"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
)

// Validate checks a complete preference document before it is persisted
func Validate(p *domain.NotificationPreferences) error {
	if p.UserID == "" {
		return apperrors.NewValidationError("userId is required", nil)
	}
	if err := validateChannels("defaultChannels", p.DefaultChannels); err != nil {
		return err
	}
	for cat, cfg := range p.Categories {
		if !cat.Valid() {
			return apperrors.NewValidationError(fmt.Sprintf("unknown category %q", cat), nil)
		}
		if err := validateChannels(fmt.Sprintf("categories.%s.channels", cat), cfg.Channels); err != nil {
			return err
		}
		if err := validateOptionalPriority(fmt.Sprintf("categories.%s.minPriority", cat), cfg.MinPriority); err != nil {
			return err
		}
	}
	seen := make(map[domain.NotificationType]bool, len(p.EventOverrides))
	for _, o := range p.EventOverrides {
		if err := ValidateOverride(o); err != nil {
			return err
		}
		if seen[o.Type] {
			return apperrors.NewValidationError(fmt.Sprintf("duplicate event override for %s", o.Type), nil)
		}
		seen[o.Type] = true
	}
	if err := ValidateDigest(p.EmailDigest); err != nil {
		return err
	}
	if err := ValidateQuietHours(p.QuietHours); err != nil {
		return err
	}
	if p.Advanced.BatchWindowMinutes < 0 {
		return apperrors.NewValidationError("advanced.batchWindowMinutes must not be negative", nil)
	}
	return nil
}

// ValidateOverride checks a single event override
func ValidateOverride(o domain.EventOverride) error {
	if !o.Type.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown notification type %q", o.Type), nil)
	}
	if err := validateChannels("eventOverrides.channels", o.Channels); err != nil {
		return err
	}
	return validateOptionalPriority("eventOverrides.priority", o.Priority)
}

// ValidateDigest checks an email digest configuration
func ValidateDigest(d domain.EmailDigest) error {
	if !d.Frequency.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown digest frequency %q", d.Frequency), nil)
	}
	if d.Time != "" {
		if _, err := ParseClock(d.Time); err != nil {
			return apperrors.NewValidationError("emailDigest.time: "+err.Error(), err)
		}
	}
	if d.DayOfWeek != nil && (*d.DayOfWeek < 0 || *d.DayOfWeek > 6) {
		return apperrors.NewValidationError("emailDigest.dayOfWeek must be between 0 and 6", nil)
	}
	if err := validateTimezone("emailDigest.timezone", d.Timezone); err != nil {
		return err
	}
	for _, c := range d.IncludeCategories {
		if !c.Valid() {
			return apperrors.NewValidationError(fmt.Sprintf("emailDigest.includeCategories: unknown category %q", c), nil)
		}
	}
	return validateOptionalPriority("emailDigest.minPriority", d.MinPriority)
}

// ValidateQuietHours checks a quiet hours configuration
func ValidateQuietHours(q domain.QuietHours) error {
	if _, err := ParseClock(q.Start); err != nil {
		return apperrors.NewValidationError("quietHours.start: "+err.Error(), err)
	}
	if _, err := ParseClock(q.End); err != nil {
		return apperrors.NewValidationError("quietHours.end: "+err.Error(), err)
	}
	for _, d := range q.DaysOfWeek {
		if d < 0 || d > 6 {
			return apperrors.NewValidationError("quietHours.daysOfWeek values must be between 0 and 6", nil)
		}
	}
	return validateTimezone("quietHours.timezone", q.Timezone)
}

func validateChannels(field string, channels []domain.Channel) error {
	for i, ch := range channels {
		if !ch.Valid() {
			return apperrors.NewValidationError(fmt.Sprintf("%s: unknown channel %q", field, ch), nil)
		}
		if domain.ContainsChannel(channels[:i], ch) {
			return apperrors.NewValidationError(fmt.Sprintf("%s: duplicate channel %q", field, ch), nil)
		}
	}
	return nil
}

func validateOptionalPriority(field string, p domain.Priority) error {
	if p != "" && !p.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("%s: unknown priority %q", field, p), nil)
	}
	return nil
}

func validateTimezone(field, tz string) error {
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("%s: unknown time zone %q", field, tz), err)
	}
	return nil
}
