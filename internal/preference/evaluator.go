// Package preference holds the pure notification preference rules: defaults,
// partial updates, validation and the evaluation that decides whether and
// where a user is notified.
package preference

import (
	"time"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
)

// Reasons reported on blocked evaluations
const (
	ReasonGloballyDisabled = "globally disabled"
	ReasonEventDisabled    = "event type disabled"
	ReasonCategoryDisabled = "category disabled"
	ReasonBelowMinimum     = "priority below minimum"
	ReasonQuietHours       = "quiet hours active"
)

// Evaluate decides whether and through which channels a notification of type
// t should reach the owner of prefs. An empty priority means the type's
// default priority.
func Evaluate(prefs *domain.NotificationPreferences, t domain.NotificationType, priority domain.Priority, at time.Time) domain.PreferenceEvaluationResult {
	return EvaluateCategory(prefs, t, domain.CategoryForType(t), priority, at)
}

// EvaluateCategory is Evaluate with an explicit category instead of the
// type's static one.
func EvaluateCategory(prefs *domain.NotificationPreferences, t domain.NotificationType, category domain.Category, priority domain.Priority, at time.Time) domain.PreferenceEvaluationResult {
	if priority == "" {
		priority = domain.DefaultPriorityForType(t)
	}

	if !prefs.Enabled {
		return blocked(ReasonGloballyDisabled)
	}

	var channels []domain.Channel
	if override := prefs.OverrideFor(t); override != nil {
		if !override.Enabled {
			return blocked(ReasonEventDisabled)
		}
		// an override priority replaces the event's for the quiet-hours and digest checks
		if override.Priority != "" {
			priority = override.Priority
		}
		channels = override.Channels
	} else {
		channels = prefs.DefaultChannels
		if cfg, ok := prefs.Categories[category]; ok {
			if !cfg.Enabled {
				return blocked(ReasonCategoryDisabled)
			}
			if cfg.MinPriority != "" && priority.Below(cfg.MinPriority) {
				return blocked(ReasonBelowMinimum)
			}
			if len(cfg.Channels) > 0 {
				channels = cfg.Channels
			}
		}
	}

	if InQuietHours(prefs.QuietHours, priority, at) {
		res := blocked(ReasonQuietHours)
		res.IsQuietHours = true
		return res
	}

	result := domain.PreferenceEvaluationResult{
		ShouldNotify: true,
		Channels:     domain.UniqueChannels(channels),
	}
	if prefs.DigestActive(priority) {
		result.Channels = domain.WithoutChannel(result.Channels, domain.ChannelEmail)
		result.IsDigestMode = true
	}
	return result
}

func blocked(reason string) domain.PreferenceEvaluationResult {
	return domain.PreferenceEvaluationResult{
		ShouldNotify: false,
		Channels:     []domain.Channel{},
		Reason:       reason,
	}
}
