package service

import (
	"context"
	"time"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/preference"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// PreferenceService manages user notification preferences
type PreferenceService struct {
	store PreferenceStore
	log   *logger.Logger
}

// NewPreferenceService creates a new preference service
func NewPreferenceService(store PreferenceStore, log *logger.Logger) *PreferenceService {
	return &PreferenceService{store: store, log: log}
}

// GetOrCreate returns the user's preferences, creating them from defaults on
// first access. Fields missing from older records are filled from defaults.
func (s *PreferenceService) GetOrCreate(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId is required", nil)
	}

	prefs, err := s.load(ctx, userID)
	if !apperrors.IsCode(err, apperrors.CodeNotFound) {
		return prefs, err
	}

	defaults := preference.DefaultPreferences(userID)
	if err := s.store.Create(ctx, &defaults); err != nil {
		if apperrors.IsCode(err, apperrors.CodeConflict) {
			// a concurrent first access created the record
			return s.load(ctx, userID)
		}
		return nil, apperrors.NewInternalError("failed to create preferences", err)
	}
	s.log.Info("Created default preferences", "user_id", userID)
	return &defaults, nil
}

// load reads stored preferences and fills fields added since they were written.
// A missing record is NOT_FOUND.
func (s *PreferenceService) load(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	prefs, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return nil, err
		}
		return nil, apperrors.NewInternalError("failed to load preferences", err)
	}
	preference.FillMissing(prefs, preference.DefaultPreferences(userID))
	return prefs, nil
}

// Update applies a partial update to the user's preferences
func (s *PreferenceService) Update(ctx context.Context, userID string, update domain.PreferencesUpdate) (*domain.NotificationPreferences, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId is required", nil)
	}

	// first write for this user: merge straight onto the defaults
	if _, err := s.store.GetByUserID(ctx, userID); apperrors.IsCode(err, apperrors.CodeNotFound) {
		merged := preference.MergeDefaults(update, preference.DefaultPreferences(userID))
		if err := preference.Validate(&merged); err != nil {
			return nil, err
		}
		err := s.store.Create(ctx, &merged)
		if err == nil {
			return &merged, nil
		}
		if !apperrors.IsCode(err, apperrors.CodeConflict) {
			return nil, apperrors.NewInternalError("failed to create preferences", err)
		}
		// lost the insert race; apply the update to the stored record
	}

	return s.mutate(ctx, userID, func(p *domain.NotificationPreferences) error {
		preference.ApplyUpdate(p, update)
		return nil
	})
}

// UpdateCategoryPreferences updates a single category rule
func (s *PreferenceService) UpdateCategoryPreferences(ctx context.Context, userID string, category domain.Category, update domain.CategoryPreferenceUpdate) (*domain.NotificationPreferences, error) {
	if !category.Valid() {
		return nil, apperrors.NewValidationError("unknown category: "+string(category), nil)
	}
	return s.mutate(ctx, userID, func(p *domain.NotificationPreferences) error {
		preference.ApplyCategoryUpdate(p, category, update)
		return nil
	})
}

// SetEventOverride installs an override, replacing any existing one for the same type
func (s *PreferenceService) SetEventOverride(ctx context.Context, userID string, override domain.EventOverride) (*domain.NotificationPreferences, error) {
	if err := preference.ValidateOverride(override); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, func(p *domain.NotificationPreferences) error {
		preference.SetOverride(p, override)
		return nil
	})
}

// RemoveEventOverride removes the override for a type
func (s *PreferenceService) RemoveEventOverride(ctx context.Context, userID string, t domain.NotificationType) (*domain.NotificationPreferences, error) {
	return s.mutate(ctx, userID, func(p *domain.NotificationPreferences) error {
		if !preference.RemoveOverride(p, t) {
			return apperrors.NewNotFoundError("no override for type "+string(t), nil)
		}
		return nil
	})
}

// UpdateEmailDigest updates the digest configuration
func (s *PreferenceService) UpdateEmailDigest(ctx context.Context, userID string, update domain.EmailDigestUpdate) (*domain.NotificationPreferences, error) {
	return s.mutate(ctx, userID, func(p *domain.NotificationPreferences) error {
		preference.ApplyDigestUpdate(&p.EmailDigest, update)
		return nil
	})
}

// UpdateQuietHours updates the quiet hours configuration
func (s *PreferenceService) UpdateQuietHours(ctx context.Context, userID string, update domain.QuietHoursUpdate) (*domain.NotificationPreferences, error) {
	return s.mutate(ctx, userID, func(p *domain.NotificationPreferences) error {
		preference.ApplyQuietHoursUpdate(&p.QuietHours, update)
		return nil
	})
}

// Reset replaces the user's preferences with the defaults
func (s *PreferenceService) Reset(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	return s.mutate(ctx, userID, func(p *domain.NotificationPreferences) error {
		created := p.CreatedAt
		*p = preference.DefaultPreferences(userID)
		p.CreatedAt = created
		return nil
	})
}

// Delete removes the user's preferences. This is an administrative action.
func (s *PreferenceService) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.NewValidationError("userId is required", nil)
	}
	if err := s.store.Delete(ctx, userID); err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return err
		}
		return apperrors.NewInternalError("failed to delete preferences", err)
	}
	s.log.Info("Deleted preferences", "user_id", userID)
	return nil
}

// Evaluate resolves the user's preferences and decides whether and where to notify
func (s *PreferenceService) Evaluate(ctx context.Context, userID string, t domain.NotificationType, priority domain.Priority, at time.Time) (*domain.PreferenceEvaluationResult, error) {
	if !t.Valid() {
		return nil, apperrors.NewValidationError("unknown notification type: "+string(t), nil)
	}
	if priority != "" && !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority: "+string(priority), nil)
	}
	prefs, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := preference.Evaluate(prefs, t, priority, at)
	return &res, nil
}

// EnabledUserIDs lists users with notifications globally enabled
func (s *PreferenceService) EnabledUserIDs(ctx context.Context) ([]string, error) {
	ids, err := s.store.FindEnabledUserIDs(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list users", err)
	}
	return ids, nil
}

// DigestSubscribers lists preferences of users subscribed to a digest frequency
func (s *PreferenceService) DigestSubscribers(ctx context.Context, frequency domain.DigestFrequency) ([]*domain.NotificationPreferences, error) {
	subs, err := s.store.FindDigestSubscribers(ctx, frequency)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list digest subscribers", err)
	}
	for _, p := range subs {
		preference.FillMissing(p, preference.DefaultPreferences(p.UserID))
	}
	return subs, nil
}

// mutate loads, changes, validates and persists preferences. Invalid input
// is rejected before anything is written.
func (s *PreferenceService) mutate(ctx context.Context, userID string, change func(p *domain.NotificationPreferences) error) (*domain.NotificationPreferences, error) {
	prefs, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated := preference.Clone(*prefs)
	if err := change(&updated); err != nil {
		return nil, err
	}
	if err := preference.Validate(&updated); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, &updated); err != nil {
		return nil, apperrors.NewInternalError("failed to save preferences", err)
	}
	return &updated, nil
}
