package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/metrics"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// DigestService batches undigested notifications into periodic digest emails
type DigestService struct {
	prefs     *PreferenceService
	store     NotificationStore
	queue     EmailQueue
	directory RecipientDirectory
	log       *logger.Logger
	now       func() time.Time
}

// NewDigestService creates a new digest service
func NewDigestService(prefs *PreferenceService, store NotificationStore, queue EmailQueue, directory RecipientDirectory, log *logger.Logger) *DigestService {
	return &DigestService{
		prefs:     prefs,
		store:     store,
		queue:     queue,
		directory: directory,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunHourly runs the hourly digest
func (s *DigestService) RunHourly(ctx context.Context) (*domain.DigestRunResult, error) {
	return s.RunDigest(ctx, domain.FrequencyHourly)
}

// RunDaily runs the daily digest
func (s *DigestService) RunDaily(ctx context.Context) (*domain.DigestRunResult, error) {
	return s.RunDigest(ctx, domain.FrequencyDaily)
}

// RunWeekly runs the weekly digest
func (s *DigestService) RunWeekly(ctx context.Context) (*domain.DigestRunResult, error) {
	return s.RunDigest(ctx, domain.FrequencyWeekly)
}

// RunDigest sends one digest to every subscriber of freq covering the
// frequency's lookback window. A failure for one user does not stop the run.
func (s *DigestService) RunDigest(ctx context.Context, freq domain.DigestFrequency) (*domain.DigestRunResult, error) {
	hours := freq.LookbackHours()
	if hours == 0 {
		return nil, apperrors.NewValidationError("no digest for frequency: "+string(freq), nil)
	}
	metrics.DigestRuns.WithLabelValues(string(freq)).Inc()

	subscribers, err := s.prefs.DigestSubscribers(ctx, freq)
	if err != nil {
		return nil, err
	}

	to := s.now()
	from := to.Add(-time.Duration(hours) * time.Hour)
	result := &domain.DigestRunResult{Frequency: freq}

	for _, prefs := range subscribers {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.UsersProcessed++

		marked, sent, err := s.digestUser(ctx, prefs, freq, from, to)
		result.NotificationsMarked += marked
		if err != nil {
			result.Failures++
			metrics.DigestFailures.WithLabelValues(string(freq)).Inc()
			s.log.Error("Digest failed for user", "user_id", prefs.UserID, "frequency", freq, "error", err)
			continue
		}
		if sent {
			result.DigestsSent++
			metrics.DigestsSent.WithLabelValues(string(freq)).Inc()
		}
	}

	s.log.Info("Digest run finished",
		"frequency", freq,
		"users", result.UsersProcessed,
		"sent", result.DigestsSent,
		"marked", result.NotificationsMarked,
		"failures", result.Failures,
	)
	return result, nil
}

// digestUser marks every fetched notification digested, then sends the
// filtered remainder. Marking comes first so a window is never re-included,
// even when sending fails.
func (s *DigestService) digestUser(ctx context.Context, prefs *domain.NotificationPreferences, freq domain.DigestFrequency, from, to time.Time) (int, bool, error) {
	fetched, err := s.store.FindUndigested(ctx, prefs.UserID, from, to)
	if err != nil {
		return 0, false, fmt.Errorf("fetch undigested: %w", err)
	}
	if len(fetched) == 0 {
		return 0, false, nil
	}

	included := FilterForDigest(fetched, prefs.EmailDigest)

	ids := make([]string, len(fetched))
	for i, n := range fetched {
		ids[i] = n.NotificationID
	}
	marked, err := s.store.MarkDigested(ctx, ids, to)
	if err != nil {
		return 0, false, fmt.Errorf("mark digested: %w", err)
	}

	if len(included) == 0 {
		return int(marked), false, nil
	}

	recipient, err := s.directory.Lookup(ctx, prefs.UserID)
	if err != nil {
		return int(marked), false, fmt.Errorf("recipient lookup: %w", err)
	}

	res := s.queue.QueueEmail(ctx, domain.EmailJob{
		UserID:   prefs.UserID,
		To:       recipient.Email,
		Template: domain.TemplateDigest,
		Data:     digestData(freq, recipient, included),
		Priority: domain.JobPriority(domain.PriorityLow),
	})
	if !res.Queued && !res.Sent {
		return int(marked), false, fmt.Errorf("send digest: %s", res.Error)
	}
	return int(marked), true, nil
}

func digestData(freq domain.DigestFrequency, recipient *domain.Recipient, included []*domain.Notification) map[string]any {
	return map[string]any{
		"frequency":     freq,
		"count":         len(included),
		"recipientName": recipient.Name,
		"stats":         ComputeStats(included),
		"groups":        GroupByCategory(included),
	}
}

// FilterForDigest applies the digest category allow-list and priority floor
func FilterForDigest(items []*domain.Notification, cfg domain.EmailDigest) []*domain.Notification {
	out := make([]*domain.Notification, 0, len(items))
	for _, n := range items {
		if len(cfg.IncludeCategories) > 0 && !containsCategory(cfg.IncludeCategories, n.Category) {
			continue
		}
		if cfg.MinPriority != "" && n.Priority.Below(cfg.MinPriority) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func containsCategory(categories []domain.Category, c domain.Category) bool {
	for _, x := range categories {
		if x == c {
			return true
		}
	}
	return false
}

// ComputeStats counts notifications by category and priority
func ComputeStats(items []*domain.Notification) domain.DigestStats {
	stats := domain.DigestStats{
		Total:      len(items),
		ByCategory: make(map[domain.Category]int),
		ByPriority: make(map[domain.Priority]int),
	}
	for _, n := range items {
		stats.ByCategory[n.Category]++
		stats.ByPriority[n.Priority]++
	}
	return stats
}

// GroupByCategory groups notifications in category order; each group is
// sorted by priority descending, then most recent first.
func GroupByCategory(items []*domain.Notification) []domain.DigestGroup {
	byCategory := make(map[domain.Category][]*domain.Notification)
	for _, n := range items {
		byCategory[n.Category] = append(byCategory[n.Category], n)
	}

	groups := make([]domain.DigestGroup, 0, len(byCategory))
	appendGroup := func(c domain.Category) {
		list, ok := byCategory[c]
		if !ok {
			return
		}
		sort.SliceStable(list, func(i, j int) bool {
			if ri, rj := list[i].Priority.Rank(), list[j].Priority.Rank(); ri != rj {
				return ri > rj
			}
			return list[i].CreatedAt.After(list[j].CreatedAt)
		})
		groups = append(groups, domain.DigestGroup{Category: c, Notifications: list})
		delete(byCategory, c)
	}

	for _, c := range domain.AllCategories {
		appendGroup(c)
	}
	// categories outside the known set, in a stable order
	rest := make([]domain.Category, 0, len(byCategory))
	for c := range byCategory {
		rest = append(rest, c)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	for _, c := range rest {
		appendGroup(c)
	}
	return groups
}
