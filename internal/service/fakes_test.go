package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/preference"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
)

type memPreferenceStore struct {
	mu    sync.Mutex
	prefs map[string]domain.NotificationPreferences
	// beforeCreate runs at the start of Create, standing in for a concurrent writer
	beforeCreate func()
}

func newMemPreferenceStore() *memPreferenceStore {
	return &memPreferenceStore{prefs: make(map[string]domain.NotificationPreferences)}
}

func (m *memPreferenceStore) put(p domain.NotificationPreferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[p.UserID] = preference.Clone(p)
}

func (m *memPreferenceStore) GetByUserID(_ context.Context, userID string) (*domain.NotificationPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[userID]
	if !ok {
		return nil, apperrors.NewNotFoundError("preferences not found", nil)
	}
	c := preference.Clone(p)
	return &c, nil
}

func (m *memPreferenceStore) Create(_ context.Context, p *domain.NotificationPreferences) error {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prefs[p.UserID]; ok {
		return apperrors.NewConflictError("preferences already exist", nil)
	}
	m.prefs[p.UserID] = preference.Clone(*p)
	return nil
}

func (m *memPreferenceStore) Update(_ context.Context, p *domain.NotificationPreferences) error {
	m.put(*p)
	return nil
}

func (m *memPreferenceStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prefs[userID]; !ok {
		return apperrors.NewNotFoundError("preferences not found", nil)
	}
	delete(m.prefs, userID)
	return nil
}

func (m *memPreferenceStore) FindEnabledUserIDs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, p := range m.prefs {
		if p.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memPreferenceStore) FindDigestSubscribers(_ context.Context, f domain.DigestFrequency) ([]*domain.NotificationPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.NotificationPreferences
	for _, p := range m.prefs {
		if p.Enabled && p.EmailDigest.Enabled && p.EmailDigest.Frequency == f {
			c := preference.Clone(p)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

type memNotificationStore struct {
	mu        sync.Mutex
	items     map[string]*domain.Notification
	updates   int
	createErr error
	markErr   error
}

func newMemNotificationStore() *memNotificationStore {
	return &memNotificationStore{items: make(map[string]*domain.Notification)}
}

func (m *memNotificationStore) get(id string) *domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return nil
	}
	c := *n
	c.DeliveryStatus = make(domain.DeliveryStatus, len(n.DeliveryStatus))
	for k, v := range n.DeliveryStatus {
		c.DeliveryStatus[k] = v
	}
	return &c
}

func (m *memNotificationStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *memNotificationStore) Create(_ context.Context, n *domain.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.NotificationID == "" {
		n.NotificationID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	c := *n
	c.DeliveryStatus = make(domain.DeliveryStatus, len(n.DeliveryStatus))
	for k, v := range n.DeliveryStatus {
		c.DeliveryStatus[k] = v
	}
	m.items[n.NotificationID] = &c
	return nil
}

func (m *memNotificationStore) FindByID(_ context.Context, userID, id string) (*domain.Notification, error) {
	n := m.get(id)
	if n == nil || n.UserID != userID {
		return nil, apperrors.NewNotFoundError("notification not found", nil)
	}
	return n, nil
}

func (m *memNotificationStore) Find(_ context.Context, f domain.NotificationFilter) (*domain.NotificationPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page := &domain.NotificationPage{Page: 1, Limit: 20}
	for _, n := range m.items {
		if n.UserID == f.UserID {
			page.Items = append(page.Items, n)
		}
	}
	page.Total = int64(len(page.Items))
	return page, nil
}

func (m *memNotificationStore) MarkAsRead(_ context.Context, userID string, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var changed int64
	for _, id := range ids {
		if n, ok := m.items[id]; ok && n.UserID == userID && !n.IsRead {
			n.IsRead = true
			changed++
		}
	}
	return changed, nil
}

func (m *memNotificationStore) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	var ids []string
	for id := range m.items {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	return m.MarkAsRead(ctx, userID, ids)
}

func (m *memNotificationStore) Archive(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return apperrors.NewNotFoundError("notification not found", nil)
	}
	n.IsArchived = true
	return nil
}

func (m *memNotificationStore) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok || n.UserID != userID {
		return apperrors.NewNotFoundError("notification not found", nil)
	}
	delete(m.items, id)
	return nil
}

func (m *memNotificationStore) DeleteMany(ctx context.Context, userID string, ids []string) (int64, error) {
	var deleted int64
	for _, id := range ids {
		if m.Delete(ctx, userID, id) == nil {
			deleted++
		}
	}
	return deleted, nil
}

func (m *memNotificationStore) GetSummary(_ context.Context, userID string) (*domain.NotificationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &domain.NotificationSummary{
		CountByCategory: map[domain.Category]int64{},
		CountByPriority: map[domain.Priority]int64{},
	}
	for _, n := range m.items {
		if n.UserID != userID {
			continue
		}
		s.TotalCount++
		if !n.IsRead {
			s.UnreadCount++
		}
		s.CountByCategory[n.Category]++
		s.CountByPriority[n.Priority]++
	}
	return s, nil
}

func (m *memNotificationStore) UpdateChannelStatus(_ context.Context, id string, ch domain.Channel, d domain.ChannelDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.items[id]
	if !ok {
		return apperrors.NewNotFoundError("notification not found", nil)
	}
	n.DeliveryStatus[ch.Key()] = d
	m.updates++
	return nil
}

func (m *memNotificationStore) GetPendingForChannel(_ context.Context, ch domain.Channel, limit int) ([]*domain.Notification, error) {
	return m.selectByStatus(ch, func(d domain.ChannelDelivery) bool { return d.Status == domain.DeliveryPending }), nil
}

func (m *memNotificationStore) GetFailedForRetry(_ context.Context, ch domain.Channel, maxRetries int) ([]*domain.Notification, error) {
	return m.selectByStatus(ch, func(d domain.ChannelDelivery) bool {
		return d.Status == domain.DeliveryFailed && d.RetryCount < maxRetries
	}), nil
}

func (m *memNotificationStore) CountExhausted(_ context.Context, ch domain.Channel, maxRetries int) (int64, error) {
	return int64(len(m.selectByStatus(ch, func(d domain.ChannelDelivery) bool {
		return d.Status == domain.DeliveryFailed && d.RetryCount >= maxRetries
	}))), nil
}

func (m *memNotificationStore) selectByStatus(ch domain.Channel, match func(domain.ChannelDelivery) bool) []*domain.Notification {
	m.mu.Lock()
	var ids []string
	for id, n := range m.items {
		if d, ok := n.DeliveryStatus[ch.Key()]; ok && match(d) {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	sort.Strings(ids)

	out := make([]*domain.Notification, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.get(id))
	}
	return out
}

func (m *memNotificationStore) FindUndigested(_ context.Context, userID string, from, to time.Time) ([]*domain.Notification, error) {
	m.mu.Lock()
	var ids []string
	for id, n := range m.items {
		if n.UserID == userID && n.DigestedAt == nil && !n.CreatedAt.Before(from) && !n.CreatedAt.After(to) {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	out := make([]*domain.Notification, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.get(id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memNotificationStore) MarkDigested(_ context.Context, ids []string, at time.Time) (int64, error) {
	if m.markErr != nil {
		return 0, m.markErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var marked int64
	for _, id := range ids {
		if n, ok := m.items[id]; ok && n.DigestedAt == nil {
			stamp := at
			n.DigestedAt = &stamp
			marked++
		}
	}
	return marked, nil
}

type fakeEmailQueue struct {
	mu     sync.Mutex
	jobs   []domain.EmailJob
	result domain.QueueResult
}

func newFakeEmailQueue() *fakeEmailQueue {
	return &fakeEmailQueue{result: domain.QueueResult{Queued: true, JobID: "job-1"}}
}

func (q *fakeEmailQueue) QueueEmail(_ context.Context, job domain.EmailJob) domain.QueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return q.result
}

func (q *fakeEmailQueue) sent() []domain.EmailJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.EmailJob(nil), q.jobs...)
}

type fakeDirectory struct {
	missing map[string]bool
}

func (d *fakeDirectory) Lookup(_ context.Context, userID string) (*domain.Recipient, error) {
	if d.missing[userID] {
		return nil, apperrors.NewNotFoundError("user not found", nil)
	}
	return &domain.Recipient{UserID: userID, Email: userID + "@example.com", Name: "User " + userID}, nil
}

type fakePusher struct {
	mu     sync.Mutex
	err    error
	pushed []string
	data   []any
}

func (p *fakePusher) PushToUser(userID, _ string, data any) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.pushed = append(p.pushed, userID)
	p.data = append(p.data, data)
	return 1, nil
}

func (p *fakePusher) users() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.pushed...)
}

func (p *fakePusher) payloads() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.data...)
}

type fakeWebhook struct {
	mu       sync.Mutex
	err      error
	attempts []int
}

func (w *fakeWebhook) Dispatch(_ context.Context, _ *domain.Notification, attempt int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts = append(w.attempts, attempt)
	return w.err
}

// panicSender blows up on every send
type panicSender struct {
	channel domain.Channel
}

func (s panicSender) Channel() domain.Channel { return s.channel }

func (s panicSender) Send(context.Context, Delivery) Outcome {
	panic("boom")
}

var errStore = errors.New("store unavailable")
