package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/preference"
	"github.com/vhvplatform/go-notification-orchestrator/internal/realtime"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

var testNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

type notificationFixture struct {
	svc     *NotificationService
	store   *memNotificationStore
	prefs   *memPreferenceStore
	queue   *fakeEmailQueue
	pusher  *fakePusher
	webhook *fakeWebhook
	tasks   *TaskRunner
}

func newNotificationFixture(extra ...ChannelSender) *notificationFixture {
	pusher := &fakePusher{}
	f := newNotificationFixtureWithPusher(pusher, extra...)
	f.pusher = pusher
	return f
}

func newNotificationFixtureWithPusher(pusher RealtimePusher, extra ...ChannelSender) *notificationFixture {
	log := logger.NewNop()
	f := &notificationFixture{
		store:   newMemNotificationStore(),
		prefs:   newMemPreferenceStore(),
		queue:   newFakeEmailQueue(),
		webhook: &fakeWebhook{},
		tasks:   NewTaskRunner(time.Second, log),
	}
	senders := []ChannelSender{
		NewInAppSender(pusher, f.tasks, log),
		NewEmailSender(f.queue, &fakeDirectory{}, log),
		NewReservedSender(domain.ChannelPush),
		NewReservedSender(domain.ChannelSMS),
		NewWebhookSender(f.webhook),
	}
	senders = append(senders, extra...)

	f.svc = NewNotificationService(f.store, NewPreferenceService(f.prefs, log), senders, f.tasks, log)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func createReq(userID string, t domain.NotificationType) domain.CreateNotificationRequest {
	return domain.CreateNotificationRequest{
		UserID:  userID,
		Type:    t,
		Title:   "Title",
		Message: "Message",
	}
}

func TestCreateNotification_DeliversInAppAndEmail(t *testing.T) {
	f := newNotificationFixture()

	n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeCandidateApplied))
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, domain.CategoryHRActivities, n.Category)
	assert.Equal(t, domain.PriorityMedium, n.Priority)
	assert.Equal(t, []domain.Channel{domain.ChannelInApp, domain.ChannelEmail}, n.Channels)

	stored := f.store.get(n.NotificationID)
	require.NotNil(t, stored)
	require.Len(t, stored.DeliveryStatus, 2)
	assert.Equal(t, domain.DeliveryDelivered, stored.DeliveryStatus["inApp"].Status)
	assert.NotNil(t, stored.DeliveryStatus["inApp"].DeliveredAt)
	assert.Equal(t, domain.DeliverySent, stored.DeliveryStatus["email"].Status)
	assert.NotNil(t, stored.DeliveryStatus["email"].SentAt)

	jobs := f.queue.sent()
	require.Len(t, jobs, 1)
	assert.Equal(t, "user-1@example.com", jobs[0].To)
	assert.Equal(t, domain.TemplateNotification, jobs[0].Template)
	assert.Equal(t, 3, jobs[0].Priority)

	f.tasks.Wait()
	assert.Equal(t, []string{"user-1"}, f.pusher.users())
}

func TestCreateNotification_InitialDeliveryStatus(t *testing.T) {
	f := newNotificationFixture()
	// no senders registered for the evaluated channels, so nothing moves past PENDING
	f.svc.senders = map[domain.Channel]ChannelSender{}

	n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeCandidateApplied))
	require.NoError(t, err)

	stored := f.store.get(n.NotificationID)
	assert.Equal(t, domain.DeliveryStatus{
		"inApp": {Status: domain.DeliveryPending, RetryCount: 0},
		"email": {Status: domain.DeliveryPending, RetryCount: 0},
	}, stored.DeliveryStatus)
}

func TestCreateNotification_BlockedPersistsNothing(t *testing.T) {
	f := newNotificationFixture()
	p := preference.DefaultPreferences("user-1")
	p.Enabled = false
	f.prefs.put(p)

	n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeCandidateApplied))
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Zero(t, f.store.count())
	assert.Empty(t, f.queue.sent())
}

func TestCreateNotification_QuietHoursScenario(t *testing.T) {
	f := newNotificationFixture()
	p := preference.DefaultPreferences("user-1")
	p.QuietHours = domain.QuietHours{Enabled: true, Start: "22:00", End: "06:00", Timezone: "UTC"}
	p.Categories[domain.CategoryHRActivities] = domain.CategoryPreference{
		Enabled:     true,
		Channels:    []domain.Channel{domain.ChannelInApp, domain.ChannelEmail},
		MinPriority: domain.PriorityMedium,
	}
	f.prefs.put(p)

	at := time.Date(2026, 10, 14, 23, 0, 0, 0, time.UTC)
	req := createReq("user-1", domain.TypeCandidateApplied)
	req.OccurredAt = &at

	n, err := f.svc.CreateNotification(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Zero(t, f.store.count())
}

func TestCreateNotification_DigestModeDropsEmail(t *testing.T) {
	f := newNotificationFixture()
	p := preference.DefaultPreferences("user-1")
	p.EmailDigest.Enabled = true
	p.EmailDigest.Frequency = domain.FrequencyDaily
	f.prefs.put(p)

	n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeCandidateApplied))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, []domain.Channel{domain.ChannelInApp}, n.Channels)
	assert.Empty(t, f.queue.sent())
}

func TestCreateNotification_RestrictsToRequestedChannels(t *testing.T) {
	f := newNotificationFixture()
	req := createReq("user-1", domain.TypeCandidateApplied)
	req.Channels = []domain.Channel{domain.ChannelEmail, domain.ChannelSMS}

	n, err := f.svc.CreateNotification(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []domain.Channel{domain.ChannelEmail}, n.Channels)
	f.tasks.Wait()
	assert.Empty(t, f.pusher.users())
}

func TestCreateNotification_Validation(t *testing.T) {
	f := newNotificationFixture()

	tests := []struct {
		name   string
		mutate func(r *domain.CreateNotificationRequest)
	}{
		{"missing user", func(r *domain.CreateNotificationRequest) { r.UserID = "" }},
		{"unknown type", func(r *domain.CreateNotificationRequest) { r.Type = "NOPE" }},
		{"missing title", func(r *domain.CreateNotificationRequest) { r.Title = "" }},
		{"unknown priority", func(r *domain.CreateNotificationRequest) { r.Priority = "URGENT" }},
		{"unknown channel", func(r *domain.CreateNotificationRequest) { r.Channels = []domain.Channel{"FAX"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := createReq("user-1", domain.TypeMention)
			tt.mutate(&req)
			_, err := f.svc.CreateNotification(context.Background(), req)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
		})
	}
	assert.Zero(t, f.store.count())
}

func TestCreateNotification_StoreFailure(t *testing.T) {
	f := newNotificationFixture()
	f.store.createErr = errStore

	_, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeMention))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal))
}

func TestDeliver_ChannelFailuresAreIsolated(t *testing.T) {
	f := newNotificationFixture()
	f.webhook.err = errors.New("connection refused")
	p := preference.DefaultPreferences("user-1")
	p.EventOverrides = []domain.EventOverride{{
		Type:     domain.TypeMention,
		Enabled:  true,
		Channels: []domain.Channel{domain.ChannelInApp, domain.ChannelWebhook, domain.ChannelPush},
	}}
	f.prefs.put(p)

	n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeMention))
	require.NoError(t, err)
	require.NotNil(t, n)

	stored := f.store.get(n.NotificationID)
	assert.Equal(t, domain.DeliveryDelivered, stored.DeliveryStatus["inApp"].Status)
	assert.Equal(t, domain.DeliveryPending, stored.DeliveryStatus["push"].Status)

	hook := stored.DeliveryStatus["webhook"]
	assert.Equal(t, domain.DeliveryFailed, hook.Status)
	assert.Equal(t, 1, hook.RetryCount)
	assert.Equal(t, "connection refused", hook.Error)
	assert.Equal(t, []int{1}, f.webhook.attempts)
}

func TestDeliver_PanickingSenderIsContained(t *testing.T) {
	f := newNotificationFixture(panicSender{channel: domain.ChannelEmail})

	n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeCandidateApplied))
	require.NoError(t, err)

	stored := f.store.get(n.NotificationID)
	assert.Equal(t, domain.DeliveryDelivered, stored.DeliveryStatus["inApp"].Status)
	assert.Equal(t, domain.DeliveryFailed, stored.DeliveryStatus["email"].Status)
	assert.Equal(t, "boom", stored.DeliveryStatus["email"].Error)
}

func TestDeliver_EmailEnqueueFailureStaysPending(t *testing.T) {
	f := newNotificationFixture()
	f.queue.result = domain.QueueResult{Sent: false, Error: "smtp down"}

	n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeCandidateApplied))
	require.NoError(t, err)

	email := f.store.get(n.NotificationID).DeliveryStatus["email"]
	assert.Equal(t, domain.DeliveryPending, email.Status)
	assert.Equal(t, "smtp down", email.Error)
	assert.Zero(t, email.RetryCount)
}

func allChannelsOverride(userID string) domain.NotificationPreferences {
	p := preference.DefaultPreferences(userID)
	p.EventOverrides = []domain.EventOverride{{
		Type:    domain.TypeMention,
		Enabled: true,
		Channels: []domain.Channel{
			domain.ChannelInApp, domain.ChannelPush, domain.ChannelSMS, domain.ChannelWebhook, domain.ChannelEmail,
		},
	}}
	return p
}

// Run with -race: the realtime hub encodes the notification while the
// other channels' outcomes are being recorded.
func TestDeliver_InAppPushWithRealtimeHub(t *testing.T) {
	hub := realtime.NewHub(nil, logger.NewNop())
	f := newNotificationFixtureWithPusher(hub)
	f.prefs.put(allChannelsOverride("user-1"))

	for i := 0; i < 100; i++ {
		n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeMention))
		require.NoError(t, err)
		require.NotNil(t, n)
		assert.Len(t, n.DeliveryStatus, 5)
		assert.Equal(t, domain.DeliveryDelivered, n.DeliveryStatus["inApp"].Status)
	}
	f.tasks.Wait()
}

func TestDeliver_InAppPushesSnapshot(t *testing.T) {
	f := newNotificationFixture()

	n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeCandidateApplied))
	require.NoError(t, err)
	f.tasks.Wait()

	payloads := f.pusher.payloads()
	require.Len(t, payloads, 1)
	pushed, ok := payloads[0].(*domain.Notification)
	require.True(t, ok)
	assert.NotSame(t, n, pushed)
	assert.Equal(t, n.NotificationID, pushed.NotificationID)
	assert.Equal(t, domain.DeliveryPending, pushed.DeliveryStatus["inApp"].Status)
	assert.Equal(t, domain.DeliveryDelivered, n.DeliveryStatus["inApp"].Status)
}

func TestDeliver_InAppPushErrorReachesErrorSink(t *testing.T) {
	f := newNotificationFixture()
	f.pusher.err = errors.New("encode failed")

	var mu sync.Mutex
	var failed []string
	f.tasks.OnError(func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, name+": "+err.Error())
	})

	n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeCandidateApplied))
	require.NoError(t, err)
	f.tasks.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0], "inapp-push")
	assert.Contains(t, failed[0], "encode failed")
	// push failures do not change the recorded outcome
	assert.Equal(t, domain.DeliveryDelivered, f.store.get(n.NotificationID).DeliveryStatus["inApp"].Status)
}

func TestDeliver_RepeatedChannelsDispatchOnce(t *testing.T) {
	f := newNotificationFixture()
	p := preference.DefaultPreferences("user-1")
	// written before duplicate channels were rejected
	p.EventOverrides = []domain.EventOverride{{
		Type:     domain.TypeMention,
		Enabled:  true,
		Channels: []domain.Channel{domain.ChannelWebhook, domain.ChannelWebhook},
	}}
	f.prefs.put(p)

	n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeMention))
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, []domain.Channel{domain.ChannelWebhook}, n.Channels)
	assert.Len(t, f.store.get(n.NotificationID).DeliveryStatus, len(n.Channels))
	assert.Equal(t, []int{1}, f.webhook.attempts)
}

func TestCreateNotification_RepeatedRequestedChannels(t *testing.T) {
	f := newNotificationFixture()
	req := createReq("user-1", domain.TypeCandidateApplied)
	req.Channels = []domain.Channel{domain.ChannelEmail, domain.ChannelEmail}

	n, err := f.svc.CreateNotification(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []domain.Channel{domain.ChannelEmail}, n.Channels)
	assert.Len(t, f.queue.sent(), 1)
}

func TestSetEventOverride_RejectsRepeatedChannels(t *testing.T) {
	f := newNotificationFixture()
	prefs := NewPreferenceService(f.prefs, logger.NewNop())

	_, err := prefs.SetEventOverride(context.Background(), "user-1", domain.EventOverride{
		Type:     domain.TypeMention,
		Enabled:  true,
		Channels: []domain.Channel{domain.ChannelWebhook, domain.ChannelWebhook},
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestCreateBulkNotifications(t *testing.T) {
	f := newNotificationFixture()
	blocked := preference.DefaultPreferences("user-3")
	blocked.Enabled = false
	f.prefs.put(blocked)

	created, err := f.svc.CreateBulkNotifications(context.Background(),
		[]string{"user-1", "user-2", "user-2", "user-3", ""},
		createReq("", domain.TypeSystemUpdate))
	require.NoError(t, err)

	users := make([]string, 0, len(created))
	for _, n := range created {
		users = append(users, n.UserID)
	}
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, users)
	assert.Equal(t, 2, f.store.count())

	_, err = f.svc.CreateBulkNotifications(context.Background(), nil, createReq("", domain.TypeSystemUpdate))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestBroadcastNotification_ExcludesUsers(t *testing.T) {
	f := newNotificationFixture()
	for _, id := range []string{"a", "b", "c"} {
		f.prefs.put(preference.DefaultPreferences(id))
	}
	disabled := preference.DefaultPreferences("d")
	disabled.Enabled = false
	f.prefs.put(disabled)

	created, err := f.svc.BroadcastNotification(context.Background(), createReq("", domain.TypeSystemMaintenance), []string{"b"})
	require.NoError(t, err)

	users := make([]string, 0, len(created))
	for _, n := range created {
		users = append(users, n.UserID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, users)
}

func TestBroadcastAsync(t *testing.T) {
	f := newNotificationFixture()
	f.prefs.put(preference.DefaultPreferences("a"))

	f.svc.BroadcastAsync(createReq("", domain.TypeSystemMaintenance), nil)
	f.svc.tasks.Wait()
	assert.Equal(t, 1, f.store.count())
}

func TestMarkEmailFailed(t *testing.T) {
	f := newNotificationFixture()
	n, err := f.svc.CreateNotification(context.Background(), createReq("user-1", domain.TypeCandidateApplied))
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkEmailFailed(context.Background(), n.NotificationID, 3, "mailbox unavailable"))

	email := f.store.get(n.NotificationID).DeliveryStatus["email"]
	assert.Equal(t, domain.DeliveryFailed, email.Status)
	assert.Equal(t, 3, email.RetryCount)
	assert.Equal(t, "mailbox unavailable", email.Error)
	require.NotNil(t, email.LastRetryAt)
}

func TestReadSurface(t *testing.T) {
	f := newNotificationFixture()
	ctx := context.Background()

	first, err := f.svc.CreateNotification(ctx, createReq("user-1", domain.TypeMention))
	require.NoError(t, err)
	second, err := f.svc.CreateNotification(ctx, createReq("user-1", domain.TypeSystemUpdate))
	require.NoError(t, err)

	page, err := f.svc.GetNotifications(ctx, domain.NotificationFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	_, err = f.svc.GetNotification(ctx, "user-2", first.NotificationID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	changed, err := f.svc.MarkAsRead(ctx, "user-1", []string{first.NotificationID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)

	summary, err := f.svc.GetSummary(ctx, "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.UnreadCount)
	assert.EqualValues(t, 2, summary.TotalCount)

	require.NoError(t, f.svc.Archive(ctx, "user-1", second.NotificationID))
	require.NoError(t, f.svc.Delete(ctx, "user-1", second.NotificationID))
	assert.Equal(t, 1, f.store.count())

	_, err = f.svc.GetNotifications(ctx, domain.NotificationFilter{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestApplyOutcome(t *testing.T) {
	now := testNow
	base := domain.ChannelDelivery{Status: domain.DeliveryFailed, RetryCount: 1, Error: "old"}

	delivered := applyOutcome(base, Outcome{Status: domain.DeliveryDelivered}, now, true)
	assert.Equal(t, domain.DeliveryDelivered, delivered.Status)
	assert.Empty(t, delivered.Error)
	assert.Equal(t, 1, delivered.RetryCount)
	assert.Equal(t, &now, delivered.DeliveredAt)
	assert.Equal(t, &now, delivered.LastRetryAt)

	failed := applyOutcome(base, Outcome{Status: domain.DeliveryFailed, Error: "new"}, now, false)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Equal(t, "new", failed.Error)
	assert.Nil(t, failed.LastRetryAt)
}
