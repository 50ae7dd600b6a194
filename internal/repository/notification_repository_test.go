package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/mongodb"
)

func setupTestMongoDB(t *testing.T) *mongodb.MongoClient {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("Requires MongoDB connection - set MONGODB_TEST_URI")
	}

	client, err := mongodb.NewMongoClient(uri, "notification_orchestrator_test_"+uuid.NewString()[:8])
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		_ = client.Database().Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return client
}

func newTestNotification(userID string, category domain.Category, priority domain.Priority) *domain.Notification {
	channels := []domain.Channel{domain.ChannelInApp, domain.ChannelEmail}
	return &domain.Notification{
		UserID:         userID,
		Type:           domain.TypeCandidateApplied,
		Category:       category,
		Priority:       priority,
		Title:          "New applicant",
		Message:        "Jane applied",
		Channels:       channels,
		DeliveryStatus: domain.NewDeliveryStatus(channels),
	}
}

func TestNotificationRepository_CreateAndFind(t *testing.T) {
	client := setupTestMongoDB(t)
	repo := NewNotificationRepository(client)
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	n := newTestNotification("user-1", domain.CategoryHRActivities, domain.PriorityMedium)
	require.NoError(t, repo.Create(ctx, n))
	require.NotEmpty(t, n.NotificationID)

	got, err := repo.FindByID(ctx, "user-1", n.NotificationID)
	require.NoError(t, err)
	assert.Len(t, got.DeliveryStatus, 2)
	assert.Equal(t, domain.DeliveryPending, got.DeliveryStatus["inApp"].Status)
	assert.Equal(t, 0, got.DeliveryStatus["email"].RetryCount)

	_, err = repo.FindByID(ctx, "user-2", n.NotificationID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound), "other users cannot read it")
}

func TestNotificationRepository_ChannelStatusAndRetry(t *testing.T) {
	client := setupTestMongoDB(t)
	repo := NewNotificationRepository(client)
	ctx := context.Background()

	n := newTestNotification("user-1", domain.CategoryHRActivities, domain.PriorityMedium)
	n.Channels = append(n.Channels, domain.ChannelWebhook)
	n.DeliveryStatus = domain.NewDeliveryStatus(n.Channels)
	require.NoError(t, repo.Create(ctx, n))

	now := time.Now().UTC()
	require.NoError(t, repo.UpdateChannelStatus(ctx, n.NotificationID, domain.ChannelInApp,
		domain.ChannelDelivery{Status: domain.DeliveryDelivered, DeliveredAt: &now}))
	require.NoError(t, repo.UpdateChannelStatus(ctx, n.NotificationID, domain.ChannelWebhook,
		domain.ChannelDelivery{Status: domain.DeliveryFailed, RetryCount: 1, Error: "503"}))

	got, err := repo.FindByID(ctx, "user-1", n.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryDelivered, got.DeliveryStatus["inApp"].Status)
	assert.Equal(t, domain.DeliveryPending, got.DeliveryStatus["email"].Status)
	assert.Equal(t, "503", got.DeliveryStatus["webhook"].Error)

	failed, err := repo.GetFailedForRetry(ctx, domain.ChannelWebhook, 3)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	failed, err = repo.GetFailedForRetry(ctx, domain.ChannelWebhook, 1)
	require.NoError(t, err)
	assert.Empty(t, failed)

	pending, err := repo.GetPendingForChannel(ctx, domain.ChannelEmail, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestNotificationRepository_DigestMarkingIsIdempotent(t *testing.T) {
	client := setupTestMongoDB(t)
	repo := NewNotificationRepository(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newTestNotification("user-1", domain.CategoryReports, domain.PriorityLow)))
	}

	to := time.Now().UTC().Add(time.Minute)
	from := to.Add(-24 * time.Hour)

	items, err := repo.FindUndigested(ctx, "user-1", from, to)
	require.NoError(t, err)
	require.Len(t, items, 3)

	ids := make([]string, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.NotificationID)
	}

	marked, err := repo.MarkDigested(ctx, ids, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(3), marked)

	marked, err = repo.MarkDigested(ctx, ids, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, marked)

	items, err = repo.FindUndigested(ctx, "user-1", from, to)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestNotificationRepository_ReadArchiveSummary(t *testing.T) {
	client := setupTestMongoDB(t)
	repo := NewNotificationRepository(client)
	ctx := context.Background()

	a := newTestNotification("user-1", domain.CategoryHRActivities, domain.PriorityHigh)
	b := newTestNotification("user-1", domain.CategorySecurityAlerts, domain.PriorityCritical)
	c := newTestNotification("user-1", domain.CategoryHRActivities, domain.PriorityLow)
	for _, n := range []*domain.Notification{a, b, c} {
		require.NoError(t, repo.Create(ctx, n))
		time.Sleep(5 * time.Millisecond)
	}

	n, err := repo.MarkAsRead(ctx, "user-1", []string{a.NotificationID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, repo.Archive(ctx, "user-1", b.NotificationID))

	summary, err := repo.GetSummary(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalCount)
	assert.Equal(t, int64(2), summary.UnreadCount)
	assert.Equal(t, int64(2), summary.CountByCategory[domain.CategoryHRActivities])
	assert.Equal(t, int64(1), summary.CountByPriority[domain.PriorityCritical])
	require.NotNil(t, summary.OldestUnread)
	assert.Equal(t, b.NotificationID, summary.OldestUnread.NotificationID)

	archived := true
	page, err := repo.Find(ctx, domain.NotificationFilter{UserID: "user-1", IsArchived: &archived})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	n, err = repo.MarkAllAsRead(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	deleted, err := repo.DeleteMany(ctx, "user-1", []string{a.NotificationID, c.NotificationID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.True(t, apperrors.IsCode(repo.Delete(ctx, "user-1", a.NotificationID), apperrors.CodeNotFound))
}

func TestPreferencesRepository_Integration(t *testing.T) {
	client := setupTestMongoDB(t)
	repo := NewPreferencesRepository(client)
	ctx := context.Background()
	require.NoError(t, repo.EnsureIndexes(ctx))

	_, err := repo.GetByUserID(ctx, "user-1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	prefs := &domain.NotificationPreferences{
		UserID:      "user-1",
		Enabled:     true,
		EmailDigest: domain.EmailDigest{Enabled: true, Frequency: domain.FrequencyDaily},
	}
	require.NoError(t, repo.Create(ctx, prefs))

	dup := &domain.NotificationPreferences{UserID: "user-1", Enabled: false}
	assert.True(t, apperrors.IsCode(repo.Create(ctx, dup), apperrors.CodeConflict))

	subs, err := repo.FindDigestSubscribers(ctx, domain.FrequencyDaily)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	prefs.Enabled = false
	require.NoError(t, repo.Update(ctx, prefs))

	ids, err := repo.FindEnabledUserIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, repo.Delete(ctx, "user-1"))
}
