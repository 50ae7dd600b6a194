package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	sharedredis "github.com/vhvplatform/go-notification-orchestrator/internal/shared/redis"
)

func TestRedisJobStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("Requires Redis connection - set REDIS_TEST_ADDR")
	}

	client, err := sharedredis.NewRedisClient(addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	store := NewRedisJobStore(client, time.Minute, time.Hour)

	require.NoError(t, store.Save(ctx, &domain.EmailJobRecord{JobID: "job-it-1", State: domain.JobCompleted, Attempts: 1}))

	rec, err := store.Get(ctx, "job-it-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, rec.State)

	ttl, err := client.TTL(ctx, jobKeyPrefix+"job-it-1").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Minute)

	_, err = store.Get(ctx, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
