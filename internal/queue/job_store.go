package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
)

const jobKeyPrefix = "email_job:"

// JobStore retains email job records for a bounded time
type JobStore interface {
	Save(ctx context.Context, rec *domain.EmailJobRecord) error
	Get(ctx context.Context, jobID string) (*domain.EmailJobRecord, error)
}

// RedisJobStore keeps job records in Redis and lets key expiry garbage
// collect them: completed jobs after completedTTL, everything else after failedTTL.
type RedisJobStore struct {
	client       redis.UniversalClient
	completedTTL time.Duration
	failedTTL    time.Duration
}

// NewRedisJobStore creates a new Redis-backed job store
func NewRedisJobStore(client redis.UniversalClient, completedTTL, failedTTL time.Duration) *RedisJobStore {
	return &RedisJobStore{client: client, completedTTL: completedTTL, failedTTL: failedTTL}
}

func (s *RedisJobStore) ttlFor(state domain.JobState) time.Duration {
	if state == domain.JobCompleted {
		return s.completedTTL
	}
	return s.failedTTL
}

// Save writes rec and resets its expiry for the record's state
func (s *RedisJobStore) Save(ctx context.Context, rec *domain.EmailJobRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, jobKeyPrefix+rec.JobID, raw, s.ttlFor(rec.State)).Err()
}

// Get loads a job record; expired or unknown jobs are NOT_FOUND
func (s *RedisJobStore) Get(ctx context.Context, jobID string) (*domain.EmailJobRecord, error) {
	raw, err := s.client.Get(ctx, jobKeyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.NewNotFoundError("email job not found", err)
	}
	if err != nil {
		return nil, err
	}

	var rec domain.EmailJobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
