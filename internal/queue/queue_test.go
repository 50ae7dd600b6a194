package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/rabbitmq"
)

type published struct {
	key      string
	body     []byte
	priority uint8
	delay    time.Duration
}

type fakeBroker struct {
	mu          sync.Mutex
	pingErr     error
	publishErr  error
	pings       int
	published   []published
	delayed     []published
	delayQueues map[string]string
}

func (b *fakeBroker) Ping() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pings++
	return b.pingErr
}

func (b *fakeBroker) DeclarePriorityQueue(string) error { return nil }

func (b *fakeBroker) DeclareDelayQueue(name, target string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.delayQueues == nil {
		b.delayQueues = make(map[string]string)
	}
	b.delayQueues[name] = target
	return nil
}

func (b *fakeBroker) PublishDelayed(_ context.Context, queue string, body []byte, priority uint8, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.delayed = append(b.delayed, published{key: queue, body: body, priority: priority, delay: delay})
	return nil
}

func (b *fakeBroker) delayedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.delayed)
}

func (b *fakeBroker) PublishWithPriority(_ context.Context, _, key string, body []byte, priority uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{key: key, body: body, priority: priority})
	return nil
}

type fakeSender struct {
	mu     sync.Mutex
	err    error
	failID string
	sent   []*domain.EmailJob
}

func (s *fakeSender) Send(_ context.Context, job *domain.EmailJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, job)
	if s.failID != "" && job.ID == s.failID {
		return errors.New("421 try later")
	}
	return s.err
}

func (s *fakeSender) sentIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sent))
	for _, job := range s.sent {
		ids = append(ids, job.ID)
	}
	return ids
}

type chanConsumer struct {
	msgs chan rabbitmq.Message
}

func (c *chanConsumer) Consume(string, string) (<-chan rabbitmq.Message, error) {
	return c.msgs, nil
}

type memJobStore struct {
	mu   sync.Mutex
	recs map[string]domain.EmailJobRecord
}

func newMemJobStore() *memJobStore {
	return &memJobStore{recs: make(map[string]domain.EmailJobRecord)}
}

func (s *memJobStore) Save(_ context.Context, rec *domain.EmailJobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.JobID] = *rec
	return nil
}

func (s *memJobStore) Get(_ context.Context, id string) (*domain.EmailJobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("email job not found", nil)
	}
	return &rec, nil
}

type fakeFailures struct {
	failed map[string]string
}

func (f *fakeFailures) MarkEmailFailed(_ context.Context, id string, _ int, msg string) error {
	if f.failed == nil {
		f.failed = make(map[string]string)
	}
	f.failed[id] = msg
	return nil
}

func testOptions() Options {
	return Options{
		QueueName:     "email_jobs",
		ProbeAttempts: 3,
		ProbeBackoff:  time.Millisecond,
		MaxAttempts:   3,
		Backoff:       time.Millisecond,
		Workers:       2,
	}
}

func TestEmailDispatchQueue_Queued(t *testing.T) {
	broker := &fakeBroker{}
	sender := &fakeSender{}
	jobs := newMemJobStore()
	q := NewEmailDispatchQueue(context.Background(), broker, sender, jobs, testOptions(), logger.NewNop())
	require.False(t, q.DirectMode())

	res := q.QueueEmail(context.Background(), domain.EmailJob{
		To:       "jane@example.com",
		Template: domain.TemplateNotification,
		Priority: domain.JobPriority(domain.PriorityCritical),
	})

	assert.True(t, res.Queued)
	assert.NotEmpty(t, res.JobID)
	assert.Empty(t, sender.sent, "queued jobs are not sent inline")
	require.Len(t, broker.published, 1)
	assert.Equal(t, "email_jobs", broker.published[0].key)
	assert.Equal(t, uint8(9), broker.published[0].priority)

	var job domain.EmailJob
	require.NoError(t, json.Unmarshal(broker.published[0].body, &job))
	assert.Equal(t, 1, job.Attempt)

	rec, err := q.JobStatus(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, rec.State)
}

func TestEmailDispatchQueue_DirectModeWhenProbeFails(t *testing.T) {
	broker := &fakeBroker{pingErr: errors.New("connection refused")}
	sender := &fakeSender{}
	q := NewEmailDispatchQueue(context.Background(), broker, sender, nil, testOptions(), logger.NewNop())

	assert.True(t, q.DirectMode())
	assert.Equal(t, 3, broker.pings, "probe retries a bounded number of times")

	res := q.QueueEmail(context.Background(), domain.EmailJob{To: "jane@example.com"})
	assert.True(t, res.Sent)
	assert.False(t, res.Queued)
	assert.Len(t, sender.sent, 1)

	broker.pingErr = nil
	res = q.QueueEmail(context.Background(), domain.EmailJob{To: "jane@example.com"})
	assert.True(t, res.Sent, "direct mode is permanent")
	assert.Empty(t, broker.published)
}

func TestEmailDispatchQueue_NilBroker(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp down")}
	q := NewEmailDispatchQueue(context.Background(), nil, sender, nil, testOptions(), logger.NewNop())

	res := q.QueueEmail(context.Background(), domain.EmailJob{To: "jane@example.com"})
	assert.True(t, q.DirectMode())
	assert.False(t, res.Sent)
	assert.Equal(t, "smtp down", res.Error)

	_, err := q.JobStatus(context.Background(), "any")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestEmailDispatchQueue_PublishFailureFallsBack(t *testing.T) {
	broker := &fakeBroker{}
	sender := &fakeSender{}
	q := NewEmailDispatchQueue(context.Background(), broker, sender, nil, testOptions(), logger.NewNop())

	broker.publishErr = errors.New("channel closed")
	res := q.QueueEmail(context.Background(), domain.EmailJob{To: "jane@example.com"})

	assert.True(t, res.Sent)
	assert.False(t, q.DirectMode(), "a single publish failure does not switch modes")
}

func TestEmailWorker_Process(t *testing.T) {
	newJob := func(attempt int) []byte {
		raw, _ := json.Marshal(domain.EmailJob{ID: "job-1", NotificationID: "n-1", To: "jane@example.com", Attempt: attempt, Priority: 2})
		return raw
	}

	t.Run("success", func(t *testing.T) {
		jobs := newMemJobStore()
		w := NewEmailWorker(nil, &fakeBroker{}, &fakeSender{}, jobs, &fakeFailures{}, testOptions(), logger.NewNop())

		assert.Equal(t, dispositionAck, w.process(context.Background(), newJob(1)))
		assert.Equal(t, domain.JobCompleted, jobs.recs["job-1"].State)
	})

	t.Run("retry parks the next attempt in the delay queue", func(t *testing.T) {
		broker := &fakeBroker{}
		jobs := newMemJobStore()
		opts := testOptions()
		opts.Backoff = time.Hour
		w := NewEmailWorker(nil, broker, &fakeSender{err: errors.New("421 try later")}, jobs, &fakeFailures{}, opts, logger.NewNop())

		start := time.Now()
		assert.Equal(t, dispositionAck, w.process(context.Background(), newJob(2)))
		assert.Less(t, time.Since(start), time.Second, "the backoff is not slept in the worker")

		assert.Empty(t, broker.published)
		require.Len(t, broker.delayed, 1)
		assert.Equal(t, "email_jobs.retry.2", broker.delayed[0].key)
		assert.Equal(t, 2*time.Hour, broker.delayed[0].delay)
		assert.Equal(t, uint8(8), broker.delayed[0].priority)

		var next domain.EmailJob
		require.NoError(t, json.Unmarshal(broker.delayed[0].body, &next))
		assert.Equal(t, 3, next.Attempt)
		assert.Equal(t, domain.JobRetrying, jobs.recs["job-1"].State)
	})

	t.Run("final attempt marks delivery failed", func(t *testing.T) {
		broker := &fakeBroker{}
		jobs := newMemJobStore()
		failures := &fakeFailures{}
		w := NewEmailWorker(nil, broker, &fakeSender{err: errors.New("550 no such user")}, jobs, failures, testOptions(), logger.NewNop())

		assert.Equal(t, dispositionAck, w.process(context.Background(), newJob(3)))
		assert.Empty(t, broker.delayed)
		assert.Equal(t, domain.JobFailed, jobs.recs["job-1"].State)
		assert.Equal(t, "550 no such user", failures.failed["n-1"])
	})

	t.Run("malformed payload is rejected", func(t *testing.T) {
		w := NewEmailWorker(nil, &fakeBroker{}, &fakeSender{}, nil, nil, testOptions(), logger.NewNop())
		assert.Equal(t, dispositionReject, w.process(context.Background(), []byte("{")))
	})

	t.Run("republish failure requeues", func(t *testing.T) {
		broker := &fakeBroker{publishErr: errors.New("closed")}
		w := NewEmailWorker(nil, broker, &fakeSender{err: errors.New("timeout")}, nil, nil, testOptions(), logger.NewNop())
		assert.Equal(t, dispositionRequeue, w.process(context.Background(), newJob(1)))
	})
}

func TestEmailWorker_FailingJobDoesNotHoldWorker(t *testing.T) {
	opts := testOptions()
	opts.Workers = 1
	opts.Backoff = time.Hour
	broker := &fakeBroker{}
	sender := &fakeSender{failID: "job-slow"}
	consumer := &chanConsumer{msgs: make(chan rabbitmq.Message)}
	w := NewEmailWorker(consumer, broker, sender, nil, nil, opts, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, id := range []string{"job-slow", "job-next"} {
		raw, err := json.Marshal(domain.EmailJob{ID: id, To: "jane@example.com", Attempt: 1})
		require.NoError(t, err)
		consumer.msgs <- rabbitmq.Message{Body: raw}
	}

	require.Eventually(t, func() bool {
		return len(sender.sentIDs()) == 2 && broker.delayedCount() == 1
	}, 2*time.Second, 10*time.Millisecond, "the second job runs while the first waits out its backoff")
	assert.Equal(t, []string{"job-slow", "job-next"}, sender.sentIDs())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestEmailDispatchQueue_DeclaresDelayQueuePerRetry(t *testing.T) {
	broker := &fakeBroker{}
	q := NewEmailDispatchQueue(context.Background(), broker, &fakeSender{}, nil, testOptions(), logger.NewNop())
	require.False(t, q.DirectMode())

	assert.Equal(t, map[string]string{
		"email_jobs.retry.1": "email_jobs",
		"email_jobs.retry.2": "email_jobs",
	}, broker.delayQueues, "the final attempt has no retry")
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(2*time.Second, 1))
	assert.Equal(t, 4*time.Second, Backoff(2*time.Second, 2))
	assert.Equal(t, 8*time.Second, Backoff(2*time.Second, 3))
	assert.Equal(t, 10*time.Minute, Backoff(time.Minute, 20))
}

func TestAmqpPriority(t *testing.T) {
	assert.Equal(t, uint8(9), amqpPriority(1))
	assert.Equal(t, uint8(6), amqpPriority(4))
	assert.Equal(t, uint8(0), amqpPriority(50))
	assert.Equal(t, uint8(10), amqpPriority(-3))
}

func TestRedisJobStore_TTLByState(t *testing.T) {
	s := NewRedisJobStore(nil, time.Hour, 24*time.Hour)
	assert.Equal(t, time.Hour, s.ttlFor(domain.JobCompleted))
	assert.Equal(t, 24*time.Hour, s.ttlFor(domain.JobFailed))
	assert.Equal(t, 24*time.Hour, s.ttlFor(domain.JobQueued))
}
