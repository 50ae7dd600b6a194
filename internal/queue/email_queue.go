package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/metrics"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/rabbitmq"
)

// Broker is the queue transport behind the dispatch queue
type Broker interface {
	Ping() error
	DeclarePriorityQueue(name string) error
	DeclareDelayQueue(name, target string) error
	PublishWithPriority(ctx context.Context, exchange, routingKey string, body []byte, priority uint8) error
	PublishDelayed(ctx context.Context, queue string, body []byte, priority uint8, delay time.Duration) error
}

// Options tunes the dispatch queue and its worker
type Options struct {
	QueueName     string
	ProbeAttempts int
	ProbeBackoff  time.Duration
	MaxAttempts   int
	Backoff       time.Duration
	Workers       int
}

// EmailDispatchQueue submits email jobs to RabbitMQ. When the broker cannot
// be reached at construction time it sends every email directly for the
// rest of its lifetime.
type EmailDispatchQueue struct {
	broker     Broker
	sender     JobSender
	jobs       JobStore
	opts       Options
	log        *logger.Logger
	directMode atomic.Bool
}

// NewEmailDispatchQueue probes the broker and returns a queue in queued or
// direct-send mode. A nil broker selects direct-send mode.
func NewEmailDispatchQueue(ctx context.Context, broker Broker, sender JobSender, jobs JobStore, opts Options, log *logger.Logger) *EmailDispatchQueue {
	q := &EmailDispatchQueue{
		broker: broker,
		sender: sender,
		jobs:   jobs,
		opts:   opts,
		log:    log,
	}

	if err := q.probe(ctx); err != nil {
		q.directMode.Store(true)
		metrics.EmailQueueDirectMode.Set(1)
		log.Warn("Email queue unavailable, falling back to direct send", "queue", opts.QueueName, "error", err)
	} else {
		metrics.EmailQueueDirectMode.Set(0)
		log.Info("Email queue ready", "queue", opts.QueueName)
	}
	return q
}

func (q *EmailDispatchQueue) probe(ctx context.Context) error {
	if q.broker == nil {
		return fmt.Errorf("no broker configured")
	}

	attempts := q.opts.ProbeAttempts
	if attempts < 1 {
		attempts = 1
	}
	wait := q.opts.ProbeBackoff

	var err error
	for i := 1; i <= attempts; i++ {
		if err = q.broker.Ping(); err == nil {
			if err = q.declare(); err == nil {
				return nil
			}
		}
		if i == attempts {
			break
		}
		q.log.Debug("Email queue probe failed", "attempt", i, "error", err)
		if waitErr := sleepCtx(ctx, wait); waitErr != nil {
			return waitErr
		}
		wait *= 2
	}
	return fmt.Errorf("broker unreachable after %d attempts: %w", attempts, err)
}

// declare sets up the email queue and one delay queue per retry attempt.
// Every message in a delay queue carries the same expiration, so expiry
// order matches arrival order.
func (q *EmailDispatchQueue) declare() error {
	if err := q.broker.DeclarePriorityQueue(q.opts.QueueName); err != nil {
		return err
	}
	for attempt := 1; attempt < q.opts.MaxAttempts; attempt++ {
		name := RetryQueueName(q.opts.QueueName, attempt)
		if err := q.broker.DeclareDelayQueue(name, q.opts.QueueName); err != nil {
			return fmt.Errorf("declare %s: %w", name, err)
		}
	}
	return nil
}

// RetryQueueName names the delay queue holding jobs that failed the given attempt
func RetryQueueName(queue string, attempt int) string {
	return fmt.Sprintf("%s.retry.%d", queue, attempt)
}

// DirectMode reports whether the queue fell back to direct sending
func (q *EmailDispatchQueue) DirectMode() bool {
	return q.directMode.Load()
}

// QueueEmail enqueues job, or sends it synchronously in direct-send mode or
// when the enqueue fails. It never returns an error; failures are reported
// in the result.
func (q *EmailDispatchQueue) QueueEmail(ctx context.Context, job domain.EmailJob) (result domain.QueueResult) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("Email dispatch panicked", "job_id", job.ID, "panic", r)
			result = domain.QueueResult{Sent: false, Error: fmt.Sprint(r)}
		}
	}()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	if job.Priority < 1 {
		job.Priority = domain.JobPriority(domain.PriorityLow)
	}

	if q.DirectMode() {
		return q.sendDirect(ctx, &job)
	}

	if err := q.publish(ctx, &job); err != nil {
		q.log.Warn("Email enqueue failed, sending directly", "job_id", job.ID, "error", err)
		return q.sendDirect(ctx, &job)
	}

	q.saveRecord(ctx, &domain.EmailJobRecord{
		JobID:          job.ID,
		NotificationID: job.NotificationID,
		State:          domain.JobQueued,
		Attempts:       0,
	})
	metrics.EmailJobs.WithLabelValues("queued").Inc()
	q.log.Debug("Email queued", "job_id", job.ID, "priority", job.Priority)
	return domain.QueueResult{JobID: job.ID, Queued: true}
}

func (q *EmailDispatchQueue) publish(ctx context.Context, job *domain.EmailJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.broker.PublishWithPriority(ctx, "", q.opts.QueueName, body, amqpPriority(job.Priority))
}

func (q *EmailDispatchQueue) sendDirect(ctx context.Context, job *domain.EmailJob) domain.QueueResult {
	if err := q.sender.Send(ctx, job); err != nil {
		metrics.EmailJobs.WithLabelValues("direct_failed").Inc()
		q.log.Error("Direct email send failed", "job_id", job.ID, "to", job.To, "error", err)
		return domain.QueueResult{Sent: false, Error: err.Error()}
	}
	metrics.EmailJobs.WithLabelValues("direct_sent").Inc()
	return domain.QueueResult{Sent: true}
}

// JobStatus returns the retained record of a queued job
func (q *EmailDispatchQueue) JobStatus(ctx context.Context, jobID string) (*domain.EmailJobRecord, error) {
	if q.jobs == nil {
		return nil, apperrors.NewNotFoundError("email job records are not retained", nil)
	}
	return q.jobs.Get(ctx, jobID)
}

func (q *EmailDispatchQueue) saveRecord(ctx context.Context, rec *domain.EmailJobRecord) {
	if q.jobs == nil {
		return
	}
	if err := q.jobs.Save(ctx, rec); err != nil {
		q.log.Warn("Failed to save email job record", "job_id", rec.JobID, "error", err)
	}
}

// amqpPriority maps job priority (1 = most urgent) onto AMQP priority, where
// larger values are delivered first.
func amqpPriority(jobPriority int) uint8 {
	p := rabbitmq.MaxPriority - jobPriority
	if p < 0 {
		p = 0
	}
	if p > rabbitmq.MaxPriority {
		p = rabbitmq.MaxPriority
	}
	return uint8(p)
}

// Backoff returns the delay before the given retry attempt: base * 2^(attempt-1), capped at 10 minutes
func Backoff(base time.Duration, attempt int) time.Duration {
	const maxBackoff = 10 * time.Minute
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
