package queue

import (
	"context"
	"encoding/json"

	"github.com/sourcegraph/conc/pool"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/metrics"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/rabbitmq"
)

// Consumer delivers queued messages
type Consumer interface {
	Consume(queue, consumerTag string) (<-chan rabbitmq.Message, error)
}

// FailureRecorder is told when a notification's email could not be sent after all attempts
type FailureRecorder interface {
	MarkEmailFailed(ctx context.Context, notificationID string, attempts int, errMsg string) error
}

type disposition int

const (
	dispositionAck disposition = iota
	dispositionReject
	dispositionRequeue
)

// EmailWorker consumes the email queue and sends jobs. A failed attempt is
// acked and parked in a per-attempt delay queue for its exponential backoff,
// so no worker slot is held while a job waits.
type EmailWorker struct {
	consumer Consumer
	broker   Broker
	sender   JobSender
	jobs     JobStore
	failures FailureRecorder
	opts     Options
	log      *logger.Logger
}

// NewEmailWorker creates a new email worker
func NewEmailWorker(consumer Consumer, broker Broker, sender JobSender, jobs JobStore, failures FailureRecorder, opts Options, log *logger.Logger) *EmailWorker {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &EmailWorker{
		consumer: consumer,
		broker:   broker,
		sender:   sender,
		jobs:     jobs,
		failures: failures,
		opts:     opts,
		log:      log,
	}
}

// Run consumes until ctx is cancelled or the delivery channel closes
func (w *EmailWorker) Run(ctx context.Context) error {
	msgs, err := w.consumer.Consume(w.opts.QueueName, "email-worker")
	if err != nil {
		return err
	}
	w.log.Info("Email worker started", "queue", w.opts.QueueName, "workers", w.opts.Workers)

	p := pool.New().WithMaxGoroutines(w.opts.Workers)
	defer p.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				w.log.Warn("Email queue delivery channel closed")
				return nil
			}
			p.Go(func() {
				w.settle(msg, w.process(ctx, msg.Body))
			})
		}
	}
}

func (w *EmailWorker) settle(msg rabbitmq.Message, d disposition) {
	var err error
	switch d {
	case dispositionAck:
		err = msg.Ack(false)
	case dispositionReject:
		err = msg.Nack(false, false)
	case dispositionRequeue:
		err = msg.Nack(false, true)
	}
	if err != nil {
		w.log.Error("Failed to settle email job message", "error", err)
	}
}

func (w *EmailWorker) process(ctx context.Context, body []byte) disposition {
	var job domain.EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.log.Error("Dropping malformed email job", "error", err)
		return dispositionReject
	}
	if job.Attempt < 1 {
		job.Attempt = 1
	}

	sendErr := w.sender.Send(ctx, &job)
	if sendErr == nil {
		w.save(ctx, &job, domain.JobCompleted, "")
		metrics.EmailJobs.WithLabelValues("completed").Inc()
		w.log.Debug("Email job completed", "job_id", job.ID, "attempt", job.Attempt)
		return dispositionAck
	}

	if job.Attempt >= w.opts.MaxAttempts {
		w.save(ctx, &job, domain.JobFailed, sendErr.Error())
		metrics.EmailJobs.WithLabelValues("failed").Inc()
		w.log.Error("Email job failed permanently", "job_id", job.ID, "attempts", job.Attempt, "error", sendErr)
		if job.NotificationID != "" && w.failures != nil {
			if err := w.failures.MarkEmailFailed(ctx, job.NotificationID, job.Attempt, sendErr.Error()); err != nil {
				w.log.Error("Failed to record email delivery failure", "notification_id", job.NotificationID, "error", err)
			}
		}
		return dispositionAck
	}

	delay := Backoff(w.opts.Backoff, job.Attempt)
	w.log.Warn("Email job failed, scheduling retry", "job_id", job.ID, "attempt", job.Attempt, "backoff", delay, "error", sendErr)

	w.save(ctx, &job, domain.JobRetrying, sendErr.Error())
	retryQueue := RetryQueueName(w.opts.QueueName, job.Attempt)
	job.Attempt++
	raw, err := json.Marshal(&job)
	if err != nil {
		return dispositionReject
	}
	// the delay queue dead-letters the job back onto the email queue after delay
	if err := w.broker.PublishDelayed(ctx, retryQueue, raw, amqpPriority(job.Priority), delay); err != nil {
		w.log.Error("Failed to schedule email job retry", "job_id", job.ID, "queue", retryQueue, "error", err)
		return dispositionRequeue
	}
	metrics.EmailJobs.WithLabelValues("retried").Inc()
	return dispositionAck
}

func (w *EmailWorker) save(ctx context.Context, job *domain.EmailJob, state domain.JobState, errMsg string) {
	if w.jobs == nil {
		return
	}
	rec := &domain.EmailJobRecord{
		JobID:          job.ID,
		NotificationID: job.NotificationID,
		State:          state,
		Attempts:       job.Attempt,
		Error:          errMsg,
	}
	if err := w.jobs.Save(ctx, rec); err != nil {
		w.log.Warn("Failed to save email job record", "job_id", job.ID, "error", err)
	}
}
