// Package scheduler fires the periodic digest runs and the failed delivery
// retry sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/service"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// DigestRunner runs one digest for a frequency
type DigestRunner interface {
	RunDigest(ctx context.Context, freq domain.DigestFrequency) (*domain.DigestRunResult, error)
}

// RetrySweeper retries failed channel deliveries
type RetrySweeper interface {
	Sweep(ctx context.Context) (*service.RetrySweepResult, error)
}

// Config describes when each job fires
type Config struct {
	Hourly         cron.Schedule
	Daily          cron.Schedule
	Weekly         cron.Schedule
	RetrySweepSpec string
	RunTimeout     time.Duration
}

// DigestScheduler triggers digest runs and the retry sweep on their schedules.
// A job that is still running when it fires again is skipped, so runs of
// one frequency never overlap within this process.
type DigestScheduler struct {
	cron    *cron.Cron
	digests DigestRunner
	sweeper RetrySweeper
	timeout time.Duration
	log     *logger.Logger
	entries map[string]cron.EntryID
}

// NewDigestScheduler registers the digest jobs and, when sweeper is set, the retry sweep
func NewDigestScheduler(cfg Config, digests DigestRunner, sweeper RetrySweeper, log *logger.Logger) (*DigestScheduler, error) {
	cl := cronLogger{log: log}
	s := &DigestScheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		digests: digests,
		sweeper: sweeper,
		timeout: cfg.RunTimeout,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}

	for freq, sched := range map[domain.DigestFrequency]cron.Schedule{
		domain.FrequencyHourly: cfg.Hourly,
		domain.FrequencyDaily:  cfg.Daily,
		domain.FrequencyWeekly: cfg.Weekly,
	} {
		if sched == nil {
			continue
		}
		s.entries[string(freq)] = s.cron.Schedule(sched, cron.FuncJob(func() {
			s.runDigest(freq)
		}))
	}

	if sweeper != nil && cfg.RetrySweepSpec != "" {
		id, err := s.cron.AddFunc(cfg.RetrySweepSpec, s.runSweep)
		if err != nil {
			return nil, fmt.Errorf("invalid retry sweep schedule %q: %w", cfg.RetrySweepSpec, err)
		}
		s.entries["retry"] = id
	}
	return s, nil
}

// Start starts the scheduler
func (s *DigestScheduler) Start() {
	s.cron.Start()
	for name, id := range s.entries {
		s.log.Info("Registered schedule", "job", name, "next", s.cron.Entry(id).Next)
	}
	s.log.Info("Digest scheduler started", "jobs", len(s.entries))
}

// Stop stops the scheduler and waits for running jobs until ctx is done
func (s *DigestScheduler) Stop(ctx context.Context) {
	s.log.Info("Stopping digest scheduler")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("Digest scheduler stopped with jobs still running")
	}
}

// NextRun returns the next firing time of a job, or zero if it is not scheduled
func (s *DigestScheduler) NextRun(job string) time.Time {
	id, ok := s.entries[job]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// RunNow runs the digest for freq immediately, outside the schedule
func (s *DigestScheduler) RunNow(ctx context.Context, freq domain.DigestFrequency) (*domain.DigestRunResult, error) {
	s.log.Info("Manual digest run", "frequency", freq)
	return s.digests.RunDigest(ctx, freq)
}

func (s *DigestScheduler) runDigest(freq domain.DigestFrequency) {
	ctx, cancel := s.jobContext()
	defer cancel()

	if _, err := s.digests.RunDigest(ctx, freq); err != nil {
		s.log.Error("Scheduled digest failed", "frequency", freq, "error", err)
	}
}

func (s *DigestScheduler) runSweep() {
	ctx, cancel := s.jobContext()
	defer cancel()

	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.log.Error("Retry sweep failed", "error", err)
	}
}

func (s *DigestScheduler) jobContext() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(context.Background(), s.timeout)
	}
	return context.WithCancel(context.Background())
}

// cronLogger adapts the service logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
