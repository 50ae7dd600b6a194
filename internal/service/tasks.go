package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/vhvplatform/go-notification-orchestrator/internal/metrics"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// TaskRunner runs side effects that callers do not wait for. Errors and
// panics go to the error sink instead of being dropped.
type TaskRunner struct {
	wg      conc.WaitGroup
	ctx     context.Context
	timeout time.Duration
	log     *logger.Logger
	onError func(name string, err error)
}

// NewTaskRunner creates a task runner. Each task gets a context bounded by timeout.
func NewTaskRunner(timeout time.Duration, log *logger.Logger) *TaskRunner {
	r := &TaskRunner{
		ctx:     context.Background(),
		timeout: timeout,
		log:     log,
	}
	r.onError = r.logError
	return r
}

// OnError replaces the error sink
func (r *TaskRunner) OnError(sink func(name string, err error)) {
	r.onError = sink
}

// Go runs fn in the background
func (r *TaskRunner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Go(func() {
		ctx := r.ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		var pc panics.Catcher
		var err error
		pc.Try(func() { err = fn(ctx) })
		if recovered := pc.Recovered(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered.Value)
		}
		if err != nil {
			metrics.BackgroundTaskFailures.WithLabelValues(name).Inc()
			r.onError(name, err)
		}
	})
}

// Wait blocks until every submitted task has finished
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}

func (r *TaskRunner) logError(name string, err error) {
	r.log.Error("Background task failed", "task", name, "error", err)
}
