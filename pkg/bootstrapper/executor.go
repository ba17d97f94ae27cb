// Package bootstrapper executes the ordered steps that join a node to the
// cluster.
package bootstrapper

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Step is a single named unit of work in a bootstrap sequence.
type Step struct {
	// Name identifies the step in logs and results.
	Name string

	// Run performs the work.
	Run func(ctx context.Context) error

	// Retry, when set, retries the step on failure.
	Retry *RetryPolicy
}

// RetryPolicy retries with Fibonacci backoff plus jitter until the overall
// timeout runs out.
type RetryPolicy struct {
	// BaseDelay scales the backoff sequence (delays are 1x, 1x, 2x, 3x,
	// 5x... BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps a single backoff interval.
	MaxDelay time.Duration

	// Timeout bounds the total time spent across all attempts.
	Timeout time.Duration
}

// ExecutionResult summarizes a bootstrap sequence run.
type ExecutionResult struct {
	// RunID correlates all log lines of this run.
	RunID string

	Success    bool
	Error      string
	FailedStep string
	Duration   time.Duration
	StepCount  int
}

// Executor runs steps sequentially, aborting on the first failure.
type Executor struct {
	logger *logrus.Logger
}

// NewExecutor creates a step executor.
func NewExecutor(logger *logrus.Logger) *Executor {
	return &Executor{logger: logger}
}

// ExecuteSteps runs the steps in order. The first failure aborts the
// sequence and is reported in the result; the returned error mirrors it so
// callers can propagate directly.
func (e *Executor) ExecuteSteps(ctx context.Context, steps []Step, operation string) (*ExecutionResult, error) {
	result := &ExecutionResult{
		RunID:     uuid.NewString(),
		StepCount: len(steps),
	}
	log := e.logger.WithFields(logrus.Fields{"operation": operation, "runID": result.RunID})

	start := time.Now()
	for i, step := range steps {
		stepLog := log.WithField("step", step.Name)
		stepLog.Infof("executing step %d/%d", i+1, len(steps))

		if err := e.runStep(ctx, step); err != nil {
			result.Duration = time.Since(start)
			result.Error = err.Error()
			result.FailedStep = step.Name
			stepLog.WithError(err).Error("step failed")
			return result, fmt.Errorf("step %q: %w", step.Name, err)
		}
	}

	result.Duration = time.Since(start)
	result.Success = true
	log.WithField("duration", result.Duration).Infof("%s completed successfully", operation)

	return result, nil
}

func (e *Executor) runStep(ctx context.Context, step Step) error {
	if step.Retry == nil {
		return step.Run(ctx)
	}
	return step.Retry.Do(ctx, e.logger.WithField("step", step.Name), step.Run)
}

// Do runs fn until it succeeds, the policy timeout elapses, or the context
// is canceled. The last attempt's error is returned on expiry.
func (p *RetryPolicy) Do(ctx context.Context, log *logrus.Entry, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(p.Timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	// Fibonacci backoff: delay walks 1, 1, 2, 3, 5... times the base delay.
	prev, next := p.BaseDelay, p.BaseDelay

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		delay := next
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		} else {
			prev, next = next, prev+next
		}
		// Up to 10% jitter keeps simultaneously launched nodes from
		// hammering the API in lockstep.
		delay += time.Duration(rand.Int63n(int64(delay)/10 + 1))

		if time.Now().Add(delay).After(deadline) {
			return err
		}
		log.WithError(err).Debugf("attempt %d failed, retrying in %s", attempt, delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
}
