package bootstrapper

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestExecuteStepsRunsInOrder(t *testing.T) {
	t.Parallel()

	var order []string
	record := func(name string) Step {
		return Step{Name: name, Run: func(context.Context) error {
			order = append(order, name)
			return nil
		}}
	}

	result, err := NewExecutor(discardLogger()).ExecuteSteps(context.Background(), []Step{
		record("one"), record("two"), record("three"),
	}, "test")
	if err != nil {
		t.Fatalf("ExecuteSteps() error = %v", err)
	}

	if !result.Success {
		t.Error("result.Success = false, want true")
	}
	if result.StepCount != 3 {
		t.Errorf("result.StepCount = %d, want 3", result.StepCount)
	}
	if result.RunID == "" {
		t.Error("result.RunID is empty")
	}

	want := []string{"one", "two", "three"}
	if len(order) != len(want) {
		t.Fatalf("executed %d steps, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestExecuteStepsAbortsOnFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	ran := false

	result, err := NewExecutor(discardLogger()).ExecuteSteps(context.Background(), []Step{
		{Name: "ok", Run: func(context.Context) error { return nil }},
		{Name: "fails", Run: func(context.Context) error { return boom }},
		{Name: "never", Run: func(context.Context) error { ran = true; return nil }},
	}, "test")

	if !errors.Is(err, boom) {
		t.Fatalf("ExecuteSteps() error = %v, want wrapped %v", err, boom)
	}
	if result.Success {
		t.Error("result.Success = true, want false")
	}
	if result.FailedStep != "fails" {
		t.Errorf("result.FailedStep = %q, want %q", result.FailedStep, "fails")
	}
	if result.Error != "boom" {
		t.Errorf("result.Error = %q, want %q", result.Error, "boom")
	}
	if ran {
		t.Error("step after a failure was executed")
	}
}

func TestRetryPolicyEventuallySucceeds(t *testing.T) {
	t.Parallel()

	policy := &RetryPolicy{
		BaseDelay: time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Timeout:   5 * time.Second,
	}

	attempts := 0
	err := policy.Do(context.Background(), discardLogger().WithField("t", t.Name()), func(context.Context) error {
		attempts++
		if attempts < 4 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
}

func TestRetryPolicyGivesUpAtTimeout(t *testing.T) {
	t.Parallel()

	policy := &RetryPolicy{
		BaseDelay: 2 * time.Millisecond,
		MaxDelay:  5 * time.Millisecond,
		Timeout:   30 * time.Millisecond,
	}

	persistent := errors.New("still broken")
	start := time.Now()
	err := policy.Do(context.Background(), discardLogger().WithField("t", t.Name()), func(context.Context) error {
		return persistent
	})
	if !errors.Is(err, persistent) {
		t.Fatalf("Do() error = %v, want %v", err, persistent)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do() took %s, expected to give up near the 30ms timeout", elapsed)
	}
}

func TestRetryPolicyHonorsContextCancel(t *testing.T) {
	t.Parallel()

	policy := &RetryPolicy{
		BaseDelay: 50 * time.Millisecond,
		Timeout:   10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	failing := errors.New("nope")
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, discardLogger().WithField("t", t.Name()), func(context.Context) error {
		return failing
	})
	if !errors.Is(err, failing) {
		t.Fatalf("Do() error = %v, want last attempt error %v", err, failing)
	}
}
