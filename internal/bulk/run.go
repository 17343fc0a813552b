package bulk

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"ctsharness/internal/logging"
	"ctsharness/internal/metrics"

	"golang.org/x/sync/errgroup"
)

var ErrInvalidJob = errors.New("invalid bulk job")

// Job describes Total independent units of work. Units are numbered 1..Total.
type Job struct {
	Name string
	// Total is the number of units to run.
	Total int
	// Workers defaults to GOMAXPROCS.
	Workers int
	// MaxDuration is checked between units; 0 means no deadline.
	MaxDuration time.Duration
	// ProgressEvery logs progress each time that many units complete.
	ProgressEvery int
	Do            func(ctx context.Context, index int) error

	Registry *metrics.Registry
	Logger   *logging.Logger
}

type Result struct {
	Completed int
	Elapsed   time.Duration
	TimedOut  bool
}

// RunTimeBoxed runs job with workers that claim ascending unit indices from a
// shared counter. Workers stop claiming when the deadline passes, so a
// timed-out run still returns normally with the units it finished. The
// first unit error cancels the remaining workers and is returned.
func RunTimeBoxed(ctx context.Context, job Job) (Result, error) {
	var next atomic.Int64
	return run(ctx, job, func() (int, bool) {
		index := next.Add(1)
		if index > int64(job.Total) {
			next.Add(-1)
			return 0, false
		}
		return int(index), true
	})
}

// RunCountdown is RunTimeBoxed with indices claimed from Total down to 1.
func RunCountdown(ctx context.Context, job Job) (Result, error) {
	var next atomic.Int64
	next.Store(int64(job.Total))
	return run(ctx, job, func() (int, bool) {
		index := next.Add(-1) + 1
		if index <= 0 {
			next.Add(1)
			return 0, false
		}
		return int(index), true
	})
}

func run(ctx context.Context, job Job, claim func() (int, bool)) (Result, error) {
	if job.Do == nil || job.Total < 0 {
		return Result{}, fmt.Errorf("%w: %q needs a non-negative total and a unit function", ErrInvalidJob, job.Name)
	}
	if job.Name == "" {
		job.Name = "bulk"
	}
	workers := job.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	registry := job.Registry
	if registry == nil {
		registry = metrics.Default
	}
	logger := job.Logger.With(map[string]string{"batch": job.Name})

	box := NewTimeBox(job.MaxDuration)
	var completed atomic.Int64
	var timedOut atomic.Bool

	group, groupCtx := errgroup.WithContext(ctx)
	for worker := 0; worker < workers; worker++ {
		group.Go(func() error {
			for {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				if box.Expired() {
					timedOut.Store(true)
					return nil
				}
				index, ok := claim()
				if !ok {
					return nil
				}
				if err := job.Do(groupCtx, index); err != nil {
					return fmt.Errorf("%s unit %d: %w", job.Name, index, err)
				}
				done := completed.Add(1)
				if job.ProgressEvery > 0 && done%int64(job.ProgressEvery) == 0 {
					logger.Info("bulk progress", map[string]string{
						"completed": strconv.FormatInt(done, 10),
						"elapsed":   box.Elapsed().String(),
					})
				}
			}
		})
	}
	err := group.Wait()

	result := Result{
		Completed: int(completed.Load()),
		Elapsed:   box.Elapsed(),
		TimedOut:  timedOut.Load(),
	}
	registry.RecordBatch(job.Name, result.Completed, result.Elapsed, result.TimedOut)
	fields := map[string]string{
		"completed": strconv.Itoa(result.Completed),
		"total":     strconv.Itoa(job.Total),
		"elapsed":   result.Elapsed.String(),
	}
	switch {
	case err != nil:
		fields["error"] = err.Error()
		logger.Error("bulk job failed", fields)
	case result.TimedOut:
		logger.Warn("bulk job ran out of time", fields)
	default:
		logger.Info("bulk job finished", fields)
	}
	return result, err
}
