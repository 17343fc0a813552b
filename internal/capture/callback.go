package capture

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"ctsharness/internal/collector"
	"ctsharness/internal/logging"
	"ctsharness/internal/metrics"
)

const DefaultResultTimeout = 3 * time.Second

var ErrNoRequests = errors.New("at least one capture request is required")

type Options struct {
	// Name prefixes the queue names used for metrics and logs.
	Name          string
	ResultTimeout time.Duration
	Registry      *metrics.Registry
	Logger        *logging.Logger
}

// Callback turns capture lifecycle notifications, delivered on producer
// goroutines, into blocking queries for a test body. Each notification kind
// has its own queue; there is no ordering between queues.
type Callback struct {
	results   *collector.Queue[Result]
	failures  *collector.Queue[Failure]
	lost      *collector.Queue[BufferLost]
	aborted   *collector.Queue[int]
	started   *collector.Queue[Started]
	sequences *collector.Queue[SequenceCompleted]

	frames  atomic.Int64
	timeout time.Duration
	logger  *logging.Logger
}

func NewCallback(opts Options) *Callback {
	if opts.Name == "" {
		opts.Name = "capture"
	}
	if opts.ResultTimeout <= 0 {
		opts.ResultTimeout = DefaultResultTimeout
	}
	logger := opts.Logger.Component("capture")
	return &Callback{
		results:   newQueue[Result](opts, "results"),
		failures:  newQueue[Failure](opts, "failures"),
		lost:      newQueue[BufferLost](opts, "buffers_lost"),
		aborted:   newQueue[int](opts, "sequences_aborted"),
		started:   newQueue[Started](opts, "started"),
		sequences: newQueue[SequenceCompleted](opts, "sequences_completed"),
		timeout:   opts.ResultTimeout,
		logger:    logger,
	}
}

func newQueue[T any](opts Options, kind string) *collector.Queue[T] {
	return collector.NewQueue(collector.Options[T]{
		Name:     opts.Name + "." + kind,
		Registry: opts.Registry,
		Logger:   opts.Logger,
	})
}

func (c *Callback) OnCaptureStarted(request Request, timestamp, frameNumber int64) error {
	return c.started.Push(Started{Request: request, Timestamp: timestamp, FrameNumber: frameNumber})
}

func (c *Callback) OnCaptureCompleted(result Result) error {
	if err := c.results.Push(result); err != nil {
		return err
	}
	c.frames.Add(1)
	return nil
}

func (c *Callback) OnCaptureFailed(failure Failure) error {
	return c.failures.Push(failure)
}

func (c *Callback) OnSequenceCompleted(sequenceID int, lastFrameNumber int64) error {
	return c.sequences.Push(SequenceCompleted{SequenceID: sequenceID, LastFrameNumber: lastFrameNumber})
}

func (c *Callback) OnSequenceAborted(sequenceID int) error {
	return c.aborted.Push(sequenceID)
}

func (c *Callback) OnBufferLost(request Request, target string, frameNumber int64) error {
	return c.lost.Push(BufferLost{Request: request, Target: target, FrameNumber: frameNumber})
}

// TotalFrames counts completed results since creation or the last Drain.
func (c *Callback) TotalFrames() int64 {
	return c.frames.Load()
}

func (c *Callback) Result(timeout time.Duration) (Result, error) {
	return c.results.Pop(timeout)
}

// ResultForTimestamp skips results until one carries timestamp, within one
// overall budget.
func (c *Callback) ResultForTimestamp(timestamp int64, budget time.Duration) (Result, error) {
	return c.results.PopMatchingWithin(func(result Result) bool {
		return result.Timestamp == timestamp
	}, budget)
}

func (c *Callback) ResultForRequest(request Request, budget time.Duration) (Result, error) {
	results, err := c.ResultsForRequests([]Request{request}, budget)
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// ResultsForRequests waits, within one overall budget, for a result for each
// listed request. A request listed twice needs two results. Results for
// requests that are not listed are discarded. The returned slice lines up
// with requests.
func (c *Callback) ResultsForRequests(requests []Request, budget time.Duration) ([]Result, error) {
	if len(requests) == 0 {
		return nil, ErrNoRequests
	}
	keys := make([]string, len(requests))
	for index, request := range requests {
		keys[index] = request.ID
	}
	results, err := collector.AwaitCounts(c.results, keys, func(result Result) string {
		return result.Request.ID
	}, budget)
	if err != nil {
		return nil, fmt.Errorf("results for %d request(s): %w", len(requests), err)
	}
	return results, nil
}

// Failures returns up to max failures, stopping early when a wait times out.
func (c *Callback) Failures(max int) ([]Failure, error) {
	return c.failures.PopN(max, c.timeout)
}

func (c *Callback) LostBuffers(max int) ([]BufferLost, error) {
	return c.lost.PopN(max, c.timeout)
}

func (c *Callback) AbortedSequences(max int) ([]int, error) {
	return c.aborted.PopN(max, c.timeout)
}

// WaitForCaptureStart examines at most maxStarts start notifications for the
// one matching request and timestamp. maxStarts counts every examined start,
// the matching one included.
func (c *Callback) WaitForCaptureStart(request Request, timestamp int64, maxStarts int) error {
	if maxStarts <= 0 {
		maxStarts = 1
	}
	_, err := c.started.PopMatching(func(started Started) bool {
		return started.Request.ID == request.ID && started.Timestamp == timestamp
	}, maxStarts, c.timeout)
	if err != nil {
		return fmt.Errorf("capture start for request %s at %d: %w", request.ID, timestamp, err)
	}
	return nil
}

func (c *Callback) SequenceLastFrameNumber(sequenceID int, budget time.Duration) (int64, error) {
	completed, err := c.sequences.PopMatchingWithin(func(completed SequenceCompleted) bool {
		return completed.SequenceID == sequenceID
	}, budget)
	if err != nil {
		return 0, fmt.Errorf("sequence %d completion: %w", sequenceID, err)
	}
	return completed.LastFrameNumber, nil
}

// CaptureStartTimestamps returns the timestamps of the next count starts.
// A non-positive count returns an empty list.
func (c *Callback) CaptureStartTimestamps(count int) ([]int64, error) {
	timestamps := make([]int64, 0, max(count, 0))
	for len(timestamps) < count {
		started, err := c.started.Pop(c.timeout)
		if err != nil {
			return timestamps, err
		}
		timestamps = append(timestamps, started.Timestamp)
	}
	return timestamps, nil
}

func (c *Callback) HasMoreResults() bool {
	return c.results.HasMore()
}

func (c *Callback) HasMoreFailures() bool {
	return c.failures.HasMore()
}

func (c *Callback) LostBufferCount() int {
	return c.lost.Len()
}

func (c *Callback) HasMoreAbortedSequences() bool {
	return c.aborted.HasMore()
}

// Drain empties every queue and resets the frame counter.
func (c *Callback) Drain() {
	drained := c.results.Drain() + c.failures.Drain() + c.lost.Drain() +
		c.aborted.Drain() + c.started.Drain() + c.sequences.Drain()
	c.frames.Store(0)
	if drained > 0 {
		c.logger.Debug("drained capture callback", map[string]string{"events": fmt.Sprint(drained)})
	}
}

func (c *Callback) Close() {
	c.results.Close()
	c.failures.Close()
	c.lost.Close()
	c.aborted.Close()
	c.started.Close()
	c.sequences.Close()
}
