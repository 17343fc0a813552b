package collector

import (
	"strconv"
	"sync"
	"time"

	"ctsharness/internal/buffer"
	"ctsharness/internal/logging"
	"ctsharness/internal/metrics"
)

type State int

const (
	StateArmed State = iota
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Releaser is implemented by events that own an external resource.
type Releaser interface {
	Release()
}

type Options[T any] struct {
	Name string
	// Capacity bounds the queue; 0 means unbounded. A full bounded queue
	// evicts its oldest event on push.
	Capacity int
	// Release overrides Releaser for events that own a resource.
	Release  func(T)
	Registry *metrics.Registry
	Logger   *logging.Logger
}

// Queue is a FIFO fed by callbacks on arbitrary goroutines and drained by
// consumers through timeout-bounded waits.
type Queue[T any] struct {
	mu      sync.Mutex
	ring    *buffer.Ring[T]
	items   []T
	head    int
	waiters []chan struct{}
	active  int
	closed  bool

	name     string
	release  func(T)
	registry *metrics.Registry
	logger   *logging.Logger
}

func NewQueue[T any](opts Options[T]) *Queue[T] {
	queue := &Queue[T]{
		name:     opts.Name,
		release:  opts.Release,
		registry: opts.Registry,
		logger:   opts.Logger,
	}
	if opts.Capacity > 0 {
		queue.ring = buffer.NewRing[T](opts.Capacity)
	}
	if queue.registry == nil {
		queue.registry = metrics.Default
	}
	if queue.logger != nil {
		queue.logger = queue.logger.With(map[string]string{"queue": queue.Name()})
	}
	return queue
}

func (q *Queue[T]) Name() string {
	if q.name == "" {
		return "collector"
	}
	return q.name
}

// Push enqueues event without blocking. On a bounded queue at capacity the
// oldest event is evicted and released. Pushing after Close releases event
// and returns ErrClosed.
func (q *Queue[T]) Push(event T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.registry.IncRejected(q.Name())
		q.logger.Error("push after close", nil)
		q.releaseAll([]T{event})
		return ErrClosed
	}

	var evicted T
	dropped := false
	if q.ring != nil {
		evicted, dropped = q.ring.Push(event)
	} else {
		q.items = append(q.items, event)
	}
	q.signalOneLocked()
	q.mu.Unlock()

	q.registry.IncPushed(q.Name())
	if dropped {
		q.registry.IncDropped(q.Name())
		q.logger.Warn("event dropped", map[string]string{"policy": "drop-oldest"})
		q.releaseAll([]T{evicted})
	}
	return nil
}

// Pop returns the oldest event, waiting up to timeout for one to arrive.
func (q *Queue[T]) Pop(timeout time.Duration) (T, error) {
	event, ok, err := q.popUntil(time.Now().Add(timeout))
	if err != nil {
		return event, err
	}
	if !ok {
		return event, q.timeout(&TimeoutError{Queue: q.Name(), Timeout: timeout})
	}
	return event, nil
}

// PopMatching pops up to maxAttempts events, each wait bounded by timeout,
// and returns the first that satisfies match. Events that do not match are
// released and dropped. maxAttempts <= 0 keeps popping until a single wait
// times out.
func (q *Queue[T]) PopMatching(match func(T) bool, maxAttempts int, timeout time.Duration) (T, error) {
	var zero T
	for attempt := 0; maxAttempts <= 0 || attempt < maxAttempts; attempt++ {
		event, ok, err := q.popUntil(time.Now().Add(timeout))
		if err != nil {
			return zero, err
		}
		if !ok {
			return zero, q.timeout(&TimeoutError{Queue: q.Name(), Timeout: timeout, Attempts: attempt + 1})
		}
		if match == nil || match(event) {
			return event, nil
		}
		q.discard(event)
	}
	return zero, q.timeout(&TimeoutError{Queue: q.Name(), Timeout: timeout, Attempts: maxAttempts})
}

// PopMatchingWithin is PopMatching bounded by one overall budget instead of
// an attempt count.
func (q *Queue[T]) PopMatchingWithin(match func(T) bool, budget time.Duration) (T, error) {
	var zero T
	deadline := time.Now().Add(budget)
	for {
		event, ok, err := q.popUntil(deadline)
		if err != nil {
			return zero, err
		}
		if !ok {
			return zero, q.timeout(&TimeoutError{Queue: q.Name(), Timeout: budget})
		}
		if match == nil || match(event) {
			return event, nil
		}
		q.discard(event)
	}
}

// PopN collects up to n events, each wait bounded by timeout. It stops at the
// first wait that times out and returns what it has, without error. A
// non-positive n returns an empty list.
func (q *Queue[T]) PopN(n int, timeout time.Duration) ([]T, error) {
	events := make([]T, 0, max(n, 0))
	for len(events) < n {
		event, ok, err := q.popUntil(time.Now().Add(timeout))
		if err != nil {
			return events, err
		}
		if !ok {
			break
		}
		events = append(events, event)
	}
	return events, nil
}

// Drain removes and releases every buffered event. It never blocks.
func (q *Queue[T]) Drain() int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.active++
	events := q.takeAllLocked()
	q.mu.Unlock()

	q.releaseAll(events)

	q.mu.Lock()
	q.active--
	q.mu.Unlock()
	return len(events)
}

// Close rejects further pushes, releases buffered events and wakes every
// waiter, which then returns ErrClosed. Close is idempotent.
func (q *Queue[T]) Close() int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.closed = true
	events := q.takeAllLocked()
	for _, waiter := range q.waiters {
		signal(waiter)
	}
	q.waiters = nil
	q.mu.Unlock()

	q.releaseAll(events)
	return len(events)
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *Queue[T]) HasMore() bool {
	return q.Len() > 0
}

// ExpectEmpty fails with an UnexpectedEventError when any event is buffered.
func (q *Queue[T]) ExpectEmpty() error {
	if count := q.Len(); count > 0 {
		return &UnexpectedEventError{Queue: q.Name(), Count: count}
	}
	return nil
}

// ExpectNoneWithin waits up to d and fails with an UnexpectedEventError if
// any event is buffered or arrives meanwhile. The event is released.
func (q *Queue[T]) ExpectNoneWithin(d time.Duration) error {
	event, ok, err := q.popUntil(time.Now().Add(d))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	count := 1 + q.Len()
	q.discard(event)
	return &UnexpectedEventError{Queue: q.Name(), Count: count}
}

func (q *Queue[T]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.closed:
		return StateClosed
	case q.active > 0:
		return StateDraining
	default:
		return StateArmed
	}
}

// popUntil waits for an event until deadline. ok is false when the deadline
// passed with nothing buffered.
func (q *Queue[T]) popUntil(deadline time.Time) (event T, ok bool, err error) {
	q.mu.Lock()
	q.active++
	defer func() {
		q.active--
		q.mu.Unlock()
	}()

	for {
		if q.closed {
			return event, false, ErrClosed
		}
		if next, found := q.shiftLocked(); found {
			return next, true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return event, false, nil
		}

		waiter := make(chan struct{}, 1)
		q.waiters = append(q.waiters, waiter)
		q.mu.Unlock()

		timer := time.NewTimer(remaining)
		select {
		case <-waiter:
		case <-timer.C:
		}
		timer.Stop()

		q.mu.Lock()
		q.removeWaiterLocked(waiter)
	}
}

func (q *Queue[T]) shiftLocked() (T, bool) {
	if q.ring != nil {
		return q.ring.Shift()
	}
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}
	event := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		remaining := copy(q.items, q.items[q.head:])
		clear(q.items[remaining:])
		q.items = q.items[:remaining]
		q.head = 0
	}
	return event, true
}

func (q *Queue[T]) lenLocked() int {
	if q.ring != nil {
		return q.ring.Len()
	}
	return len(q.items) - q.head
}

func (q *Queue[T]) takeAllLocked() []T {
	if q.ring != nil {
		return q.ring.Reset()
	}
	events := make([]T, len(q.items)-q.head)
	copy(events, q.items[q.head:])
	q.items = nil
	q.head = 0
	return events
}

func (q *Queue[T]) signalOneLocked() {
	if len(q.waiters) == 0 {
		return
	}
	waiter := q.waiters[0]
	q.waiters = q.waiters[1:]
	signal(waiter)
}

func (q *Queue[T]) removeWaiterLocked(waiter chan struct{}) {
	for index, candidate := range q.waiters {
		if candidate == waiter {
			q.waiters = append(q.waiters[:index], q.waiters[index+1:]...)
			return
		}
	}
}

func (q *Queue[T]) timeout(err *TimeoutError) error {
	q.registry.IncTimeout(q.Name())
	fields := map[string]string{"timeout": err.Timeout.String()}
	if err.Attempts > 0 {
		fields["attempts"] = strconv.Itoa(err.Attempts)
	}
	if len(err.Outstanding) > 0 {
		fields["outstanding"] = strconv.Itoa(len(err.Outstanding))
	}
	q.logger.Warn("wait timed out", fields)
	return err
}

func (q *Queue[T]) discard(event T) {
	q.logger.Debug("discarded non-matching event", nil)
	q.releaseAll([]T{event})
}

func (q *Queue[T]) releaseAll(events []T) {
	released := 0
	for _, event := range events {
		if q.releaseOne(event) {
			released++
		}
	}
	q.registry.AddReleased(q.Name(), released)
}

func (q *Queue[T]) releaseOne(event T) bool {
	if q.release != nil {
		q.release(event)
		return true
	}
	if releaser, ok := any(event).(Releaser); ok && releaser != nil {
		releaser.Release()
		return true
	}
	return false
}

func signal(waiter chan struct{}) {
	select {
	case waiter <- struct{}{}:
	default:
	}
}
