package availability

import (
	"fmt"
	"time"

	"ctsharness/internal/collector"
	"ctsharness/internal/logging"
	"ctsharness/internal/metrics"
)

// DefaultQuietPeriod is how long a negative check waits for a stray notice.
const DefaultQuietPeriod = 10 * time.Millisecond

type Options struct {
	Name        string
	QuietPeriod time.Duration
	Registry    *metrics.Registry
	Logger      *logging.Logger
}

// Tracker records availability notices for ids such as camera ids or phone
// account handles.
type Tracker[K comparable] struct {
	available   *collector.Queue[K]
	unavailable *collector.Queue[K]
	quiet       time.Duration
}

func NewTracker[K comparable](opts Options) *Tracker[K] {
	if opts.Name == "" {
		opts.Name = "availability"
	}
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	return &Tracker[K]{
		available: collector.NewQueue(collector.Options[K]{
			Name: opts.Name + ".available", Registry: opts.Registry, Logger: opts.Logger,
		}),
		unavailable: collector.NewQueue(collector.Options[K]{
			Name: opts.Name + ".unavailable", Registry: opts.Registry, Logger: opts.Logger,
		}),
		quiet: opts.QuietPeriod,
	}
}

func (t *Tracker[K]) OnAvailable(id K) error {
	return t.available.Push(id)
}

func (t *Tracker[K]) OnUnavailable(id K) error {
	return t.unavailable.Push(id)
}

// AwaitAvailable waits for an available notice for each id, then checks that
// no unavailable notice shows up during the quiet period.
func (t *Tracker[K]) AwaitAvailable(ids []K, timeout time.Duration) error {
	return t.await(t.available, t.unavailable, ids, timeout)
}

func (t *Tracker[K]) AwaitUnavailable(ids []K, timeout time.Duration) error {
	return t.await(t.unavailable, t.available, ids, timeout)
}

// ExpectSingle requires exactly one notice for id on the chosen side and
// none on the other.
func (t *Tracker[K]) ExpectSingle(available bool, id K, timeout time.Duration) error {
	expected, opposite := t.sides(available)
	got, err := expected.Pop(timeout)
	if err != nil {
		return err
	}
	if got != id {
		return &collector.UnexpectedEventError{
			Queue:  expected.Name(),
			Count:  1,
			Detail: fmt.Sprintf("notice for %v, expected %v", got, id),
		}
	}
	if err := expected.ExpectNoneWithin(t.quiet); err != nil {
		return err
	}
	return opposite.ExpectNoneWithin(t.quiet)
}

func (t *Tracker[K]) DrainAvailable() int {
	return t.available.Drain()
}

func (t *Tracker[K]) DrainUnavailable() int {
	return t.unavailable.Drain()
}

func (t *Tracker[K]) Close() {
	t.available.Close()
	t.unavailable.Close()
}

func (t *Tracker[K]) sides(available bool) (expected, opposite *collector.Queue[K]) {
	if available {
		return t.available, t.unavailable
	}
	return t.unavailable, t.available
}

func (t *Tracker[K]) await(expected, opposite *collector.Queue[K], ids []K, timeout time.Duration) error {
	identity := func(id K) K { return id }
	if _, err := collector.AwaitAllOf(expected, ids, identity, timeout); err != nil {
		return err
	}
	return opposite.ExpectNoneWithin(t.quiet)
}
