package collector

import (
	"sync"
	"testing"
	"time"
)

// MustPop pops one event or fails the test.
func MustPop[T any](t testing.TB, q *Queue[T], timeout time.Duration) T {
	t.Helper()
	event, err := q.Pop(timeout)
	if err != nil {
		t.Fatalf("pop from %s: %v", q.Name(), err)
	}
	return event
}

// MustPopMatching pops until match succeeds or fails the test.
func MustPopMatching[T any](t testing.TB, q *Queue[T], match func(T) bool, maxAttempts int, timeout time.Duration) T {
	t.Helper()
	event, err := q.PopMatching(match, maxAttempts, timeout)
	if err != nil {
		t.Fatalf("pop matching from %s: %v", q.Name(), err)
	}
	return event
}

// ExpectNoMore fails the test when q still holds events.
func ExpectNoMore[T any](t testing.TB, q *Queue[T]) {
	t.Helper()
	if err := q.ExpectEmpty(); err != nil {
		t.Fatal(err)
	}
}

// ReleaseCounter counts release hook invocations per event. Use its Release
// method as Options.Release.
type ReleaseCounter[K comparable] struct {
	mu     sync.Mutex
	counts map[K]int
}

func NewReleaseCounter[K comparable]() *ReleaseCounter[K] {
	return &ReleaseCounter[K]{counts: make(map[K]int)}
}

func (c *ReleaseCounter[K]) Release(event K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[event]++
}

func (c *ReleaseCounter[K]) Count(event K) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[event]
}

func (c *ReleaseCounter[K]) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, count := range c.counts {
		total += count
	}
	return total
}
