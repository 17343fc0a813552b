package collector

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"ctsharness/internal/logging"
	"ctsharness/internal/metrics"
)

type captureResult struct {
	request   string
	timestamp int64
}

func newTestQueue[T any](t *testing.T, opts Options[T]) *Queue[T] {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = &metrics.Registry{}
	}
	queue := NewQueue(opts)
	t.Cleanup(func() { queue.Close() })
	return queue
}

func TestQueuePopIsFIFO(t *testing.T) {
	queue := newTestQueue(t, Options[int]{Name: "fifo"})

	for i := 1; i <= 100; i++ {
		if err := queue.Push(i); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	for want := 1; want <= 100; want++ {
		got := MustPop(t, queue, 100*time.Millisecond)
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	ExpectNoMore(t, queue)
}

func TestQueuePopTimesOutNoEarlierThanTimeout(t *testing.T) {
	registry := &metrics.Registry{}
	queue := newTestQueue(t, Options[int]{Name: "empty", Registry: registry})

	const timeout = 50 * time.Millisecond
	start := time.Now()
	_, err := queue.Pop(timeout)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) || timeoutErr.Timeout != timeout || timeoutErr.Queue != "empty" {
		t.Fatalf("expected timeout error for queue empty, got %#v", err)
	}
	if elapsed < timeout {
		t.Fatalf("pop returned after %s, before timeout %s", elapsed, timeout)
	}
	if elapsed > timeout+time.Second {
		t.Fatalf("pop returned after %s, far past timeout %s", elapsed, timeout)
	}
	if got := registry.Queue("empty").Timeouts; got != 1 {
		t.Fatalf("expected 1 timeout recorded, got %d", got)
	}
}

func TestQueuePushWakesBlockedConsumer(t *testing.T) {
	queue := newTestQueue(t, Options[string]{Name: "wake"})

	type popped struct {
		event   string
		err     error
		elapsed time.Duration
	}
	done := make(chan popped, 1)
	go func() {
		start := time.Now()
		event, err := queue.Pop(5 * time.Second)
		done <- popped{event: event, err: err, elapsed: time.Since(start)}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := queue.Push("frame"); err != nil {
		t.Fatalf("push: %v", err)
	}

	select {
	case result := <-done:
		if result.err != nil {
			t.Fatalf("pop: %v", result.err)
		}
		if result.event != "frame" {
			t.Fatalf("expected frame, got %q", result.event)
		}
		if result.elapsed >= 5*time.Second {
			t.Fatalf("pop waited the full timeout")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer not woken by push")
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	registry := &metrics.Registry{}
	counter := NewReleaseCounter[int]()
	queue := newTestQueue(t, Options[int]{
		Name:     "bounded",
		Capacity: 3,
		Release:  counter.Release,
		Registry: registry,
	})

	for i := 1; i <= 4; i++ {
		if err := queue.Push(i); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	if queue.Len() != 3 {
		t.Fatalf("expected len 3, got %d", queue.Len())
	}
	if counter.Count(1) != 1 {
		t.Fatalf("expected evicted event to be released once, got %d", counter.Count(1))
	}
	for _, want := range []int{2, 3, 4} {
		if got := MustPop(t, queue, 10*time.Millisecond); got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if got := registry.Queue("bounded").Dropped; got != 1 {
		t.Fatalf("expected 1 drop recorded, got %d", got)
	}
	if counter.Total() != 1 {
		t.Fatalf("expected popped events not to be released, got %d releases", counter.Total())
	}
}

func TestQueuePushNeverBlocksWhenFull(t *testing.T) {
	queue := newTestQueue(t, Options[int]{Name: "fast", Capacity: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			_ = queue.Push(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked on a full bounded queue")
	}
	if got := MustPop(t, queue, 10*time.Millisecond); got != 999 {
		t.Fatalf("expected newest event 999, got %d", got)
	}
}

func TestQueuePopMatchingSkipsOtherRequests(t *testing.T) {
	counter := NewReleaseCounter[captureResult]()
	queue := newTestQueue(t, Options[captureResult]{Name: "results", Release: counter.Release})

	queue.Push(captureResult{request: "req1", timestamp: 100})
	queue.Push(captureResult{request: "req2", timestamp: 200})
	queue.Push(captureResult{request: "req1", timestamp: 300})

	isReq1 := func(result captureResult) bool { return result.request == "req1" }

	first := MustPopMatching(t, queue, isReq1, 3, 10*time.Millisecond)
	if first.timestamp != 100 {
		t.Fatalf("expected ts=100, got %d", first.timestamp)
	}
	second := MustPopMatching(t, queue, isReq1, 3, 10*time.Millisecond)
	if second.timestamp != 300 {
		t.Fatalf("expected ts=300, got %d", second.timestamp)
	}
	ExpectNoMore(t, queue)

	skipped := captureResult{request: "req2", timestamp: 200}
	if counter.Count(skipped) != 1 {
		t.Fatalf("expected skipped result released once, got %d", counter.Count(skipped))
	}
}

func TestQueuePopMatchingExhaustsAttempts(t *testing.T) {
	queue := newTestQueue(t, Options[int]{Name: "attempts"})
	for i := 0; i < 5; i++ {
		queue.Push(i)
	}

	_, err := queue.PopMatching(func(v int) bool { return v == 42 }, 3, 10*time.Millisecond)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if timeoutErr.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", timeoutErr.Attempts)
	}
	if queue.Len() != 2 {
		t.Fatalf("expected 2 events left, got %d", queue.Len())
	}
}

func TestQueuePopMatchingWithinHonorsBudget(t *testing.T) {
	queue := newTestQueue(t, Options[int]{Name: "budget"})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = queue.Push(1)
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		wg.Wait()
	})

	const budget = 60 * time.Millisecond
	start := time.Now()
	_, err := queue.PopMatchingWithin(func(v int) bool { return v == 2 }, budget)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed < budget || elapsed > budget+time.Second {
		t.Fatalf("expected to stop near budget %s, took %s", budget, elapsed)
	}
}

func TestQueuePopNReturnsPartialOnTimeout(t *testing.T) {
	queue := newTestQueue(t, Options[int]{Name: "failures"})
	queue.Push(1)
	queue.Push(2)

	events, err := queue.PopN(5, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("pop n: %v", err)
	}
	if len(events) != 2 || events[0] != 1 || events[1] != 2 {
		t.Fatalf("expected [1 2], got %v", events)
	}
}

func TestQueuePopNWithNegativeCount(t *testing.T) {
	queue := newTestQueue(t, Options[int]{Name: "failures"})
	queue.Push(1)

	events, err := queue.PopN(-1, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("pop n: %v", err)
	}
	if len(events) != 0 || queue.Len() != 1 {
		t.Fatalf("expected no events popped, got %v with %d buffered", events, queue.Len())
	}
}

func TestQueueDrainReleasesExactlyOnce(t *testing.T) {
	registry := &metrics.Registry{}
	counter := NewReleaseCounter[int]()
	queue := newTestQueue(t, Options[int]{Name: "drain", Release: counter.Release, Registry: registry})

	for i := 0; i < 10; i++ {
		queue.Push(i)
	}
	if drained := queue.Drain(); drained != 10 {
		t.Fatalf("expected 10 drained, got %d", drained)
	}
	if queue.Len() != 0 || queue.HasMore() {
		t.Fatalf("expected empty queue after drain, got %d", queue.Len())
	}
	for i := 0; i < 10; i++ {
		if counter.Count(i) != 1 {
			t.Fatalf("expected event %d released once, got %d", i, counter.Count(i))
		}
	}

	queue.Drain()
	queue.Close()
	if counter.Total() != 10 {
		t.Fatalf("expected no further releases, got %d", counter.Total())
	}
	if got := registry.Queue("drain").Released; got != 10 {
		t.Fatalf("expected 10 releases recorded, got %d", got)
	}
}

type ownedFrame struct {
	mu       sync.Mutex
	released int
}

func (f *ownedFrame) Release() {
	f.mu.Lock()
	f.released++
	f.mu.Unlock()
}

func (f *ownedFrame) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func TestQueueUsesReleaserInterface(t *testing.T) {
	queue := newTestQueue(t, Options[*ownedFrame]{Name: "frames", Capacity: 1})
	first := &ownedFrame{}
	second := &ownedFrame{}

	queue.Push(first)
	queue.Push(second)
	queue.Close()

	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("expected each frame released once, got %d and %d", first.count(), second.count())
	}
}

func TestQueueCloseRejectsAndWakes(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelInfo, io.Discard)
	counter := NewReleaseCounter[int]()
	queue := newTestQueue(t, Options[int]{Name: "closing", Logger: logger, Release: counter.Release})

	done := make(chan error, 1)
	go func() {
		_, err := queue.Pop(5 * time.Second)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	queue.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected closed error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by close")
	}

	if err := queue.Push(7); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected push after close to fail, got %v", err)
	}
	if counter.Count(7) != 1 {
		t.Fatalf("expected rejected event to be released")
	}
	if _, err := queue.Pop(time.Hour); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected immediate closed error, got %v", err)
	}
	if queue.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", queue.State())
	}
	if len(buffer.Find("push after close")) != 1 {
		t.Fatalf("expected push after close to be logged, got %v", buffer.List())
	}
}

func TestQueueStateReportsDraining(t *testing.T) {
	queue := newTestQueue(t, Options[int]{Name: "state"})
	if queue.State() != StateArmed {
		t.Fatalf("expected armed, got %s", queue.State())
	}

	done := make(chan struct{})
	go func() {
		_, _ = queue.Pop(time.Second)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for queue.State() != StateDraining {
		if time.Now().After(deadline) {
			t.Fatal("expected draining state while a pop is waiting")
		}
		time.Sleep(time.Millisecond)
	}
	queue.Push(1)
	<-done
	if queue.State() != StateArmed {
		t.Fatalf("expected armed after pop, got %s", queue.State())
	}
}

func TestQueueExpectEmpty(t *testing.T) {
	queue := newTestQueue(t, Options[int]{Name: "negative"})
	if err := queue.ExpectEmpty(); err != nil {
		t.Fatalf("expected empty, got %v", err)
	}
	queue.Push(1)
	queue.Push(2)

	err := queue.ExpectEmpty()
	var unexpected *UnexpectedEventError
	if !errors.As(err, &unexpected) || unexpected.Count != 2 {
		t.Fatalf("expected unexpected event error with count 2, got %v", err)
	}
	if !errors.Is(err, ErrUnexpectedEvent) {
		t.Fatalf("expected error to match ErrUnexpectedEvent")
	}
}

func TestQueueExpectNoneWithin(t *testing.T) {
	counter := NewReleaseCounter[int]()
	queue := newTestQueue(t, Options[int]{Name: "quiet", Release: counter.Release})

	start := time.Now()
	if err := queue.ExpectNoneWithin(20 * time.Millisecond); err != nil {
		t.Fatalf("expected quiet queue, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected to wait the full window, waited %s", elapsed)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = queue.Push(7)
	}()
	err := queue.ExpectNoneWithin(time.Second)
	if !errors.Is(err, ErrUnexpectedEvent) {
		t.Fatalf("expected unexpected event, got %v", err)
	}
	if counter.Count(7) != 1 {
		t.Fatalf("expected late event to be released once, got %d", counter.Count(7))
	}
}

func TestQueueConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	type event struct {
		producer int
		seq      int
	}
	queue := newTestQueue(t, Options[event]{Name: "mpsc"})

	const producers = 4
	const perProducer = 250
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(producer int) {
			defer wg.Done()
			for seq := 0; seq < perProducer; seq++ {
				_ = queue.Push(event{producer: producer, seq: seq})
			}
		}(p)
	}

	next := make([]int, producers)
	for i := 0; i < producers*perProducer; i++ {
		got := MustPop(t, queue, time.Second)
		if got.seq != next[got.producer] {
			t.Fatalf("producer %d: expected seq %d, got %d", got.producer, next[got.producer], got.seq)
		}
		next[got.producer]++
	}
	wg.Wait()
	ExpectNoMore(t, queue)
}

func TestQueueConcurrentConsumersReceiveEachEventOnce(t *testing.T) {
	queue := newTestQueue(t, Options[int]{Name: "mpmc"})

	const total = 500
	var mu sync.Mutex
	seen := make(map[int]int)
	var wg sync.WaitGroup
	for c := 0; c < 3; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				event, err := queue.Pop(100 * time.Millisecond)
				if err != nil {
					return
				}
				mu.Lock()
				seen[event]++
				mu.Unlock()
			}
		}()
	}
	for i := 0; i < total; i++ {
		queue.Push(i)
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct events, got %d", total, len(seen))
	}
	for event, count := range seen {
		if count != 1 {
			t.Fatalf("event %d delivered %d times", event, count)
		}
	}
}
