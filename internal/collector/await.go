package collector

import (
	"fmt"
	"sort"
	"time"
)

// AwaitAllOf blocks until an event has been seen for every key, in any order,
// within one overall timeout. Repeat events for a key that was already seen
// are released and ignored; an event for a key outside the set fails with an
// UnexpectedEventError. On timeout the error lists the keys still pending.
// Matched events are returned in arrival order and belong to the caller.
func AwaitAllOf[T any, K comparable](q *Queue[T], keys []K, keyOf func(T) K, timeout time.Duration) ([]T, error) {
	pending := make(map[K]struct{}, len(keys))
	for _, key := range keys {
		pending[key] = struct{}{}
	}
	seen := make(map[K]struct{}, len(keys))
	matched := make([]T, 0, len(pending))

	deadline := time.Now().Add(timeout)
	for len(pending) > 0 {
		event, ok, err := q.popUntil(deadline)
		if err != nil {
			q.releaseAll(matched)
			return nil, err
		}
		if !ok {
			q.releaseAll(matched)
			return nil, q.timeout(&TimeoutError{
				Queue:       q.Name(),
				Timeout:     timeout,
				Outstanding: formatKeys(pending),
			})
		}

		key := keyOf(event)
		if _, waiting := pending[key]; waiting {
			delete(pending, key)
			seen[key] = struct{}{}
			matched = append(matched, event)
			continue
		}
		q.discard(event)
		if _, repeat := seen[key]; repeat {
			continue
		}
		q.releaseAll(matched)
		return nil, &UnexpectedEventError{Queue: q.Name(), Count: 1, Detail: fmt.Sprintf("key %v not expected", key)}
	}
	return matched, nil
}

// AwaitCounts collects one event per entry of keys; a key listed n times
// needs n events. Results line up with keys: the i-th listing of a key gets
// the i-th event seen for it. Events for other keys are released and
// skipped. One overall timeout bounds the wait. On any failure events
// collected so far are released.
func AwaitCounts[T any, K comparable](q *Queue[T], keys []K, keyOf func(T) K, timeout time.Duration) ([]T, error) {
	slots := make(map[K][]int, len(keys))
	for index, key := range keys {
		slots[key] = append(slots[key], index)
	}
	results := make([]T, len(keys))
	filled := make([]bool, len(keys))

	releaseFilled := func() {
		var collected []T
		for index, ok := range filled {
			if ok {
				collected = append(collected, results[index])
			}
		}
		q.releaseAll(collected)
	}

	deadline := time.Now().Add(timeout)
	for len(slots) > 0 {
		event, ok, err := q.popUntil(deadline)
		if err != nil {
			releaseFilled()
			return nil, err
		}
		if !ok {
			releaseFilled()
			outstanding := make(map[K]struct{}, len(slots))
			for key := range slots {
				outstanding[key] = struct{}{}
			}
			return nil, q.timeout(&TimeoutError{
				Queue:       q.Name(),
				Timeout:     timeout,
				Outstanding: formatKeys(outstanding),
			})
		}

		key := keyOf(event)
		indices, waiting := slots[key]
		if !waiting {
			q.discard(event)
			continue
		}
		results[indices[0]] = event
		filled[indices[0]] = true
		if len(indices) == 1 {
			delete(slots, key)
		} else {
			slots[key] = indices[1:]
		}
	}
	return results, nil
}

func formatKeys[K comparable](keys map[K]struct{}) []string {
	out := make([]string, 0, len(keys))
	for key := range keys {
		out = append(out, fmt.Sprint(key))
	}
	sort.Strings(out)
	return out
}
