package availability

import (
	"errors"
	"testing"
	"time"

	"ctsharness/internal/collector"
	"ctsharness/internal/metrics"

	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *Tracker[string] {
	t.Helper()
	tracker := NewTracker[string](Options{Name: t.Name(), Registry: &metrics.Registry{}})
	t.Cleanup(tracker.Close)
	return tracker
}

func TestAwaitAvailableCollectsAllIDs(t *testing.T) {
	tracker := newTestTracker(t)
	go func() {
		for _, id := range []string{"1", "0", "2"} {
			_ = tracker.OnAvailable(id)
		}
	}()
	require.NoError(t, tracker.AwaitAvailable([]string{"0", "1", "2"}, time.Second))
}

func TestAwaitAvailableReportsOutstanding(t *testing.T) {
	tracker := newTestTracker(t)
	require.NoError(t, tracker.OnAvailable("cam0"))
	require.NoError(t, tracker.OnAvailable("cam1"))

	err := tracker.AwaitAvailable([]string{"cam0", "cam1", "cam2"}, 30*time.Millisecond)
	var timeoutErr *collector.TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	require.Equal(t, []string{"cam2"}, timeoutErr.Outstanding)
}

func TestAwaitAvailableRejectsOppositeNotice(t *testing.T) {
	tracker := newTestTracker(t)
	require.NoError(t, tracker.OnAvailable("cam0"))
	require.NoError(t, tracker.OnUnavailable("cam1"))

	err := tracker.AwaitAvailable([]string{"cam0"}, time.Second)
	require.ErrorIs(t, err, collector.ErrUnexpectedEvent)
}

func TestExpectSingle(t *testing.T) {
	tracker := newTestTracker(t)
	require.NoError(t, tracker.OnUnavailable("acct"))
	require.NoError(t, tracker.ExpectSingle(false, "acct", time.Second))

	require.NoError(t, tracker.OnAvailable("acct"))
	require.NoError(t, tracker.OnAvailable("acct"))
	require.ErrorIs(t, tracker.ExpectSingle(true, "acct", time.Second), collector.ErrUnexpectedEvent)

	require.NoError(t, tracker.OnAvailable("other"))
	err := tracker.ExpectSingle(true, "acct", time.Second)
	require.ErrorIs(t, err, collector.ErrUnexpectedEvent)
	require.Contains(t, err.Error(), "expected acct")
}

func TestDrainClearsNotices(t *testing.T) {
	tracker := newTestTracker(t)
	require.NoError(t, tracker.OnAvailable("a"))
	require.NoError(t, tracker.OnUnavailable("b"))
	require.Equal(t, 1, tracker.DrainAvailable())
	require.Equal(t, 1, tracker.DrainUnavailable())
	require.ErrorIs(t, tracker.ExpectSingle(true, "a", 10*time.Millisecond), collector.ErrTimeout)
}
