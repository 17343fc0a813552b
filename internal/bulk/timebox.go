package bulk

import "time"

// TimeBox tracks a soft deadline measured on the monotonic clock. A zero
// max never expires.
type TimeBox struct {
	start time.Time
	max   time.Duration
}

func NewTimeBox(max time.Duration) TimeBox {
	return TimeBox{start: time.Now(), max: max}
}

func (b TimeBox) Expired() bool {
	return b.max > 0 && time.Since(b.start) > b.max
}

func (b TimeBox) Elapsed() time.Duration {
	return time.Since(b.start)
}

func (b TimeBox) Remaining() time.Duration {
	if b.max <= 0 {
		return 0
	}
	return max(b.max-b.Elapsed(), 0)
}
