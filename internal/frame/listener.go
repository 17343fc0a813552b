package frame

import (
	"time"

	"ctsharness/internal/collector"
	"ctsharness/internal/logging"
	"ctsharness/internal/metrics"
)

const DefaultMaxImages = 5

type ListenerOptions struct {
	Name     string
	Registry *metrics.Registry
	Logger   *logging.Logger
}

// Listener buffers images handed over by an image-available callback. With
// maxImages > 0 it keeps at most that many and releases the oldest when a
// new one arrives; 0 buffers without bound.
type Listener struct {
	queue *collector.Queue[*Handle]
}

func NewListener(maxImages int, opts ListenerOptions) *Listener {
	if opts.Name == "" {
		opts.Name = "images"
	}
	return &Listener{queue: collector.NewQueue(collector.Options[*Handle]{
		Name:     opts.Name,
		Capacity: max(maxImages, 0),
		Registry: opts.Registry,
		Logger:   opts.Logger,
	})}
}

// OnImageAvailable takes ownership of handle. After Close the handle is
// released and ErrClosed returned.
func (l *Listener) OnImageAvailable(handle *Handle) error {
	return l.queue.Push(handle)
}

// Image returns the oldest buffered image. The caller must release it.
func (l *Listener) Image(timeout time.Duration) (*Handle, error) {
	return l.queue.Pop(timeout)
}

// Drain releases every buffered image.
func (l *Listener) Drain() int {
	return l.queue.Drain()
}

func (l *Listener) Close() {
	l.queue.Close()
}

func (l *Listener) Len() int {
	return l.queue.Len()
}
