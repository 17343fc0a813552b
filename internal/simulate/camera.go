package simulate

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"ctsharness/internal/availability"
	"ctsharness/internal/capture"
	"ctsharness/internal/frame"
	"ctsharness/internal/logging"

	"golang.org/x/time/rate"
)

// Sinks receive what a simulated camera produces. Nil sinks are skipped.
type Sinks struct {
	Callback     *capture.Callback
	Images       *frame.Listener
	Availability *availability.Tracker[string]
}

// Camera fires capture callbacks for submitted requests, paced at the
// configured frame rate, the way a camera device delivers them.
type Camera struct {
	spec        CameraSpec
	layout      Layout
	sinks       Sinks
	limiter     *rate.Limiter
	logger      *logging.Logger
	frameNumber atomic.Int64
	outstanding atomic.Int64
	sequence    atomic.Int32
}

func NewCamera(spec CameraSpec, sinks Sinks, logger *logging.Logger) (*Camera, error) {
	layout, err := spec.Layout()
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if spec.FPS > 0 {
		limit = rate.Limit(spec.FPS)
	}
	return &Camera{
		spec:    spec,
		layout:  layout,
		sinks:   sinks,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With(map[string]string{"component": "camera", "camera": spec.ID}),
	}, nil
}

func (c *Camera) ID() string {
	return c.spec.ID
}

func (c *Camera) Layout() Layout {
	return c.layout
}

// Open announces the camera as available.
func (c *Camera) Open() error {
	if c.sinks.Availability == nil {
		return nil
	}
	return c.sinks.Availability.OnAvailable(c.spec.ID)
}

// Disconnect announces the camera as unavailable.
func (c *Camera) Disconnect() error {
	if c.sinks.Availability == nil {
		return nil
	}
	return c.sinks.Availability.OnUnavailable(c.spec.ID)
}

// Requests builds one request per configured frame.
func (c *Camera) Requests() []capture.Request {
	requests := make([]capture.Request, c.spec.Frames)
	for index := range requests {
		requests[index] = capture.NewRequest(c.spec.ID + "/" + strconv.Itoa(index))
	}
	return requests
}

// Capture runs requests as one repeating sequence and returns its id once
// the sequence completed. It blocks until every frame was produced or ctx
// is done.
func (c *Camera) Capture(ctx context.Context, requests []capture.Request) (int, error) {
	sequenceID := int(c.sequence.Add(1))
	var lastFrame int64 = -1
	for index, request := range requests {
		if err := c.limiter.Wait(ctx); err != nil {
			if c.sinks.Callback != nil {
				_ = c.sinks.Callback.OnSequenceAborted(sequenceID)
			}
			return sequenceID, fmt.Errorf("camera %s: %w", c.spec.ID, err)
		}
		frameNumber := c.frameNumber.Add(1) - 1
		timestamp := time.Now().UnixNano()
		if err := c.deliver(request, sequenceID, frameNumber, timestamp, index); err != nil {
			return sequenceID, err
		}
		lastFrame = frameNumber
	}
	if c.sinks.Callback != nil {
		if err := c.sinks.Callback.OnSequenceCompleted(sequenceID, lastFrame); err != nil {
			return sequenceID, err
		}
	}
	c.logger.Debug("sequence completed", map[string]string{
		"sequence": strconv.Itoa(sequenceID),
		"frames":   strconv.Itoa(len(requests)),
	})
	return sequenceID, nil
}

func (c *Camera) deliver(request capture.Request, sequenceID int, frameNumber, timestamp int64, index int) error {
	callback := c.sinks.Callback
	if callback != nil {
		if err := callback.OnCaptureStarted(request, timestamp, frameNumber); err != nil {
			return err
		}
	}
	if c.sinks.Images != nil {
		image := NewImage(c.layout, byte(frameNumber%math.MaxUint8))
		image.Timestamp = timestamp
		c.outstanding.Add(1)
		handle := frame.NewHandle(image, func(*frame.Image) { c.outstanding.Add(-1) })
		if err := c.sinks.Images.OnImageAvailable(handle); err != nil {
			return err
		}
	}
	if callback == nil {
		return nil
	}
	return callback.OnCaptureCompleted(capture.Result{
		Request:     request,
		Timestamp:   timestamp,
		FrameNumber: frameNumber,
		Metadata: map[string]any{
			"camera":   c.spec.ID,
			"sequence": sequenceID,
			"index":    index,
		},
	})
}

// Outstanding counts images handed out and not yet released.
func (c *Camera) Outstanding() int64 {
	return c.outstanding.Load()
}
