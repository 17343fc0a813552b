package capture

import "github.com/google/uuid"

// Request identifies one submitted capture. Results, starts, failures and
// lost buffers are correlated through ID, never through arrival order.
type Request struct {
	ID  string
	Tag string
}

func NewRequest(tag string) Request {
	return Request{ID: uuid.NewString(), Tag: tag}
}

type Started struct {
	Request     Request
	Timestamp   int64
	FrameNumber int64
}

type Result struct {
	Request     Request
	Timestamp   int64
	FrameNumber int64
	Metadata    map[string]any
}

type FailureReason int

const (
	FailureError FailureReason = iota
	FailureFlushed
)

func (r FailureReason) String() string {
	switch r {
	case FailureFlushed:
		return "flushed"
	default:
		return "error"
	}
}

type Failure struct {
	Request          Request
	FrameNumber      int64
	SequenceID       int
	Reason           FailureReason
	WasImageCaptured bool
}

type SequenceCompleted struct {
	SequenceID      int
	LastFrameNumber int64
}

type BufferLost struct {
	Request     Request
	Target      string
	FrameNumber int64
}
