package collector

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrTimeout = errors.New("timed out waiting for event")
var ErrClosed = errors.New("collector closed")
var ErrUnexpectedEvent = errors.New("unexpected event")

// TimeoutError reports a bounded wait that ran out of budget. Outstanding
// names the keys still pending for multi-key waits.
type TimeoutError struct {
	Queue       string
	Timeout     time.Duration
	Attempts    int
	Outstanding []string
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return ""
	}
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("%s: wait for event timed out after %s", queueLabel(e.Queue), e.Timeout))
	if e.Attempts > 0 {
		builder.WriteString(fmt.Sprintf(" (%d attempts)", e.Attempts))
	}
	if len(e.Outstanding) > 0 {
		builder.WriteString("; outstanding: ")
		builder.WriteString(strings.Join(e.Outstanding, ", "))
	}
	return builder.String()
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// UnexpectedEventError reports events that a negative assertion did not allow.
type UnexpectedEventError struct {
	Queue  string
	Count  int
	Detail string
}

func (e *UnexpectedEventError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: unexpected event: %s", queueLabel(e.Queue), e.Detail)
	}
	return fmt.Sprintf("%s: %d unexpected event(s) buffered", queueLabel(e.Queue), e.Count)
}

func (e *UnexpectedEventError) Unwrap() error {
	return ErrUnexpectedEvent
}

func queueLabel(name string) string {
	if name == "" {
		name = "collector"
	}
	return "queue " + name
}
