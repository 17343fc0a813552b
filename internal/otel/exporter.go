package otel

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// JSONExporter writes each log record as one JSON object per line.
type JSONExporter struct {
	mu      sync.Mutex
	encoder *json.Encoder
	closed  bool
}

type jsonRecord struct {
	Timestamp  time.Time         `json:"timestamp"`
	Severity   string            `json:"severity"`
	Body       string            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func NewJSONExporter(w io.Writer) *JSONExporter {
	return &JSONExporter{encoder: json.NewEncoder(w)}
}

func (e *JSONExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	for _, record := range records {
		entry := jsonRecord{
			Timestamp: record.Timestamp().UTC(),
			Severity:  record.SeverityText(),
			Body:      record.Body().AsString(),
		}
		if record.AttributesLen() > 0 {
			entry.Attributes = make(map[string]string, record.AttributesLen())
			record.WalkAttributes(func(kv otellog.KeyValue) bool {
				entry.Attributes[kv.Key] = kv.Value.String()
				return true
			})
		}
		if err := e.encoder.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}

func (e *JSONExporter) ForceFlush(context.Context) error {
	return nil
}

func (e *JSONExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}
