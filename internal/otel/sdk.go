package otel

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	logglobal "go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
)

const defaultServiceName = "ctsharness"

// SDKOptions configures the OpenTelemetry log pipeline.
type SDKOptions struct {
	ServiceName        string
	ServiceVersion     string
	ResourceAttributes map[string]string
	// Exporter receives every record. When nil, records go to Output as
	// JSON lines.
	Exporter sdklog.Exporter
	Output   io.Writer
}

func SDKOptionsFromEnv() SDKOptions {
	serviceName := strings.TrimSpace(os.Getenv("CTSHARNESS_OTEL_SERVICE_NAME"))
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	return SDKOptions{
		ServiceName:        serviceName,
		ResourceAttributes: parseResourceAttributes(os.Getenv("CTSHARNESS_OTEL_RESOURCE_ATTRIBUTES")),
	}
}

// SetupLogs installs a global logger provider so that records emitted by
// internal/logging are exported. The returned function flushes and shuts
// the provider down.
func SetupLogs(ctx context.Context, options SDKOptions) (func(context.Context) error, error) {
	exporter := options.Exporter
	if exporter == nil {
		if options.Output == nil {
			return nil, errors.New("otel logs need an exporter or an output")
		}
		exporter = NewJSONExporter(options.Output)
	}
	serviceName := strings.TrimSpace(options.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	resourceAttrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName),
	}
	if strings.TrimSpace(options.ServiceVersion) != "" {
		resourceAttrs = append(resourceAttrs, attribute.String("service.version", options.ServiceVersion))
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		resourceAttrs = append(resourceAttrs, attribute.String("host.name", host))
	}
	for key, value := range options.ResourceAttributes {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		resourceAttrs = append(resourceAttrs, attribute.String(trimmedKey, value))
	}

	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(resourceAttrs...))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	previous := logglobal.GetLoggerProvider()
	logglobal.SetLoggerProvider(provider)

	return func(shutdownCtx context.Context) error {
		logglobal.SetLoggerProvider(previous)
		return provider.Shutdown(shutdownCtx)
	}, nil
}

func parseResourceAttributes(raw string) map[string]string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	attributes := make(map[string]string)
	for _, pair := range strings.Split(trimmed, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		attributes[key] = strings.TrimSpace(value)
	}
	if len(attributes) == 0 {
		return nil
	}
	return attributes
}
