// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// TracerName is the instrumentation scope of every span this module starts.
const TracerName = "github.com/AleutianAI/AleutianSensors"

// ErrUnknownExporter is returned for an exporter name InitTracer does not know.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// TracingConfig selects and addresses the trace exporter.
type TracingConfig struct {
	// ServiceName identifies this process in traces.
	ServiceName string `yaml:"service_name"`

	// ServiceVersion is reported as service.version.
	ServiceVersion string `yaml:"service_version"`

	// Exporter is "none", "stdout" or "otlp".
	Exporter string `yaml:"exporter"`

	// OTLPEndpoint is the collector host:port for the otlp exporter.
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// OTLPInsecure disables TLS on the collector connection.
	OTLPInsecure bool `yaml:"otlp_insecure"`
}

// InitTracer installs a global TracerProvider for the configured exporter.
//
// # Description
//
// With exporter "none" (or empty) nothing is installed and the global no-op
// provider stays in place. Otherwise spans are batched to the exporter and
// sampled at 100%.
//
// # Outputs
//
//   - shutdown: Flushes and stops the provider. Always non-nil.
//   - error: Non-nil if the exporter cannot be created.
//
// # Thread Safety
//
// Call once at startup.
func InitTracer(ctx context.Context, cfg TracingConfig) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(cfg.ServiceName)),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return noop, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}
	if err != nil {
		return noop, fmt.Errorf("create exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the module tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
