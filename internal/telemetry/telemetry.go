// Package telemetry builds the process logger and installs the otel tracer
// provider.
package telemetry

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stellar/go/support/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "sorolend"

// ParseLevel maps a level name to a logrus level. Empty means info.
func ParseLevel(level string) (logrus.Level, error) {
	if level == "" {
		return logrus.InfoLevel, nil
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return 0, errors.Wrapf(err, "log level %q", level)
	}
	return lvl, nil
}

// NewLogger returns a logger at the named level.
func NewLogger(level string) (*log.Entry, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := log.New()
	l.SetLevel(lvl)
	return l.WithField("service", ServiceName), nil
}

// Setup installs a batching tracer provider that exports spans over OTLP/HTTP
// to endpoint, a URL such as http://localhost:4318. With no endpoint the
// global no-op provider stays in place. The returned func flushes and stops
// the exporter.
func Setup(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, errors.Wrap(err, "creating otlp exporter")
	}
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", ServiceName)))
	if err != nil {
		return nil, errors.Wrap(err, "building trace resource")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
