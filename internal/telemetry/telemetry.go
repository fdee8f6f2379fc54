// Package telemetry carries OpenTelemetry providers into the domain engines.
package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Scope is the instrumentation scope name of the engines.
const Scope = "github.com/xenking/platter"

// Option configures Settings.
type Option func(*Settings)

// Settings holds the providers an engine instruments itself with.
type Settings struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Settings) {
		if tp != nil {
			s.TracerProvider = tp
		}
	}
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Settings) {
		if mp != nil {
			s.MeterProvider = mp
		}
	}
}

// New applies opts over no-op providers.
func New(opts ...Option) Settings {
	s := Settings{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Tracer returns the engines' tracer.
func (s Settings) Tracer() trace.Tracer {
	return s.TracerProvider.Tracer(Scope)
}

// Meter returns the engines' meter.
func (s Settings) Meter() metric.Meter {
	return s.MeterProvider.Meter(Scope)
}

// Counter creates an Int64Counter, falling back to a no-op counter when the
// meter rejects the definition.
func (s Settings) Counter(name, description string) metric.Int64Counter {
	c, err := s.Meter().Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		c, _ = metricnoop.NewMeterProvider().Meter(Scope).Int64Counter(name)
	}
	return c
}
