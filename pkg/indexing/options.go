package indexing

import (
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Registry.
type Option[K, V any] func(*Registry[K, V])

// WithKeyCodec sets the codec for primary keys (default DefaultCodec[K]()).
func WithKeyCodec[K, V any](codec Codec[K]) Option[K, V] {
	return func(r *Registry[K, V]) {
		r.keys = codec
	}
}

// WithValueCodec sets the codec for primary values (default MsgpackCodec[V]).
func WithValueCodec[K, V any](codec Codec[V]) Option[K, V] {
	return func(r *Registry[K, V]) {
		r.values = codec
	}
}

// WithMetrics records index writes and bundle operations on m.
func WithMetrics[K, V any](m *Metrics) Option[K, V] {
	return func(r *Registry[K, V]) {
		r.metrics = m
	}
}

// WithTracer sets the tracer used for bundle and maintenance spans.
func WithTracer[K, V any](tracer trace.Tracer) Option[K, V] {
	return func(r *Registry[K, V]) {
		r.tracer = tracer
	}
}
