package beacon

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// noopRUM is the stand-in returned before initialization. Every operation is
// accepted and discarded; spans come from a no-op tracer provider, so even
// StartWorkflow hands back a span that is safe to use and end.
type noopRUM struct {
	provider trace.TracerProvider
}

var _ RUM = (*noopRUM)(nil)

var noopInstance = &noopRUM{provider: noop.NewTracerProvider()}

// NoOp returns a RUM implementation that accepts every call and records
// nothing. Useful in tests and for running an instrumented application with
// monitoring disabled.
func NoOp() RUM {
	return noopInstance
}

func (n *noopRUM) SessionID() string { return "" }

func (n *noopRUM) AddEvent(string, ...attribute.KeyValue) {}

func (n *noopRUM) StartWorkflow(name string) trace.Span {
	_, span := n.provider.Tracer(tracerName).Start(context.Background(), name)
	return span
}

func (n *noopRUM) RecordException(error, ...attribute.KeyValue) {}

func (n *noopRUM) RecordANR([]runtime.Frame) {}

func (n *noopRUM) SetGlobalAttribute(attribute.KeyValue) {}

func (n *noopRUM) UpdateGlobalAttributes(func(*AttrBuilder)) {}

func (n *noopRUM) UpdateLocation(*Location) {}

func (n *noopRUM) Flush(time.Duration) {}

func (n *noopRUM) TracerProvider() trace.TracerProvider { return n.provider }
