package beacon

import (
	"context"
	"log/slog"
	"reflect"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nevindra/beacon/internal/stacktrace"
)

// RUM is the process-wide entry point for recording user-monitoring
// telemetry. Both the initialized coordinator and the no-op stand-in
// returned before Init satisfy it, so call sites never branch on
// initialization state.
type RUM interface {
	// SessionID returns the current session identifier. It can change over
	// the application's lifetime; retrieve it on every use, never cache it.
	SessionID() string
	// AddEvent records a named business event as a zero-duration span.
	AddEvent(name string, attrs ...attribute.KeyValue)
	// StartWorkflow opens a span timing a named business workflow. The
	// caller owns the returned span and must end it.
	StartWorkflow(name string) trace.Span
	// RecordException records err as an error-classified span named after
	// the error's concrete type.
	RecordException(err error, attrs ...attribute.KeyValue)
	// RecordANR records a detected period of unresponsiveness with the
	// offending goroutine's stack.
	RecordANR(stack []runtime.Frame)
	// SetGlobalAttribute stores one attribute appended to every span and
	// event created afterward. Invalid attributes are ignored.
	SetGlobalAttribute(kv attribute.KeyValue)
	// UpdateGlobalAttributes atomically rewrites the global attributes.
	// fn must be side-effect free; it may run more than once under
	// contention.
	UpdateGlobalAttributes(fn func(*AttrBuilder))
	// UpdateLocation sets latitude and longitude together, or removes both
	// when loc is nil, in one atomic step.
	UpdateLocation(loc *Location)
	// Flush asks the export pipeline to deliver finished spans, waiting at
	// most timeout. A flush that does not finish in time is abandoned
	// without error.
	Flush(timeout time.Duration)
	// TracerProvider exposes the provider SDK spans are created through,
	// for collaborators instrumenting adjacent surfaces (network clients,
	// web views).
	TracerProvider() trace.TracerProvider
}

// instance is the process-wide coordinator. A CAS on this pointer decides
// the winner when several goroutines race Init.
var instance atomic.Pointer[rum]

// Option injects a collaborator at Init time.
type Option func(*rum)

// WithTracerProvider sets the provider spans are created through. Defaults
// to the global OTEL provider; pair with the exporter package for a
// ready-made delivery pipeline.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *rum) { r.provider = tp }
}

// WithClock sets the clock driving session rotation. Defaults to the real
// clock.
func WithClock(c clockz.Clock) Option {
	return func(r *rum) { r.clock = c }
}

// WithLogger sets a structured logger for SDK diagnostics. If not set, logs
// are emitted only when Config.Debug is true.
func WithLogger(l *slog.Logger) Option {
	return func(r *rum) { r.logger = l }
}

// Init constructs the coordinator and installs it as the process-wide
// instance. Exactly one call wins; later or concurrently losing calls log a
// warning and receive the winner's instance.
func Init(cfg Config, opts ...Option) RUM {
	r := &rum{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		if cfg.Debug {
			r.logger = slog.Default()
		} else {
			r.logger = nopLogger
		}
	}
	if r.clock == nil {
		r.clock = clockz.RealClock
	}
	if r.provider == nil {
		r.provider = otel.GetTracerProvider()
	}
	r.session = NewSession(r.clock, cfg.sessionLifetime())
	r.global = NewGlobalAttributes(AppNameKey.String(cfg.AppName))

	if !instance.CompareAndSwap(nil, r) {
		existing := instance.Load()
		existing.logger.Warn("beacon: already initialized, returning existing instance")
		return existing
	}
	r.logger.Info("beacon: monitoring initialized", "session_id", r.session.ID())
	return r
}

// IsInitialized reports whether Init has completed.
func IsInitialized() bool {
	return instance.Load() != nil
}

// Get returns the initialized coordinator, or a no-op implementation when
// Init has not run yet.
func Get() RUM {
	if r := instance.Load(); r != nil {
		return r
	}
	return NoOp()
}

// resetForTest clears the singleton between tests.
func resetForTest() {
	instance.Store(nil)
}

// TrackScreen builds a ScreenTracer for screen, wired to the current
// coordinator's tracer, global attributes, and session. previousScreen
// reports the screen that was visible before this one.
func TrackScreen(screen Screen, previousScreen func() string) *ScreenTracer {
	r := Get()
	var globals func() []attribute.KeyValue
	if real, ok := r.(*rum); ok {
		globals = func() []attribute.KeyValue {
			snap := real.global.Snapshot()
			return append(snap.ToSlice(), SessionIDKey.String(real.session.ID()))
		}
	}
	active := NewActiveSpan(previousScreen, globals)
	return NewScreenTracer(screen, r.TracerProvider().Tracer(tracerName), active)
}

// rum is the real coordinator. It ties the session identifier, the tracer
// provider, and the global attribute store into a single emission point.
type rum struct {
	provider trace.TracerProvider
	clock    clockz.Clock
	logger   *slog.Logger
	session  *Session
	global   *GlobalAttributes
}

var _ RUM = (*rum)(nil)

func (r *rum) tracer() trace.Tracer {
	return r.provider.Tracer(tracerName)
}

// startAttrs is the attribute set stamped on every span at start time: the
// global snapshot, then the current session id, then the call-site
// attributes, which win on key collision.
func (r *rum) startAttrs(attrs []attribute.KeyValue) []attribute.KeyValue {
	snap := r.global.Snapshot()
	merged := make([]attribute.KeyValue, 0, snap.Len()+len(attrs)+1)
	merged = append(merged, snap.ToSlice()...)
	merged = append(merged, SessionIDKey.String(r.session.ID()))
	merged = append(merged, attrs...)
	set := attribute.NewSet(merged...)
	return set.ToSlice()
}

func (r *rum) SessionID() string {
	return r.session.ID()
}

func (r *rum) AddEvent(name string, attrs ...attribute.KeyValue) {
	_, span := r.tracer().Start(context.Background(), name,
		trace.WithAttributes(r.startAttrs(attrs)...))
	span.End()
}

func (r *rum) StartWorkflow(name string) trace.Span {
	_, span := r.tracer().Start(context.Background(), name,
		trace.WithAttributes(r.startAttrs([]attribute.KeyValue{
			WorkflowNameKey.String(name),
		})...))
	return span
}

func (r *rum) RecordException(err error, attrs ...attribute.KeyValue) {
	if err == nil {
		return
	}
	name := errorType(err)
	all := make([]attribute.KeyValue, 0, len(attrs)+3)
	all = append(all, attrs...)
	all = append(all,
		ComponentKey.String(componentError),
		ErrorTypeKey.String(name),
		ErrorMessageKey.String(err.Error()),
	)
	_, span := r.tracer().Start(context.Background(), name,
		trace.WithAttributes(r.startAttrs(all)...))
	span.RecordError(err)
	span.End()
}

func (r *rum) RecordANR(stack []runtime.Frame) {
	_, span := r.tracer().Start(context.Background(), "ANR",
		trace.WithAttributes(r.startAttrs([]attribute.KeyValue{
			StacktraceKey.String(stacktrace.Format(stack)),
			ComponentKey.String(componentError),
		})...))
	span.SetStatus(codes.Error, "")
	span.End()
}

func (r *rum) SetGlobalAttribute(kv attribute.KeyValue) {
	r.global.Set(kv)
}

func (r *rum) UpdateGlobalAttributes(fn func(*AttrBuilder)) {
	r.global.Update(fn)
}

func (r *rum) UpdateLocation(loc *Location) {
	if loc == nil {
		r.global.Update(func(b *AttrBuilder) {
			b.Remove(LocationLatKey).Remove(LocationLongKey)
		})
		return
	}
	lat, long := loc.Latitude, loc.Longitude
	r.global.Update(func(b *AttrBuilder) {
		b.Put(LocationLatKey.Float64(lat)).Put(LocationLongKey.Float64(long))
	})
}

func (r *rum) Flush(timeout time.Duration) {
	f, ok := r.provider.(interface{ ForceFlush(context.Context) error })
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := f.ForceFlush(ctx); err != nil {
		r.logger.Warn("beacon: flush did not complete", "error", err)
	}
}

func (r *rum) TracerProvider() trace.TracerProvider {
	return r.provider
}

// errorType names a span after an error's concrete type, without the
// package path.
func errorType(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

// nopLogger discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
