package beacon

import (
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ActiveSpan tracks the single in-flight span for one navigation unit.
// Lifecycle callbacks for a unit can fire from more than one goroutine in
// quick succession (rapid show/hide), so the slot is guarded by a mutex:
// exactly one caller opens the span and exactly one closes it, and redundant
// calls from other callback sites are absorbed as no-ops.
type ActiveSpan struct {
	previousScreen func() string
	globals        func() []attribute.KeyValue

	mu   sync.Mutex
	span trace.Span
	name string
}

// NewActiveSpan returns an empty tracker. previousScreen reports the screen
// that was visible before the current one and is consulted once per
// transition. globals supplies the attributes merged into the span when it
// ends; nil is allowed.
func NewActiveSpan(previousScreen func() string, globals func() []attribute.KeyValue) *ActiveSpan {
	return &ActiveSpan{previousScreen: previousScreen, globals: globals}
}

// StartIfNoneInProgress opens a span via start unless one is already open.
// Duplicate starts from bursty lifecycle callbacks are no-ops and the
// original opener's span survives.
func (a *ActiveSpan) StartIfNoneInProgress(name string, start func(name string) trace.Span) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.span != nil {
		return
	}
	a.span = start(name)
	a.name = name
}

// Name reports the name the open span was started with, or "" when idle.
func (a *ActiveSpan) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

// AddPreviousScreenAttribute stamps last.screen.name on the open span when a
// previously visible screen is known and differs from current. No-op when no
// span is open.
func (a *ActiveSpan) AddPreviousScreenAttribute(current string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.span == nil {
		return
	}
	previous := a.previousScreen()
	if previous == "" || previous == current {
		return
	}
	a.span.SetAttributes(LastScreenNameKey.String(previous))
}

// End merges the global attributes into the open span, ends it, and clears
// the slot in a single step. No-op when no span is open.
func (a *ActiveSpan) End() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.span == nil {
		return
	}
	if a.globals != nil {
		a.span.SetAttributes(a.globals()...)
	}
	a.span.End()
	a.span = nil
	a.name = ""
}
