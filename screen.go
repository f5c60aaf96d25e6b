package beacon

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Screen identifies a navigation unit (a screen, page, or view) by name.
type Screen interface {
	ScreenName() string
}

// Lifecycle phase span names.
const (
	phaseCreated       = "Created"
	phaseRestored      = "Restored"
	phaseResumed       = "Resumed"
	phasePaused        = "Paused"
	phaseViewDestroyed = "ViewDestroyed"
	phaseDestroyed     = "Destroyed"
	phaseDetached      = "Detached"
)

// ScreenTracer turns the lifecycle phases of one screen into spans. It
// captures the screen's name at construction and holds no reference to the
// screen itself, so it never extends the screen's lifetime. Phase starts and
// ends funnel through a shared ActiveSpan, which collapses the sub-events of
// one transition into a single span.
type ScreenTracer struct {
	tracer     trace.Tracer
	active     *ActiveSpan
	screenName string
}

// NewScreenTracer binds a screen to a tracer and an active-span tracker.
// A nil screen or an empty name is tolerated and reported as "unknown".
func NewScreenTracer(screen Screen, tracer trace.Tracer, active *ActiveSpan) *ScreenTracer {
	name := "unknown"
	if screen != nil {
		if n := screen.ScreenName(); n != "" {
			name = n
		}
	}
	return &ScreenTracer{tracer: tracer, active: active, screenName: name}
}

// StartPhase opens the span for a lifecycle phase unless one is already in
// flight for this screen.
func (s *ScreenTracer) StartPhase(name string) {
	s.active.StartIfNoneInProgress(name, s.startSpan)
}

// StartCreation begins the "Created" span and records which screen was
// visible before this one.
func (s *ScreenTracer) StartCreation() {
	s.StartPhase(phaseCreated)
	s.AddPreviousScreenAttribute()
}

// StartRestoration begins the "Restored" span for a screen coming back from
// a saved state.
func (s *ScreenTracer) StartRestoration() {
	s.StartPhase(phaseRestored)
}

// StartResumption begins the "Resumed" span and records which screen was
// visible before this one.
func (s *ScreenTracer) StartResumption() {
	s.StartPhase(phaseResumed)
	s.AddPreviousScreenAttribute()
}

// StartPause begins the "Paused" span.
func (s *ScreenTracer) StartPause() {
	s.StartPhase(phasePaused)
}

// StartViewDestruction begins the "ViewDestroyed" span.
func (s *ScreenTracer) StartViewDestruction() {
	s.StartPhase(phaseViewDestroyed)
}

// StartDestruction begins the "Destroyed" span.
func (s *ScreenTracer) StartDestruction() {
	s.StartPhase(phaseDestroyed)
}

// StartDetachment begins the "Detached" span.
func (s *ScreenTracer) StartDetachment() {
	s.StartPhase(phaseDetached)
}

// AddPreviousScreenAttribute stamps the previously visible screen on the
// in-flight span, when one is known and it differs from this screen.
func (s *ScreenTracer) AddPreviousScreenAttribute() {
	s.active.AddPreviousScreenAttribute(s.screenName)
}

// EndActiveSpan completes the in-flight phase span, if any.
func (s *ScreenTracer) EndActiveSpan() {
	s.active.End()
}

func (s *ScreenTracer) startSpan(name string) trace.Span {
	_, span := s.tracer.Start(context.Background(), name, trace.WithAttributes(
		ComponentKey.String(componentUI),
		ScreenNameKey.String(s.screenName),
	))
	return span
}
