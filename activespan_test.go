package beacon

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestActiveSpan_StartIsIdempotent(t *testing.T) {
	tracer, sr := newRecordingTracer(t)
	active := NewActiveSpan(func() string { return "" }, nil)

	starts := 0
	start := func(name string) trace.Span {
		starts++
		_, span := tracer.Start(context.Background(), name)
		return span
	}

	active.StartIfNoneInProgress("Created", start)
	active.StartIfNoneInProgress("Resumed", start)
	active.End()

	if starts != 1 {
		t.Errorf("starter ran %d times, want 1", starts)
	}
	span := singleSpan(t, sr)
	if span.Name() != "Created" {
		t.Errorf("span name = %q, want %q (original opener survives)", span.Name(), "Created")
	}
}

func TestActiveSpan_EndTwiceEndsOnce(t *testing.T) {
	tracer, sr := newRecordingTracer(t)
	active := NewActiveSpan(func() string { return "" }, nil)

	active.StartIfNoneInProgress("Created", func(name string) trace.Span {
		_, span := tracer.Start(context.Background(), name)
		return span
	})
	active.End()
	active.End()

	if got := len(sr.Ended()); got != 1 {
		t.Errorf("recorded %d spans, want 1", got)
	}
}

func TestActiveSpan_EndWhileIdleIsNoOp(t *testing.T) {
	active := NewActiveSpan(func() string { return "" }, nil)
	active.End() // must not panic
}

func TestActiveSpan_Name(t *testing.T) {
	tracer, _ := newRecordingTracer(t)
	active := NewActiveSpan(func() string { return "" }, nil)

	if got := active.Name(); got != "" {
		t.Errorf("idle Name() = %q, want empty", got)
	}
	active.StartIfNoneInProgress("Paused", func(name string) trace.Span {
		_, span := tracer.Start(context.Background(), name)
		return span
	})
	if got := active.Name(); got != "Paused" {
		t.Errorf("open Name() = %q, want %q", got, "Paused")
	}
	active.End()
	if got := active.Name(); got != "" {
		t.Errorf("Name() after end = %q, want empty", got)
	}
}

func TestActiveSpan_PreviousScreenAttribute(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		current  string
		want     string
		wantSet  bool
	}{
		{name: "no previous screen", previous: "", current: "Checkout", wantSet: false},
		{name: "previous equals current", previous: "Checkout", current: "Checkout", wantSet: false},
		{name: "previous differs", previous: "Cart", current: "Checkout", want: "Cart", wantSet: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, sr := newRecordingTracer(t)
			active := NewActiveSpan(func() string { return tt.previous }, nil)

			active.StartIfNoneInProgress("Created", func(name string) trace.Span {
				_, span := tracer.Start(context.Background(), name)
				return span
			})
			active.AddPreviousScreenAttribute(tt.current)
			active.End()

			v, ok := spanAttr(singleSpan(t, sr), LastScreenNameKey)
			if ok != tt.wantSet {
				t.Fatalf("last.screen.name present = %v, want %v", ok, tt.wantSet)
			}
			if tt.wantSet && v.AsString() != tt.want {
				t.Errorf("last.screen.name = %q, want %q", v.AsString(), tt.want)
			}
		})
	}
}

func TestActiveSpan_PreviousScreenWhileIdleIsNoOp(t *testing.T) {
	oracleCalls := 0
	active := NewActiveSpan(func() string { oracleCalls++; return "Cart" }, nil)

	active.AddPreviousScreenAttribute("Checkout")

	if oracleCalls != 0 {
		t.Errorf("oracle consulted %d times with no open span, want 0", oracleCalls)
	}
}

func TestActiveSpan_EndMergesGlobals(t *testing.T) {
	tracer, sr := newRecordingTracer(t)
	globals := func() []attribute.KeyValue {
		return []attribute.KeyValue{attribute.String("tenant", "acme")}
	}
	active := NewActiveSpan(func() string { return "" }, globals)

	active.StartIfNoneInProgress("Created", func(name string) trace.Span {
		_, span := tracer.Start(context.Background(), name)
		return span
	})
	active.End()

	v, ok := spanAttr(singleSpan(t, sr), "tenant")
	if !ok {
		t.Fatal("global attribute missing from ended span")
	}
	if v.AsString() != "acme" {
		t.Errorf("tenant = %q, want %q", v.AsString(), "acme")
	}
}

func TestActiveSpan_ConcurrentStartsOpenOneSpan(t *testing.T) {
	const callers = 16
	tracer, sr := newRecordingTracer(t)
	active := NewActiveSpan(func() string { return "" }, nil)

	var starts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			active.StartIfNoneInProgress("Created", func(name string) trace.Span {
				starts.Add(1)
				_, span := tracer.Start(context.Background(), name)
				return span
			})
		}()
	}
	wg.Wait()
	active.End()

	if got := starts.Load(); got != 1 {
		t.Errorf("starter ran %d times under contention, want 1", got)
	}
	if got := len(sr.Ended()); got != 1 {
		t.Errorf("recorded %d spans, want 1", got)
	}
}
