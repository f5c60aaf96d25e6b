// Package beacon is a client-side real-user-monitoring SDK for Go
// applications. It turns application lifecycle events (screen navigation,
// custom business events, exceptions, detected unresponsiveness) into
// OpenTelemetry trace spans carrying a consistent set of contextual
// attributes, and hands them to an export pipeline.
//
// # Quick Start
//
// Initialize once, then record from anywhere:
//
//	tp, shutdown, err := exporter.New(ctx, cfg.AppName,
//		exporter.WithEndpoint(cfg.Endpoint))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer shutdown(ctx)
//
//	rum := beacon.Init(cfg, beacon.WithTracerProvider(tp))
//	rum.AddEvent("checkout.completed", attribute.String("cart.id", id))
//
// Before Init runs, beacon.Get returns a no-op implementation that accepts
// every call and records nothing, so instrumented code never branches on
// initialization state.
//
// # Core Pieces
//
//   - [RUM]: process-wide facade for custom events, exceptions, workflows,
//     ANR records, global attributes, and the session id
//   - [GlobalAttributes]: lock-free store of the attributes appended to
//     every span and event
//   - [ActiveSpan]: at-most-one in-flight span per navigation unit
//   - [ScreenTracer]: screen lifecycle phases as spans
//   - [Session]: rotating opaque session identifier
//
// The exporter subpackage wires span delivery: OTLP over HTTP behind a batch
// processor, optionally fronted by a SQLite-backed buffer that rides out
// connectivity gaps.
//
// All operations are safe to call from any goroutine. Nothing in this
// package blocks except [RUM.Flush], which waits at most the given timeout.
package beacon
