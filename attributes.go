package beacon

import "go.opentelemetry.io/otel/attribute"

// Attribute keys stamped on spans and events produced by the SDK.
var (
	ComponentKey      = attribute.Key("component")
	AppNameKey        = attribute.Key("app")
	SessionIDKey      = attribute.Key("session.id")
	ScreenNameKey     = attribute.Key("screen.name")
	LastScreenNameKey = attribute.Key("last.screen.name")
	WorkflowNameKey   = attribute.Key("workflow.name")
	ErrorTypeKey      = attribute.Key("error.type")
	ErrorMessageKey   = attribute.Key("error.message")
	StacktraceKey     = attribute.Key("exception.stacktrace")
	LocationLatKey    = attribute.Key("location.lat")
	LocationLongKey   = attribute.Key("location.long")
)

// Values for ComponentKey classifying who produced a span.
const (
	componentUI    = "ui"
	componentError = "error"
)

// tracerName is the instrumentation scope every SDK span is created under.
const tracerName = "beacon"

// Location is a geographic position. While set, latitude and longitude are
// appended to every span and event.
type Location struct {
	Latitude  float64
	Longitude float64
}
