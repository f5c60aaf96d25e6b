// Command beacon-example wires the SDK end to end: config, exporter,
// initialization, a screen transition, and a custom event.
package main

import (
	"context"
	"log"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nevindra/beacon"
	"github.com/nevindra/beacon/exporter"
)

type homeScreen struct{}

func (homeScreen) ScreenName() string { return "Home" }

func main() {
	cfg, err := beacon.LoadConfig(os.Getenv("BEACON_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	tp, shutdown, err := exporter.New(ctx, cfg.AppName,
		exporter.WithEndpoint(cfg.Endpoint),
		exporter.WithBuffer(cfg.BufferPath),
	)
	if err != nil {
		log.Fatalf("exporter: %v", err)
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	rum := beacon.Init(cfg, beacon.WithTracerProvider(tp))
	log.Printf("session id: %s", rum.SessionID())

	// A screen becomes visible: one "Created" span.
	screen := beacon.TrackScreen(homeScreen{}, func() string { return "" })
	screen.StartCreation()
	screen.EndActiveSpan()

	// A business event from application code.
	rum.AddEvent("checkout.completed", attribute.String("cart.id", "c-42"))

	rum.Flush(2 * time.Second)
}
