// Package telemetry provides observability instrumentation for fleetform.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a
// unified system the engine and the CLI share.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Components accept the bundled Telemetry, an individual Logger or
// Metrics, or nothing at all; every collector is a usable no-op when
// disabled, so instrumentation never needs nil checks at call sites.
package telemetry
