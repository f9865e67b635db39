// Package telemetry provides observability instrumentation for topoplan.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), Prometheus metrics, and event publishing behind one
// handle that the orchestrator and the CLI share.
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Metrics follow orchestration shape: operation counters and run duration
// histograms labelled by operation, phase execution counters, gauges for
// the last computed diff, and failure counters labelled by topology error
// code. With metrics disabled every recording method is a no-op, so
// callers never guard their instrumentation.
//
// Events mirror the orchestration lifecycle (plan.computed, run.started,
// run.completed, run.failed, phase.*) and fan out to in-process
// subscribers, optionally through an async buffer.
package telemetry
