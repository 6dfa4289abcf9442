// Package instrumentation provides OpenTelemetry instrumentation for the
// sessionguard library.
//
// It exposes meter and tracer providers (no-op unless wired to exporters by
// the embedding application) and a Metrics holder with the counters,
// histograms, and observable gauges recorded by the session store, rate
// limiter, cache, and facade.
//
// Example usage:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-app",
//		ServiceVersion: "1.2.3",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Shutdown(ctx)
//
// Pass inst.Metrics() to the components that accept it; components without
// metrics wired fall back to no-op instruments via NewNop.
package instrumentation
