// Package observability provides OpenTelemetry tracing and metrics integration
// for the cryptokit provider registry.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("cryptokit"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, "provider.activate")
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("cryptokit"))
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("cryptokit"))
//	metrics.RecordOperation(ctx, "default", "activate", "ok", duration)
package observability
