// Package telemetry wires OpenTelemetry tracing and metrics for the review
// service.
//
// Spans and metrics are exported over OTLP, using gRPC by default or
// HTTP/protobuf when Protocol is "http/protobuf". Telemetry is disabled by
// default; when enabled but an exporter cannot be created the instance
// reports itself degraded and hands out no-op tracers and meters instead of
// failing startup.
//
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	tracer := tel.Tracer("apreview.review")
//	ctx, span := tracer.Start(ctx, "review.submit")
//	defer span.End()
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
