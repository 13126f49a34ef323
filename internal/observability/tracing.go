package observability

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
)

// InitTracing installs the process tracer provider. Finished spans are
// written to the trace log level. The returned func flushes and stops it.
func InitTracing() func(ctx context.Context) error {
	tp := trace.NewTracerProvider(
		trace.WithSampler(trace.AlwaysSample()),
		trace.WithSpanProcessor(&logSpanProcessor{logger: log.WithField("context", "tracing")}),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

type logSpanProcessor struct {
	logger *log.Entry
}

func (p *logSpanProcessor) OnStart(context.Context, trace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(s trace.ReadOnlySpan) {
	if !p.logger.Logger.IsLevelEnabled(log.TraceLevel) {
		return
	}
	fields := log.Fields{
		"span":     s.Name(),
		"trace_id": s.SpanContext().TraceID().String(),
		"duration": s.EndTime().Sub(s.StartTime()).String(),
		"status":   s.Status().Code.String(),
	}
	for _, attr := range s.Attributes() {
		fields[string(attr.Key)] = attr.Value.Emit()
	}
	p.logger.WithFields(fields).Trace("span finished")
}

func (p *logSpanProcessor) Shutdown(context.Context) error { return nil }

func (p *logSpanProcessor) ForceFlush(context.Context) error { return nil }
