package observer

import (
	"context"
	"time"

	strand "github.com/calderhq/strand"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span names emitted by the strand runtime's tracer calls.
const (
	spanTurn     = "agent.turn"
	spanTools    = "agent.tools"
	spanDelegate = "agent.delegate"
)

// NewInstrumentedTracer returns a strand.Tracer that exports spans like
// NewTracer and additionally drives the Instruments from the span
// lifecycle: turn spans feed the turn counter and duration histogram,
// tool-batch spans feed the execution counter and duration histogram, and
// delegation spans feed the delegation counter. Wire it with
// strand.WithTracer after observer.Init.
func NewInstrumentedTracer(inst *Instruments) strand.Tracer {
	return &meteredTracer{inner: inst.Tracer, inst: inst}
}

type meteredTracer struct {
	inner trace.Tracer
	inst  *Instruments
}

func (t *meteredTracer) Start(ctx context.Context, name string, attrs ...strand.SpanAttr) (context.Context, strand.Span) {
	otelAttrs := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		otelAttrs[i] = toOTELAttr(a)
	}
	ctx, span := t.inner.Start(ctx, name, trace.WithAttributes(otelAttrs...))

	switch name {
	case spanDelegate:
		t.inst.Delegations.Add(ctx, 1)
	case spanTools:
		for _, a := range attrs {
			if a.Key == "call.count" {
				if n, ok := a.Value.(int); ok {
					t.inst.ToolExecutions.Add(ctx, int64(n))
				}
			}
		}
	}

	return ctx, &meteredSpan{
		otelSpan: otelSpan{inner: span},
		ctx:      ctx,
		name:     name,
		start:    time.Now(),
		inst:     t.inst,
	}
}

// meteredSpan records durations when the span it shadows ends.
type meteredSpan struct {
	otelSpan
	ctx   context.Context
	name  string
	start time.Time
	inst  *Instruments
}

func (s *meteredSpan) End() {
	elapsed := float64(time.Since(s.start)) / float64(time.Millisecond)
	switch s.name {
	case spanTurn:
		s.inst.Turns.Add(s.ctx, 1)
		s.inst.TurnDuration.Record(s.ctx, elapsed)
	case spanTools:
		s.inst.ToolDuration.Record(s.ctx, elapsed)
	}
	s.otelSpan.End()
}

// compile-time checks
var (
	_ strand.Tracer = (*meteredTracer)(nil)
	_ strand.Span   = (*meteredSpan)(nil)
)
