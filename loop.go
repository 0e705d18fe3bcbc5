package strand

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TurnResult summarizes a completed turn.
type TurnResult struct {
	// Text is the final model text of the turn.
	Text string
	// Rounds is the number of tool-execution rounds that ran.
	Rounds int
}

// runTurn drives the streaming turn loop: stream a model reply, execute any
// tool calls, feed the results back, repeat until a reply carries no calls.
// ch, when non-nil, receives every event and is closed on all exits.
func (a *Agent) runTurn(ctx context.Context, parts []Part, ch chan<- Event) (*TurnResult, error) {
	if ch != nil {
		defer close(ch)
	}

	var turnSpan Span
	if a.tracer != nil {
		ctx, turnSpan = a.tracer.Start(ctx, "agent.turn",
			SpanAttr{Key: "agent.name", Value: a.name},
			SpanAttr{Key: "session.id", Value: a.sessionID},
		)
		defer turnSpan.End()
	}

	res := &TurnResult{}
	for round := 0; ; round++ {
		if a.maxRounds > 0 && round >= a.maxRounds {
			err := &ErrMaxRounds{Rounds: a.maxRounds}
			recordSpanError(turnSpan, err)
			return res, err
		}

		if err := a.hooks.RunBeforeSend(ctx, &parts); err != nil {
			return a.finishHalt(res, turnSpan, err)
		}

		out, err := a.streamRound(ctx, parts, ch)
		if err != nil {
			recordSpanError(turnSpan, err)
			return res, fmt.Errorf("stream round %d: %w", round, err)
		}

		if err := a.hooks.RunAfterStream(ctx, &out); err != nil {
			return a.finishHalt(res, turnSpan, err)
		}

		var modelParts []Part
		if out.Text != "" {
			modelParts = append(modelParts, TextPart(out.Text))
		}
		for _, call := range out.Calls {
			modelParts = append(modelParts, CallPart(call))
		}
		if len(modelParts) > 0 {
			a.transcript = append(a.transcript, Turn{Role: RoleModel, Parts: modelParts})
		}
		if out.Text != "" {
			res.Text = out.Text
		}

		if len(out.Calls) == 0 {
			res.Rounds = round
			return res, nil
		}

		a.logger.Debug("executing tools", "agent", a.name, "round", round, "calls", len(out.Calls))

		respParts, err := a.executeRound(ctx, round, out.Calls, ch)
		if err != nil {
			var halt *Halt
			if errors.As(err, &halt) {
				return a.finishHalt(res, turnSpan, err)
			}
			recordSpanError(turnSpan, err)
			return res, err
		}

		a.transcript = append(a.transcript, Turn{Role: RoleUser, Parts: respParts})
		parts = respParts
		res.Rounds = round + 1
	}
}

// streamRound sends one batch of parts and consumes the backend's event
// stream to completion, forwarding to ch and accumulating text and tool
// calls. The backend owns appending to its live transcript; this side only
// mirrors.
func (a *Agent) streamRound(ctx context.Context, parts []Part, ch chan<- Event) (ModelOutput, error) {
	events := make(chan Event, 64)
	done := make(chan error, 1)
	go func() {
		done <- a.backend.SendStream(ctx, a.sessionID, parts, events)
		close(events)
	}()

	var out ModelOutput
	var text strings.Builder
	for ev := range events {
		if ch != nil {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
		switch ev.Kind {
		case EventTextDelta:
			text.WriteString(ev.Content)
		case EventToolCall:
			if ev.Call != nil {
				call := *ev.Call
				if call.ID == "" {
					call.ID = NewID()
				}
				out.Calls = append(out.Calls, call)
			}
		}
	}

	if err := <-done; err != nil {
		return ModelOutput{}, err
	}
	if err := ctx.Err(); err != nil {
		return ModelOutput{}, err
	}
	out.Text = text.String()
	return out, nil
}

// executeRound runs one round's tool calls through the scheduler with a
// freshly bound resolver and emits a result event per completion.
func (a *Agent) executeRound(ctx context.Context, round int, calls []FunctionCall, ch chan<- Event) ([]Part, error) {
	rctx := ctx
	var span Span
	if a.tracer != nil {
		rctx, span = a.tracer.Start(ctx, "agent.tools",
			SpanAttr{Key: "round", Value: round},
			SpanAttr{Key: "call.count", Value: len(calls)},
		)
		defer span.End()
	}

	sc := a.newSessionContext()
	resolve := bindRegistry(a.registry, sc, a.hooks)

	comps, err := a.scheduler.Run(rctx, calls, resolve)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if len(comps) != len(calls) {
		err := fmt.Errorf("scheduler returned %d completions for %d calls", len(comps), len(calls))
		recordSpanError(span, err)
		return nil, err
	}

	respParts := make([]Part, len(comps))
	for i, comp := range comps {
		respParts[i] = comp.Response
		if ch != nil && comp.Response.Response != nil {
			ev := Event{Kind: EventToolResult, Content: comp.Response.Response.Content, Call: &calls[i]}
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
	}
	return respParts, nil
}

// finishHalt ends the turn successfully when a hook returned *Halt,
// propagating any other hook error.
func (a *Agent) finishHalt(res *TurnResult, span Span, err error) (*TurnResult, error) {
	var halt *Halt
	if errors.As(err, &halt) {
		if halt.Text != "" {
			res.Text = halt.Text
			a.transcript = append(a.transcript, Turn{Role: RoleModel, Parts: []Part{TextPart(halt.Text)}})
		}
		a.logger.Debug("turn halted by hook", "agent", a.name)
		return res, nil
	}
	recordSpanError(span, err)
	return res, err
}

func recordSpanError(span Span, err error) {
	if span != nil && err != nil {
		span.Error(err)
	}
}
