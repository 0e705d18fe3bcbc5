package strand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// scriptedRound describes one model reply: accumulated text plus the tool
// calls the model issues.
type scriptedRound struct {
	text  string
	calls []FunctionCall
	err   error
}

// mockBackend replays scripted rounds, emitting text in two deltas to
// exercise accumulation. It records everything the loop hands it.
type mockBackend struct {
	mu     sync.Mutex
	rounds []scriptedRound
	idx    int

	instructions     string
	instructionsSets int
	resumed          []Turn
	sent             [][]Part
}

var _ Backend = (*mockBackend)(nil)

func (m *mockBackend) SendStream(_ context.Context, _ string, parts []Part, ch chan<- Event) error {
	m.mu.Lock()
	m.sent = append(m.sent, parts)
	if m.idx >= len(m.rounds) {
		m.mu.Unlock()
		return errors.New("mock backend: no scripted round left")
	}
	round := m.rounds[m.idx]
	m.idx++
	m.mu.Unlock()

	if round.err != nil {
		return round.err
	}
	if round.text != "" {
		half := len(round.text) / 2
		ch <- Event{Kind: EventTextDelta, Content: round.text[:half]}
		ch <- Event{Kind: EventTextDelta, Content: round.text[half:]}
	}
	for i := range round.calls {
		call := round.calls[i]
		ch <- Event{Kind: EventToolCall, Call: &call}
	}
	return nil
}

func (m *mockBackend) SetInstructions(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions = text
	m.instructionsSets++
}

func (m *mockBackend) Resume(history []Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumed = cloneTurns(history)
}

// echoTool returns "echo: " plus its msg argument.
func echoTool() ToolDefinition {
	return ToolDefinition{
		Name:        "echo",
		Description: "Echo the message back",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"msg":{"type":"string"}},"required":["msg"]}`),
		Action: func(_ context.Context, args json.RawMessage, _ *SessionContext) (any, error) {
			var p struct {
				Msg string `json:"msg"`
			}
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, Toolf("invalid args: %v", err)
			}
			return "echo: " + p.Msg, nil
		},
	}
}

// failTool fails with a plain error; set sendErrors to flip the
// SendErrorsToModel flag.
func failTool(sendErrors bool) ToolDefinition {
	return ToolDefinition{
		Name:              "fail",
		Description:       "Always fails",
		SendErrorsToModel: sendErrors,
		Action: func(_ context.Context, _ json.RawMessage, _ *SessionContext) (any, error) {
			return nil, errors.New("tool broken")
		},
	}
}

// barrierTool blocks until all concurrent calls have started. If tools run
// sequentially, this deadlocks (caught by timeout).
func barrierTool(name string, barrier chan struct{}, started chan struct{}) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: "barrier tool",
		Action: func(_ context.Context, _ json.RawMessage, _ *SessionContext) (any, error) {
			started <- struct{}{} // signal: I have started
			<-barrier             // wait for release
			return "done from " + name, nil
		},
	}
}

// countingResolver counts credential resolutions and optionally fails.
type countingResolver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *countingResolver) Resolve(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

// drainEvents collects every event until the channel closes.
func drainEvents(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func callOf(name string, args string) FunctionCall {
	return FunctionCall{ID: "call-" + name, Name: name, Args: json.RawMessage(args)}
}

// responseContent pulls the function-response content from a part slice,
// failing loudly when the shape is off.
func responseContent(parts []Part, i int) (string, error) {
	if i >= len(parts) || parts[i].Response == nil {
		return "", fmt.Errorf("part %d is not a function response (have %d parts)", i, len(parts))
	}
	return parts[i].Response.Content, nil
}
