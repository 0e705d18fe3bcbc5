package strand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSendPromptSimple(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{{text: "hello there"}}}
	agent := New("test", backend)

	out, err := agent.SendPrompt(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello there" {
		t.Errorf("output = %q, want %q", out, "hello there")
	}
	if len(backend.sent) != 1 {
		t.Fatalf("backend received %d sends, want 1", len(backend.sent))
	}
	if backend.sent[0][0].Text != "hi" {
		t.Errorf("prompt part = %q, want %q", backend.sent[0][0].Text, "hi")
	}
}

func TestSendPromptToolRound(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{
		{text: "let me check", calls: []FunctionCall{callOf("echo", `{"msg":"ping"}`)}},
		{text: "the answer is ping"},
	}}
	agent := New("test", backend, WithTools(echoTool()))

	res, err := agent.SendPromptStream(context.Background(), "go", make(chan Event, 64))
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "the answer is ping" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Rounds != 1 {
		t.Errorf("rounds = %d, want 1", res.Rounds)
	}

	// Second send carries the function response back to the model.
	if len(backend.sent) != 2 {
		t.Fatalf("backend received %d sends, want 2", len(backend.sent))
	}
	content, err := responseContent(backend.sent[1], 0)
	if err != nil {
		t.Fatal(err)
	}
	if content != "echo: ping" {
		t.Errorf("fed-back result = %q, want %q", content, "echo: ping")
	}
}

func TestStreamEventsForwardedAndClosed(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{
		{text: "thinking", calls: []FunctionCall{callOf("echo", `{"msg":"x"}`)}},
		{text: "done"},
	}}
	agent := New("test", backend, WithTools(echoTool()))

	ch := make(chan Event, 64)
	done := make(chan struct{})
	var events []Event
	go func() {
		events = drainEvents(ch)
		close(done)
	}()

	if _, err := agent.SendPromptStream(context.Background(), "go", ch); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event channel never closed")
	}

	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	// Two deltas, the call, its result, then the final deltas.
	want := []EventKind{EventTextDelta, EventTextDelta, EventToolCall, EventToolResult, EventTextDelta, EventTextDelta}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}

	var text strings.Builder
	for _, ev := range events[:2] {
		text.WriteString(ev.Content)
	}
	if text.String() != "thinking" {
		t.Errorf("accumulated deltas = %q", text.String())
	}
	if events[3].Content != "echo: x" {
		t.Errorf("tool result event content = %q", events[3].Content)
	}
}

func TestFatalToolErrorAbortsTurn(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{
		{calls: []FunctionCall{callOf("fail", `{}`)}},
		{text: "never reached"},
	}}
	agent := New("test", backend, WithTools(failTool(false)))

	_, err := agent.SendPrompt(context.Background(), "go")
	if err == nil {
		t.Fatal("expected error from unopted tool failure")
	}
	if !strings.Contains(err.Error(), "tool broken") {
		t.Errorf("error = %v", err)
	}
	if len(backend.sent) != 1 {
		t.Errorf("turn continued after fatal tool error: %d sends", len(backend.sent))
	}
}

func TestSendErrorsToModelFlag(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{
		{calls: []FunctionCall{callOf("fail", `{}`)}},
		{text: "recovered"},
	}}
	agent := New("test", backend, WithTools(failTool(true)))

	out, err := agent.SendPrompt(context.Background(), "go")
	if err != nil {
		t.Fatal(err)
	}
	if out != "recovered" {
		t.Errorf("output = %q", out)
	}
	content, err := responseContent(backend.sent[1], 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(content, "error: ") || !strings.Contains(content, "tool broken") {
		t.Errorf("model-visible error = %q", content)
	}
	if !backend.sent[1][0].Response.IsError {
		t.Error("response part not flagged as error")
	}
}

func TestToolErrorAlwaysRecoverable(t *testing.T) {
	def := ToolDefinition{
		Name: "picky",
		Action: func(_ context.Context, _ json.RawMessage, _ *SessionContext) (any, error) {
			return nil, Toolf("bad input")
		},
	}
	backend := &mockBackend{rounds: []scriptedRound{
		{calls: []FunctionCall{callOf("picky", `{}`)}},
		{text: "ok"},
	}}
	agent := New("test", backend, WithTools(def))

	if _, err := agent.SendPrompt(context.Background(), "go"); err != nil {
		t.Fatalf("ToolError should not abort the turn: %v", err)
	}
	content, err := responseContent(backend.sent[1], 0)
	if err != nil {
		t.Fatal(err)
	}
	if content != "error: bad input" {
		t.Errorf("content = %q", content)
	}
}

func TestUnknownToolBecomesErrorResult(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{
		{calls: []FunctionCall{callOf("nope", `{}`)}},
		{text: "moving on"},
	}}
	agent := New("test", backend)

	out, err := agent.SendPrompt(context.Background(), "go")
	if err != nil {
		t.Fatal(err)
	}
	if out != "moving on" {
		t.Errorf("output = %q", out)
	}
	content, err := responseContent(backend.sent[1], 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, "unknown tool") {
		t.Errorf("content = %q", content)
	}
}

func TestMaxRounds(t *testing.T) {
	// The model never stops asking for tools.
	rounds := make([]scriptedRound, 10)
	for i := range rounds {
		rounds[i] = scriptedRound{calls: []FunctionCall{callOf("echo", `{"msg":"again"}`)}}
	}
	backend := &mockBackend{rounds: rounds}
	agent := New("test", backend, WithTools(echoTool()), WithMaxRounds(3))

	_, err := agent.SendPrompt(context.Background(), "go")
	var maxed *ErrMaxRounds
	if !errors.As(err, &maxed) {
		t.Fatalf("error = %v, want ErrMaxRounds", err)
	}
	if maxed.Rounds != 3 {
		t.Errorf("rounds = %d, want 3", maxed.Rounds)
	}
}

func TestParallelToolExecution(t *testing.T) {
	const numTools = 3
	barrier := make(chan struct{})
	started := make(chan struct{}, numTools)

	var defs []ToolDefinition
	var calls []FunctionCall
	for i := 0; i < numTools; i++ {
		name := fmt.Sprintf("tool_%d", i)
		defs = append(defs, barrierTool(name, barrier, started))
		calls = append(calls, callOf(name, `{}`))
	}

	backend := &mockBackend{rounds: []scriptedRound{
		{calls: calls},
		{text: "all tools completed"},
	}}
	agent := New("parallel", backend, WithTools(defs...))

	done := make(chan struct{})
	var out string
	var execErr error
	go func() {
		out, execErr = agent.SendPrompt(context.Background(), "go")
		close(done)
	}()

	// All 3 tools must start before any can finish.
	for i := 0; i < numTools; i++ {
		select {
		case <-started:
		case <-time.After(5 * time.Second):
			t.Fatal("tool did not start — tools likely running sequentially")
		}
	}
	close(barrier)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("agent did not finish in time")
	}
	if execErr != nil {
		t.Fatal(execErr)
	}
	if out != "all tools completed" {
		t.Errorf("output = %q", out)
	}

	// Results feed back in request order regardless of completion order.
	for i := 0; i < numTools; i++ {
		content, err := responseContent(backend.sent[1], i)
		if err != nil {
			t.Fatal(err)
		}
		want := fmt.Sprintf("done from tool_%d", i)
		if content != want {
			t.Errorf("result %d = %q, want %q", i, content, want)
		}
	}
}

func TestInstructionsResolvedOnce(t *testing.T) {
	calls := 0
	backend := &mockBackend{rounds: []scriptedRound{
		{text: "one", calls: []FunctionCall{callOf("echo", `{"msg":"a"}`)}},
		{text: "two"},
		{text: "three"},
	}}
	agent := New("test", backend,
		WithTools(echoTool()),
		WithInstructionsFunc(func(_ context.Context, _ *SessionContext) (string, error) {
			calls++
			return "be helpful", nil
		}),
	)

	// First send spans two rounds; second send is another turn.
	if _, err := agent.SendPrompt(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := agent.SendPrompt(context.Background(), "second"); err != nil {
		t.Fatal(err)
	}

	if calls != 1 {
		t.Errorf("instructions resolver ran %d times, want 1", calls)
	}
	if backend.instructionsSets != 1 {
		t.Errorf("SetInstructions called %d times, want 1", backend.instructionsSets)
	}
	if backend.instructions != "be helpful" {
		t.Errorf("instructions = %q", backend.instructions)
	}
}

func TestInitErrorCachedAcrossSends(t *testing.T) {
	resolver := &countingResolver{err: errors.New("no credentials")}
	backend := &mockBackend{rounds: []scriptedRound{{text: "unreachable"}}}
	agent := New("test", backend, WithCredentialResolver(resolver))

	for i := 0; i < 2; i++ {
		_, err := agent.SendPrompt(context.Background(), "go")
		var initErr *InitError
		if !errors.As(err, &initErr) {
			t.Fatalf("send %d: error = %v, want InitError", i, err)
		}
		if initErr.Stage != "credentials" {
			t.Errorf("stage = %q", initErr.Stage)
		}
	}
	if resolver.calls != 1 {
		t.Errorf("resolver ran %d times, want 1 (failure must be cached, not retried)", resolver.calls)
	}
	if len(backend.sent) != 0 {
		t.Errorf("backend reached despite init failure")
	}
}

func TestSkillsAppendedToInstructions(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{{text: "ok"}}}
	agent := New("test", backend,
		WithInstructions("base"),
		WithSkills(staticSkills{skills: []Skill{{Name: "s1", Instructions: "always cite sources"}}}),
	)

	if _, err := agent.SendPrompt(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(backend.instructions, "base") || !strings.Contains(backend.instructions, "always cite sources") {
		t.Errorf("instructions = %q", backend.instructions)
	}
}

type staticSkills struct {
	skills []Skill
	errs   []error
}

func (s staticSkills) Load(_ context.Context) ([]Skill, []error) { return s.skills, s.errs }

func TestSkillLoadErrorsAreNotFatal(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{{text: "ok"}}}
	agent := New("test", backend,
		WithSkills(staticSkills{
			skills: []Skill{{Name: "good", Instructions: "loaded fine"}},
			errs:   []error{errors.New("bad skill file")},
		}),
	)
	if _, err := agent.SendPrompt(context.Background(), "go"); err != nil {
		t.Fatalf("partial skill failure must not abort init: %v", err)
	}
	if !strings.Contains(backend.instructions, "loaded fine") {
		t.Errorf("surviving skill not applied: %q", backend.instructions)
	}
}

type haltingHook struct {
	text string
}

func (h haltingHook) BeforeSend(_ context.Context, _ *[]Part) error {
	return &Halt{Text: h.text}
}

func TestHaltHookEndsTurn(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{{text: "unreachable"}}}
	agent := New("test", backend, WithHooks(haltingHook{text: "stopped by policy"}))

	out, err := agent.SendPrompt(context.Background(), "go")
	if err != nil {
		t.Fatal(err)
	}
	if out != "stopped by policy" {
		t.Errorf("output = %q", out)
	}
	if len(backend.sent) != 0 {
		t.Errorf("backend called despite halt")
	}
}

func TestBackendErrorPropagates(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{{err: errors.New("stream reset")}}}
	agent := New("test", backend)

	_, err := agent.SendPrompt(context.Background(), "go")
	if err == nil || !strings.Contains(err.Error(), "stream reset") {
		t.Errorf("error = %v", err)
	}
}

func TestSyntheticCallID(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{
		{calls: []FunctionCall{{Name: "echo", Args: json.RawMessage(`{"msg":"x"}`)}}},
		{text: "ok"},
	}}
	agent := New("test", backend, WithTools(echoTool()))

	if _, err := agent.SendPrompt(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	resp := backend.sent[1][0].Response
	if resp == nil || resp.ID == "" {
		t.Error("missing synthesized call id on function response")
	}
}

func TestTranscriptSnapshotVisibleToTools(t *testing.T) {
	var seen []Turn
	spy := ToolDefinition{
		Name: "spy",
		Action: func(_ context.Context, _ json.RawMessage, sc *SessionContext) (any, error) {
			seen = cloneTurns(sc.Transcript)
			// Mutation of the snapshot must not leak into the agent.
			if len(sc.Transcript) > 0 {
				sc.Transcript[0].Parts[0].Text = "tampered"
			}
			return "ok", nil
		},
	}
	backend := &mockBackend{rounds: []scriptedRound{
		{text: "calling", calls: []FunctionCall{callOf("spy", `{}`)}},
		{text: "done"},
	}}
	agent := New("test", backend, WithTools(spy))

	if _, err := agent.SendPrompt(context.Background(), "the prompt"); err != nil {
		t.Fatal(err)
	}

	// Snapshot contains the user prompt and the model turn that issued the call.
	if len(seen) != 2 {
		t.Fatalf("snapshot has %d turns, want 2", len(seen))
	}
	if seen[0].Parts[0].Text != "the prompt" {
		t.Errorf("snapshot user turn = %q", seen[0].Parts[0].Text)
	}
	if agent.transcript[0].Parts[0].Text != "the prompt" {
		t.Errorf("agent transcript mutated through snapshot: %q", agent.transcript[0].Parts[0].Text)
	}
}
