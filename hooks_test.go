package strand

import (
	"context"
	"errors"
	"testing"
)

type recordingHook struct {
	log *[]string
}

func (h recordingHook) BeforeSend(_ context.Context, parts *[]Part) error {
	*h.log = append(*h.log, "before")
	return nil
}

func (h recordingHook) AfterStream(_ context.Context, _ *ModelOutput) error {
	*h.log = append(*h.log, "after-stream")
	return nil
}

func (h recordingHook) AfterTool(_ context.Context, _ FunctionCall, _ *Part) error {
	*h.log = append(*h.log, "after-tool")
	return nil
}

type streamOnlyHook struct {
	rewrite string
}

func (h streamOnlyHook) AfterStream(_ context.Context, out *ModelOutput) error {
	out.Text = h.rewrite
	return nil
}

func TestHookChainRejectsNonHooks(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Add accepted a value implementing no hook interface")
		}
	}()
	NewHookChain().Add(struct{}{})
}

func TestHookChainPhaseDispatch(t *testing.T) {
	var log []string
	c := NewHookChain()
	c.Add(recordingHook{log: &log})
	c.Add(streamOnlyHook{rewrite: "rewritten"})

	parts := []Part{TextPart("x")}
	if err := c.RunBeforeSend(context.Background(), &parts); err != nil {
		t.Fatal(err)
	}
	out := ModelOutput{Text: "original"}
	if err := c.RunAfterStream(context.Background(), &out); err != nil {
		t.Fatal(err)
	}
	part := TextPart("y")
	if err := c.RunAfterTool(context.Background(), FunctionCall{}, &part); err != nil {
		t.Fatal(err)
	}

	want := []string{"before", "after-stream", "after-tool"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	if out.Text != "rewritten" {
		t.Errorf("text = %q", out.Text)
	}
}

type failingStreamHook struct{}

func (failingStreamHook) AfterStream(_ context.Context, _ *ModelOutput) error {
	return errors.New("blocked by policy")
}

func TestHookErrorStopsChain(t *testing.T) {
	c := NewHookChain()
	c.Add(failingStreamHook{})
	c.Add(streamOnlyHook{rewrite: "never applied"})

	out := ModelOutput{Text: "original"}
	err := c.RunAfterStream(context.Background(), &out)
	if err == nil || err.Error() != "blocked by policy" {
		t.Errorf("err = %v", err)
	}
	if out.Text != "original" {
		t.Errorf("later hook ran after failure: %q", out.Text)
	}
}

func TestNilChainIsSafe(t *testing.T) {
	var c *HookChain
	parts := []Part{}
	if err := c.RunBeforeSend(context.Background(), &parts); err != nil {
		t.Error(err)
	}
	if err := c.RunAfterStream(context.Background(), &ModelOutput{}); err != nil {
		t.Error(err)
	}
	part := Part{}
	if err := c.RunAfterTool(context.Background(), FunctionCall{}, &part); err != nil {
		t.Error(err)
	}
}

func TestAfterStreamHookFiltersCalls(t *testing.T) {
	backend := &mockBackend{rounds: []scriptedRound{
		{text: "trying", calls: []FunctionCall{callOf("echo", `{"msg":"x"}`)}},
	}}
	agent := New("test", backend, WithTools(echoTool()), WithHooks(callDroppingHook{}))

	out, err := agent.SendPrompt(context.Background(), "go")
	if err != nil {
		t.Fatal(err)
	}
	// With the call filtered out, the first reply ends the turn.
	if out != "trying" {
		t.Errorf("output = %q", out)
	}
	if len(backend.sent) != 1 {
		t.Errorf("tool round ran despite filtered calls: %d sends", len(backend.sent))
	}
}

type callDroppingHook struct{}

func (callDroppingHook) AfterStream(_ context.Context, out *ModelOutput) error {
	out.Calls = nil
	return nil
}
