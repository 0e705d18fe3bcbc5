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

// slowResolver finishes later calls first so order preservation is actually
// exercised.
func slowResolver(t *testing.T) ResolveFunc {
	t.Helper()
	return func(name string) (BoundTool, bool) {
		if name == "missing" {
			return nil, false
		}
		return func(_ context.Context, call FunctionCall) (Part, error) {
			var p struct {
				Delay int `json:"delay"`
			}
			_ = json.Unmarshal(call.Args, &p)
			time.Sleep(time.Duration(p.Delay) * time.Millisecond)
			return ResponsePart(FunctionResponse{ID: call.ID, Name: call.Name, Content: "done " + call.Name}), nil
		}, true
	}
}

func TestPoolSchedulerPreservesOrder(t *testing.T) {
	calls := []FunctionCall{
		{ID: "1", Name: "slow", Args: json.RawMessage(`{"delay":50}`)},
		{ID: "2", Name: "medium", Args: json.RawMessage(`{"delay":20}`)},
		{ID: "3", Name: "fast", Args: json.RawMessage(`{"delay":1}`)},
	}

	comps, err := NewPoolScheduler().Run(context.Background(), calls, slowResolver(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(comps) != 3 {
		t.Fatalf("got %d completions", len(comps))
	}
	for i, want := range []string{"done slow", "done medium", "done fast"} {
		if comps[i].Response.Response.Content != want {
			t.Errorf("completion %d = %q, want %q", i, comps[i].Response.Response.Content, want)
		}
	}
}

func TestPoolSchedulerSingleCallFastPath(t *testing.T) {
	calls := []FunctionCall{{ID: "1", Name: "only", Args: json.RawMessage(`{}`)}}
	comps, err := NewPoolScheduler().Run(context.Background(), calls, slowResolver(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(comps) != 1 || comps[0].Response.Response.Content != "done only" {
		t.Errorf("comps = %+v", comps)
	}
}

func TestPoolSchedulerEmptyBatch(t *testing.T) {
	comps, err := NewPoolScheduler().Run(context.Background(), nil, slowResolver(t))
	if err != nil || comps != nil {
		t.Errorf("got %v, %v", comps, err)
	}
}

func TestPoolSchedulerUnknownTool(t *testing.T) {
	calls := []FunctionCall{
		{ID: "1", Name: "missing"},
		{ID: "2", Name: "ok", Args: json.RawMessage(`{}`)},
	}
	comps, err := NewPoolScheduler().Run(context.Background(), calls, slowResolver(t))
	if err != nil {
		t.Fatal(err)
	}
	first := comps[0].Response.Response
	if !first.IsError || !strings.Contains(first.Content, "unknown tool") {
		t.Errorf("unknown tool result = %+v", first)
	}
	if comps[1].Response.Response.Content != "done ok" {
		t.Errorf("second = %+v", comps[1].Response.Response)
	}
}

func TestPoolSchedulerPanicRecovery(t *testing.T) {
	resolve := func(string) (BoundTool, bool) {
		return func(_ context.Context, _ FunctionCall) (Part, error) {
			panic("boom")
		}, true
	}
	calls := []FunctionCall{{ID: "1", Name: "bomb"}, {ID: "2", Name: "bomb"}}
	comps, err := NewPoolScheduler().Run(context.Background(), calls, resolve)
	if err != nil {
		t.Fatal(err)
	}
	for i, comp := range comps {
		resp := comp.Response.Response
		if !resp.IsError || !strings.Contains(resp.Content, "panic") {
			t.Errorf("completion %d = %+v", i, resp)
		}
	}
}

func TestPoolSchedulerFirstErrorAborts(t *testing.T) {
	resolve := func(name string) (BoundTool, bool) {
		return func(_ context.Context, call FunctionCall) (Part, error) {
			if call.ID == "2" {
				return Part{}, errors.New("fatal tool failure")
			}
			return ResponsePart(FunctionResponse{ID: call.ID, Name: call.Name, Content: "ok"}), nil
		}, true
	}
	calls := []FunctionCall{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}, {ID: "3", Name: "c"}}
	_, err := NewPoolScheduler().Run(context.Background(), calls, resolve)
	if err == nil || !strings.Contains(err.Error(), "fatal tool failure") {
		t.Errorf("err = %v", err)
	}
}

func TestPoolSchedulerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	resolve := func(string) (BoundTool, bool) {
		return func(ctx context.Context, call FunctionCall) (Part, error) {
			select {
			case <-ctx.Done():
				return Part{}, ctx.Err()
			case <-time.After(10 * time.Second):
				return ResponsePart(FunctionResponse{ID: call.ID}), nil
			}
		}, true
	}

	var calls []FunctionCall
	for i := 0; i < 4; i++ {
		calls = append(calls, FunctionCall{ID: fmt.Sprint(i), Name: "wait"})
	}

	done := make(chan error, 1)
	go func() {
		_, err := NewPoolScheduler().Run(ctx, calls, resolve)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not observe cancellation")
	}
}
