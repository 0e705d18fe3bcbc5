package strand

import (
	"context"
	"fmt"
)

// BeforeSendHook runs before parts are sent to the backend. Implementations
// can rewrite the outgoing parts or return an error to halt the turn.
// Return *Halt to end the turn with a canned final text.
// Must be safe for concurrent use.
type BeforeSendHook interface {
	BeforeSend(ctx context.Context, parts *[]Part) error
}

// ModelOutput is the buffered result of one streamed model reply: the
// accumulated text and the tool calls extracted from it.
type ModelOutput struct {
	Text  string
	Calls []FunctionCall
}

// AfterStreamHook runs after a model reply has been fully streamed, before
// any tool execution. Implementations can rewrite the text or filter the
// extracted tool calls, or return an error to halt the turn.
// Must be safe for concurrent use.
type AfterStreamHook interface {
	AfterStream(ctx context.Context, out *ModelOutput) error
}

// AfterToolHook runs after each tool execution, before the result part is
// fed back to the model. Implementations can rewrite the response part or
// return an error to halt the turn.
// Must be safe for concurrent use.
type AfterToolHook interface {
	AfterTool(ctx context.Context, call FunctionCall, resp *Part) error
}

// HookChain holds an ordered list of lifecycle hooks and runs them at each
// phase. Hooks are type-asserted per phase — a hook only participates in
// phases whose interface it implements.
type HookChain struct {
	hooks []any
}

// NewHookChain creates an empty chain.
func NewHookChain() *HookChain {
	return &HookChain{}
}

// Add appends a hook. The hook must implement at least one of
// BeforeSendHook, AfterStreamHook, or AfterToolHook; panics otherwise.
func (c *HookChain) Add(h any) {
	_, isBefore := h.(BeforeSendHook)
	_, isStream := h.(AfterStreamHook)
	_, isTool := h.(AfterToolHook)
	if !isBefore && !isStream && !isTool {
		panic(fmt.Sprintf("strand: hook %T implements none of BeforeSendHook, AfterStreamHook, AfterToolHook", h))
	}
	c.hooks = append(c.hooks, h)
}

// RunBeforeSend runs all BeforeSendHook hooks in registration order.
// Stops and returns the first non-nil error.
func (c *HookChain) RunBeforeSend(ctx context.Context, parts *[]Part) error {
	if c == nil {
		return nil
	}
	for _, h := range c.hooks {
		if hook, ok := h.(BeforeSendHook); ok {
			if err := hook.BeforeSend(ctx, parts); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunAfterStream runs all AfterStreamHook hooks in registration order.
func (c *HookChain) RunAfterStream(ctx context.Context, out *ModelOutput) error {
	if c == nil {
		return nil
	}
	for _, h := range c.hooks {
		if hook, ok := h.(AfterStreamHook); ok {
			if err := hook.AfterStream(ctx, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunAfterTool runs all AfterToolHook hooks in registration order.
func (c *HookChain) RunAfterTool(ctx context.Context, call FunctionCall, resp *Part) error {
	if c == nil {
		return nil
	}
	for _, h := range c.hooks {
		if hook, ok := h.(AfterToolHook); ok {
			if err := hook.AfterTool(ctx, call, resp); err != nil {
				return err
			}
		}
	}
	return nil
}
