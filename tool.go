package strand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ToolAction is the work a tool performs. It receives the decoded call
// arguments and the current round's SessionContext. The return value is
// serialized for the model: strings pass through verbatim, anything else is
// rendered as indented JSON.
type ToolAction func(ctx context.Context, args json.RawMessage, sc *SessionContext) (any, error)

// ToolDefinition is a named, schema-described unit of work. Immutable once
// registered; the agent holds a read-only reference for its lifetime.
type ToolDefinition struct {
	Name        string
	Description string
	// InputSchema is a JSON Schema describing Args.
	InputSchema json.RawMessage
	Action      ToolAction
	// SendErrorsToModel converts any error from Action into a model-visible
	// error result instead of aborting the turn. A *ToolError or
	// *SubAgentError converts regardless of this flag.
	SendErrorsToModel bool
}

// ToolRegistry holds registered tool definitions keyed by name. Extended
// during agent initialization only; read-only afterwards.
type ToolRegistry struct {
	byName map[string]ToolDefinition
	order  []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{byName: make(map[string]ToolDefinition)}
}

// Add registers a tool. A duplicate name replaces the earlier registration.
func (r *ToolRegistry) Add(def ToolDefinition) {
	if _, exists := r.byName[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.byName[def.Name] = def
}

// Get returns the definition registered under name.
func (r *ToolRegistry) Get(name string) (ToolDefinition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int { return len(r.byName) }

// BoundTool executes one function call with a SessionContext already bound
// in. The per-round resolver hands these to the scheduler.
type BoundTool func(ctx context.Context, call FunctionCall) (Part, error)

// ResolveFunc maps a tool name to its bound executor for the current round.
type ResolveFunc func(name string) (BoundTool, bool)

// bindRegistry builds the per-round resolver: every registered tool is
// rebound to sc so actions see this round's transcript and timestamp. The
// returned closures are discarded with the round; the registry itself is
// never mutated.
func bindRegistry(r *ToolRegistry, sc *SessionContext, hooks *HookChain) ResolveFunc {
	return func(name string) (BoundTool, bool) {
		def, ok := r.byName[name]
		if !ok {
			return nil, false
		}
		return func(ctx context.Context, call FunctionCall) (Part, error) {
			return invokeTool(ctx, def, call, sc, hooks)
		}, true
	}
}

// invokeTool runs one tool action and converts the outcome into a
// function-response part. Recoverable failures become error-flagged
// responses; anything else propagates and aborts the turn.
func invokeTool(ctx context.Context, def ToolDefinition, call FunctionCall, sc *SessionContext, hooks *HookChain) (Part, error) {
	result, err := def.Action(ctx, normalizeArgs(call.Args), sc)

	resp := FunctionResponse{ID: call.ID, Name: call.Name}
	if err != nil {
		if !recoverable(err, def) {
			return Part{}, fmt.Errorf("tool %q: %w", call.Name, err)
		}
		resp.Content = "error: " + err.Error()
		resp.IsError = true
	} else {
		resp.Content = serializeResult(result)
	}

	part := ResponsePart(resp)
	if hooks != nil {
		if herr := hooks.RunAfterTool(ctx, call, &part); herr != nil {
			return Part{}, herr
		}
	}
	return part, nil
}

// recoverable reports whether a tool failure is rewritten into a
// model-visible error result rather than aborting the turn.
func recoverable(err error, def ToolDefinition) bool {
	if def.SendErrorsToModel {
		return true
	}
	var te *ToolError
	if errors.As(err, &te) {
		return true
	}
	var se *SubAgentError
	return errors.As(err, &se)
}

// normalizeArgs decodes arguments that arrived as a JSON-encoded string
// into their structured form. Anything already structured passes through.
func normalizeArgs(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if json.Valid([]byte(s)) {
			return json.RawMessage(s)
		}
	}
	return raw
}

// serializeResult renders a tool action's return value as text for the
// model. Strings pass through verbatim; nil becomes the empty string; any
// other value is rendered as indented JSON, falling back to fmt on
// unmarshalable values.
func serializeResult(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case []byte:
		return string(r)
	case json.RawMessage:
		return string(r)
	default:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(out)
	}
}
