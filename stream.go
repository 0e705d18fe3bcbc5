package strand

import "encoding/json"

// EventKind identifies the kind of streaming event.
type EventKind string

const (
	// EventTextDelta carries an incremental text chunk from the model.
	EventTextDelta EventKind = "text-delta"
	// EventToolCall signals the model requested a tool invocation.
	EventToolCall EventKind = "tool-call"
	// EventToolResult carries the result of a completed tool call.
	// Emitted by the turn loop, not the backend.
	EventToolResult EventKind = "tool-result"
	// EventCompressed signals the backend compressed the live context.
	EventCompressed EventKind = "context-compressed"
	// EventOther carries a backend-defined payload the runtime passes
	// through without interpreting.
	EventOther EventKind = "other"
)

// Event is a typed streaming event. The backend produces text-delta,
// tool-call, context-compressed, and other events in generation order; the
// turn loop re-emits all of them to the caller unmodified and interleaves
// tool-result events of its own as rounds complete.
type Event struct {
	// Kind identifies the event kind.
	Kind EventKind `json:"kind"`
	// Content carries the text delta (text-delta) or tool result content
	// (tool-result).
	Content string `json:"content,omitempty"`
	// Call is the requested invocation (tool-call) or the call a
	// tool-result answers.
	Call *FunctionCall `json:"call,omitempty"`
	// Payload is the uninterpreted body of context-compressed and other
	// events.
	Payload json.RawMessage `json:"payload,omitempty"`
}
