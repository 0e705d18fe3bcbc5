package strand

import "encoding/json"

// Role identifies which side of the conversation produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one replayable conversation turn: an ordered list of parts
// attributed to a role. Turns are what the backend's live transcript is
// re-seeded with on session resume.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is one element of a turn. Exactly one field is set: Text for plain
// content, Call for a model-issued tool invocation, Response for a tool
// result fed back to the model, or Opaque for payloads this runtime passes
// through without interpreting.
type Part struct {
	Text     string            `json:"text,omitempty"`
	Call     *FunctionCall     `json:"functionCall,omitempty"`
	Response *FunctionResponse `json:"functionResponse,omitempty"`
	Opaque   json.RawMessage   `json:"opaque,omitempty"`
}

// FunctionCall is a model-issued request to invoke a named tool.
type FunctionCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// FunctionResponse carries a tool result back to the model, keyed to the
// originating call id.
type FunctionResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"isError,omitempty"`
}

// TextPart wraps plain text as a Part.
func TextPart(s string) Part { return Part{Text: s} }

// CallPart wraps a function call as a Part.
func CallPart(fc FunctionCall) Part { return Part{Call: &fc} }

// ResponsePart wraps a function response as a Part.
func ResponsePart(fr FunctionResponse) Part { return Part{Response: &fr} }

// OpaquePart wraps an uninterpreted payload as a Part.
func OpaquePart(raw json.RawMessage) Part { return Part{Opaque: raw} }

// cloneTurns deep-copies a turn slice so snapshots handed to tool actions
// never alias the live transcript's backing arrays.
func cloneTurns(turns []Turn) []Turn {
	if len(turns) == 0 {
		return nil
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = Turn{Role: t.Role, Parts: make([]Part, len(t.Parts))}
		copy(out[i].Parts, t.Parts)
	}
	return out
}
