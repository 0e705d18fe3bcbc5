package strand

import "fmt"

// ToolError is the designated recoverable tool failure. A tool action that
// returns (or wraps) a ToolError always produces a model-visible error
// result, regardless of the tool's SendErrorsToModel flag.
type ToolError struct {
	Message string
}

func (e *ToolError) Error() string { return e.Message }

// Toolf builds a ToolError with a formatted message.
func Toolf(format string, args ...any) *ToolError {
	return &ToolError{Message: fmt.Sprintf(format, args...)}
}

// InitError wraps a failure during lazy agent initialization (credential
// resolution, session resume, skill load). Fatal: it propagates out of the
// first send call and every send after it.
type InitError struct {
	Stage string
	Err   error
}

func (e *InitError) Error() string { return "init " + e.Stage + ": " + e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }

// TerminationReason classifies how a sub-agent run ended.
type TerminationReason string

const (
	// TerminateGoal means the sub-agent reached its goal; the only reason
	// that yields a successful tool result.
	TerminateGoal TerminationReason = "goal"
	// TerminateMaxTurns means the turn budget was exhausted.
	TerminateMaxTurns TerminationReason = "max_turns"
	// TerminateTimeout means the wall-clock budget was exhausted.
	TerminateTimeout TerminationReason = "timeout"
	// TerminateAborted means the run was cancelled from outside.
	TerminateAborted TerminationReason = "aborted"
	// TerminateError means the run failed with a fatal error.
	TerminateError TerminationReason = "error"
)

// SubAgentError reports a sub-agent run that ended for any reason other
// than reaching its goal. Always surfaced to the model as a tool error
// carrying the reason code, never silently swallowed.
type SubAgentError struct {
	Name   string
	Reason TerminationReason
	Err    error
}

func (e *SubAgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sub-agent %q terminated (%s): %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("sub-agent %q terminated (%s)", e.Name, e.Reason)
}

func (e *SubAgentError) Unwrap() error { return e.Err }

// ErrMaxRounds is returned by a send when the round budget configured via
// WithMaxRounds is exhausted before the model stops requesting tools.
type ErrMaxRounds struct {
	Rounds int
}

func (e *ErrMaxRounds) Error() string {
	return fmt.Sprintf("turn exceeded %d tool-execution rounds", e.Rounds)
}

// Halt signals from a lifecycle hook that the turn should end immediately
// with Text as the final output. The turn loop catches Halt and returns a
// successful result.
type Halt struct {
	Text string
}

func (e *Halt) Error() string { return "halted: " + e.Text }
