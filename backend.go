package strand

import "context"

// Backend is the streaming model transport. Implementations own the live
// conversation state for one session: each SendStream call appends the given
// parts (a user prompt or a batch of function responses), streams the
// model's reply into ch in generation order, and returns once the reply is
// complete. The backend must not close ch; the turn loop owns the channel.
//
// Delivery order must match generation order. A mid-stream transport
// failure is reported through the returned error and ends the turn.
type Backend interface {
	SendStream(ctx context.Context, sessionID string, parts []Part, ch chan<- Event) error

	// SetInstructions installs the system instruction for the session.
	// Called at most once per agent instance, before the first SendStream.
	SetInstructions(text string)

	// Resume re-seeds the live transcript with previously persisted turns.
	// Replays conversation state only, never tool side effects.
	Resume(history []Turn)
}

// BackendFactory opens a fresh Backend session for a nested agent run.
// model is the concrete model name after "inherit" resolution.
type BackendFactory func(ctx context.Context, model string) (Backend, error)

// CredentialResolver resolves backend credentials during lazy agent
// initialization. A failure is fatal to the agent instance.
type CredentialResolver interface {
	Resolve(ctx context.Context) error
}

// Skill is a loaded instruction package appended to the agent's system
// instruction at initialization.
type Skill struct {
	Name         string
	Description  string
	Instructions string
	// Tools optionally restricts which tools the skill recommends.
	// Informational; not enforced by the runtime.
	Tools []string
}

// SkillSource discovers and parses skills. Per-file load failures are
// collected and returned alongside the skills that did load; a failed file
// contributes no skill and never aborts the load.
type SkillSource interface {
	Load(ctx context.Context) ([]Skill, []error)
}
