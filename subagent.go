package strand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AgentKind distinguishes how a sub-agent runs.
type AgentKind string

const (
	// AgentLocal runs the sub-agent as a nested turn loop in-process.
	AgentLocal AgentKind = "local"
	// AgentRemote forwards the task to a remote agent over its card URL.
	AgentRemote AgentKind = "remote"
)

// PromptResolver builds a prompt string from the delegation call's arguments
// and the parent's SessionContext.
type PromptResolver func(args json.RawMessage, sc *SessionContext) (string, error)

// AgentDefinition declares a sub-agent exposed to the model as a single
// tool. Calling the tool delegates a goal-oriented task; the sub-agent runs
// its own bounded loop (or a remote exchange) and only the final text comes
// back as the tool result.
type AgentDefinition struct {
	// Kind defaults to local; a definition with AgentCardURL set is remote
	// regardless.
	Kind        AgentKind
	Name        string
	Description string
	// InputSchema describes the delegation tool's arguments.
	InputSchema json.RawMessage

	// SystemPrompt is the nested agent's instruction. SystemPromptFunc, when
	// set, takes precedence and is resolved per delegation call.
	SystemPrompt     string
	SystemPromptFunc PromptResolver

	// Query is the task text sent to the sub-agent. QueryFunc takes
	// precedence; when both are empty the raw call arguments are used.
	Query     string
	QueryFunc PromptResolver

	// Model names the nested agent's model. Empty or "inherit" resolves to
	// the parent's active model at call time.
	Model string

	// MaxTurns bounds the nested loop's tool-execution rounds. Zero applies
	// the default budget.
	MaxTurns int
	// MaxTime bounds the nested run's wall clock. Zero means no deadline.
	MaxTime time.Duration

	// Tools restricts the nested agent to the named parent tools. Nil
	// inherits every parent tool; names not present in the parent registry
	// are ignored.
	Tools []string

	// AgentCardURL is the remote agent's card location for remote
	// definitions.
	AgentCardURL string
}

func (d AgentDefinition) remote() bool {
	return d.Kind == AgentRemote || d.AgentCardURL != ""
}

// bridgeTool turns a sub-agent definition into a registrable tool. The
// action returns *SubAgentError for every non-goal termination, so
// delegation failures always reach the model as error results.
func (a *Agent) bridgeTool(def AgentDefinition) (ToolDefinition, error) {
	if def.Name == "" {
		return ToolDefinition{}, fmt.Errorf("sub-agent definition missing name")
	}
	if def.remote() {
		if def.AgentCardURL == "" {
			return ToolDefinition{}, fmt.Errorf("remote sub-agent %q missing agent card URL", def.Name)
		}
		return a.remoteBridge(def), nil
	}
	if a.backendFactory == nil {
		return ToolDefinition{}, fmt.Errorf("local sub-agent %q requires a backend factory (WithBackendFactory)", def.Name)
	}
	return a.localBridge(def), nil
}

func (a *Agent) localBridge(def AgentDefinition) ToolDefinition {
	return ToolDefinition{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: def.InputSchema,
		Action: func(ctx context.Context, args json.RawMessage, sc *SessionContext) (any, error) {
			return a.runLocalSubAgent(ctx, def, args, sc)
		},
	}
}

// runLocalSubAgent spins up a nested agent over a fresh backend session,
// runs one bounded turn, and classifies how it ended. Only a run that
// reaches its goal returns text; every other outcome is a *SubAgentError
// carrying the termination reason.
func (a *Agent) runLocalSubAgent(ctx context.Context, def AgentDefinition, args json.RawMessage, sc *SessionContext) (string, error) {
	model := def.Model
	if model == "" || model == "inherit" {
		model = a.model
	}

	instructions := def.SystemPrompt
	if def.SystemPromptFunc != nil {
		resolved, err := def.SystemPromptFunc(args, sc)
		if err != nil {
			return "", &SubAgentError{Name: def.Name, Reason: TerminateError, Err: fmt.Errorf("resolve system prompt: %w", err)}
		}
		instructions = resolved
	}

	query, err := delegationQuery(def, args, sc)
	if err != nil {
		return "", &SubAgentError{Name: def.Name, Reason: TerminateError, Err: err}
	}

	backend, err := a.backendFactory(ctx, model)
	if err != nil {
		return "", &SubAgentError{Name: def.Name, Reason: TerminateError, Err: fmt.Errorf("open backend: %w", err)}
	}

	maxRounds := def.MaxTurns
	if maxRounds <= 0 {
		maxRounds = defaultSubAgentRounds
	}

	child := New(def.Name, backend,
		WithModel(model),
		WithInstructions(instructions),
		WithCwd(a.cwd),
		WithFileSystem(a.fs),
		WithShell(a.shell),
		WithScheduler(a.scheduler),
		WithBackendFactory(a.backendFactory),
		WithMaxRounds(maxRounds),
		WithLogger(a.logger),
		WithTracer(a.tracer),
	)
	child.registry = a.subRegistry(def)

	cctx := ctx
	if def.MaxTime > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, def.MaxTime)
		defer cancel()
	}

	var span Span
	if a.tracer != nil {
		cctx, span = a.tracer.Start(cctx, "agent.delegate",
			StringAttr("subagent.name", def.Name),
			StringAttr("subagent.model", model),
		)
		defer span.End()
	}

	a.logger.Info("delegating to sub-agent", "parent", a.name, "subagent", def.Name, "model", model)
	text, runErr := child.SendPrompt(cctx, query)
	if runErr == nil {
		return text, nil
	}

	serr := &SubAgentError{Name: def.Name, Reason: classifyTermination(def, runErr), Err: runErr}
	recordSpanError(span, serr)
	return "", serr
}

// classifyTermination maps a nested run's failure to a termination reason.
func classifyTermination(def AgentDefinition, err error) TerminationReason {
	var maxed *ErrMaxRounds
	switch {
	case errors.As(err, &maxed):
		return TerminateMaxTurns
	case def.MaxTime > 0 && errors.Is(err, context.DeadlineExceeded):
		return TerminateTimeout
	case errors.Is(err, context.Canceled):
		return TerminateAborted
	default:
		return TerminateError
	}
}

// subRegistry builds the nested agent's tool registry: the named subset of
// the parent's tools, or all of them when the definition leaves Tools nil.
// The delegation tool itself is never inherited.
func (a *Agent) subRegistry(def AgentDefinition) *ToolRegistry {
	reg := NewToolRegistry()
	names := def.Tools
	if names == nil {
		names = a.registry.Names()
	}
	for _, name := range names {
		if name == def.Name {
			continue
		}
		if td, ok := a.registry.Get(name); ok {
			reg.Add(td)
		} else {
			a.logger.Warn("sub-agent tool not found in parent registry", "subagent", def.Name, "tool", name)
		}
	}
	return reg
}

func (a *Agent) remoteBridge(def AgentDefinition) ToolDefinition {
	return ToolDefinition{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: def.InputSchema,
		Action: func(ctx context.Context, args json.RawMessage, sc *SessionContext) (any, error) {
			query, err := delegationQuery(def, args, sc)
			if err != nil {
				return nil, &SubAgentError{Name: def.Name, Reason: TerminateError, Err: err}
			}
			client, err := a.remotes.client(ctx, def.AgentCardURL)
			if err != nil {
				return nil, &SubAgentError{Name: def.Name, Reason: TerminateError, Err: err}
			}
			reply, err := client.Send(ctx, query)
			if err != nil {
				reason := TerminateError
				if errors.Is(err, context.Canceled) {
					reason = TerminateAborted
				}
				return nil, &SubAgentError{Name: def.Name, Reason: reason, Err: err}
			}
			// A reply with no text parts is a valid empty result.
			return reply.Text(), nil
		},
	}
}

// delegationQuery derives the task text for a delegation call. The
// definition's resolver wins, then its literal query; otherwise the raw
// call arguments pass through as text.
func delegationQuery(def AgentDefinition, args json.RawMessage, sc *SessionContext) (string, error) {
	if def.QueryFunc != nil {
		q, err := def.QueryFunc(args, sc)
		if err != nil {
			return "", fmt.Errorf("resolve query: %w", err)
		}
		return q, nil
	}
	if def.Query != "" {
		return def.Query, nil
	}
	return strings.TrimSpace(string(args)), nil
}
