package strand

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// defaultSubAgentRounds bounds a sub-agent run when its definition leaves
// MaxTurns unset. The parent loop itself runs unbounded.
const defaultSubAgentRounds = 10

// InstructionsFunc resolves the system instruction at first send, using a
// freshly built SessionContext. Resolved exactly once per agent instance.
type InstructionsFunc func(ctx context.Context, sc *SessionContext) (string, error)

// agentConfig collects option state before the Agent is built.
type agentConfig struct {
	model          string
	cwd            string
	instructions   string
	instructionsFn InstructionsFunc
	tools          []ToolDefinition
	subAgents      []AgentDefinition
	subAgentDirs   []string
	hooks          []any
	skills         []SkillSource
	creds          CredentialResolver
	scheduler      Scheduler
	fs             FileSystem
	shell          Shell
	history        *SessionFileStore
	resumeID       string
	remoteClient   RemoteClientFunc
	backendFactory BackendFactory
	maxRounds      int
	logger         *slog.Logger
	tracer         Tracer
}

// Option configures an Agent.
type Option func(*agentConfig)

// WithModel sets the active model name. Sub-agents declaring
// Model: "inherit" resolve to this value at call time.
func WithModel(model string) Option {
	return func(c *agentConfig) { c.model = model }
}

// WithCwd sets the working directory handed to tools via SessionContext.
func WithCwd(cwd string) Option {
	return func(c *agentConfig) { c.cwd = cwd }
}

// WithInstructions sets a literal system instruction.
func WithInstructions(s string) Option {
	return func(c *agentConfig) { c.instructions = s }
}

// WithInstructionsFunc sets a system instruction resolver, called with a
// fresh SessionContext on the first send and never again — not on later
// sends, not across tool-execution rounds. Overrides WithInstructions.
func WithInstructionsFunc(fn InstructionsFunc) Option {
	return func(c *agentConfig) { c.instructionsFn = fn }
}

// WithTools registers tool definitions.
func WithTools(defs ...ToolDefinition) Option {
	return func(c *agentConfig) { c.tools = append(c.tools, defs...) }
}

// WithSubAgents registers sub-agent definitions, each exposed to the model
// as one tool.
func WithSubAgents(defs ...AgentDefinition) Option {
	return func(c *agentConfig) { c.subAgents = append(c.subAgents, defs...) }
}

// WithSubAgentDir loads declarative sub-agent definition files from a
// directory during initialization. Files whose name starts with an
// underscore are skipped; files that fail to load are reported and
// contribute no tool.
func WithSubAgentDir(dir string) Option {
	return func(c *agentConfig) { c.subAgentDirs = append(c.subAgentDirs, dir) }
}

// WithHooks adds lifecycle hooks to the turn loop. Each hook must implement
// at least one of BeforeSendHook, AfterStreamHook, or AfterToolHook.
func WithHooks(hooks ...any) Option {
	return func(c *agentConfig) { c.hooks = append(c.hooks, hooks...) }
}

// WithSkills adds skill sources loaded during initialization; loaded skill
// instructions are appended to the system instruction.
func WithSkills(sources ...SkillSource) Option {
	return func(c *agentConfig) { c.skills = append(c.skills, sources...) }
}

// WithCredentialResolver sets the resolver invoked once during
// initialization. A failure is fatal to the agent instance.
func WithCredentialResolver(r CredentialResolver) Option {
	return func(c *agentConfig) { c.creds = r }
}

// WithScheduler replaces the default order-preserving worker pool.
func WithScheduler(s Scheduler) Option {
	return func(c *agentConfig) { c.scheduler = s }
}

// WithFileSystem sets the gated file capability handed to tools.
func WithFileSystem(fs FileSystem) Option {
	return func(c *agentConfig) { c.fs = fs }
}

// WithShell sets the policy-gated command capability handed to tools.
func WithShell(sh Shell) Option {
	return func(c *agentConfig) { c.shell = sh }
}

// WithResume resumes a persisted session: on first send the record is
// loaded from store, its history reconstructed, and the backend's live
// transcript re-seeded before the prompt goes out.
func WithResume(store *SessionFileStore, sessionID string) Option {
	return func(c *agentConfig) {
		c.history = store
		c.resumeID = sessionID
	}
}

// WithRemoteClientFunc replaces the default HTTP agent-card client factory
// used by remote sub-agents.
func WithRemoteClientFunc(fn RemoteClientFunc) Option {
	return func(c *agentConfig) { c.remoteClient = fn }
}

// WithBackendFactory enables local sub-agents: the factory opens a fresh
// backend session for each nested run.
func WithBackendFactory(fn BackendFactory) Option {
	return func(c *agentConfig) { c.backendFactory = fn }
}

// WithMaxRounds bounds the number of tool-execution rounds per turn.
// Zero (the default) means unbounded.
func WithMaxRounds(n int) Option {
	return func(c *agentConfig) { c.maxRounds = n }
}

// WithLogger sets the structured logger. If not set, a no-op logger is
// used (no output).
func WithLogger(l *slog.Logger) Option {
	return func(c *agentConfig) { c.logger = l }
}

// WithTracer sets the tracer. When set, the agent emits spans for turns,
// rounds, and tool batches. Use observer.NewTracer() for an OTEL-backed
// implementation, or observer.NewInstrumentedTracer() to also feed the
// observer metrics.
func WithTracer(t Tracer) Option {
	return func(c *agentConfig) { c.tracer = t }
}

// nopLogger is a logger that discards all output. Used when WithLogger is
// not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Agent is the turn loop controller. It owns its tool registry for its
// lifetime, initializes the backend lazily on the first send, and runs the
// streaming turn loop. Concurrent sends on one instance are not supported;
// callers must serialize prompts per agent.
type Agent struct {
	name    string
	backend Backend

	model          string
	cwd            string
	instructions   string
	instructionsFn InstructionsFunc
	subAgents      []AgentDefinition
	subAgentDirs   []string
	skills         []SkillSource
	creds          CredentialResolver
	scheduler      Scheduler
	fs             FileSystem
	shell          Shell
	history        *SessionFileStore
	resumeID       string
	backendFactory BackendFactory
	maxRounds      int
	logger         *slog.Logger
	tracer         Tracer

	registry *ToolRegistry
	hooks    *HookChain
	remotes  *remotePool

	sessionID            string
	startTime            time.Time
	transcript           []Turn
	skillInstructions    []string
	initialized          bool
	initErr              error
	instructionsResolved bool
}

// New creates an Agent over the given backend. Initialization is deferred
// to the first send.
func New(name string, backend Backend, opts ...Option) *Agent {
	var cfg agentConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger
	}
	if cfg.scheduler == nil {
		cfg.scheduler = NewPoolScheduler()
	}

	a := &Agent{
		name:           name,
		backend:        backend,
		model:          cfg.model,
		cwd:            cfg.cwd,
		instructions:   cfg.instructions,
		instructionsFn: cfg.instructionsFn,
		subAgents:      cfg.subAgents,
		subAgentDirs:   cfg.subAgentDirs,
		skills:         cfg.skills,
		creds:          cfg.creds,
		scheduler:      cfg.scheduler,
		fs:             cfg.fs,
		shell:          cfg.shell,
		history:        cfg.history,
		resumeID:       cfg.resumeID,
		backendFactory: cfg.backendFactory,
		maxRounds:      cfg.maxRounds,
		logger:         cfg.logger,
		tracer:         cfg.tracer,
		registry:       NewToolRegistry(),
		hooks:          NewHookChain(),
		remotes:        newRemotePool(cfg.remoteClient),
		sessionID:      NewID(),
	}
	for _, def := range cfg.tools {
		a.registry.Add(def)
	}
	for _, h := range cfg.hooks {
		a.hooks.Add(h)
	}
	return a
}

// Name returns the agent's identifier.
func (a *Agent) Name() string { return a.name }

// Model returns the currently active model name.
func (a *Agent) Model() string { return a.model }

// SessionID returns the session identifier (the resumed record's id once
// initialization has run with WithResume).
func (a *Agent) SessionID() string { return a.sessionID }

// Transcript returns a snapshot of the conversation so far.
func (a *Agent) Transcript() []Turn { return cloneTurns(a.transcript) }

// ensureInit performs one-shot initialization: credential resolution,
// session resume, skill loading, and sub-agent tool registration. A failure
// is cached and returned by every later send; it is never retried.
func (a *Agent) ensureInit(ctx context.Context) error {
	if a.initialized || a.initErr != nil {
		return a.initErr
	}

	if a.creds != nil {
		if err := a.creds.Resolve(ctx); err != nil {
			a.initErr = &InitError{Stage: "credentials", Err: err}
			return a.initErr
		}
	}

	if a.resumeID != "" && a.history != nil {
		rec, err := a.history.Load(ctx, a.resumeID)
		if err != nil {
			a.initErr = &InitError{Stage: "resume", Err: err}
			return a.initErr
		}
		turns := ReconstructHistory(rec)
		a.backend.Resume(turns)
		a.transcript = turns
		a.sessionID = rec.SessionID
		a.startTime = rec.StartTime
		a.logger.Info("session resumed", "session", rec.SessionID, "turns", len(turns))
	}

	for _, src := range a.skills {
		skills, errs := src.Load(ctx)
		for _, err := range errs {
			a.logger.Warn("skill load failed", "agent", a.name, "error", err)
		}
		for _, sk := range skills {
			if sk.Instructions != "" {
				a.skillInstructions = append(a.skillInstructions, sk.Instructions)
			}
		}
	}

	for _, def := range a.subAgents {
		tool, err := a.bridgeTool(def)
		if err != nil {
			a.logger.Warn("sub-agent registration failed", "name", def.Name, "error", err)
			continue
		}
		a.registry.Add(tool)
	}
	for _, dir := range a.subAgentDirs {
		defs, errs := LoadAgentDir(dir)
		for _, err := range errs {
			a.logger.Warn("sub-agent file load failed", "dir", dir, "error", err)
		}
		for _, def := range defs {
			tool, err := a.bridgeTool(def)
			if err != nil {
				a.logger.Warn("sub-agent registration failed", "name", def.Name, "error", err)
				continue
			}
			a.registry.Add(tool)
		}
	}

	a.initialized = true
	return nil
}

// resolveInstructions installs the system instruction exactly once per
// agent instance. A function resolver runs now, against a fresh
// SessionContext; later sends and sub-loop iterations never re-resolve.
func (a *Agent) resolveInstructions(ctx context.Context) error {
	if a.instructionsResolved {
		return nil
	}
	text := a.instructions
	if a.instructionsFn != nil {
		resolved, err := a.instructionsFn(ctx, a.newSessionContext())
		if err != nil {
			return &InitError{Stage: "instructions", Err: err}
		}
		text = resolved
	}
	if len(a.skillInstructions) > 0 {
		blocks := append([]string{text}, a.skillInstructions...)
		text = strings.TrimSpace(strings.Join(blocks, "\n\n"))
	}
	if text != "" {
		a.backend.SetInstructions(text)
	}
	a.instructionsResolved = true
	return nil
}

// newSessionContext builds the immutable per-round context bundle.
func (a *Agent) newSessionContext() *SessionContext {
	return &SessionContext{
		SessionID:  a.sessionID,
		Cwd:        a.cwd,
		Transcript: cloneTurns(a.transcript),
		Timestamp:  time.Now(),
		FS:         a.fs,
		Shell:      a.shell,
		Agent:      a,
	}
}

// SendPrompt runs one full turn and blocks until it completes, returning
// the final model text. Streaming events are discarded.
func (a *Agent) SendPrompt(ctx context.Context, prompt string) (string, error) {
	res, err := a.send(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// SendPromptStream runs one full turn, emitting every stream event into ch
// as it is produced. The channel is closed when the turn — including all
// nested tool-execution rounds — has finished; returning therefore
// guarantees completion. ch must not be nil.
func (a *Agent) SendPromptStream(ctx context.Context, prompt string, ch chan<- Event) (*TurnResult, error) {
	return a.send(ctx, prompt, ch)
}

func (a *Agent) send(ctx context.Context, prompt string, ch chan<- Event) (*TurnResult, error) {
	if err := a.ensureInit(ctx); err != nil {
		if ch != nil {
			close(ch)
		}
		return nil, err
	}
	if err := a.resolveInstructions(ctx); err != nil {
		if ch != nil {
			close(ch)
		}
		return nil, err
	}

	parts := []Part{TextPart(prompt)}
	a.transcript = append(a.transcript, Turn{Role: RoleUser, Parts: parts})

	a.logger.Info("turn started", "agent", a.name, "session", a.sessionID)
	res, err := a.runTurn(ctx, parts, ch)
	a.logger.Info("turn finished", "agent", a.name, "session", a.sessionID,
		"rounds", res.Rounds, "status", statusStr(err))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
