// Package strand is a runtime for non-interactive conversational agents in Go.
//
// It drives a turn loop against a streaming language-model backend: model
// output is streamed to the caller, requested tool invocations are executed
// with a context scoped to that round, results are fed back into the
// conversation, and the loop repeats until the model stops requesting tools.
// Conversations can be resumed from persisted session records, and agents can
// delegate work to sub-agents — nested local agents or remote agents reached
// through an agent card — exposed to the parent as ordinary tools.
//
// # Quick Start
//
//	agent := strand.New("assistant", backend,
//		strand.WithInstructions("You are a helpful assistant."),
//		strand.WithTools(file.Definitions()...),
//		strand.WithSubAgents(researcher),
//	)
//
//	ch := make(chan strand.Event, 64)
//	go func() {
//		for ev := range ch {
//			fmt.Print(ev.Content)
//		}
//	}()
//	result, err := agent.SendPromptStream(ctx, "Summarize today's notes", ch)
//
// # Core Interfaces
//
// The root package defines the contracts the runtime is built against:
//
//   - [Backend] — streaming model transport (provided by the host)
//   - [Scheduler] — tool-call batch execution (order-preserving pool by default)
//   - [FileSystem], [Shell] — capability ports handed to tools per round
//   - [RemoteClient] — agent-card protocol client for remote sub-agents
//   - [ArchiveStore] — archival persistence for session records
//   - [BeforeSendHook], [AfterStreamHook], [AfterToolHook] — lifecycle filters
//
// # Included Implementations
//
// Storage: store/sqlite (local), store/postgres (pgx).
// Tools: tools/file, tools/shell, tools/web.
// Observability: observer (OTEL tracer, metrics, logs).
//
// See cmd/strand for a session inspection CLI built on the same pieces.
package strand
