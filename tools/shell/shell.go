// Package shell provides the shell_exec tool and a default host shell
// policy. The tool itself never decides whether a command may run; it
// defers to the Shell capability carried by the session context.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	strand "github.com/calderhq/strand"
)

const maxOutput = 4000

// Definition returns the shell_exec tool. Execution is gated twice: the
// host's Shell.Allow policy first, then Shell.Exec. Denials and non-zero
// exits come back as model-visible errors, never turn aborts.
func Definition() strand.ToolDefinition {
	return strand.ToolDefinition{
		Name:        "shell_exec",
		Description: "Execute a shell command in the working directory. Returns stdout + stderr. Use for running scripts, checking files, or system tasks.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"command":{"type":"string","description":"Shell command to execute"}},"required":["command"]}`),
		Action: func(ctx context.Context, args json.RawMessage, sc *strand.SessionContext) (any, error) {
			var params struct {
				Command string `json:"command"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, strand.Toolf("invalid args: %v", err)
			}
			if params.Command == "" {
				return nil, strand.Toolf("command is required")
			}
			if sc.Shell == nil {
				return nil, strand.Toolf("shell access is not configured")
			}
			if !sc.Shell.Allow(params.Command, sc.Cwd) {
				return nil, strand.Toolf("command not permitted: %s", params.Command)
			}

			res, err := sc.Shell.Exec(ctx, params.Command, sc.Cwd)
			if err != nil {
				return nil, strand.Toolf("exec: %v", err)
			}
			output := res.Output
			if len(output) > maxOutput {
				output = output[:maxOutput] + "\n... (truncated)"
			}
			if res.ExitCode != 0 {
				return nil, strand.Toolf("exit %d: %s", res.ExitCode, output)
			}
			if output == "" {
				output = "(no output)"
			}
			return output, nil
		},
	}
}

// HostShell is a default strand.Shell backed by the local /bin/sh, with a
// substring blocklist and a per-command timeout.
type HostShell struct {
	Timeout time.Duration
	// Blocklist entries deny any command containing them,
	// case-insensitively. Nil applies DefaultBlocklist.
	Blocklist []string
}

// DefaultBlocklist is the stock set of denied command fragments.
var DefaultBlocklist = []string{"rm -rf /", "sudo ", "mkfs", "> /dev/", "dd if="}

var _ strand.Shell = (*HostShell)(nil)

func (h *HostShell) blocklist() []string {
	if h.Blocklist != nil {
		return h.Blocklist
	}
	return DefaultBlocklist
}

// Allow denies commands matching the blocklist.
func (h *HostShell) Allow(command, _ string) bool {
	lower := strings.ToLower(command)
	for _, b := range h.blocklist() {
		if strings.Contains(lower, b) {
			return false
		}
	}
	return true
}

// Exec runs the command under sh -c in cwd, merging stdout and stderr.
func (h *HostShell) Exec(ctx context.Context, command, cwd string) (strand.ExecResult, error) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var output string
	if stdout.Len() > 0 {
		output = stdout.String()
	}
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}

	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return strand.ExecResult{ExitCode: -1, Output: output}, fmt.Errorf("command timed out after %s", timeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return strand.ExecResult{ExitCode: exitErr.ExitCode(), Output: output}, nil
		}
		return strand.ExecResult{ExitCode: -1, Output: output}, err
	}
	return strand.ExecResult{ExitCode: 0, Output: output}, nil
}
