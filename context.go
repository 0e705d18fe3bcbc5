package strand

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SessionContext is the value bundle passed to every tool action for one
// tool-execution round. Built fresh at the start of the round, never
// mutated after construction, never shared across rounds. The Transcript
// snapshot reflects conversation state at the start of the round.
type SessionContext struct {
	SessionID  string
	Cwd        string
	Transcript []Turn
	Timestamp  time.Time
	FS         FileSystem
	Shell      Shell
	// Agent is a back-reference to the owning agent, letting tool actions
	// read agent-level configuration such as the active model.
	Agent *Agent
}

// FileOp discriminates gated filesystem operations.
type FileOp string

const (
	FileRead  FileOp = "read"
	FileWrite FileOp = "write"
)

// FileSystem is the gated file capability handed to tools. Check is
// consulted before every read or write; a non-nil error denies access.
type FileSystem interface {
	Check(path string, op FileOp) error
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
}

// ExecResult is the outcome of a shell execution.
type ExecResult struct {
	ExitCode int
	Output   string
}

// Shell is the policy-gated command capability handed to tools. Allow is
// the confirmation check; Exec runs the command. Both are provided by the
// host — this runtime never decides whether a command may run.
type Shell interface {
	Allow(command, cwd string) bool
	Exec(ctx context.Context, command, cwd string) (ExecResult, error)
}

// OSFileSystem is a FileSystem confined to a root directory. Paths are
// resolved against root; anything escaping it is denied.
type OSFileSystem struct {
	Root string
}

func (f OSFileSystem) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths not allowed: %s", path)
	}
	resolved := filepath.Join(f.Root, path)
	if resolved != f.Root && !strings.HasPrefix(resolved, f.Root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return resolved, nil
}

func (f OSFileSystem) Check(path string, _ FileOp) error {
	_, err := f.resolve(path)
	return err
}

func (f OSFileSystem) ReadFile(path string) ([]byte, error) {
	resolved, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

func (f OSFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	resolved, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return err
	}
	return os.WriteFile(resolved, data, perm)
}

var _ FileSystem = OSFileSystem{}
