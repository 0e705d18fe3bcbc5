package shell

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	strand "github.com/calderhq/strand"
)

func TestHostShellBlocklist(t *testing.T) {
	h := &HostShell{}
	if h.Allow("sudo rm file", "/tmp") {
		t.Error("sudo allowed")
	}
	if !h.Allow("ls -la", "/tmp") {
		t.Error("harmless command denied")
	}
}

func TestHostShellExec(t *testing.T) {
	h := &HostShell{}
	res, err := h.Exec(context.Background(), "echo hello; echo err >&2", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit = %d", res.ExitCode)
	}
	if !strings.Contains(res.Output, "hello") || !strings.Contains(res.Output, "err") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestHostShellExecNonZeroExit(t *testing.T) {
	h := &HostShell{}
	res, err := h.Exec(context.Background(), "exit 3", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit = %d, want 3", res.ExitCode)
	}
}

func TestDefinitionGatesThroughPolicy(t *testing.T) {
	def := Definition()
	sc := &strand.SessionContext{Cwd: t.TempDir(), Shell: &HostShell{}}
	ctx := context.Background()

	out, err := def.Action(ctx, json.RawMessage(`{"command":"echo ok"}`), sc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.(string), "ok") {
		t.Errorf("out = %v", out)
	}

	_, err = def.Action(ctx, json.RawMessage(`{"command":"sudo whoami"}`), sc)
	var te *strand.ToolError
	if !errors.As(err, &te) || !strings.Contains(te.Message, "not permitted") {
		t.Errorf("err = %v", err)
	}

	_, err = def.Action(ctx, json.RawMessage(`{"command":"exit 2"}`), sc)
	if !errors.As(err, &te) || !strings.Contains(te.Message, "exit 2") {
		t.Errorf("err = %v", err)
	}
}

func TestDefinitionWithoutShellCapability(t *testing.T) {
	def := Definition()
	_, err := def.Action(context.Background(), json.RawMessage(`{"command":"ls"}`), &strand.SessionContext{})
	var te *strand.ToolError
	if !errors.As(err, &te) {
		t.Errorf("err = %v, want ToolError", err)
	}
}
