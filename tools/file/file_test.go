package file

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	strand "github.com/calderhq/strand"
)

func defsByName(t *testing.T) map[string]strand.ToolDefinition {
	t.Helper()
	out := map[string]strand.ToolDefinition{}
	for _, d := range Definitions() {
		out[d.Name] = d
	}
	return out
}

func TestWriteThenRead(t *testing.T) {
	defs := defsByName(t)
	sc := &strand.SessionContext{FS: strand.OSFileSystem{Root: t.TempDir()}}
	ctx := context.Background()

	out, err := defs["file_write"].Action(ctx,
		json.RawMessage(`{"path":"notes/a.txt","content":"hello"}`), sc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.(string), "5 bytes") {
		t.Errorf("write result = %v", out)
	}

	got, err := defs["file_read"].Action(ctx, json.RawMessage(`{"path":"notes/a.txt"}`), sc)
	if err != nil {
		t.Fatal(err)
	}
	if got.(string) != "hello" {
		t.Errorf("read = %v", got)
	}
}

func TestReadDeniedOutsideRoot(t *testing.T) {
	defs := defsByName(t)
	sc := &strand.SessionContext{FS: strand.OSFileSystem{Root: t.TempDir()}}

	_, err := defs["file_read"].Action(context.Background(),
		json.RawMessage(`{"path":"../etc/passwd"}`), sc)
	var te *strand.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want ToolError", err)
	}
	if !strings.Contains(te.Message, "denied") {
		t.Errorf("message = %q", te.Message)
	}
}

func TestMissingCapability(t *testing.T) {
	defs := defsByName(t)
	sc := &strand.SessionContext{}

	for _, name := range []string{"file_read", "file_write"} {
		_, err := defs[name].Action(context.Background(),
			json.RawMessage(`{"path":"x","content":"y"}`), sc)
		var te *strand.ToolError
		if !errors.As(err, &te) {
			t.Errorf("%s: err = %v, want ToolError", name, err)
		}
	}
}

func TestReadMissingPath(t *testing.T) {
	defs := defsByName(t)
	sc := &strand.SessionContext{FS: strand.OSFileSystem{Root: t.TempDir()}}

	_, err := defs["file_read"].Action(context.Background(), json.RawMessage(`{}`), sc)
	var te *strand.ToolError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want ToolError", err)
	}
}
