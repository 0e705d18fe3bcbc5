package strand

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAgentDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "researcher.toml", `
name = "researcher"
description = "Researches topics"
system_prompt = "You research."
model = "inherit"
max_turns = 5
max_time = "2m"
tools = ["web_fetch", "file_read"]
input_schema = '{"type":"object","properties":{"topic":{"type":"string"}}}'
`)
	writeFile(t, dir, "oracle.toml", `
name = "oracle"
kind = "remote"
agent_card_url = "https://agents.example/oracle"
`)
	writeFile(t, dir, "_draft.toml", `name = "draft"`)
	writeFile(t, dir, "broken.toml", `name = `)
	writeFile(t, dir, "nameless.toml", `description = "no name"`)
	writeFile(t, dir, "README.md", `not a definition`)

	defs, errs := LoadAgentDir(dir)
	if len(defs) != 2 {
		t.Fatalf("defs = %+v", defs)
	}
	if len(errs) != 2 {
		t.Errorf("errs = %v", errs)
	}

	byName := map[string]AgentDefinition{}
	for _, d := range defs {
		byName[d.Name] = d
	}

	r := byName["researcher"]
	if r.Kind != AgentLocal || r.MaxTurns != 5 || r.MaxTime != 2*time.Minute {
		t.Errorf("researcher = %+v", r)
	}
	if len(r.Tools) != 2 || r.Tools[0] != "web_fetch" {
		t.Errorf("tools = %v", r.Tools)
	}
	if len(r.InputSchema) == 0 {
		t.Error("input schema dropped")
	}

	o := byName["oracle"]
	if o.Kind != AgentRemote || o.AgentCardURL != "https://agents.example/oracle" {
		t.Errorf("oracle = %+v", o)
	}
}

func TestLoadAgentDirMissingIsEmpty(t *testing.T) {
	defs, errs := LoadAgentDir(filepath.Join(t.TempDir(), "nope"))
	if defs != nil || errs != nil {
		t.Errorf("got %v, %v", defs, errs)
	}
}

func TestLoadAgentFileValidation(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, dir, "badkind.toml", "name = \"x\"\nkind = \"quantum\"\n")
	writeFile(t, dir, "remoteless.toml", "name = \"y\"\nkind = \"remote\"\n")
	writeFile(t, dir, "badschema.toml", "name = \"z\"\ninput_schema = \"{not json\"\n")
	writeFile(t, dir, "badtime.toml", "name = \"w\"\nmax_time = \"soon\"\n")

	defs, errs := LoadAgentDir(dir)
	if len(defs) != 0 {
		t.Errorf("defs = %+v", defs)
	}
	if len(errs) != 4 {
		t.Errorf("errs = %v", errs)
	}
}

func TestAgentDirRegistration(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "helper.toml", `
name = "helper"
description = "A declarative sub-agent"
`)
	factory := &childFactory{rounds: func() []scriptedRound {
		return []scriptedRound{{text: "from file"}}
	}}
	backend := &mockBackend{rounds: []scriptedRound{
		{calls: []FunctionCall{callOf("helper", `{}`)}},
		{text: "done"},
	}}
	agent := New("parent", backend,
		WithBackendFactory(factory.open),
		WithSubAgentDir(dir),
	)

	if _, err := agent.SendPrompt(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	content, err := responseContent(backend.sent[1], 0)
	if err != nil {
		t.Fatal(err)
	}
	if content != "from file" {
		t.Errorf("result = %q", content)
	}
}
