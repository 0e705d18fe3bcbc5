package strand

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// agentFile is the on-disk TOML shape of a sub-agent definition.
type agentFile struct {
	Name         string   `toml:"name"`
	Description  string   `toml:"description"`
	Kind         string   `toml:"kind"`
	SystemPrompt string   `toml:"system_prompt"`
	Query        string   `toml:"query"`
	Model        string   `toml:"model"`
	MaxTurns     int      `toml:"max_turns"`
	MaxTime      string   `toml:"max_time"`
	Tools        []string `toml:"tools"`
	AgentCardURL string   `toml:"agent_card_url"`
	// InputSchema is a JSON Schema document, inline as a TOML string.
	InputSchema string `toml:"input_schema"`
}

// LoadAgentDir reads every *.toml sub-agent definition in dir. Files whose
// name starts with an underscore are skipped. Loading is best-effort: a bad
// file contributes an error and no definition, and the rest still load. A
// missing directory yields no definitions and no error.
func LoadAgentDir(dir string) ([]AgentDefinition, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("read agent dir %s: %w", dir, err)}
	}

	var defs []AgentDefinition
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".toml") {
			continue
		}
		def, err := loadAgentFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		defs = append(defs, def)
	}
	return defs, errs
}

func loadAgentFile(path string) (AgentDefinition, error) {
	var file agentFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return AgentDefinition{}, err
	}
	return file.definition()
}

func (f agentFile) definition() (AgentDefinition, error) {
	if f.Name == "" {
		return AgentDefinition{}, fmt.Errorf("missing name")
	}

	def := AgentDefinition{
		Name:         f.Name,
		Description:  f.Description,
		SystemPrompt: f.SystemPrompt,
		Query:        f.Query,
		Model:        f.Model,
		MaxTurns:     f.MaxTurns,
		Tools:        f.Tools,
		AgentCardURL: f.AgentCardURL,
	}

	switch f.Kind {
	case "", string(AgentLocal):
		def.Kind = AgentLocal
	case string(AgentRemote):
		def.Kind = AgentRemote
	default:
		return AgentDefinition{}, fmt.Errorf("unknown kind %q", f.Kind)
	}
	if def.Kind == AgentRemote && def.AgentCardURL == "" {
		return AgentDefinition{}, fmt.Errorf("remote agent missing agent_card_url")
	}

	if f.MaxTime != "" {
		d, err := time.ParseDuration(f.MaxTime)
		if err != nil {
			return AgentDefinition{}, fmt.Errorf("max_time: %w", err)
		}
		def.MaxTime = d
	}

	if f.InputSchema != "" {
		if !json.Valid([]byte(f.InputSchema)) {
			return AgentDefinition{}, fmt.Errorf("input_schema is not valid JSON")
		}
		def.InputSchema = json.RawMessage(f.InputSchema)
	}
	return def, nil
}
