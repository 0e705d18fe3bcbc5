package strand

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DirSkillSource loads skills from a directory of TOML files. Each file
// declares one skill:
//
//	name = "code-reviewer"
//	description = "Reviews diffs for defects"
//	instructions = "..."
//	tools = ["file_read"]
//
// Loading is best-effort: bad files contribute errors, good files still
// load. Files whose name starts with an underscore are skipped.
type DirSkillSource struct {
	Dir string
}

var _ SkillSource = DirSkillSource{}

type skillFile struct {
	Name         string   `toml:"name"`
	Description  string   `toml:"description"`
	Instructions string   `toml:"instructions"`
	Tools        []string `toml:"tools"`
}

func (s DirSkillSource) Load(ctx context.Context) ([]Skill, []error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("read skill dir %s: %w", s.Dir, err)}
	}

	var skills []Skill
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".toml") {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return skills, errs
		}
		var file skillFile
		if _, err := toml.DecodeFile(filepath.Join(s.Dir, name), &file); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if file.Name == "" || file.Instructions == "" {
			errs = append(errs, fmt.Errorf("%s: missing name or instructions", name))
			continue
		}
		skills = append(skills, Skill{
			Name:         file.Name,
			Description:  file.Description,
			Instructions: file.Instructions,
			Tools:        file.Tools,
		})
	}
	return skills, errs
}
