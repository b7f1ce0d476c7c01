// Package skills loads markdown skill files and renders them for injection
// into an agent's system prompt (spec §6 skill file format).
//
// A skill is a .md file with optional YAML frontmatter:
//
//	---
//	name: github
//	description: Interact with GitHub repositories
//	alwaysLoad: false
//	---
//	# GitHub Skill
//	Instructions for using GitHub...
//
// Skills with alwaysLoad: true are rendered in full; the rest are listed as
// one-line summaries and loaded on demand via the read_file tool.
package skills

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is one parsed skill file.
type Skill struct {
	Name        string
	Description string
	Content     string
	AlwaysLoad  bool
}

func (s Skill) summary() string {
	return "- **" + s.Name + "**: " + s.Description
}

func (s Skill) fullPrompt() string {
	return "\n## Skill: " + s.Name + "\n" + s.Content
}

// SkillsLoader discovers skills across three directories, in increasing
// precedence: builtin (shipped with the binary), global (the user's
// ~/.rotbot/skills), and workspace (the current project's skills/ dir). A
// skill name defined in more than one directory is taken from the
// highest-precedence one.
type SkillsLoader struct {
	workspaceDir string
	globalDir    string
	builtinDir   string
}

func NewSkillsLoader(workspaceDir, globalDir, builtinDir string) *SkillsLoader {
	return &SkillsLoader{
		workspaceDir: workspaceDir,
		globalDir:    globalDir,
		builtinDir:   builtinDir,
	}
}

// Load reads every *.md file across builtin, global, then workspace
// directories, in that order, so later directories override earlier ones.
func (l *SkillsLoader) Load() map[string]Skill {
	loaded := make(map[string]Skill)

	dirs := []string{l.builtinDir, l.globalDir, filepath.Join(l.workspaceDir, "skills")}
	for _, dir := range dirs {
		for _, s := range loadDir(dir) {
			loaded[s.Name] = s
		}
	}
	return loaded
}

func loadDir(dir string) []Skill {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []Skill
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, parseSkillFile(strings.TrimSuffix(e.Name(), ".md"), string(data)))
	}
	return out
}

type skillFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	AlwaysLoad  bool   `yaml:"alwaysLoad"`
}

func parseSkillFile(defaultName, text string) Skill {
	s := Skill{Name: defaultName, Content: strings.TrimSpace(text)}

	trimmed := strings.TrimLeft(text, "\n")
	if !strings.HasPrefix(trimmed, "---") {
		return s
	}

	rest := trimmed[3:]
	end := strings.Index(rest, "---")
	if end < 0 {
		return s
	}

	var fm skillFrontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err == nil {
		if fm.Name != "" {
			s.Name = fm.Name
		}
		s.Description = fm.Description
		s.AlwaysLoad = fm.AlwaysLoad
	}
	s.Content = strings.TrimSpace(rest[end+3:])
	return s
}

// ListSkills returns the names of every loaded skill, sorted.
func (l *SkillsLoader) ListSkills() []string {
	loaded := l.Load()
	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAlwaysLoadPrompts returns the full rendered prompt for every
// alwaysLoad skill.
func (l *SkillsLoader) GetAlwaysLoadPrompts() []string {
	loaded := l.Load()
	names := make([]string, 0, len(loaded))
	for name := range loaded {
		names = append(names, name)
	}
	sort.Strings(names)

	var prompts []string
	for _, name := range names {
		if s := loaded[name]; s.AlwaysLoad {
			prompts = append(prompts, s.fullPrompt())
		}
	}
	return prompts
}

// BuildSkillsSummary renders a one-line-per-skill summary of every on-demand
// (non-alwaysLoad) skill, or "" if there are none.
func (l *SkillsLoader) BuildSkillsSummary() string {
	loaded := l.Load()
	names := make([]string, 0, len(loaded))
	for name := range loaded {
		if !loaded[name].AlwaysLoad {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)

	lines := []string{"## Available Skills (read the skill's file to activate)"}
	for _, name := range names {
		lines = append(lines, loaded[name].summary())
	}
	return strings.Join(lines, "\n")
}

// GetSkill returns the loaded skill by name, if any.
func (l *SkillsLoader) GetSkill(name string) (Skill, bool) {
	s, ok := l.Load()[name]
	return s, ok
}
