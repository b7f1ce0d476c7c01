package tools

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

var denyCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+(-[a-zA-Z]*[rf][a-zA-Z]*|--recursive|--force)`),
	regexp.MustCompile(`(?i)\bdel\s+/[fq]`),
	regexp.MustCompile(`(?i)\brmdir\s+/s`),
	regexp.MustCompile(`(?i)\bformat\s+\S`),
	regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`(?i)\bdiskpart\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	regexp.MustCompile(`/dev/sd[a-z]\d*`),
	regexp.MustCompile(`(?i)\bshutdown\b`),
	regexp.MustCompile(`(?i)\breboot\b`),
	regexp.MustCompile(`(?i)\bpoweroff\b`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&?\s*\}\s*;\s*:`),
}

// ExecTool runs a shell command inside a workspace directory, guarding
// against destructive patterns before ever invoking the shell.
type ExecTool struct {
	workspace           string
	allowPatterns       []*regexp.Regexp
	restrictToWorkspace bool
}

func NewExecTool(workspace string) *ExecTool {
	return &ExecTool{workspace: workspace}
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Run a shell command in the workspace directory and return its combined output."
}

func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to run",
			},
		},
		"required": []string{"command"},
	}
}

// SetAllowPatterns restricts execution to commands matching at least one of
// the given regular expressions. An invalid pattern is rejected outright so
// a typo in configuration fails loudly at startup rather than silently
// admitting everything.
func (t *ExecTool) SetAllowPatterns(patterns []string) error {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("invalid allow pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	t.allowPatterns = compiled
	return nil
}

// SetRestrictToWorkspace enables the workspace-restriction flag from §4.8:
// commands referencing a parent-directory traversal are rejected outright.
func (t *ExecTool) SetRestrictToWorkspace(restrict bool) {
	t.restrictToWorkspace = restrict
}

// guardCommand returns a non-empty rejection message if command should not
// run, or "" if it's safe to execute. Deny patterns are checked first and
// always win, even over an explicit allowlist.
func (t *ExecTool) guardCommand(command, workspace string) string {
	for _, re := range denyCommandPatterns {
		if re.MatchString(command) {
			return fmt.Sprintf("command blocked: matches dangerous pattern (%s)", re.String())
		}
	}

	if t.restrictToWorkspace && (strings.Contains(command, "..") || strings.Contains(command, `..\`)) {
		return "command blocked: path traversal outside workspace is not allowed"
	}

	if len(t.allowPatterns) > 0 {
		allowed := false
		for _, re := range t.allowPatterns {
			if re.MatchString(command) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "command blocked: not in allowlist"
		}
	}

	return ""
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	command, ok := args["command"].(string)
	if !ok || strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("command is required")
	}

	if msg := t.guardCommand(command, t.workspace); msg != "" {
		return "Error: " + msg, nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = t.workspace

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Sprintf("Error: %v\nOutput: %s", err, string(output)), nil
	}
	return string(output), nil
}
