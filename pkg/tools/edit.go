package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EditFileTool performs a single literal old-text/new-text substitution in
// a file, confined to an allowed directory. A workspace-restriction flag
// (spec §4.8) is baked in at construction rather than toggled later: the
// allowed directory is fixed for the tool's lifetime.
type EditFileTool struct {
	allowedDir string
}

func NewEditFileTool(allowedDir string) *EditFileTool {
	abs, err := filepath.Abs(allowedDir)
	if err != nil {
		abs = allowedDir
	}
	return &EditFileTool{allowedDir: filepath.Clean(abs)}
}

func (t *EditFileTool) Name() string { return "edit_file" }

func (t *EditFileTool) Description() string {
	return "Replace the first occurrence of old_text with new_text in a file."
}

func (t *EditFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":     map[string]interface{}{"type": "string", "description": "Path to the file to edit"},
			"old_text": map[string]interface{}{"type": "string", "description": "Exact text to find"},
			"new_text": map[string]interface{}{"type": "string", "description": "Replacement text"},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

// withinAllowedDir reports whether path resolves inside t.allowedDir,
// rejecting both ".." traversal and same-prefix sibling directories
// (e.g. "workspace-escape" sharing a string prefix with "workspace").
func (t *EditFileTool) withinAllowedDir(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)

	if abs == t.allowedDir {
		return true
	}
	return strings.HasPrefix(abs, t.allowedDir+string(filepath.Separator))
}

func (t *EditFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	oldText, ok := args["old_text"].(string)
	if !ok {
		return "", fmt.Errorf("old_text is required")
	}
	newText, ok := args["new_text"].(string)
	if !ok {
		return "", fmt.Errorf("new_text is required")
	}

	if !t.withinAllowedDir(path) {
		return "", fmt.Errorf("path %s is outside allowed directory %s", path, t.allowedDir)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	content := string(data)
	if !strings.Contains(content, oldText) {
		return "", fmt.Errorf("old_text not found in %s", path)
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	return "File edited successfully", nil
}
