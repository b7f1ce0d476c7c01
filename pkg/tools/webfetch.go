package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotbot/rotbot/pkg/utils"
)

// WebFetchTool retrieves a single URL and returns its text content, stripped
// of markup. It is registered into every subagent's tool registry alongside
// web_search so a subagent can follow up on a search result directly.
type WebFetchTool struct {
	maxBytes   int
	httpClient *http.Client
}

func NewWebFetchTool(maxBytes int) *WebFetchTool {
	if maxBytes <= 0 {
		maxBytes = 50000
	}
	return &WebFetchTool{
		maxBytes:   maxBytes,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch a URL and return its text content. Use to read a page found via web_search or linked by the user."
}

func (t *WebFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "The URL to fetch",
			},
		},
		"required": []string{"url"},
	}
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe         = regexp.MustCompile(`(?s)<[^>]+>`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	rawURL, ok := args["url"].(string)
	if !ok || strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", fmt.Errorf("url must start with http:// or https://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building fetch request: %w", err)
	}
	req.Header.Set("User-Agent", "rotbot/1.0 (+web_fetch tool)")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Sprintf("Fetch error: %v", err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("Fetch error: HTTP %d", resp.StatusCode), nil
	}

	limited := io.LimitReader(resp.Body, int64(t.maxBytes)*4)
	body, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Sprintf("Fetch error: failed to read response: %v", err), nil
	}

	contentType := resp.Header.Get("Content-Type")
	text := string(body)
	if strings.Contains(contentType, "html") {
		text = htmlToText(text)
	}

	return utils.Truncate(strings.TrimSpace(text), t.maxBytes), nil
}

func htmlToText(html string) string {
	stripped := scriptStyleRe.ReplaceAllString(html, "")
	stripped = tagRe.ReplaceAllString(stripped, "\n")
	stripped = blankLinesRe.ReplaceAllString(stripped, "\n\n")
	return stripped
}
