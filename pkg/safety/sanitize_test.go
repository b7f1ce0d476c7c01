package safety

import (
	"strings"
	"testing"
)

func TestSanitizeForLog_RedactsAndTruncates(t *testing.T) {
	out := SanitizeForLog("email me at alice@example.com or visit https://example.com/path, call 555-867-5309", 0)
	if strings.Contains(out, "alice@example.com") {
		t.Fatalf("expected email to be redacted: %q", out)
	}
	if strings.Contains(out, "https://example.com/path") {
		t.Fatalf("expected URL to be redacted: %q", out)
	}
	if strings.Contains(out, "555-867-5309") {
		t.Fatalf("expected phone number to be redacted: %q", out)
	}

	capped := SanitizeForLog("abcdefghij klmnopqrst uvwxyz", 10)
	if got := []rune(capped); len(got) != 13 { // 10 chars + "..."
		t.Fatalf("expected capped length 13, got %d (%q)", len(got), capped)
	}
}
