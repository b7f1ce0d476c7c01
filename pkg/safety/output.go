package safety

import (
	"sort"
	"strings"
)

// violationLimit is the distinct-violation-category count above which the
// entire response is replaced with RefusalText (spec §4.4: "more than 5").
const violationLimit = 5

// span is a half-open [start, end) byte range within a response string.
type span struct{ start, end int }

// OutputFilter is the output half of SafetyFilter (spec §4.4).
type OutputFilter struct{}

// NewOutputFilter returns a ready-to-use OutputFilter. It carries no state:
// every scan is a pure function of its input text.
func NewOutputFilter() *OutputFilter { return &OutputFilter{} }

// FilterResult is the structured outcome of Filter.
type FilterResult struct {
	Text       string
	Violations []string
	Modified   bool
}

// Filter redacts unconditional sensitive spans, redacts self-referential
// internal names, and substitutes RefusalText outright when more than
// violationLimit distinct categories fired. All scans skip fenced and
// inline code spans (spec §4.4 invariant).
func (f *OutputFilter) Filter(text string) FilterResult {
	var violations []string

	redactCategory := func(name string, matchAll func(string) [][2]int) {
		spans := codeSpanRanges(text)
		matches := matchAll(text)
		if len(matches) == 0 {
			return
		}
		var kept []span
		for _, m := range matches {
			if withinAnySpan(m[0], m[1], spans) {
				continue
			}
			kept = append(kept, span{m[0], m[1]})
		}
		if len(kept) == 0 {
			return
		}
		text = replaceSpans(text, kept, RedactedPlaceholder)
		violations = append(violations, name)
	}

	patterns := []struct {
		name    string
		pattern interface{ FindAllStringIndex(string, int) [][]int }
	}{
		{"infra_url", infraURLPattern},
		{"env_var", envVarPattern},
		{"absolute_path", absPathPattern},
		{"dotenv", dotenvPattern},
		{"api_key", apiKeyPattern},
		{"jwt", jwtPattern},
		{"ssn", ssnPattern},
		{"credit_card", creditCardPattern},
	}
	for _, p := range patterns {
		pat := p.pattern
		redactCategory(p.name, func(s string) [][2]int {
			raw := pat.FindAllStringIndex(s, -1)
			out := make([][2]int, len(raw))
			for i, m := range raw {
				out[i] = [2]int{m[0], m[1]}
			}
			return out
		})
	}

	if newText, hit := redactSelfReferential(text); hit {
		text = newText
		violations = append(violations, "self_referential_name")
	}

	modified := len(violations) > 0
	if len(violations) > violationLimit {
		return FilterResult{Text: RefusalText, Violations: violations, Modified: true}
	}

	return FilterResult{Text: text, Violations: violations, Modified: modified}
}

// redactSelfReferential replaces internal model/framework names that
// appear within an 80-character window following a self-referential
// marker (spec §4.4).
func redactSelfReferential(text string) (string, bool) {
	markers := selfReferentialMarkers.FindAllStringIndex(text, -1)
	if len(markers) == 0 {
		return text, false
	}

	var spans []span
	for _, m := range markers {
		winStart := m[1]
		winEnd := winStart + 80
		if winEnd > len(text) {
			winEnd = len(text)
		}
		if winStart >= winEnd {
			continue
		}
		window := text[winStart:winEnd]
		for _, mm := range knownFrameworkNames.FindAllStringIndex(window, -1) {
			spans = append(spans, span{winStart + mm[0], winStart + mm[1]})
		}
		for _, mm := range modelTagPattern.FindAllStringIndex(window, -1) {
			spans = append(spans, span{winStart + mm[0], winStart + mm[1]})
		}
	}
	if len(spans) == 0 {
		return text, false
	}

	merged := mergeSpans(spans)
	return replaceSpans(text, merged, "an AI model"), true
}

func codeSpanRanges(text string) []span {
	raw := codeSpanPattern.FindAllStringIndex(text, -1)
	spans := make([]span, len(raw))
	for i, m := range raw {
		spans[i] = span{m[0], m[1]}
	}
	return spans
}

func withinAnySpan(start, end int, spans []span) bool {
	for _, s := range spans {
		if start >= s.start && end <= s.end {
			return true
		}
	}
	return false
}

// mergeSpans sorts and coalesces overlapping or touching spans.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := make([]span, 0, len(spans))
	for _, s := range spans {
		if n := len(merged); n > 0 && s.start <= merged[n-1].end {
			if s.end > merged[n-1].end {
				merged[n-1].end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// replaceSpans substitutes each span in text (assumed sorted, non-overlapping)
// with replacement.
func replaceSpans(text string, spans []span, replacement string) string {
	var b strings.Builder
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.start])
		b.WriteString(replacement)
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}
