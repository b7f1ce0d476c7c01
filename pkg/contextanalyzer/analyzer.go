// Package contextanalyzer implements a pure heuristic scan over recent
// dialog turns (spec §4.5): topic, conversation type, key entities, user
// intent, and pronoun referent, all computed without calling an LLM.
package contextanalyzer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rotbot/rotbot/pkg/providers"
)

// Analysis is the conversation-analysis-derived context fed into prompt
// assembly (spec §4.11 step 5).
type Analysis struct {
	Topic            string
	ConversationType string
	KeyEntities      []string
	UserIntent       string
	Referent         string
}

var topicKeywords = map[string][]string{
	"programming": {"code", "function", "bug", "error", "compile", "variable", "class", "package", "import", "syntax"},
	"writing":     {"draft", "essay", "paragraph", "tone", "edit", "rewrite", "grammar", "outline"},
	"math":        {"equation", "calculate", "formula", "theorem", "proof", "integral", "derivative"},
	"travel":      {"flight", "hotel", "itinerary", "visa", "trip", "destination"},
	"cooking":     {"recipe", "ingredient", "bake", "oven", "simmer", "whisk"},
	"finance":     {"budget", "invoice", "tax", "invest", "stock", "expense"},
}

var learningVocab = []string{"explain", "understand", "learn", "what is", "how does", "teach me", "difference between"}
var brainstormVocab = []string{"idea", "brainstorm", "options", "alternatives", "what if", "suggest"}
var codeFenceRe = regexp.MustCompile("```")
var errorTraceRe = regexp.MustCompile(`(?i)(traceback|exception|stack trace|panic:|at\s+\S+\(.*:\d+\))`)
var pronounRe = regexp.MustCompile(`(?i)\b(it|that|this|these|those|them)\b`)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "your": true, "with": true, "have": true, "this": true, "that": true,
	"was": true, "can": true, "will": true, "from": true, "they": true, "what": true,
	"about": true, "would": true, "there": true, "their": true, "then": true, "than": true,
	"into": true, "just": true, "like": true, "some": true, "when": true, "where": true,
}

var intentPatterns = []struct {
	intent string
	re     *regexp.Regexp
}{
	{"debugging", regexp.MustCompile("(?i)(error|bug|exception|crash|traceback|doesn't work|not working)")},
	{"requesting_help", regexp.MustCompile(`(?i)(help me|can you|could you|please)`)},
	{"continuing", regexp.MustCompile(`(?i)^(continue|go on|keep going|and then|next)`)},
	{"brainstorming", regexp.MustCompile(`(?i)(brainstorm|ideas?|what if|alternatives)`)},
	{"learning", regexp.MustCompile(`(?i)(explain|teach me|how does|what is|understand)`)},
	{"asking_question", regexp.MustCompile(`\?\s*$`)},
	{"casual", regexp.MustCompile(`(?i)^(hi|hey|hello|thanks|lol|haha)\b`)},
}

// Analyze returns the empty Analysis for histories shorter than 2 turns.
func Analyze(turns []providers.Message) *Analysis {
	if len(turns) < 2 {
		return &Analysis{}
	}

	a := &Analysis{}
	a.Topic = detectTopic(lastN(turns, 6))
	a.ConversationType = detectConversationType(turns)
	a.KeyEntities = detectKeyEntities(turns)
	a.UserIntent = detectUserIntent(turns)
	a.Referent = detectReferent(turns, a.KeyEntities)
	return a
}

func lastN(turns []providers.Message, n int) []providers.Message {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func userTurns(turns []providers.Message) []providers.Message {
	var out []providers.Message
	for _, t := range turns {
		if t.Role == "user" {
			out = append(out, t)
		}
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

func detectTopic(turns []providers.Message) string {
	scores := make(map[string]int)
	for _, t := range turns {
		tokens := tokenize(t.Content)
		for _, tok := range tokens {
			for topic, keywords := range topicKeywords {
				for _, kw := range keywords {
					if tok == kw {
						scores[topic]++
					}
				}
			}
		}
	}

	best, bestScore := "", 0
	for topic, score := range scores {
		if score > bestScore || (score == bestScore && topic < best) {
			best, bestScore = topic, score
		}
	}
	if bestScore < 2 {
		return ""
	}
	return best
}

func detectConversationType(turns []providers.Message) string {
	recent := lastN(turns, 6)
	for _, t := range recent {
		if t.Role != "user" {
			continue
		}
		if codeFenceRe.MatchString(t.Content) || errorTraceRe.MatchString(t.Content) {
			return "debugging"
		}
	}

	users := userTurns(recent)
	if len(users) == 0 {
		return "discussion"
	}

	questionCount := 0
	totalLen := 0
	hasLearningVocab := false
	hasBrainstormVocab := false
	for _, t := range users {
		content := strings.ToLower(t.Content)
		if strings.HasSuffix(strings.TrimSpace(content), "?") {
			questionCount++
		}
		totalLen += len(t.Content)
		for _, v := range learningVocab {
			if strings.Contains(content, v) {
				hasLearningVocab = true
			}
		}
		for _, v := range brainstormVocab {
			if strings.Contains(content, v) {
				hasBrainstormVocab = true
			}
		}
	}

	if float64(questionCount)/float64(len(users)) >= 0.6 {
		if hasLearningVocab {
			return "learning"
		}
		return "Q&A"
	}
	if hasBrainstormVocab {
		return "brainstorming"
	}
	if totalLen/len(users) < 15 {
		return "casual chat"
	}
	return "discussion"
}

func detectKeyEntities(turns []providers.Message) []string {
	recent := lastN(turns, 4)
	counts := make(map[string]int)
	order := []string{}
	for _, t := range recent {
		for _, tok := range tokenize(t.Content) {
			if len(tok) < 3 || stopWords[tok] {
				continue
			}
			if _, seen := counts[tok]; !seen {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}

	var qualifying []string
	for _, tok := range order {
		if counts[tok] >= 2 {
			qualifying = append(qualifying, tok)
		}
	}
	if len(qualifying) > 0 {
		sort.SliceStable(qualifying, func(i, j int) bool { return counts[qualifying[i]] > counts[qualifying[j]] })
		return qualifying
	}

	// Fallback: top 5 overall across all turns.
	overall := make(map[string]int)
	overallOrder := []string{}
	for _, t := range turns {
		for _, tok := range tokenize(t.Content) {
			if len(tok) < 3 || stopWords[tok] {
				continue
			}
			if _, seen := overall[tok]; !seen {
				overallOrder = append(overallOrder, tok)
			}
			overall[tok]++
		}
	}
	sort.SliceStable(overallOrder, func(i, j int) bool { return overall[overallOrder[i]] > overall[overallOrder[j]] })
	if len(overallOrder) > 5 {
		overallOrder = overallOrder[:5]
	}
	return overallOrder
}

func detectUserIntent(turns []providers.Message) string {
	users := userTurns(turns)
	if len(users) == 0 {
		return ""
	}
	last := users[len(users)-1].Content
	for _, p := range intentPatterns {
		if p.re.MatchString(last) {
			return p.intent
		}
	}
	return ""
}

func detectReferent(turns []providers.Message, keyEntities []string) string {
	users := userTurns(turns)
	if len(users) == 0 {
		return ""
	}
	last := users[len(users)-1].Content
	if !pronounRe.MatchString(last) {
		return ""
	}

	preceding := turns
	if len(users) >= 1 {
		// last 4 turns before the most recent user turn
		idx := -1
		for i := len(turns) - 1; i >= 0; i-- {
			if turns[i].Content == last && turns[i].Role == "user" {
				idx = i
				break
			}
		}
		if idx > 0 {
			start := idx - 4
			if start < 0 {
				start = 0
			}
			preceding = turns[start:idx]
		}
	}

	entities := detectKeyEntities(preceding)
	if len(entities) == 0 {
		return ""
	}
	return entities[0]
}
