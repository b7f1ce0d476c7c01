// Package think implements ThinkParser, the streaming extractor that
// separates <think>...</think> reasoning segments from user-visible text
// (spec §4.6). It's a small hand-rolled state machine in the style of the
// teacher's other streaming accumulators (pkg/bus's StreamNotifier in the
// sibling example repo), not a regex pass, since it must work on partial
// chunks that can split a tag across calls.
package think

import "strings"

type state int

const (
	stateNormal state = iota
	stateThinking
)

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

// Parser is a stateful streaming splitter. Zero value is ready to use.
type Parser struct {
	st      state
	pending string // buffered partial-tag tail from the previous feed
}

// New returns a fresh Parser in the NORMAL state.
func New() *Parser {
	return &Parser{}
}

// currentTag returns the tag this state is waiting to see.
func (p *Parser) currentTag() string {
	if p.st == stateThinking {
		return closeTag
	}
	return openTag
}

// Feed processes one chunk of streamed text and returns the portion that
// belongs to thinking vs response in this call. It never raises; malformed
// or partial tags are buffered until more input arrives or finish() flushes
// them as literal text.
func (p *Parser) Feed(chunk string) (thinkingDelta, responseDelta string) {
	s := p.pending + chunk
	p.pending = ""

	var thinking, response strings.Builder

	emit := func(text string) {
		if text == "" {
			return
		}
		if p.st == stateThinking {
			thinking.WriteString(text)
		} else {
			response.WriteString(text)
		}
	}

	for {
		idx := strings.IndexByte(s, '<')
		if idx < 0 {
			emit(s)
			s = ""
			break
		}

		emit(s[:idx])
		rest := s[idx:]

		tag := p.currentTag()
		if strings.HasPrefix(rest, tag) {
			// Full tag present: consume and flip state.
			rest = rest[len(tag):]
			if p.st == stateThinking {
				p.st = stateNormal
			} else {
				p.st = stateThinking
			}
			s = rest
			continue
		}

		if isPrefixOfTag(rest, tag) {
			// Tag may be split across feeds; buffer and wait for more.
			p.pending = rest
			s = ""
			break
		}

		// '<' doesn't begin the tag we're looking for: literal character.
		emit(rest[:1])
		s = rest[1:]
	}

	return thinking.String(), response.String()
}

// isPrefixOfTag reports whether s is a (possibly full) prefix of tag, i.e.
// tag could still complete once more input arrives.
func isPrefixOfTag(s, tag string) bool {
	if len(s) >= len(tag) {
		return false
	}
	return strings.HasPrefix(tag, s)
}

// Finish flushes any buffered partial-tag tail as literal text belonging to
// the current state, and resets the parser.
func (p *Parser) Finish() (thinkingDelta, responseDelta string) {
	tail := p.pending
	p.pending = ""
	if tail == "" {
		return "", ""
	}
	if p.st == stateThinking {
		return tail, ""
	}
	return "", tail
}

// StripThinkTags removes all <think>...</think> spans from a complete
// string, returning only the response portion.
func StripThinkTags(s string) string {
	_, response := Split(s)
	return response
}

// Split partitions a complete string into (thinking, response) by replaying
// it through a fresh Parser and Finish.
func Split(s string) (thinking, response string) {
	p := New()
	var tb, rb strings.Builder
	td, rd := p.Feed(s)
	tb.WriteString(td)
	rb.WriteString(rd)
	td, rd = p.Finish()
	tb.WriteString(td)
	rb.WriteString(rd)
	return tb.String(), rb.String()
}
