// Package delivery implements the StreamingDeliveryAdapter (spec §4.10):
// transport-specific policy for turning a stream of StreamChunks into
// platform actions, plus the shared byte-cap split rule every profile
// uses when the final text exceeds a transport's message-size limit.
package delivery

import "strings"

// Split applies the byte-cap split rule: while remaining exceeds cap, it
// looks for the last newline within remaining[:cap]; a newline at or past
// the midpoint becomes the break point, otherwise it breaks at cap exactly.
// Leading newlines on the next fragment are stripped before the next pass.
// The returned slice never contains empty trailing fragments.
func Split(text string, cap int) []string {
	if cap <= 0 || len(text) <= cap {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	var parts []string
	remaining := text
	for len(remaining) > cap {
		window := remaining[:cap]
		breakAt := strings.LastIndexByte(window, '\n')
		if breakAt < cap/2 {
			breakAt = cap
		}
		parts = append(parts, remaining[:breakAt])
		remaining = strings.TrimLeft(remaining[breakAt:], "\n")
	}
	if remaining != "" {
		parts = append(parts, remaining)
	}
	return parts
}
