package providers

import "context"

// streamChunkChars is the fallback chunk size used when a provider has no
// native incremental API and StreamFallback must synthesize one from a
// single Chat call.
const streamChunkChars = 40

// StreamFallback calls provider.Chat once and replays its content as a
// sequence of delta events, followed by a tool_calls event when the response
// has tool calls and then a done event, both carrying the full response. It lets any LLMProvider satisfy StreamingLLMProvider so the
// agent loop's streaming path works uniformly even against backends (like
// HTTPProvider) that only expose a non-streaming chat completions endpoint.
func StreamFallback(ctx context.Context, provider LLMProvider, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) <-chan StreamEvent {
	events := make(chan StreamEvent, 8)

	go func() {
		defer close(events)

		resp, err := provider.Chat(ctx, messages, tools, model, options)
		if err != nil {
			select {
			case events <- StreamEvent{Type: StreamEventError, Err: err}:
			case <-ctx.Done():
			}
			return
		}

		content := resp.Content
		for len(content) > 0 {
			n := streamChunkChars
			if n > len(content) {
				n = len(content)
			}
			chunk := content[:n]
			content = content[n:]

			select {
			case events <- StreamEvent{Type: StreamEventDelta, Delta: chunk}:
			case <-ctx.Done():
				return
			}
		}

		if len(resp.ToolCalls) > 0 {
			select {
			case events <- StreamEvent{Type: StreamEventToolCalls, Response: resp}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case events <- StreamEvent{Type: StreamEventDone, Response: resp}:
		case <-ctx.Done():
		}
	}()

	return events
}
