package providers

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rotbot/rotbot/pkg/logger"
)

// ClaudeProvider talks to the Anthropic Messages API directly through the
// official SDK rather than the OpenAI-compatible chat/completions shape
// HTTPProvider speaks. CreateProvider selects it when an Anthropic API key
// is configured and the model name contains "claude" (an "anthropic/" prefix
// goes to OpenRouter instead). It and OpenAIProvider are the providers here
// with a native (non-synthesized) StreamChat implementation.
type ClaudeProvider struct {
	client anthropic.Client
}

func NewClaudeProvider(apiKey, apiBase string) *ClaudeProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &ClaudeProvider{client: anthropic.NewClient(opts...)}
}

func (p *ClaudeProvider) GetDefaultModel() string {
	return string(anthropic.ModelClaude3_7SonnetLatest)
}

func toClaudeMessages(messages []Message) (system string, out []anthropic.MessageParam) {
	for _, m := range messages {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case "user":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case "tool":
			out = append(out, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return system, out
}

func toClaudeTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: t.Function.Parameters["properties"],
		}, t.Function.Name))
	}
	return out
}

func claudeMaxTokens(options map[string]interface{}) int64 {
	if mt, ok := options["max_tokens"].(int); ok && mt > 0 {
		return int64(mt)
	}
	return 4096
}

func (p *ClaudeProvider) buildParams(messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) anthropic.MessageNewParams {
	system, msgs := toClaudeMessages(PrependSafetyDirective(messages))
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: claudeMaxTokens(options),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toClaudeTools(tools)
	}
	if temp, ok := options["temperature"].(float64); ok {
		params.Temperature = anthropic.Float(temp)
	}
	return params
}

func (p *ClaudeProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	params := p.buildParams(messages, tools, model, options)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	return claudeResponseToLLMResponse(msg), nil
}

func claudeResponseToLLMResponse(msg *anthropic.Message) *LLMResponse {
	resp := &LLMResponse{FinishReason: string(msg.StopReason)}
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += variant.Text
		case anthropic.ToolUseBlock:
			args := map[string]interface{}{}
			if len(variant.Input) > 0 {
				args["raw"] = string(variant.Input)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        variant.ID,
				Type:      "function",
				Name:      variant.Name,
				Arguments: args,
			})
		}
	}
	if msg.Usage.InputTokens != 0 || msg.Usage.OutputTokens != 0 {
		resp.Usage = &UsageInfo{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		}
	}
	return resp
}

// StreamChat streams text deltas natively via the SDK's SSE support, and
// emits a single done event once the stream accumulates into a full message.
func (p *ClaudeProvider) StreamChat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (<-chan StreamEvent, error) {
	params := p.buildParams(messages, tools, model, options)
	events := make(chan StreamEvent, 8)

	go func() {
		defer close(events)

		stream := p.client.Messages.NewStreaming(ctx, params)
		acc := anthropic.Message{}

		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				logger.WarnCF("provider", "claude stream accumulate failed", map[string]interface{}{"error": err.Error()})
				continue
			}

			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if text := delta.Delta.Text; text != "" {
					select {
					case events <- StreamEvent{Type: StreamEventDelta, Delta: text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case events <- StreamEvent{Type: StreamEventError, Err: err}:
			case <-ctx.Done():
			}
			return
		}

		resp := claudeResponseToLLMResponse(&acc)
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

	return events, nil
}
