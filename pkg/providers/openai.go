package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"

	"github.com/rotbot/rotbot/pkg/logger"
)

// OpenAIProvider talks to the OpenAI chat-completions API through the
// official typed SDK rather than HTTPProvider's own JSON request and
// response handling.
// CreateProvider selects this variant whenever an OpenAI API key is
// configured and the model string looks like an OpenAI model; other
// OpenAI-compatible backends (OpenRouter, Groq, local vLLM, ...) still go
// through HTTPProvider, which speaks the same wire protocol generically.
type OpenAIProvider struct {
	client openai.Client
}

func NewOpenAIProvider(apiKey, apiBase string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

func (p *OpenAIProvider) GetDefaultModel() string {
	return string(shared.ChatModelGPT4o)
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range PrependSafetyDirective(messages) {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		case "tool":
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: param.NewOpt(t.Function.Description),
			Parameters:  t.Function.Parameters,
		}))
	}
	return out
}

func (p *OpenAIProvider) buildParams(messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = toOpenAITools(tools)
	}
	if temp, ok := options["temperature"].(float64); ok {
		params.Temperature = param.NewOpt(temp)
	}
	if mt, ok := options["max_tokens"].(int); ok && mt > 0 {
		params.MaxTokens = param.NewOpt(int64(mt))
	}
	return params
}

// parseOpenAIToolCall decodes a tool call's JSON argument string into the
// generic map ToolRegistry.ExecuteWithContext expects, matching the
// fallback-to-raw behavior HTTPProvider uses for malformed JSON.
func parseOpenAIToolCall(id, name, rawArgs string) ToolCall {
	arguments := make(map[string]interface{})
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &arguments); err != nil {
			arguments["raw"] = rawArgs
		}
	}
	return ToolCall{
		ID:        id,
		Type:      "function",
		Name:      name,
		Arguments: arguments,
		Function:  &FunctionCall{Name: name, Arguments: rawArgs},
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(messages, tools, model, options))
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &LLMResponse{FinishReason: "stop"}, nil
	}

	choice := resp.Choices[0]
	out := &LLMResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, parseOpenAIToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	out.Usage = &UsageInfo{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out, nil
}

// StreamChat streams text deltas natively through the SDK's server-sent
// events support and accumulates tool-call fragments into the final
// response, sent as a ToolCalls event (when there are tool calls) followed
// by a Done event. HTTPProvider has no native streaming; its StreamChat goes
// through StreamFallback.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (<-chan StreamEvent, error) {
	params := p.buildParams(messages, tools, model, options)
	events := make(chan StreamEvent, 8)

	go func() {
		defer close(events)

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		acc := openai.ChatCompletionAccumulator{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 {
				if text := chunk.Choices[0].Delta.Content; text != "" {
					select {
					case events <- StreamEvent{Type: StreamEventDelta, Delta: text}:
					case <-ctx.Done():
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			logger.WarnCF("provider", "openai stream error", map[string]interface{}{"error": err.Error()})
			select {
			case events <- StreamEvent{Type: StreamEventError, Err: err}:
			case <-ctx.Done():
			}
			return
		}

		resp := &LLMResponse{}
		if len(acc.Choices) > 0 {
			resp.Content = acc.Choices[0].Message.Content
			resp.FinishReason = string(acc.Choices[0].FinishReason)
			for _, tc := range acc.Choices[0].Message.ToolCalls {
				resp.ToolCalls = append(resp.ToolCalls, parseOpenAIToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
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

	return events, nil
}
