// Anthropic adapter using the official anthropic-sdk-go.
//
// Information Hiding:
// - Messages endpoint, API-key and version headers
// - Content-block conversion (text, tool_use, tool_result)
// - SSE streaming via the SDK
//
// System content is out-of-band: system-role messages are extracted from the
// turn sequence and sent as the top-level system field.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicAdapter implements Adapter for the Anthropic Messages protocol.
type AnthropicAdapter struct{}

// NewAnthropicAdapter creates the Anthropic adapter.
func NewAnthropicAdapter() *AnthropicAdapter {
	return &AnthropicAdapter{}
}

// Provider returns ProviderAnthropic.
func (a *AnthropicAdapter) Provider() Provider {
	return ProviderAnthropic
}

// Call performs one Messages API invocation.
func (a *AnthropicAdapter) Call(ctx context.Context, messages []Message, cfg CallConfig, tools []ToolDefinition, onChunk ChunkHandler) (Result, error) {
	if cfg.APIKey == "" {
		return Result{}, &MissingCredentialError{Provider: ProviderAnthropic, Field: "api key"}
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	anthropicMessages, systemPrompt := toAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(cfg.Model),
		MaxTokens:   int64(cfg.MaxTokens),
		Messages:    anthropicMessages,
		Temperature: anthropic.Float(float64(cfg.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
		return a.buffered(ctx, client, params)
	}

	if onChunk != nil {
		return a.streamed(ctx, client, params, onChunk)
	}
	return a.buffered(ctx, client, params)
}

func (a *AnthropicAdapter) buffered(ctx context.Context, client anthropic.Client, params anthropic.MessageNewParams) (Result, error) {
	message, err := client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, anthropicError(err)
	}

	var result Result
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			result.Content += variant.Text
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if err := json.Unmarshal(variant.Input, &args); err != nil {
				args = map[string]any{}
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   callIDOr(variant.ID),
				Name: variant.Name,
				Args: args,
			})
		}
	}

	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		usage := &TokenUsage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		}
		usage.Normalize()
		result.Usage = usage
	}

	return result, nil
}

func (a *AnthropicAdapter) streamed(ctx context.Context, client anthropic.Client, params anthropic.MessageNewParams, onChunk ChunkHandler) (Result, error) {
	stream := client.Messages.NewStreaming(ctx, params)

	var content strings.Builder
	var usage *TokenUsage
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			if eventVariant.Message.Usage.InputTokens > 0 {
				usage = &TokenUsage{InputTokens: int(eventVariant.Message.Usage.InputTokens)}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					content.WriteString(deltaVariant.Text)
					onChunk(deltaVariant.Text)
				}
			}
		case anthropic.MessageDeltaEvent:
			if eventVariant.Usage.OutputTokens > 0 {
				if usage == nil {
					usage = &TokenUsage{}
				}
				usage.OutputTokens = int(eventVariant.Usage.OutputTokens)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return Result{}, anthropicError(err)
	}

	text := content.String()
	if text == "" {
		text = streamPlaceholder
	}
	// Input and output tokens arrive in separate stream events; recompute
	// the total after the stream ends so it holds even when one side is
	// never reported.
	if usage != nil {
		usage.Normalize()
	}
	return Result{Content: text, Usage: usage}, nil
}

// anthropicError maps SDK failures onto the uniform taxonomy.
func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   ProviderAnthropic,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
		}
	}
	return &ProviderError{Provider: ProviderAnthropic, Message: err.Error()}
}

// toAnthropicMessages converts the uniform history, extracting the system
// prompt out of the turn sequence. A tool-role message becomes a user turn
// with a tool_result block keyed by the originating call id; an assistant
// message carrying tool calls becomes a content block list mixing text and
// tool_use declarations.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemPrompt = msg.Content
		case RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				param := anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant}
				if msg.Content != "" {
					param.Content = append(param.Content, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					param.Content = append(param.Content, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							ID:    tc.ID,
							Name:  tc.Name,
							Input: tc.Args,
						},
					})
				}
				anthropicMessages = append(anthropicMessages, param)
			} else {
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Content),
				))
			}
		case RoleTool:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}

	return anthropicMessages, systemPrompt
}

// toAnthropicTools converts declarations to input_schema form.
func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		properties, _ := t.Parameters["properties"].(map[string]any)
		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   requiredNames(t.Parameters),
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return result
}

// requiredNames reads a schema's required list, tolerating both []string and
// the []any a JSON round-trip produces.
func requiredNames(params map[string]any) []string {
	switch req := params["required"].(type) {
	case []string:
		return req
	case []any:
		var names []string
		for _, r := range req {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}

// Verify AnthropicAdapter implements Adapter
var _ Adapter = (*AnthropicAdapter)(nil)
