// OpenAI adapter using the go-openai library.
//
// Information Hiding:
// - Chat Completions endpoint and bearer auth
// - Request/response format conversion
// - SSE streaming via go-openai
//
// System content stays inline in the turn sequence (OpenAI accepts a
// "system" role message). A BaseURL override is honored for
// OpenAI-compatible endpoints.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter implements Adapter for the OpenAI chat-completions protocol.
type OpenAIAdapter struct{}

// NewOpenAIAdapter creates the OpenAI adapter. It holds no state; the client
// is built per call from the merged configuration.
func NewOpenAIAdapter() *OpenAIAdapter {
	return &OpenAIAdapter{}
}

// Provider returns ProviderOpenAI.
func (a *OpenAIAdapter) Provider() Provider {
	return ProviderOpenAI
}

// Call performs one chat-completions invocation.
func (a *OpenAIAdapter) Call(ctx context.Context, messages []Message, cfg CallConfig, tools []ToolDefinition, onChunk ChunkHandler) (Result, error) {
	if cfg.APIKey == "" {
		return Result{}, &MissingCredentialError{Provider: ProviderOpenAI, Field: "api key"}
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientCfg)

	req := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Messages:    toOpenAIMessages(messages),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	if len(tools) > 0 {
		// Tool-call payloads are structured fields; buffered transport only.
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
		return a.buffered(ctx, client, req)
	}

	if onChunk != nil {
		return a.streamed(ctx, client, req, onChunk)
	}
	return a.buffered(ctx, client, req)
}

func (a *OpenAIAdapter) buffered(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest) (Result, error) {
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Result{}, openAIError(err)
	}

	var result Result
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		result.Content = msg.Content
		for _, tc := range msg.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   callIDOr(tc.ID),
				Name: tc.Function.Name,
				Args: decodeArgs(tc.Function.Arguments),
			})
		}
	}

	if u := resp.Usage; u.PromptTokens > 0 || u.CompletionTokens > 0 {
		usage := &TokenUsage{
			InputTokens:  u.PromptTokens,
			OutputTokens: u.CompletionTokens,
			TotalTokens:  u.TotalTokens,
		}
		usage.Normalize()
		result.Usage = usage
	}

	return result, nil
}

func (a *OpenAIAdapter) streamed(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest, onChunk ChunkHandler) (Result, error) {
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return Result{}, openAIError(err)
	}
	defer stream.Close()

	var content strings.Builder
	var usage *TokenUsage
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, openAIError(err)
		}

		// Usage arrives on the final frame when requested.
		if resp.Usage != nil {
			usage = &TokenUsage{
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
				TotalTokens:  resp.Usage.TotalTokens,
			}
			usage.Normalize()
		}

		if len(resp.Choices) > 0 {
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				content.WriteString(delta)
				onChunk(delta)
			}
		}
	}

	text := content.String()
	if text == "" {
		text = streamPlaceholder
	}
	return Result{Content: text, Usage: usage}, nil
}

// openAIError maps go-openai failures onto the uniform taxonomy.
func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   ProviderOpenAI,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		}
	}
	return &ProviderError{Provider: ProviderOpenAI, Message: err.Error()}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: encodeArgs(tc.Args),
				},
			})
		}
		if msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}
		result[i] = oaiMsg
	}
	return result
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// decodeArgs parses a vendor's JSON argument string into the uniform
// mapping. Undecodable arguments degrade to an empty map.
func decodeArgs(raw string) map[string]any {
	args := map[string]any{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &args)
	}
	return args
}

// encodeArgs serializes the uniform argument mapping back to the vendor's
// JSON string form once, avoiding double encoding.
func encodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// callIDOr returns the vendor-supplied id, or a locally generated one.
func callIDOr(id string) string {
	if id != "" {
		return id
	}
	return NewCallID()
}

// Verify OpenAIAdapter implements Adapter
var _ Adapter = (*OpenAIAdapter)(nil)
