// Local (Ollama-style) adapter: hand-rolled wire client over net/http.
//
// Information Hiding:
// - /api/chat endpoint shape and options mapping
// - Newline-delimited JSON stream framing
// - Terminal-frame usage extraction (prompt_eval_count / eval_count)
//
// No SDK exists for this protocol; the client follows the same wire-client
// shape as the cloud adapters' libraries. System content stays inline in the
// turn sequence. Tool declarations are sent only when the target model's
// catalog entry declares tool support.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaAdapter implements Adapter for a self-hosted Ollama-style server.
type OllamaAdapter struct {
	httpClient *http.Client
}

// NewOllamaAdapter creates the local adapter.
//
// The client carries no timeout of its own. A client timeout bounds the
// whole body read and would cut long-running local streams mid-answer; the
// request context is the deadline mechanism here.
func NewOllamaAdapter() *OllamaAdapter {
	return &OllamaAdapter{
		httpClient: &http.Client{},
	}
}

// Provider returns ProviderLocal.
func (a *OllamaAdapter) Provider() Provider {
	return ProviderLocal
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaTool struct {
	Type     string            `json:"type"`
	Function ollamaFunctionDef `json:"function"`
}

type ollamaFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

// ollamaChatResponse is both the buffered response body and one stream frame.
type ollamaChatResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
}

// Call performs one /api/chat invocation against cfg.BaseURL.
func (a *OllamaAdapter) Call(ctx context.Context, messages []Message, cfg CallConfig, tools []ToolDefinition, onChunk ChunkHandler) (Result, error) {
	if cfg.BaseURL == "" {
		return Result{}, &MissingCredentialError{Provider: ProviderLocal, Field: "base url"}
	}

	reqBody := ollamaChatRequest{
		Model:    cfg.Model,
		Messages: toOllamaMessages(messages),
		Options: ollamaOptions{
			Temperature: cfg.Temperature,
			NumPredict:  cfg.MaxTokens,
		},
	}

	if len(tools) > 0 {
		// Declarations go out only when the catalog says the model can use
		// them; the buffered transport is used either way.
		if info, ok := ResolveModel(cfg.Model); ok && info.SupportsTools {
			reqBody.Tools = toOllamaTools(tools)
		}
		return a.buffered(ctx, cfg.BaseURL, reqBody)
	}

	if onChunk != nil {
		reqBody.Stream = true
		return a.streamed(ctx, cfg.BaseURL, reqBody, onChunk)
	}
	return a.buffered(ctx, cfg.BaseURL, reqBody)
}

func (a *OllamaAdapter) send(ctx context.Context, baseURL string, reqBody ollamaChatRequest) (*http.Response, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderLocal, Message: fmt.Sprintf("marshaling request: %v", err)}
	}

	url := strings.TrimRight(baseURL, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: ProviderLocal, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderLocal, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		msg := string(raw)
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return nil, &ProviderError{Provider: ProviderLocal, StatusCode: resp.StatusCode, Message: msg}
	}

	return resp, nil
}

func (a *OllamaAdapter) buffered(ctx context.Context, baseURL string, reqBody ollamaChatRequest) (Result, error) {
	reqBody.Stream = false
	resp, err := a.send(ctx, baseURL, reqBody)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return Result{}, &ProviderError{Provider: ProviderLocal, Message: fmt.Sprintf("parsing response: %v", err)}
	}
	if chatResp.Error != "" {
		return Result{}, &ProviderError{Provider: ProviderLocal, Message: chatResp.Error}
	}

	result := Result{Content: chatResp.Message.Content}
	for _, tc := range chatResp.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:   NewCallID(), // Ollama omits call ids
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}
	result.Usage = ollamaUsage(chatResp)
	return result, nil
}

func (a *OllamaAdapter) streamed(ctx context.Context, baseURL string, reqBody ollamaChatRequest, onChunk ChunkHandler) (Result, error) {
	resp, err := a.send(ctx, baseURL, reqBody)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var content strings.Builder
	var usage *TokenUsage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame ollamaChatResponse
		if err := json.Unmarshal(line, &frame); err != nil {
			// Best-effort decoding: one bad line must not abort the stream.
			continue
		}
		if frame.Message.Content != "" {
			content.WriteString(frame.Message.Content)
			onChunk(frame.Message.Content)
		}
		if frame.Done {
			usage = ollamaUsage(frame)
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, &ProviderError{Provider: ProviderLocal, Message: fmt.Sprintf("reading stream: %v", err)}
	}

	text := content.String()
	if text == "" {
		text = streamPlaceholder
	}
	return Result{Content: text, Usage: usage}, nil
}

func ollamaUsage(resp ollamaChatResponse) *TokenUsage {
	if resp.PromptEvalCount == 0 && resp.EvalCount == 0 {
		return nil
	}
	usage := &TokenUsage{
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}
	usage.Normalize()
	return usage
}

func toOllamaMessages(messages []Message) []ollamaMessage {
	result := make([]ollamaMessage, len(messages))
	for i, msg := range messages {
		om := ollamaMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		for _, tc := range msg.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
				Function: ollamaFunctionCall{Name: tc.Name, Arguments: tc.Args},
			})
		}
		result[i] = om
	}
	return result
}

func toOllamaTools(tools []ToolDefinition) []ollamaTool {
	result := make([]ollamaTool, len(tools))
	for i, t := range tools {
		result[i] = ollamaTool{
			Type: "function",
			Function: ollamaFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify OllamaAdapter implements Adapter
var _ Adapter = (*OllamaAdapter)(nil)
