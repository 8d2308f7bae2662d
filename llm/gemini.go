// Google Gemini adapter using the official google.golang.org/genai SDK.
//
// Information Hiding:
// - API key auth and client creation
// - contents[]/parts[] conversion, functionCall/functionResponse parts
// - Streaming via the SDK iterator
//
// System content is out-of-band via systemInstruction. Gemini supplies no
// ids for tool invocations, so the adapter generates them locally; on the
// way back, a tool-result's function name is recovered from the assistant
// turn that issued the call.

package llm

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/genai"
)

// GeminiAdapter implements Adapter for the Google generate-content protocol.
type GeminiAdapter struct{}

// NewGeminiAdapter creates the Gemini adapter.
func NewGeminiAdapter() *GeminiAdapter {
	return &GeminiAdapter{}
}

// Provider returns ProviderGoogle.
func (a *GeminiAdapter) Provider() Provider {
	return ProviderGoogle
}

// Call performs one generate-content invocation.
func (a *GeminiAdapter) Call(ctx context.Context, messages []Message, cfg CallConfig, tools []ToolDefinition, onChunk ChunkHandler) (Result, error) {
	if cfg.APIKey == "" {
		return Result{}, &MissingCredentialError{Provider: ProviderGoogle, Field: "api key"}
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return Result{}, &ProviderError{Provider: ProviderGoogle, Message: err.Error()}
	}

	contents, systemInstruction := toGeminiContents(messages)

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(cfg.Temperature),
		MaxOutputTokens: int32(cfg.MaxTokens),
	}
	if systemInstruction != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	if len(tools) > 0 {
		genCfg.Tools = toGeminiTools(tools)
		return a.buffered(ctx, client, cfg.Model, contents, genCfg)
	}

	if onChunk != nil {
		return a.streamed(ctx, client, cfg.Model, contents, genCfg, onChunk)
	}
	return a.buffered(ctx, client, cfg.Model, contents, genCfg)
}

func (a *GeminiAdapter) buffered(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, genCfg *genai.GenerateContentConfig) (Result, error) {
	response, err := client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return Result{}, geminiError(err)
	}

	var result Result
	if len(response.Candidates) > 0 && response.Candidates[0].Content != nil {
		for _, part := range response.Candidates[0].Content.Parts {
			if part.Text != "" {
				result.Content += part.Text
			}
			if part.FunctionCall != nil {
				result.ToolCalls = append(result.ToolCalls, ToolCall{
					ID:   NewCallID(), // Gemini omits call ids
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
			}
		}
	}

	result.Usage = geminiUsage(response)
	return result, nil
}

func (a *GeminiAdapter) streamed(ctx context.Context, client *genai.Client, model string, contents []*genai.Content, genCfg *genai.GenerateContentConfig, onChunk ChunkHandler) (Result, error) {
	var result Result
	for response, err := range client.Models.GenerateContentStream(ctx, model, contents, genCfg) {
		if err != nil {
			return Result{}, geminiError(err)
		}
		if u := geminiUsage(response); u != nil {
			result.Usage = u
		}
		if text := response.Text(); text != "" {
			result.Content += text
			onChunk(text)
		}
	}

	if result.Content == "" {
		result.Content = streamPlaceholder
	}
	return result, nil
}

func geminiUsage(response *genai.GenerateContentResponse) *TokenUsage {
	if response.UsageMetadata == nil {
		return nil
	}
	usage := &TokenUsage{
		InputTokens:  int(response.UsageMetadata.PromptTokenCount),
		OutputTokens: int(response.UsageMetadata.CandidatesTokenCount),
		TotalTokens:  int(response.UsageMetadata.TotalTokenCount),
	}
	usage.Normalize()
	return usage
}

// geminiError maps SDK failures onto the uniform taxonomy.
func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   ProviderGoogle,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
		}
	}
	return &ProviderError{Provider: ProviderGoogle, Message: err.Error()}
}

// toGeminiContents converts the uniform history into contents[] with role
// "model" for assistant turns, extracting the system instruction.
func toGeminiContents(messages []Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemInstruction string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemInstruction = msg.Content
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				content := &genai.Content{Role: genai.RoleModel}
				if msg.Content != "" {
					content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
				}
				for _, tc := range msg.ToolCalls {
					content.Parts = append(content.Parts, &genai.Part{
						FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: tc.Args},
					})
				}
				contents = append(contents, content)
			} else {
				contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
			}
		case RoleTool:
			var result map[string]any
			_ = json.Unmarshal([]byte(msg.Content), &result)
			if result == nil {
				result = map[string]any{"result": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser, // Gemini expects tool results as user turns
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     toolNameForCall(messages, msg.ToolCallID),
						Response: result,
					},
				}},
			})
		}
	}

	return contents, systemInstruction
}

// toolNameForCall recovers the function name behind a locally generated call
// id by scanning the assistant turn that issued it. Gemini keys function
// responses by name, not id.
func toolNameForCall(messages []Message, callID string) string {
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID == callID {
				return tc.Name
			}
		}
	}
	return callID
}

// toGeminiTools converts declarations into function declarations.
func toGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var declarations []*genai.FunctionDeclaration
	for _, t := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON-Schema object to Gemini's schema type.
func toGeminiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}

	if t, ok := params["type"].(string); ok {
		schema.Type = geminiType(t)
	}
	schema.Required = requiredNames(params)

	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			propMap, ok := prop.(map[string]any)
			if !ok {
				continue
			}
			schema.Properties[name] = geminiProperty(propMap)
		}
	}

	return schema
}

// geminiProperty converts one property schema, recursing into arrays and
// nested objects. Gemini requires 'items' on arrays.
func geminiProperty(prop map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	if t, ok := prop["type"].(string); ok {
		schema.Type = geminiType(t)
	}
	if d, ok := prop["description"].(string); ok {
		schema.Description = d
	}
	if enum, ok := prop["enum"].([]string); ok {
		schema.Enum = enum
	} else if enum, ok := prop["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}

	if schema.Type == genai.TypeArray {
		if items, ok := prop["items"].(map[string]any); ok {
			schema.Items = geminiProperty(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	}

	if schema.Type == genai.TypeObject {
		if props, ok := prop["properties"].(map[string]any); ok {
			schema.Properties = make(map[string]*genai.Schema)
			for name, p := range props {
				if pMap, ok := p.(map[string]any); ok {
					schema.Properties[name] = geminiProperty(pMap)
				}
			}
		}
	}

	return schema
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer", "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// Verify GeminiAdapter implements Adapter
var _ Adapter = (*GeminiAdapter)(nil)
