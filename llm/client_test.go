package llm

import (
	"context"
	"errors"
	"math"
	"testing"
)

// scriptedAdapter replays canned results in order and records every call.
type scriptedAdapter struct {
	provider Provider
	results  []Result
	errs     []error
	calls    int

	gotTools  [][]ToolDefinition
	gotChunks []bool
	messages  [][]Message
}

func (a *scriptedAdapter) Provider() Provider { return a.provider }

func (a *scriptedAdapter) Call(ctx context.Context, messages []Message, cfg CallConfig, tools []ToolDefinition, onChunk ChunkHandler) (Result, error) {
	i := a.calls
	a.calls++
	a.gotTools = append(a.gotTools, tools)
	a.gotChunks = append(a.gotChunks, onChunk != nil)
	a.messages = append(a.messages, append([]Message(nil), messages...))

	if i < len(a.errs) && a.errs[i] != nil {
		return Result{}, a.errs[i]
	}
	if i >= len(a.results) {
		return Result{}, errors.New("unexpected extra call")
	}
	r := a.results[i]
	if onChunk != nil && r.Content != "" {
		onChunk(r.Content)
	}
	return r, nil
}

// scriptedRunner resolves tool calls from a fixed table.
type scriptedRunner struct {
	defs    []ToolDefinition
	outputs map[string]string
	errs    map[string]error
	ran     []string
}

func (r *scriptedRunner) Definitions() []ToolDefinition { return r.defs }

func (r *scriptedRunner) Has(name string) bool {
	_, okOut := r.outputs[name]
	_, okErr := r.errs[name]
	return okOut || okErr
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args map[string]any) (string, error) {
	r.ran = append(r.ran, name)
	if err, ok := r.errs[name]; ok {
		return "", err
	}
	out, ok := r.outputs[name]
	if !ok {
		return "", &ToolNotFoundError{Name: name}
	}
	return out, nil
}

func newTestClient(adapter Adapter, creds CredentialStore) *Client {
	if creds == nil {
		creds = StaticCredentials{}
	}
	return NewClient(creds, WithAdapter(adapter))
}

func TestInvokeSimpleCallWithCost(t *testing.T) {
	adapter := &scriptedAdapter{
		provider: ProviderOpenAI,
		results: []Result{{
			Content: "Hello!",
			Usage:   &TokenUsage{InputTokens: 10, OutputTokens: 1, TotalTokens: 11},
		}},
	}
	client := newTestClient(adapter, StaticCredentials{
		ProviderOpenAI: {APIKey: "sk-test"},
	})

	result, err := client.Invoke(context.Background(),
		[]Message{NewUserMessage("hi")},
		CallConfig{Model: "gpt-4o-mini"}, nil, CallOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Content != "Hello!" {
		t.Errorf("unexpected content %q", result.Content)
	}
	if adapter.calls != 1 {
		t.Errorf("expected exactly one provider call, got %d", adapter.calls)
	}
	if result.Usage == nil || result.Usage.TotalTokens != 11 {
		t.Errorf("usage not propagated: %+v", result.Usage)
	}

	// gpt-4o-mini: $0.15 in, $0.60 out per million tokens.
	wantCost := 10.0/1e6*0.15 + 1.0/1e6*0.60
	if result.CostUSD == nil {
		t.Fatal("expected cost")
	}
	if math.Abs(*result.CostUSD-wantCost) > 1e-12 {
		t.Errorf("expected cost %.10f, got %.10f", wantCost, *result.CostUSD)
	}
}

func TestInvokeRejectsOutOfRangeTemperature(t *testing.T) {
	adapter := &scriptedAdapter{provider: ProviderOpenAI}
	client := newTestClient(adapter, StaticCredentials{
		ProviderOpenAI: {APIKey: "sk-test"},
	})

	for _, temp := range []float32{-0.1, 9} {
		_, err := client.Invoke(context.Background(),
			[]Message{NewUserMessage("hi")},
			CallConfig{Model: "gpt-4o-mini", Temperature: temp}, nil, CallOptions{})

		var tempErr *InvalidTemperatureError
		if !errors.As(err, &tempErr) {
			t.Fatalf("temperature %g: expected *InvalidTemperatureError, got %v", temp, err)
		}
		if tempErr.Temperature != temp {
			t.Errorf("expected temperature %g in error, got %g", temp, tempErr.Temperature)
		}
	}
	if adapter.calls != 0 {
		t.Errorf("adapter must not be called with an invalid temperature, got %d calls", adapter.calls)
	}
}

func TestInvokeUnknownModel(t *testing.T) {
	client := newTestClient(&scriptedAdapter{provider: ProviderOpenAI}, nil)

	_, err := client.Invoke(context.Background(),
		[]Message{NewUserMessage("hi")},
		CallConfig{Model: "mystery-9000"}, nil, CallOptions{})

	var unknownErr *UnknownProviderError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected *UnknownProviderError, got %v", err)
	}
	if unknownErr.Model != "mystery-9000" {
		t.Errorf("expected model in error, got %q", unknownErr.Model)
	}
}

func TestInvokeMissingCredential(t *testing.T) {
	// Default adapters, no credentials anywhere.
	client := NewClient(StaticCredentials{})

	_, err := client.Invoke(context.Background(),
		[]Message{NewUserMessage("hi")},
		CallConfig{Model: "gpt-4o-mini"}, nil, CallOptions{})

	var missingErr *MissingCredentialError
	if !errors.As(err, &missingErr) {
		t.Fatalf("expected *MissingCredentialError, got %v", err)
	}
	if missingErr.Provider != ProviderOpenAI {
		t.Errorf("expected openai provider, got %v", missingErr.Provider)
	}
}

func TestInvokeCredentialStoreOverridesConfig(t *testing.T) {
	adapter := &scriptedAdapter{
		provider: ProviderAnthropic,
		results:  []Result{{Content: "ok"}},
	}
	recorded := CallConfig{}
	wrapper := adapterFunc{provider: ProviderAnthropic, fn: func(ctx context.Context, messages []Message, cfg CallConfig, tools []ToolDefinition, onChunk ChunkHandler) (Result, error) {
		recorded = cfg
		return adapter.Call(ctx, messages, cfg, tools, onChunk)
	}}
	client := newTestClient(wrapper, StaticCredentials{
		ProviderAnthropic: {APIKey: "stored-key"},
	})

	_, err := client.Invoke(context.Background(),
		[]Message{NewUserMessage("hi")},
		CallConfig{Model: "claude-sonnet-4-20250514", APIKey: "inline-key"}, nil, CallOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recorded.APIKey != "stored-key" {
		t.Errorf("expected store credential to win, got %q", recorded.APIKey)
	}
}

type adapterFunc struct {
	provider Provider
	fn       func(context.Context, []Message, CallConfig, []ToolDefinition, ChunkHandler) (Result, error)
}

func (a adapterFunc) Provider() Provider { return a.provider }
func (a adapterFunc) Call(ctx context.Context, messages []Message, cfg CallConfig, tools []ToolDefinition, onChunk ChunkHandler) (Result, error) {
	return a.fn(ctx, messages, cfg, tools, onChunk)
}

func TestInvokeStreamsWithoutTools(t *testing.T) {
	adapter := &scriptedAdapter{
		provider: ProviderOpenAI,
		results:  []Result{{Content: "streamed"}},
	}
	client := newTestClient(adapter, StaticCredentials{ProviderOpenAI: {APIKey: "k"}})

	var chunks []string
	_, err := client.Invoke(context.Background(),
		[]Message{NewUserMessage("hi")},
		CallConfig{Model: "gpt-4o-mini"}, nil,
		CallOptions{OnChunk: func(chunk string) { chunks = append(chunks, chunk) }})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Error("expected streamed chunks")
	}
	if !adapter.gotChunks[0] {
		t.Error("expected chunk handler forwarded to adapter")
	}
}

func TestInvokeToolExchange(t *testing.T) {
	call := ToolCall{ID: "call_1", Name: "get_weather", Args: map[string]any{"city": "Paris"}}
	adapter := &scriptedAdapter{
		provider: ProviderOpenAI,
		results: []Result{
			{ToolCalls: []ToolCall{call}, Usage: &TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
			{Content: "18 degrees in Paris.", Usage: &TokenUsage{InputTokens: 20, OutputTokens: 8, TotalTokens: 28}},
		},
	}
	runner := &scriptedRunner{
		defs:    []ToolDefinition{{Name: "get_weather", Parameters: map[string]any{"type": "object"}}},
		outputs: map[string]string{"get_weather": `{"temp":18}`},
	}
	client := newTestClient(adapter, StaticCredentials{ProviderOpenAI: {APIKey: "k"}})

	var toolCalls []ToolCall
	var toolResults []string
	result, err := client.Invoke(context.Background(),
		[]Message{NewUserMessage("weather in Paris?")},
		CallConfig{Model: "gpt-4o-mini"}, runner,
		CallOptions{
			OnToolCall:   func(tc ToolCall) { toolCalls = append(toolCalls, tc) },
			OnToolResult: func(tc ToolCall, out string, err error) { toolResults = append(toolResults, out) },
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if adapter.calls != 2 {
		t.Fatalf("expected two provider rounds, got %d", adapter.calls)
	}
	if result.Content != "18 degrees in Paris." {
		t.Errorf("unexpected content %q", result.Content)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "get_weather" {
		t.Errorf("expected first-round tool calls surfaced, got %+v", result.ToolCalls)
	}
	if runner.ran[0] != "get_weather" {
		t.Errorf("tool not executed: %v", runner.ran)
	}
	if len(toolCalls) != 1 || len(toolResults) != 1 {
		t.Errorf("progress callbacks not fired: %d calls, %d results", len(toolCalls), len(toolResults))
	}

	// Usage is the field-wise sum across both rounds.
	if result.Usage == nil || result.Usage.InputTokens != 30 || result.Usage.OutputTokens != 13 || result.Usage.TotalTokens != 43 {
		t.Errorf("usage not summed: %+v", result.Usage)
	}

	// Transcript carries the exchange for history continuation: assistant
	// with tool calls, tool result, final assistant.
	if len(result.Transcript) != 3 {
		t.Fatalf("expected transcript of 3 messages, got %d", len(result.Transcript))
	}
	if result.Transcript[0].Role != RoleAssistant || len(result.Transcript[0].ToolCalls) != 1 {
		t.Errorf("transcript[0] not the tool-call turn: %+v", result.Transcript[0])
	}
	if result.Transcript[1].Role != RoleTool || result.Transcript[1].ToolCallID != "call_1" {
		t.Errorf("transcript[1] not the tool result: %+v", result.Transcript[1])
	}
	if result.Transcript[1].Content != `{"temp":18}` {
		t.Errorf("tool output not recorded: %q", result.Transcript[1].Content)
	}
	if result.Transcript[2].Role != RoleAssistant || result.Transcript[2].Content != "18 degrees in Paris." {
		t.Errorf("transcript[2] not the final answer: %+v", result.Transcript[2])
	}

	// The second round must see the tool messages.
	secondRound := adapter.messages[1]
	if len(secondRound) != 3 {
		t.Fatalf("expected 3 messages on second round, got %d", len(secondRound))
	}
	if secondRound[2].Role != RoleTool {
		t.Errorf("expected trailing tool message, got role %q", secondRound[2].Role)
	}

	// Tool rounds never stream.
	if adapter.gotChunks[0] || adapter.gotChunks[1] {
		t.Error("tool rounds must use buffered transport")
	}
}

func TestInvokeToolFailureReportedInBand(t *testing.T) {
	call := ToolCall{ID: "call_1", Name: "get_weather", Args: map[string]any{}}
	adapter := &scriptedAdapter{
		provider: ProviderOpenAI,
		results: []Result{
			{ToolCalls: []ToolCall{call}},
			{Content: "I could not check the weather."},
		},
	}
	runner := &scriptedRunner{
		defs: []ToolDefinition{{Name: "get_weather"}},
		errs: map[string]error{"get_weather": errors.New("network down")},
	}
	client := newTestClient(adapter, StaticCredentials{ProviderOpenAI: {APIKey: "k"}})

	result, err := client.Invoke(context.Background(),
		[]Message{NewUserMessage("weather?")},
		CallConfig{Model: "gpt-4o-mini"}, runner, CallOptions{})
	if err != nil {
		t.Fatalf("tool failure must not abort the exchange: %v", err)
	}

	if len(result.Transcript) != 3 {
		t.Fatalf("expected full transcript, got %d messages", len(result.Transcript))
	}
	if result.Transcript[1].Content != "Error: network down" {
		t.Errorf("expected in-band error message, got %q", result.Transcript[1].Content)
	}
	if result.Content != "I could not check the weather." {
		t.Errorf("unexpected final content %q", result.Content)
	}
}

func TestInvokeUnknownToolReportedInBand(t *testing.T) {
	call := ToolCall{ID: "call_1", Name: "invented_tool", Args: map[string]any{}}
	adapter := &scriptedAdapter{
		provider: ProviderOpenAI,
		results: []Result{
			{ToolCalls: []ToolCall{call}},
			{Content: "done"},
		},
	}
	runner := &scriptedRunner{
		defs:    []ToolDefinition{{Name: "other_tool"}},
		outputs: map[string]string{"other_tool": "x"},
	}
	client := newTestClient(adapter, StaticCredentials{ProviderOpenAI: {APIKey: "k"}})

	result, err := client.Invoke(context.Background(),
		[]Message{NewUserMessage("go")},
		CallConfig{Model: "gpt-4o-mini"}, runner, CallOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Transcript[1].Content != `Error: tool "invented_tool" not found` {
		t.Errorf("unexpected tool message %q", result.Transcript[1].Content)
	}
}

func TestInvokeNoRunnerSkipsOrchestration(t *testing.T) {
	adapter := &scriptedAdapter{
		provider: ProviderOpenAI,
		results:  []Result{{Content: "plain"}},
	}
	client := newTestClient(adapter, StaticCredentials{ProviderOpenAI: {APIKey: "k"}})

	result, err := client.Invoke(context.Background(),
		[]Message{NewUserMessage("hi")},
		CallConfig{Model: "gpt-4o-mini"},
		&scriptedRunner{}, // no definitions registered
		CallOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.calls != 1 {
		t.Errorf("expected single call, got %d", adapter.calls)
	}
	if len(adapter.gotTools[0]) != 0 {
		t.Errorf("expected no tool definitions on the wire, got %d", len(adapter.gotTools[0]))
	}
	if result.Content != "plain" {
		t.Errorf("unexpected content %q", result.Content)
	}
}

func TestInvokeAttachesMetaToTranscript(t *testing.T) {
	adapter := &scriptedAdapter{
		provider: ProviderOpenAI,
		results: []Result{{
			Content: "answer",
			Usage:   &TokenUsage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7},
		}},
	}
	client := newTestClient(adapter, StaticCredentials{ProviderOpenAI: {APIKey: "k"}})

	result, err := client.Invoke(context.Background(),
		[]Message{NewUserMessage("hi")},
		CallConfig{Model: "gpt-4o-mini"}, nil, CallOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Transcript) != 1 {
		t.Fatalf("expected 1 transcript message, got %d", len(result.Transcript))
	}
	meta := result.Transcript[0].Meta
	if meta == nil || meta.Usage == nil || meta.Usage.TotalTokens != 7 {
		t.Errorf("meta not attached: %+v", meta)
	}
	if meta.CostUSD == nil {
		t.Error("expected cost in meta")
	}
}

func TestCompareRunsBothSides(t *testing.T) {
	a := &scriptedAdapter{provider: ProviderOpenAI, results: []Result{{Content: "from openai"}}}
	b := adapterFunc{provider: ProviderAnthropic, fn: func(ctx context.Context, messages []Message, cfg CallConfig, tools []ToolDefinition, onChunk ChunkHandler) (Result, error) {
		return Result{}, &ProviderError{Provider: ProviderAnthropic, StatusCode: 500, Message: "boom"}
	}}
	client := NewClient(StaticCredentials{
		ProviderOpenAI:    {APIKey: "k"},
		ProviderAnthropic: {APIKey: "k"},
	}, WithAdapter(a), WithAdapter(b))

	outA, outB := client.Compare(context.Background(),
		[]Message{NewUserMessage("hi")},
		CallConfig{Model: "gpt-4o-mini"},
		CallConfig{Model: "claude-sonnet-4-20250514"},
		CallOptions{}, CallOptions{})

	if outA.Err != nil {
		t.Fatalf("side A failed: %v", outA.Err)
	}
	if outA.Result.Content != "from openai" {
		t.Errorf("unexpected side A content %q", outA.Result.Content)
	}
	if outB.Err == nil {
		t.Fatal("expected side B error")
	}
	var provErr *ProviderError
	if !errors.As(outB.Err, &provErr) {
		t.Errorf("expected *ProviderError, got %T", outB.Err)
	}
}
