// Unified call facade: the single entry point the rest of the application
// uses regardless of provider.
//
// Information Hiding:
// - Adapter selection by model id
// - Credential merging from the provider-scoped store
// - Timing and cost attachment

package llm

import (
	"context"
	"log/slog"
	"time"
)

// Client dispatches uniform calls to the adapter matching the requested
// model, merging stored credentials, timing the exchange and attaching cost.
//
// No retries happen at this layer; a failed call surfaces immediately and
// retry policy belongs to the caller.
type Client struct {
	creds    CredentialStore
	adapters map[Provider]Adapter
	logger   *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithAdapter overrides the adapter for one provider. Tests use this to
// inject stubs.
func WithAdapter(a Adapter) ClientOption {
	return func(c *Client) { c.adapters[a.Provider()] = a }
}

// NewClient creates a facade over the four default adapters. creds supplies
// provider-scoped secrets; it is read fresh at the start of every call.
func NewClient(creds CredentialStore, opts ...ClientOption) *Client {
	c := &Client{
		creds: creds,
		adapters: map[Provider]Adapter{
			ProviderOpenAI:    NewOpenAIAdapter(),
			ProviderAnthropic: NewAnthropicAdapter(),
			ProviderGoogle:    NewGeminiAdapter(),
			ProviderLocal:     NewOllamaAdapter(),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke performs one exchange: resolve the provider from cfg.Model, merge
// stored credentials over cfg, dispatch (through the tool loop when runner
// declares tools), and return the normalized result with elapsed time and
// cost attached.
//
// runner may be nil for plain calls. Callbacks in opts are optional.
func (c *Client) Invoke(ctx context.Context, messages []Message, cfg CallConfig, runner ToolRunner, opts CallOptions) (CallResult, error) {
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return CallResult{}, &InvalidTemperatureError{Temperature: cfg.Temperature}
	}
	provider, ok := ResolveProvider(cfg.Model)
	if !ok {
		return CallResult{}, &UnknownProviderError{Model: cfg.Model}
	}
	adapter := c.adapters[provider]

	cfg = c.mergeCredentials(provider, cfg)

	start := time.Now()
	var result Result
	var transcript []Message
	var err error

	if runner != nil && len(runner.Definitions()) > 0 {
		result, transcript, err = orchestrate(ctx, adapter, messages, cfg, runner, opts, c.logger)
	} else {
		result, err = adapter.Call(ctx, messages, cfg, nil, opts.OnChunk)
		if err == nil {
			transcript = []Message{NewAssistantMessage(result.Content, nil)}
		}
	}
	if err != nil {
		return CallResult{}, err
	}
	elapsed := time.Since(start).Milliseconds()

	res := CallResult{
		Content:    result.Content,
		Usage:      result.Usage,
		ElapsedMs:  elapsed,
		ToolCalls:  result.ToolCalls,
		Transcript: transcript,
	}
	if result.Usage != nil {
		cost := computeCost(*result.Usage, cfg.Model, c.logger)
		res.CostUSD = &cost
	}

	// The final assistant message carries the call's metrics.
	if n := len(transcript); n > 0 {
		transcript[n-1].Meta = &MessageMeta{
			Usage:     res.Usage,
			ElapsedMs: elapsed,
			CostUSD:   res.CostUSD,
		}
	}

	return res, nil
}

// mergeCredentials overlays the provider-scoped credential record onto the
// given config. Provider-scoped values take precedence over whatever the
// config carried, so a key left over from a different provider is never sent
// to this one.
func (c *Client) mergeCredentials(provider Provider, cfg CallConfig) CallConfig {
	if c.creds == nil {
		return cfg
	}
	cred, ok := c.creds.Credential(provider)
	if !ok {
		return cfg
	}
	if cred.APIKey != "" {
		cfg.APIKey = cred.APIKey
	}
	if cred.BaseURL != "" {
		cfg.BaseURL = cred.BaseURL
	}
	return cfg
}
