// Model catalog: static lookup of providers, models, capabilities and
// per-million-token pricing. Immutable data, safe for concurrent reads.

package llm

import (
	"fmt"
	"strings"
)

// Provider identifies one vendor/backend. The set is closed; adapters are
// selected by this tag via a lookup, not a class hierarchy.
type Provider int

const (
	ProviderOpenAI Provider = iota
	ProviderAnthropic
	ProviderGoogle
	ProviderLocal
)

// String returns the canonical provider name.
func (p Provider) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderGoogle:
		return "google"
	case ProviderLocal:
		return "local"
	default:
		return "unknown"
	}
}

// ParseProvider parses a provider name (case-insensitive, common aliases).
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(s) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "google", "gemini":
		return ProviderGoogle, nil
	case "local", "ollama":
		return ProviderLocal, nil
	default:
		return 0, fmt.Errorf("unknown provider: %q", s)
	}
}

// ModelInfo describes one catalog entry. Rates are USD per million tokens.
type ModelInfo struct {
	ID            string
	DisplayName   string
	Provider      Provider
	SupportsTools bool
	InputPerMTok  float64
	OutputPerMTok float64
}

// catalog order matters: cost computation for an unknown model of a known
// provider degrades to the provider's first entry.
var catalog = []ModelInfo{
	{ID: "gpt-4o", DisplayName: "GPT-4o", Provider: ProviderOpenAI, SupportsTools: true, InputPerMTok: 2.50, OutputPerMTok: 10.00},
	{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", Provider: ProviderOpenAI, SupportsTools: true, InputPerMTok: 0.15, OutputPerMTok: 0.60},
	{ID: "o3-mini", DisplayName: "o3-mini", Provider: ProviderOpenAI, SupportsTools: true, InputPerMTok: 1.10, OutputPerMTok: 4.40},

	{ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4", Provider: ProviderAnthropic, SupportsTools: true, InputPerMTok: 3.00, OutputPerMTok: 15.00},
	{ID: "claude-opus-4-5-20251101", DisplayName: "Claude Opus 4.5", Provider: ProviderAnthropic, SupportsTools: true, InputPerMTok: 5.00, OutputPerMTok: 25.00},
	{ID: "claude-haiku-4-20250514", DisplayName: "Claude Haiku 4", Provider: ProviderAnthropic, SupportsTools: true, InputPerMTok: 1.00, OutputPerMTok: 5.00},

	{ID: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash", Provider: ProviderGoogle, SupportsTools: true, InputPerMTok: 0.30, OutputPerMTok: 2.50},
	{ID: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", Provider: ProviderGoogle, SupportsTools: true, InputPerMTok: 0.10, OutputPerMTok: 0.40},

	{ID: "llama3.1", DisplayName: "Llama 3.1 (local)", Provider: ProviderLocal, SupportsTools: true},
	{ID: "qwen2.5", DisplayName: "Qwen 2.5 (local)", Provider: ProviderLocal, SupportsTools: true},
	{ID: "gemma3", DisplayName: "Gemma 3 (local)", Provider: ProviderLocal, SupportsTools: false},
}

// modelPrefixes resolve providers for model ids that are not catalog entries
// (new releases, fine-tunes). Pricing still degrades per ComputeCost.
var modelPrefixes = []struct {
	prefix   string
	provider Provider
}{
	{"gpt-", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"claude-", ProviderAnthropic},
	{"gemini-", ProviderGoogle},
}

// Models returns the full catalog.
func Models() []ModelInfo {
	out := make([]ModelInfo, len(catalog))
	copy(out, catalog)
	return out
}

// ModelsFor returns the catalog entries for one provider, in registry order.
func ModelsFor(p Provider) []ModelInfo {
	var out []ModelInfo
	for _, m := range catalog {
		if m.Provider == p {
			out = append(out, m)
		}
	}
	return out
}

// ResolveModel looks up a model id in the catalog.
func ResolveModel(id string) (ModelInfo, bool) {
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ModelInfoFor is the error-returning form of ResolveModel.
func ModelInfoFor(id string) (ModelInfo, error) {
	if m, ok := ResolveModel(id); ok {
		return m, nil
	}
	return ModelInfo{}, &UnknownModelError{Model: id}
}

// ResolveProvider maps a model id to its provider. Catalog entries win;
// otherwise well-known id prefixes are consulted.
func ResolveProvider(modelID string) (Provider, bool) {
	if m, ok := ResolveModel(modelID); ok {
		return m.Provider, true
	}
	for _, p := range modelPrefixes {
		if strings.HasPrefix(modelID, p.prefix) {
			return p.provider, true
		}
	}
	return 0, false
}
