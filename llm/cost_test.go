package llm

import (
	"math"
	"testing"
)

func TestComputeCostKnownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}

	got := ComputeCost(usage, "gpt-4o-mini")
	want := 0.15 + 0.60
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %.4f, got %.4f", want, got)
	}
}

func TestComputeCostUnknownModelFallsBackToProvider(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 0}

	// Unknown gpt variant falls back to the first openai catalog entry.
	got := ComputeCost(usage, "gpt-4o-supernova")
	first := ModelsFor(ProviderOpenAI)[0]
	want := first.InputPerMTok
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected fallback rate %.4f, got %.4f", want, got)
	}
}

func TestComputeCostUnresolvableModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1000, OutputTokens: 1000}

	if got := ComputeCost(usage, "totally-unknown"); got != 0 {
		t.Errorf("expected zero cost for unresolvable model, got %f", got)
	}
}

func TestComputeCostLocalModelsAreFree(t *testing.T) {
	usage := TokenUsage{InputTokens: 5000, OutputTokens: 5000}

	if got := ComputeCost(usage, "llama3.1"); got != 0 {
		t.Errorf("expected zero cost for local model, got %f", got)
	}
}

func TestComputeCostMonotonic(t *testing.T) {
	small := ComputeCost(TokenUsage{InputTokens: 100, OutputTokens: 100}, "claude-sonnet-4-20250514")
	large := ComputeCost(TokenUsage{InputTokens: 10_000, OutputTokens: 10_000}, "claude-sonnet-4-20250514")
	if large <= small {
		t.Errorf("cost must grow with usage: small=%f large=%f", small, large)
	}
}

func TestResolveProvider(t *testing.T) {
	cases := []struct {
		model string
		want  Provider
		ok    bool
	}{
		{"gpt-4o-mini", ProviderOpenAI, true},
		{"gpt-5-preview", ProviderOpenAI, true},
		{"o3-mini", ProviderOpenAI, true},
		{"claude-sonnet-4-20250514", ProviderAnthropic, true},
		{"claude-future-model", ProviderAnthropic, true},
		{"gemini-2.5-flash", ProviderGoogle, true},
		{"llama3.1", ProviderLocal, true},
		{"qwen2.5", ProviderLocal, true},
		{"mystery-9000", Provider(0), false},
	}

	for _, tc := range cases {
		got, ok := ResolveProvider(tc.model)
		if ok != tc.ok {
			t.Errorf("ResolveProvider(%q) ok = %v, want %v", tc.model, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("ResolveProvider(%q) = %v, want %v", tc.model, got, tc.want)
		}
	}
}

func TestParseProviderAliases(t *testing.T) {
	cases := map[string]Provider{
		"openai":    ProviderOpenAI,
		"gpt":       ProviderOpenAI,
		"anthropic": ProviderAnthropic,
		"claude":    ProviderAnthropic,
		"google":    ProviderGoogle,
		"gemini":    ProviderGoogle,
		"local":     ProviderLocal,
		"ollama":    ProviderLocal,
	}
	for in, want := range cases {
		got, err := ParseProvider(in)
		if err != nil {
			t.Errorf("ParseProvider(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseProvider(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseProvider("aws"); err == nil {
		t.Error("expected error for unknown provider name")
	}
}

func TestModelInfoFor(t *testing.T) {
	info, err := ModelInfoFor("gemma3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.SupportsTools {
		t.Error("gemma3 must not advertise tool support")
	}
	if info.Provider != ProviderLocal {
		t.Errorf("unexpected provider %v", info.Provider)
	}

	if _, err := ModelInfoFor("nope"); err == nil {
		t.Error("expected error for unknown model id")
	}
}

func TestModelsForFiltersByProvider(t *testing.T) {
	for _, m := range ModelsFor(ProviderAnthropic) {
		if m.Provider != ProviderAnthropic {
			t.Errorf("model %s has provider %v", m.ID, m.Provider)
		}
	}
	if len(ModelsFor(ProviderAnthropic)) == 0 {
		t.Error("expected anthropic catalog entries")
	}
}
