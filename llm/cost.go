// Cost derivation from token usage and catalog pricing.

package llm

import "log/slog"

// ComputeCost derives a USD cost for one usage record.
//
// An unknown model id degrades to the rates of the provider's first catalog
// entry rather than failing, so a rendering layer never crashes over a
// missing price; the condition is logged at warning level. When even the
// provider cannot be resolved the cost is zero, also logged.
func ComputeCost(usage TokenUsage, modelID string) float64 {
	return computeCost(usage, modelID, slog.Default())
}

func computeCost(usage TokenUsage, modelID string, logger *slog.Logger) float64 {
	info, ok := ResolveModel(modelID)
	if !ok {
		provider, found := ResolveProvider(modelID)
		if !found {
			logger.Warn("cost unavailable: provider not resolvable", "model", modelID)
			return 0
		}
		fallback := ModelsFor(provider)
		if len(fallback) == 0 {
			logger.Warn("cost unavailable: provider has no catalog entries", "model", modelID, "provider", provider)
			return 0
		}
		info = fallback[0]
		logger.Warn("model not in catalog, using provider's first entry for pricing",
			"model", modelID, "fallback", info.ID)
	}

	in := float64(usage.InputTokens) / 1_000_000 * info.InputPerMTok
	out := float64(usage.OutputTokens) / 1_000_000 * info.OutputPerMTok
	return in + out
}
