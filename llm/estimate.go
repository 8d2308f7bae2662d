// Prompt-size estimation, used to preview token count and cost before a
// call. Estimates only; billing truth is the provider's reported usage.

package llm

import (
	"github.com/pkoukk/tiktoken-go"
)

// perMessageOverhead approximates the framing tokens each chat turn costs.
const perMessageOverhead = 4

// EstimateTokens estimates the input token count of a history for a model.
// OpenAI-family models use their real tokenizer; other vocabularies fall
// back to a bytes/4 heuristic, which is close enough for a preview.
func EstimateTokens(messages []Message, modelID string) int {
	enc, err := tiktoken.EncodingForModel(modelID)
	total := 0
	for _, msg := range messages {
		if err == nil {
			total += len(enc.Encode(msg.Content, nil, nil))
		} else {
			total += len(msg.Content) / 4
		}
		total += perMessageOverhead
	}
	return total
}

// EstimateCost projects the input-side USD cost of sending a history.
func EstimateCost(messages []Message, modelID string) float64 {
	usage := TokenUsage{InputTokens: EstimateTokens(messages, modelID)}
	usage.Normalize()
	return ComputeCost(usage, modelID)
}
