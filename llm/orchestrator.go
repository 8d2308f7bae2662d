// Tool-call orchestration: the multi-round loop between one adapter and the
// caller's tool set.
//
// Information Hiding:
// - Round structure and history extension hidden from the facade's caller
// - Tool lookup and error recovery internalized

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// CallOptions carries the optional per-call callbacks. All callbacks are
// invoked synchronously so a presentation layer can render progress as the
// exchange unfolds.
type CallOptions struct {
	// OnChunk receives incremental text. Honored only when no tools are in
	// play; tool exchanges always use the buffered transport.
	OnChunk ChunkHandler

	// OnToolCall fires when the model issues a tool call, before execution.
	OnToolCall func(tc ToolCall)

	// OnToolResult fires after a tool call resolves, with the serialized
	// result. err is non-nil when the tool failed or was not found; the
	// exchange still continues in-band.
	OnToolResult func(tc ToolCall, result string, err error)
}

// orchestrate drives the two-state tool loop: call the adapter once; if the
// result carries tool calls, resolve each sequentially, extend the history
// as assistant and tool turns, and call the adapter once more (buffered) for
// the final answer. Exactly one extra round is performed; chained tool calls
// across further round-trips are not supported.
//
// Usage from both rounds is summed field-wise on purpose: two real model
// invocations occurred. If either round lacks usage, the available one is
// used as-is.
func orchestrate(ctx context.Context, adapter Adapter, messages []Message, cfg CallConfig, runner ToolRunner, opts CallOptions, logger *slog.Logger) (Result, []Message, error) {
	defs := runner.Definitions()

	first, err := adapter.Call(ctx, messages, cfg, defs, nil)
	if err != nil {
		return Result{}, nil, err
	}

	if len(first.ToolCalls) == 0 {
		// Terminal: no tool round, exactly one network call performed.
		transcript := []Message{NewAssistantMessage(first.Content, nil)}
		return first, transcript, nil
	}

	assistant := NewAssistantMessage(first.Content, first.ToolCalls)
	transcript := []Message{assistant}
	working := append(append([]Message{}, messages...), assistant)

	// Sequential on purpose: deterministic tool side-effect ordering and
	// predictable rate limiting.
	for _, tc := range first.ToolCalls {
		if opts.OnToolCall != nil {
			opts.OnToolCall(tc)
		}

		content, runErr := resolveToolCall(ctx, runner, tc)
		if runErr != nil {
			// Context cancellation is not a tool failure; abort the exchange.
			if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
				return Result{}, nil, runErr
			}
			logger.Warn("tool call failed, continuing in-band",
				"tool", tc.Name, "error", runErr)
		}
		if opts.OnToolResult != nil {
			opts.OnToolResult(tc, content, runErr)
		}

		toolMsg := NewToolMessage(tc.ID, content)
		transcript = append(transcript, toolMsg)
		working = append(working, toolMsg)
	}

	// Final round: buffered, never streamed.
	second, err := adapter.Call(ctx, working, cfg, defs, nil)
	if err != nil {
		return Result{}, nil, err
	}
	if len(second.ToolCalls) > 0 {
		logger.Warn("model requested further tool calls after the final round; ignoring",
			"count", len(second.ToolCalls))
	}

	final := Result{
		Content:   second.Content,
		ToolCalls: first.ToolCalls,
		Usage:     sumUsage(first.Usage, second.Usage),
	}
	transcript = append(transcript, NewAssistantMessage(second.Content, nil))
	return final, transcript, nil
}

// resolveToolCall executes one tool call. Failures never abort the exchange:
// ToolNotFound and execution errors become in-band error payloads the model
// can react to.
func resolveToolCall(ctx context.Context, runner ToolRunner, tc ToolCall) (string, error) {
	if !runner.Has(tc.Name) {
		err := &ToolNotFoundError{Name: tc.Name}
		return fmt.Sprintf("Error: %s", err.Error()), err
	}

	out, err := runner.Run(ctx, tc.Name, tc.Args)
	if err != nil {
		return fmt.Sprintf("Error: %s", err.Error()), err
	}
	return out, nil
}

func sumUsage(a, b *TokenUsage) *TokenUsage {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	total := *a
	total.Add(*b)
	return &total
}
