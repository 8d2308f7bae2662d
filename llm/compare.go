// Side-by-side comparison: two independent facade invocations run
// concurrently with no shared mutable state.

package llm

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// CompareOutcome is one side of a comparison run.
type CompareOutcome struct {
	Result CallResult
	Err    error
}

// Compare runs the same history against two configurations concurrently.
// Each side owns its own copy of the history and its own callbacks; the two
// sides must not share an OnChunk handler. One side failing does not cancel
// the other.
func (c *Client) Compare(ctx context.Context, messages []Message, cfgA, cfgB CallConfig, optsA, optsB CallOptions) (CompareOutcome, CompareOutcome) {
	var a, b CompareOutcome

	g := new(errgroup.Group)
	g.Go(func() error {
		a.Result, a.Err = c.Invoke(ctx, copyMessages(messages), cfgA, nil, optsA)
		return nil
	})
	g.Go(func() error {
		b.Result, b.Err = c.Invoke(ctx, copyMessages(messages), cfgB, nil, optsB)
		return nil
	})
	_ = g.Wait()

	return a, b
}

func copyMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}
