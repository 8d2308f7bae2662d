// Adapter contract shared by all provider implementations.
//
// Each adapter hides:
// - API endpoint, authentication and client construction
// - Request/response format conversion for one vendor
// - Streaming frame decoding
// - Provider-specific error mapping

package llm

import "context"

// ChunkHandler receives incremental text fragments, invoked synchronously
// per fragment in network order.
type ChunkHandler func(text string)

// Adapter translates the uniform call contract to one vendor's wire protocol.
//
// Streaming policy, enforced uniformly: onChunk is honored only when no tools
// are supplied. With tools present the adapter must use the buffered
// transport, because tool-call payloads arrive as structured fields and
// partial parsing of them is unsafe.
type Adapter interface {
	// Provider returns the vendor tag this adapter serves.
	Provider() Provider

	// Call performs one model invocation. It fails with
	// *MissingCredentialError before any network traffic when the required
	// credential is absent, and with *ProviderError on a non-success
	// response.
	Call(ctx context.Context, messages []Message, cfg CallConfig, tools []ToolDefinition, onChunk ChunkHandler) (Result, error)
}

// ToolRunner resolves and executes caller-declared tools for the
// orchestrator. Implemented by tools.Registry.
type ToolRunner interface {
	// Definitions returns the declarations advertised to the model.
	Definitions() []ToolDefinition

	// Has reports whether a tool with the given name is declared.
	Has(name string) bool

	// Run executes the named tool. The returned string is the
	// JSON-serialized result; a non-nil error's message is surfaced to the
	// model in-band.
	Run(ctx context.Context, name string, args map[string]any) (string, error)
}

// streamPlaceholder replaces an entirely empty streamed response so a
// presentation layer never renders a blank bubble.
const streamPlaceholder = "(no content)"
