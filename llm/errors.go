package llm

import "fmt"

// MissingCredentialError reports an absent API key (or base URL for the
// local provider). Adapters fail with it before any network call.
type MissingCredentialError struct {
	Provider Provider
	// Field names what was missing: "api key" or "base url".
	Field string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s: missing %s", e.Provider, e.Field)
}

// InvalidTemperatureError reports a sampling temperature outside [0, 2].
// The facade rejects it before any network call.
type InvalidTemperatureError struct {
	Temperature float32
}

func (e *InvalidTemperatureError) Error() string {
	return fmt.Sprintf("temperature %g out of range [0, 2]", e.Temperature)
}

// UnknownProviderError reports a model id that resolves to no provider.
type UnknownProviderError struct {
	Model string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("no provider known for model %q", e.Model)
}

// UnknownModelError reports a model id absent from the catalog.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Model)
}

// ProviderError wraps a non-success vendor response. Message carries the
// vendor's decoded error message when one was decodable.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ToolNotFoundError reports that the model requested a tool the caller never
// declared. The orchestrator recovers it in-band: it becomes an error
// tool-result message, not an aborted call.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}
