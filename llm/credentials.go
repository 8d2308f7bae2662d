package llm

// Credential is one provider-scoped secret record. APIKey applies to cloud
// providers, BaseURL to self-hosted ones; either may be empty.
type Credential struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// CredentialStore supplies provider-scoped credentials, read fresh at the
// start of every call. Implementations must be safe for concurrent reads.
//
// It is an explicit dependency of the facade rather than ambient state, so
// tests inject fixtures and concurrent calls for different providers cannot
// race on shared storage.
type CredentialStore interface {
	Credential(p Provider) (Credential, bool)
}

// StaticCredentials is a fixed in-memory CredentialStore.
type StaticCredentials map[Provider]Credential

// Credential implements CredentialStore.
func (s StaticCredentials) Credential(p Provider) (Credential, bool) {
	c, ok := s[p]
	return c, ok
}
