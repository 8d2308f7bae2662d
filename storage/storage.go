// Package storage provides persistence for conversations, user-authored
// tools, and provider credentials.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interfaces
// - Allows swapping backends without API changes
// - Each implementation encapsulates its own data structures and protocols

package storage

import (
	"context"

	"github.com/loomhq/loom/llm"
	"github.com/loomhq/loom/tools"
)

// ConversationStorage persists conversation history per session.
type ConversationStorage interface {
	// Save replaces the stored history for a session.
	Save(ctx context.Context, sessionID string, history []llm.Message) error

	// Load returns the stored history for a session.
	// Returns empty slice (not nil) if the session doesn't exist.
	// Returns error only for storage failures, not missing sessions.
	Load(ctx context.Context, sessionID string) ([]llm.Message, error)

	// Delete removes a session and its history.
	Delete(ctx context.Context, sessionID string) error

	// ListSessions lists all session IDs, most recently updated first.
	ListSessions(ctx context.Context) ([]string, error)

	// Exists checks if a session exists.
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// ToolStorage persists user-authored tools.
type ToolStorage interface {
	// SaveTool inserts or updates a tool. Names are unique.
	SaveTool(ctx context.Context, t tools.Tool) error

	// LoadTool returns the tool with the given name.
	// Returns nil, nil if no such tool exists.
	LoadTool(ctx context.Context, name string) (*tools.Tool, error)

	// LoadTools returns all stored tools sorted by name.
	LoadTools(ctx context.Context) ([]tools.Tool, error)

	// DeleteTool removes a tool by name. Unknown names are a no-op.
	DeleteTool(ctx context.Context, name string) error
}

// SettingsStorage persists generic settings as string key/value records.
type SettingsStorage interface {
	// SetSetting stores or replaces one key.
	SetSetting(ctx context.Context, key, value string) error

	// Setting returns one value; the bool reports presence.
	Setting(ctx context.Context, key string) (string, bool, error)

	// Settings returns all stored keys.
	Settings(ctx context.Context) (map[string]string, error)

	// DeleteSetting removes one key. Unknown keys are a no-op.
	DeleteSetting(ctx context.Context, key string) error
}

// CredentialStorage persists provider credentials. It extends the client's
// read-only credential lookup with write access.
type CredentialStorage interface {
	llm.CredentialStore

	// SetCredential stores or replaces the credential for a provider.
	SetCredential(ctx context.Context, provider llm.Provider, cred llm.Credential) error

	// DeleteCredential removes the credential for a provider.
	DeleteCredential(ctx context.Context, provider llm.Provider) error
}
