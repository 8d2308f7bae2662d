// SQLite implementation of conversation, tool, and credential storage.
//
// Information Hiding:
// - SQLite connection management hidden behind the package interfaces
// - Schema and serialization details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/loomhq/loom/llm"
	"github.com/loomhq/loom/tools"
)

// SqliteStorage implements ConversationStorage, ToolStorage and
// CredentialStorage using a single SQLite database file.
type SqliteStorage struct {
	db *sql.DB
}

var _ ConversationStorage = (*SqliteStorage)(nil)
var _ ToolStorage = (*SqliteStorage)(nil)
var _ SettingsStorage = (*SqliteStorage)(nil)
var _ CredentialStorage = (*SqliteStorage)(nil)

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	storage := &SqliteStorage{db: db}
	if err := storage.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			message_index INTEGER NOT NULL,
			message_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			tool_call_id TEXT,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE,
			UNIQUE(session_id, message_index)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session
		ON messages(session_id, message_index);

		CREATE TABLE IF NOT EXISTS tools (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL,
			parameters TEXT NOT NULL,
			code TEXT NOT NULL,
			emoji TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS credentials (
			provider TEXT PRIMARY KEY,
			api_key TEXT NOT NULL DEFAULT '',
			base_url TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SqliteStorage) ensureSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (session_id) VALUES (?)",
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}
	return nil
}

// Save replaces the stored history for a session.
func (s *SqliteStorage) Save(ctx context.Context, sessionID string, history []llm.Message) error {
	if err := s.ensureSession(ctx, sessionID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear old messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (session_id, message_index, message_id, role, content, tool_calls, tool_call_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, msg := range history {
		var toolCalls, toolCallID interface{}
		if len(msg.ToolCalls) > 0 {
			encoded, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to encode tool calls: %w", err)
			}
			toolCalls = string(encoded)
		}
		if msg.ToolCallID != "" {
			toolCallID = msg.ToolCallID
		}

		_, err = stmt.ExecContext(ctx, sessionID, i, msg.ID, string(msg.Role), msg.Content,
			toolCalls, toolCallID, msg.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE sessions SET updated_at = datetime('now') WHERE session_id = ?",
		sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Load returns the stored history for a session.
// Returns empty slice if the session doesn't exist.
func (s *SqliteStorage) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, role, content, tool_calls, tool_call_id, created_at
		FROM messages WHERE session_id = ? ORDER BY message_index ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []llm.Message{} // Start with empty slice, not nil
	for rows.Next() {
		var msg llm.Message
		var role string
		var toolCalls, toolCallID sql.NullString
		var createdAt int64

		if err := rows.Scan(&msg.ID, &role, &msg.Content, &toolCalls, &toolCallID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		msg.Role = llm.Role(role)
		msg.CreatedAt = time.Unix(createdAt, 0).UTC()
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		if toolCallID.Valid {
			msg.ToolCallID = toolCallID.String
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// Delete removes a session and its history.
func (s *SqliteStorage) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}
	return nil
}

// ListSessions lists all session IDs, most recently updated first.
func (s *SqliteStorage) ListSessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sessionID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// Exists checks if a session exists.
func (s *SqliteStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sessions WHERE session_id = ?",
		sessionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}

	return count > 0, nil
}

// ToolStorage implementation

// SaveTool inserts or updates a tool. The unique name constraint means
// saving under an existing name replaces that tool's definition.
func (s *SqliteStorage) SaveTool(ctx context.Context, t tools.Tool) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("failed to save tool: %w", err)
	}

	params, err := json.Marshal(t.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode tool parameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tools (id, name, description, parameters, code, emoji, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			parameters = excluded.parameters,
			code = excluded.code,
			emoji = excluded.emoji,
			updated_at = excluded.updated_at`,
		t.ID, t.Name, t.Description, string(params), t.Code, t.Emoji,
		t.CreatedAt.Unix(), t.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save tool: %w", err)
	}
	return nil
}

// LoadTool returns the tool with the given name, or nil, nil if absent.
func (s *SqliteStorage) LoadTool(ctx context.Context, name string) (*tools.Tool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, parameters, code, emoji, created_at, updated_at
		FROM tools WHERE name = ?`, name)

	t, err := scanTool(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadTools returns all stored tools sorted by name.
func (s *SqliteStorage) LoadTools(ctx context.Context) ([]tools.Tool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, parameters, code, emoji, created_at, updated_at
		FROM tools ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tools: %w", err)
	}
	defer rows.Close()

	out := []tools.Tool{}
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tools: %w", err)
	}

	return out, nil
}

// DeleteTool removes a tool by name.
func (s *SqliteStorage) DeleteTool(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM tools WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete tool: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTool(row rowScanner) (tools.Tool, error) {
	var t tools.Tool
	var params string
	var emoji sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&t.ID, &t.Name, &t.Description, &params, &t.Code, &emoji, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return tools.Tool{}, err
	}
	if err != nil {
		return tools.Tool{}, fmt.Errorf("failed to scan tool: %w", err)
	}

	if err := json.Unmarshal([]byte(params), &t.Parameters); err != nil {
		return tools.Tool{}, fmt.Errorf("invalid tool parameters in database: %w", err)
	}
	if emoji.Valid {
		t.Emoji = emoji.String
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	t.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return t, nil
}

// SettingsStorage implementation

// SetSetting stores or replaces one settings key.
func (s *SqliteStorage) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to store setting: %w", err)
	}
	return nil
}

// Setting returns one settings value.
func (s *SqliteStorage) Setting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting: %w", err)
	}
	return value, true, nil
}

// Settings returns all stored settings keys.
func (s *SqliteStorage) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings ORDER BY key ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating settings: %w", err)
	}

	return out, nil
}

// DeleteSetting removes one settings key. Unknown keys are a no-op.
func (s *SqliteStorage) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

// CredentialStorage implementation

// Credential returns the stored credential for a provider.
func (s *SqliteStorage) Credential(provider llm.Provider) (llm.Credential, bool) {
	var cred llm.Credential
	err := s.db.QueryRow(
		"SELECT api_key, base_url FROM credentials WHERE provider = ?",
		provider.String()).Scan(&cred.APIKey, &cred.BaseURL)
	if err != nil {
		return llm.Credential{}, false
	}
	return cred, true
}

// SetCredential stores or replaces the credential for a provider.
func (s *SqliteStorage) SetCredential(ctx context.Context, provider llm.Provider, cred llm.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO credentials (provider, api_key, base_url)
		VALUES (?, ?, ?)`,
		provider.String(), cred.APIKey, cred.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// DeleteCredential removes the credential for a provider.
func (s *SqliteStorage) DeleteCredential(ctx context.Context, provider llm.Provider) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE provider = ?", provider.String())
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
