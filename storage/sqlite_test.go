package storage

import (
	"context"
	"testing"

	"github.com/loomhq/loom/llm"
	"github.com/loomhq/loom/tools"
)

func newTestStorage(t *testing.T) *SqliteStorage {
	t.Helper()
	s, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("failed to create in-memory storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadConversation(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	history := []llm.Message{
		llm.NewUserMessage("what is the weather in Paris?"),
		llm.NewAssistantMessage("", []llm.ToolCall{
			{ID: "call_1", Name: "get_weather", Args: map[string]any{"city": "Paris"}},
		}),
		llm.NewToolMessage("call_1", `{"temp": 18}`),
		llm.NewAssistantMessage("It is 18 degrees in Paris.", nil),
	}

	if err := s.Save(ctx, "session-1", history); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := s.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(loaded))
	}
	if loaded[0].Role != llm.RoleUser {
		t.Errorf("expected user role, got %q", loaded[0].Role)
	}
	if len(loaded[1].ToolCalls) != 1 || loaded[1].ToolCalls[0].Name != "get_weather" {
		t.Errorf("tool calls not round-tripped: %+v", loaded[1].ToolCalls)
	}
	if city := loaded[1].ToolCalls[0].Args["city"]; city != "Paris" {
		t.Errorf("expected city 'Paris', got %v", city)
	}
	if loaded[2].ToolCallID != "call_1" {
		t.Errorf("expected tool call id 'call_1', got %q", loaded[2].ToolCallID)
	}
}

func TestLoadMissingSession(t *testing.T) {
	s := newTestStorage(t)

	loaded, err := s.Load(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(loaded) != 0 {
		t.Errorf("expected no messages, got %d", len(loaded))
	}
}

func TestSaveReplacesHistory(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	first := []llm.Message{llm.NewUserMessage("one"), llm.NewUserMessage("two")}
	if err := s.Save(ctx, "s", first); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	second := []llm.Message{llm.NewUserMessage("replaced")}
	if err := s.Save(ctx, "s", second); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := s.Load(ctx, "s")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Content != "replaced" {
		t.Errorf("history not replaced: %+v", loaded)
	}
}

func TestDeleteAndListSessions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.Save(ctx, "a", []llm.Message{llm.NewUserMessage("hi")}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := s.Save(ctx, "b", []llm.Message{llm.NewUserMessage("hi")}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	exists, err := s.Exists(ctx, "a")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if exists {
		t.Error("expected session 'a' to be gone")
	}
}

func TestToolRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	tool := tools.New("get_weather", "Fetch current weather", "return {temp: 18};",
		tools.Parameter{Name: "city", Type: tools.TypeString, Description: "City name", Required: true})

	if err := s.SaveTool(ctx, tool); err != nil {
		t.Fatalf("save tool failed: %v", err)
	}

	loaded, err := s.LoadTool(ctx, "get_weather")
	if err != nil {
		t.Fatalf("load tool failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected tool, got nil")
	}
	if loaded.Description != "Fetch current weather" {
		t.Errorf("unexpected description %q", loaded.Description)
	}
	if len(loaded.Parameters) != 1 || loaded.Parameters[0].Name != "city" {
		t.Errorf("parameters not round-tripped: %+v", loaded.Parameters)
	}
	if !loaded.Parameters[0].Required {
		t.Error("expected required parameter")
	}
}

func TestSaveToolReplacesByName(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	v1 := tools.New("echo", "first version", "return args;")
	if err := s.SaveTool(ctx, v1); err != nil {
		t.Fatalf("save tool failed: %v", err)
	}

	v2 := tools.New("echo", "second version", "return args;")
	if err := s.SaveTool(ctx, v2); err != nil {
		t.Fatalf("save tool failed: %v", err)
	}

	all, err := s.LoadTools(ctx)
	if err != nil {
		t.Fatalf("load tools failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(all))
	}
	if all[0].Description != "second version" {
		t.Errorf("expected updated description, got %q", all[0].Description)
	}
}

func TestLoadMissingTool(t *testing.T) {
	s := newTestStorage(t)

	loaded, err := s.LoadTool(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing tool, got %+v", loaded)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, ok, err := s.Setting(ctx, "model"); err != nil || ok {
		t.Fatalf("expected no value before set, ok=%v err=%v", ok, err)
	}

	if err := s.SetSetting(ctx, "model", "gpt-4o"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := s.SetSetting(ctx, "model", "gpt-4o-mini"); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	value, ok, err := s.Setting(ctx, "model")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if value != "gpt-4o-mini" {
		t.Errorf("expected replaced value, got %q", value)
	}

	all, err := s.Settings(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 1 || all["model"] != "gpt-4o-mini" {
		t.Errorf("unexpected settings map: %v", all)
	}

	if err := s.DeleteSetting(ctx, "model"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := s.Setting(ctx, "model"); ok {
		t.Error("expected value removed")
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, ok := s.Credential(llm.ProviderOpenAI); ok {
		t.Fatal("expected no credential before set")
	}

	cred := llm.Credential{APIKey: "sk-test"}
	if err := s.SetCredential(ctx, llm.ProviderOpenAI, cred); err != nil {
		t.Fatalf("set credential failed: %v", err)
	}

	got, ok := s.Credential(llm.ProviderOpenAI)
	if !ok {
		t.Fatal("expected credential after set")
	}
	if got.APIKey != "sk-test" {
		t.Errorf("expected 'sk-test', got %q", got.APIKey)
	}

	if err := s.DeleteCredential(ctx, llm.ProviderOpenAI); err != nil {
		t.Fatalf("delete credential failed: %v", err)
	}
	if _, ok := s.Credential(llm.ProviderOpenAI); ok {
		t.Error("expected credential removed")
	}
}
