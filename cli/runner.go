// Package cli wires storage, tools and the provider client into the
// terminal commands.
//
// Information Hiding:
// - Client/storage assembly and credential chaining
// - Rendering of streaming output and tool progress lines

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/loomhq/loom/config"
	"github.com/loomhq/loom/llm"
	"github.com/loomhq/loom/storage"
	"github.com/loomhq/loom/tools"
)

// Options carries the flag values shared across commands.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	DBPath      string
	Verbose     bool
}

// DefaultOptions derives command defaults from the environment settings.
func DefaultOptions() Options {
	settings := config.MustNew()
	return Options{
		Model:       settings.Model,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		DBPath:      settings.DBPath,
	}
}

// ApplyStoredSettings overlays persisted settings onto opts. Stored values
// beat environment defaults; explicit flags beat both because cobra applies
// them after this runs.
func ApplyStoredSettings(ctx context.Context, opts Options) Options {
	store, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return opts
	}
	defer store.Close()

	if v, ok, _ := store.Setting(ctx, "model"); ok {
		opts.Model = v
	}
	if v, ok, _ := store.Setting(ctx, "temperature"); ok {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			opts.Temperature = float32(f)
		}
	}
	if v, ok, _ := store.Setting(ctx, "max_tokens"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxTokens = n
		}
	}
	return opts
}

// settingsKeys is the closed set 'loom config' accepts.
var settingsKeys = map[string]bool{"model": true, "temperature": true, "max_tokens": true}

// SetSetting persists one default for future runs.
func SetSetting(ctx context.Context, opts Options, key, value string) error {
	if !settingsKeys[key] {
		return fmt.Errorf("unknown setting %q (known: model, temperature, max_tokens)", key)
	}

	store, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetSetting(ctx, key, value); err != nil {
		return err
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

// ListSettings prints the persisted defaults.
func ListSettings(ctx context.Context, opts Options) error {
	store, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	all, err := store.Settings(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("No stored settings; environment and flag defaults apply.")
		return nil
	}
	for key, value := range all {
		fmt.Printf("%s = %s\n", key, value)
	}
	return nil
}

// UnsetSetting removes one persisted default.
func UnsetSetting(ctx context.Context, opts Options, key string) error {
	store, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteSetting(ctx, key); err != nil {
		return err
	}
	fmt.Printf("Unset %s\n", key)
	return nil
}

// chainCredentials consults stores in order; the first hit wins. Stored
// credentials take priority over environment variables.
type chainCredentials []llm.CredentialStore

func (c chainCredentials) Credential(p llm.Provider) (llm.Credential, bool) {
	for _, store := range c {
		if cred, ok := store.Credential(p); ok {
			return cred, true
		}
	}
	return llm.Credential{}, false
}

// runtime bundles everything a command needs.
type runtime struct {
	client   *llm.Client
	store    *storage.SqliteStorage
	registry *tools.Registry
}

func setup(ctx context.Context, opts Options) (*runtime, error) {
	store, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry(tools.NewExecutor())
	saved, err := store.LoadTools(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	for _, t := range saved {
		if err := registry.Register(t); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping stored tool %q: %v\n", t.Name, err)
		}
	}

	client := llm.NewClient(chainCredentials{store, config.EnvCredentials{}})
	return &runtime{client: client, store: store, registry: registry}, nil
}

func (r *runtime) close() {
	r.store.Close()
}

func (r *runtime) callConfig(opts Options) llm.CallConfig {
	return llm.CallConfig{
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
}

// streamTracker records whether any chunk reached the terminal during a
// call. Orchestrated turns are buffered end to end, including turns where
// the model answers without calling a tool, so the answer must be printed
// after the call whenever nothing streamed.
type streamTracker struct {
	streamed bool
}

func (r *runtime) callOptions(opts Options, tracker *streamTracker) llm.CallOptions {
	return llm.CallOptions{
		OnChunk: func(chunk string) {
			tracker.streamed = true
			fmt.Print(chunk)
		},
		OnToolCall: func(tc llm.ToolCall) {
			fmt.Printf("[tool] Calling: %s\n", tc.Name)
		},
		OnToolResult: func(tc llm.ToolCall, result string, err error) {
			if err != nil {
				fmt.Printf("[tool] %s failed: %v\n", tc.Name, err)
				return
			}
			if opts.Verbose {
				fmt.Printf("[tool] %s -> %s\n", tc.Name, truncate(result, 200))
			}
		},
	}
}

// Ask sends a single prompt and prints the streamed answer.
func Ask(ctx context.Context, prompt string, opts Options) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	tracker := &streamTracker{}
	messages := []llm.Message{llm.NewUserMessage(prompt)}
	result, err := rt.client.Invoke(ctx, messages, rt.callConfig(opts), rt.registry, rt.callOptions(opts, tracker))
	if err != nil {
		return err
	}

	if !tracker.streamed {
		fmt.Print(result.Content)
	}
	fmt.Println()

	if opts.Verbose {
		printCallStats(result)
	}
	return nil
}

// Chat starts an interactive session backed by the conversation store.
func Chat(ctx context.Context, sessionID string, opts Options) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	if sessionID == "" {
		sessionID = uuid.NewString()[:8]
	}

	history, err := rt.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		fmt.Printf("Resuming session '%s' (%d messages)\n\n", sessionID, len(history))
	} else {
		fmt.Printf("Session '%s'. Type 'exit' to quit.\n\n", sessionID)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		tracker := &streamTracker{}
		history = append(history, llm.NewUserMessage(input))
		result, err := rt.client.Invoke(ctx, history, rt.callConfig(opts), rt.registry, rt.callOptions(opts, tracker))
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
			history = history[:len(history)-1]
			continue
		}

		if !tracker.streamed {
			fmt.Print(result.Content)
		}
		fmt.Println()
		fmt.Println()

		history = append(history, result.Transcript...)
		if err := rt.store.Save(ctx, sessionID, history); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to persist session: %v\n", err)
		}

		if opts.Verbose {
			printCallStats(result)
		}
	}
	return scanner.Err()
}

// Compare sends one prompt to two models concurrently and prints both
// answers side by side.
func Compare(ctx context.Context, prompt, modelA, modelB string, opts Options) error {
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	cfgA := rt.callConfig(opts)
	cfgA.Model = modelA
	cfgB := rt.callConfig(opts)
	cfgB.Model = modelB

	messages := []llm.Message{llm.NewUserMessage(prompt)}
	outA, outB := rt.client.Compare(ctx, messages, cfgA, cfgB, llm.CallOptions{}, llm.CallOptions{})

	printCompareSide(modelA, outA)
	printCompareSide(modelB, outB)
	return nil
}

func printCompareSide(model string, out llm.CompareOutcome) {
	fmt.Printf("--- %s ---\n", model)
	if out.Err != nil {
		fmt.Printf("Error: %v\n\n", out.Err)
		return
	}
	fmt.Printf("%s\n", out.Result.Content)
	printCallStats(out.Result)
	fmt.Println()
}

// Estimate previews the token count and input cost of a prompt.
func Estimate(prompt string, opts Options) {
	messages := []llm.Message{llm.NewUserMessage(prompt)}
	tokens := llm.EstimateTokens(messages, opts.Model)
	cost := llm.EstimateCost(messages, opts.Model)
	fmt.Printf("Model:            %s\n", opts.Model)
	fmt.Printf("Estimated tokens: %d\n", tokens)
	fmt.Printf("Estimated cost:   $%.6f (input side only)\n", cost)
}

// ListModels prints the model catalog grouped by provider.
func ListModels() {
	providers := []llm.Provider{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderGoogle, llm.ProviderLocal}
	for _, p := range providers {
		fmt.Printf("%s:\n", p)
		for _, m := range llm.ModelsFor(p) {
			toolNote := ""
			if !m.SupportsTools {
				toolNote = "  (no tools)"
			}
			if m.InputPerMTok == 0 && m.OutputPerMTok == 0 {
				fmt.Printf("  %-28s %s%s\n", m.ID, m.DisplayName, toolNote)
			} else {
				fmt.Printf("  %-28s %s  $%.2f/$%.2f per MTok%s\n",
					m.ID, m.DisplayName, m.InputPerMTok, m.OutputPerMTok, toolNote)
			}
		}
		fmt.Println()
	}
}

// ListTools prints the stored tools.
func ListTools(ctx context.Context, opts Options, verbose bool) error {
	store, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	saved, err := store.LoadTools(ctx)
	if err != nil {
		return err
	}
	if len(saved) == 0 {
		fmt.Println("No tools defined. Add one with 'loom tools add'.")
		return nil
	}

	for _, t := range saved {
		name := t.Name
		if t.Emoji != "" {
			name = t.Emoji + " " + name
		}
		fmt.Printf("%s - %s\n", name, t.Description)
		if verbose {
			for _, p := range t.Parameters {
				req := ""
				if p.Required {
					req = " (required)"
				}
				fmt.Printf("    %s: %s%s  %s\n", p.Name, p.Type, req, p.Description)
			}
		}
	}
	return nil
}

// AddTool stores a tool whose body is read from a file.
func AddTool(ctx context.Context, opts Options, name, description, codePath string, params []tools.Parameter) error {
	code, err := os.ReadFile(codePath)
	if err != nil {
		return fmt.Errorf("reading tool code: %w", err)
	}

	store, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	t := tools.New(name, description, string(code), params...)
	if err := store.SaveTool(ctx, t); err != nil {
		return err
	}
	fmt.Printf("Saved tool %q\n", name)
	return nil
}

// RemoveTool deletes a stored tool.
func RemoveTool(ctx context.Context, opts Options, name string) error {
	store, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteTool(ctx, name); err != nil {
		return err
	}
	fmt.Printf("Removed tool %q\n", name)
	return nil
}

// SetCredential stores a provider credential.
func SetCredential(ctx context.Context, opts Options, providerName, apiKey, baseURL string) error {
	provider, err := llm.ParseProvider(providerName)
	if err != nil {
		return err
	}

	store, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	cred := llm.Credential{APIKey: apiKey, BaseURL: baseURL}
	if err := store.SetCredential(ctx, provider, cred); err != nil {
		return err
	}
	fmt.Printf("Stored credential for %s\n", provider)
	return nil
}

// RemoveCredential deletes a stored provider credential.
func RemoveCredential(ctx context.Context, opts Options, providerName string) error {
	provider, err := llm.ParseProvider(providerName)
	if err != nil {
		return err
	}

	store, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteCredential(ctx, provider); err != nil {
		return err
	}
	fmt.Printf("Removed credential for %s\n", provider)
	return nil
}

func printCallStats(result llm.CallResult) {
	if result.Usage != nil {
		fmt.Printf("[%d in / %d out tokens", result.Usage.InputTokens, result.Usage.OutputTokens)
		if result.CostUSD != nil {
			fmt.Printf(", $%.6f", *result.CostUSD)
		}
		fmt.Printf(", %dms]\n", result.ElapsedMs)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
