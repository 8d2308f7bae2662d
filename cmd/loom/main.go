// Package main provides the loom CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/cli"
	"github.com/loomhq/loom/tools"
)

var (
	// Global flags
	model       string
	temperature float32
	maxTokens   int
	dbPath      string
	verbose     bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	defaults := cli.ApplyStoredSettings(context.Background(), cli.DefaultOptions())

	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "One client for OpenAI, Anthropic, Google and local models",
		Long: `Chat with cloud and local language models through a single interface.

Supports streaming answers, user-authored JavaScript tools the model can
call, per-call cost accounting, and side-by-side model comparison.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", defaults.Model, "Model id (see 'loom models')")
	rootCmd.PersistentFlags().Float32VarP(&temperature, "temperature", "t", defaults.Temperature, "Sampling temperature (0-2)")
	rootCmd.PersistentFlags().IntVar(&maxTokens, "max-tokens", defaults.MaxTokens, "Maximum output tokens")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaults.DBPath, "Database path for sessions, tools and credentials")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show usage, cost and tool results")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(compareCmd())
	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	return cli.Options{
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		DBPath:      dbPath,
		Verbose:     verbose,
	}
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send one prompt and print the streamed answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(context.Background(), args[0], options())
		},
	}
}

func chatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session with tool support",
		Long: `Start an interactive chat session. History persists per session id,
and stored tools are offered to the model on every turn.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(context.Background(), sessionID, options())
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id for conversation persistence")
	return cmd
}

func compareCmd() *cobra.Command {
	var modelB string

	cmd := &cobra.Command{
		Use:   "compare [prompt]",
		Short: "Send one prompt to two models concurrently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelB == "" {
				return fmt.Errorf("--against is required")
			}
			return cli.Compare(context.Background(), args[0], model, modelB, options())
		},
	}

	cmd.Flags().StringVar(&modelB, "against", "", "Second model id to compare against")
	return cmd
}

func estimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate [prompt]",
		Short: "Preview token count and input cost without calling a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.Estimate(args[0], options())
			return nil
		},
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known models with pricing and capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.ListModels()
			return nil
		},
	}
}

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Manage user-authored tools",
	}

	var verboseTools bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(context.Background(), options(), verboseTools)
		},
	}
	listCmd.Flags().BoolVarP(&verboseTools, "params", "P", false, "Show tool parameters")

	var description, codePath string
	var paramSpecs []string
	addCmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Store a tool from a JavaScript file",
		Long: `Store a tool. The code file receives 'args' and 'fetch' and returns a
value that is serialized for the model.

Parameters are declared as name:type[:required], e.g. --param city:string:required`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(paramSpecs)
			if err != nil {
				return err
			}
			return cli.AddTool(context.Background(), options(), args[0], description, codePath, params)
		},
	}
	addCmd.Flags().StringVarP(&description, "description", "d", "", "What the tool does (shown to the model)")
	addCmd.Flags().StringVarP(&codePath, "code", "c", "", "Path to the JavaScript body")
	addCmd.MarkFlagRequired("code")

	addCmd.Flags().StringArrayVar(&paramSpecs, "param", nil, "Parameter declaration (repeatable)")

	rmCmd := &cobra.Command{
		Use:   "rm [name]",
		Short: "Delete a stored tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RemoveTool(context.Background(), options(), args[0])
		},
	}

	cmd.AddCommand(listCmd, addCmd, rmCmd)
	return cmd
}

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored provider credentials",
	}

	var apiKey, baseURL string
	setCmd := &cobra.Command{
		Use:   "set [provider]",
		Short: "Store a credential (openai, anthropic, google, local)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" && baseURL == "" {
				return fmt.Errorf("provide --api-key or --base-url")
			}
			return cli.SetCredential(context.Background(), options(), args[0], apiKey, baseURL)
		},
	}
	setCmd.Flags().StringVar(&apiKey, "api-key", "", "API key")
	setCmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL override (required for local)")

	rmCmd := &cobra.Command{
		Use:   "rm [provider]",
		Short: "Delete a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RemoveCredential(context.Background(), options(), args[0])
		},
	}

	cmd.AddCommand(setCmd, rmCmd)
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage persisted defaults (model, temperature, max_tokens)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key] [value]",
		Short: "Persist a default for future runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.SetSetting(context.Background(), options(), args[0], args[1])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show persisted defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListSettings(context.Background(), options())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "unset [key]",
		Short: "Remove a persisted default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.UnsetSetting(context.Background(), options(), args[0])
		},
	})

	return cmd
}

// parseParams turns name:type[:required] declarations into parameters.
func parseParams(specs []string) ([]tools.Parameter, error) {
	var params []tools.Parameter
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid parameter %q, want name:type[:required]", spec)
		}
		p := tools.Parameter{
			Name: parts[0],
			Type: tools.ParamType(parts[1]),
		}
		if !p.Type.Valid() {
			return nil, fmt.Errorf("invalid parameter type %q", parts[1])
		}
		if len(parts) > 2 && parts[2] == "required" {
			p.Required = true
		}
		params = append(params, p)
	}
	return params, nil
}
