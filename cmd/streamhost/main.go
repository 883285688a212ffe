// Package main is the streamhost CLI: an interactive chat loop wiring a
// configured LLM and an MCP tool server through the turn orchestrator.
//
// Usage:
//
//	streamhost chat --config config.yaml
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skosovsky/streamhost"
	"github.com/skosovsky/streamhost/mcpclient"
	"github.com/skosovsky/streamhost/ollama"
	"github.com/skosovsky/streamhost/openaigen"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:           "streamhost",
		Short:         "LLM tool-call middleware",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to YAML config")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	chat := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat with tool execution",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), configPath, verbose)
		},
	}
	root.AddCommand(chat)

	root.AddCommand(&cobra.Command{
		Use:   "analyze [logfile]",
		Short: "Summarize tool usage from an instrumentation log",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runAnalyze(args[0])
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(*cobra.Command, []string) {
			fmt.Println("streamhost", version)
		},
	})

	return root
}

func runChat(ctx context.Context, configPath string, verbose bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := streamhost.LoadConfig(configPath)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	gen, err := newGenerator(cfg)
	if err != nil {
		return err
	}

	if cfg.MCPServer.Command == "" {
		return fmt.Errorf("config: mcp_server.command is required")
	}
	mcp, err := mcpclient.Connect(ctx, cfg.MCPServer.Command, cfg.MCPServer.Args...)
	if err != nil {
		return err
	}
	defer mcp.Close()

	info, err := mcp.Initialize(ctx, "streamhost", version)
	if err != nil {
		return err
	}
	logger.Info("connected to tool server",
		slog.String("server", info.Name),
		slog.String("version", info.Version))

	inst, err := streamhost.NewCollector(cfg.Instrumentation)
	if err != nil {
		return err
	}
	defer inst.Close()

	// Blocked patterns and rate limits wrap the backend; the host itself
	// only enforces per-response budgets.
	backend := &streamhost.PolicyBackend{Backend: mcp, Check: cfg.Safety.Policy()}

	var validator *streamhost.SchemaValidator
	if cfg.ValidateParams {
		tools, err := backend.ListTools(ctx)
		if err != nil {
			return err
		}
		validator = streamhost.NewSchemaValidator(tools)
	}

	// Generators that stream render through the pipeline per the configured
	// streaming mode; the rest run orchestrated non-streaming turns.
	if s, ok := gen.(streamingGenerator); ok {
		return runStreamingChat(ctx, s, backend, cfg, inst, validator, logger)
	}

	opts := append(cfg.HostOptions(),
		streamhost.WithLogger(logger),
		streamhost.WithInstrumentation(inst),
	)
	if validator != nil {
		opts = append(opts, streamhost.WithSchemaValidation(validator))
	}
	host := streamhost.NewHost(gen, backend, opts...)

	if cfg.SystemPrompt != "" {
		enhanced, err := host.EnhanceSystemPrompt(ctx, cfg.SystemPrompt)
		if err != nil {
			return err
		}
		host.Conversation().SetSystemMessage(enhanced)
	}

	fmt.Println("streamhost chat — empty line or Ctrl-D to exit")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			break
		}

		result, err := host.ProcessMessage(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			continue
		}
		for _, tool := range result.ExecutedTools {
			logger.Debug("tool executed",
				slog.String("tool", tool.ToolName),
				slog.Int64("ms", tool.ExecutionTimeMS),
				slog.Bool("failed", tool.Failed()))
		}
		fmt.Println(result.Text)
	}
	return sc.Err()
}

func newGenerator(cfg streamhost.Config) (streamhost.Generator, error) {
	switch cfg.LLM.Provider {
	case "", "ollama":
		return ollama.NewClient(cfg.LLM.BaseURL, cfg.LLM.Model), nil
	case "openai":
		return openaigen.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func runAnalyze(path string) error {
	stats, err := streamhost.AnalyzeLog(path)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Println("no tool executions recorded")
		return nil
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := stats[name]
		avg := float64(0)
		if s.TotalCalls > 0 {
			avg = float64(s.TotalDurationMS) / float64(s.TotalCalls)
		}
		fmt.Printf("%-30s calls=%-5d failures=%-4d avg=%.1fms max=%dms\n",
			name, s.TotalCalls, s.TotalCalls-s.SuccessfulCalls, avg, s.MaxDurationMS)
	}
	return nil
}
