// Scribe is an autonomous Reddit post-drafting agent.
//
// It registers on a Coral MCP server, waits for mentions from other
// agents, and answers each one with a set of five Reddit post drafts,
// personalized from a hosted mem0 memory of past requests. An optional
// status HTTP server exposes loop state and the cycle journal.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	scribe serve             Run the agent loop (primary mode)
//	scribe once              Process a single mention and exit
//	scribe journal [n]       Print the n most recent cycle journal entries
//	scribe init [dir]        Create a starter config.yaml and data directory
//	scribe version           Print version and build information
//	scribe -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/halstead/scribe/internal/agent"
	"github.com/halstead/scribe/internal/api"
	"github.com/halstead/scribe/internal/buildinfo"
	"github.com/halstead/scribe/internal/config"
	"github.com/halstead/scribe/internal/coral"
	"github.com/halstead/scribe/internal/journal"
	"github.com/halstead/scribe/internal/llm"
	"github.com/halstead/scribe/internal/mem0"
	"github.com/halstead/scribe/internal/supervisor"
	"github.com/halstead/scribe/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the scribe command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the loop, the session, and any servers.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:]. Parsed manually rather than with the flag
//     package to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "once":
		return runOnce(ctx, stdout, stderr, configPath)
	case "journal":
		limit := 20
		if len(cmdArgs) > 0 {
			n, err := strconv.Atoi(cmdArgs[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("usage: scribe journal [count]")
			}
			limit = n
		}
		return runJournal(ctx, stdout, configPath, limit, outputFmt)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Scribe - Reddit post-drafting Coral agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: scribe [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Run the agent loop")
	fmt.Fprintln(w, "  once         Process a single mention and exit")
	fmt.Fprintln(w, "  journal [n]  Print the n most recent cycle journal entries (default: 20)")
	fmt.Fprintln(w, "  init [dir]   Create a starter config.yaml and data directory")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/scribe/config.yaml, /etc/scribe/config.yaml")
	return nil
}

// runJournal prints recent cycle journal entries without starting the
// agent. Useful for inspecting what a deployed agent has been doing.
func runJournal(ctx context.Context, stdout io.Writer, configPath string, limit int, outputFmt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, err := journal.NewStore(cfg.DataDir+"/journal.db", nil)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	entries, err := store.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(stdout, "journal is empty")
		return nil
	}
	for _, e := range entries {
		status := "ok"
		if !e.Sent {
			status = "failed"
		}
		fmt.Fprintf(stdout, "%s  %-6s  thread=%s  posts=%d", e.StartedAt.Format(time.RFC3339), status, e.ThreadID, e.PostCount)
		if e.Error != "" {
			fmt.Fprintf(stdout, "  error=%s", e.Error)
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

// runOnce boots the full agent stack, processes exactly one mention,
// and exits. Useful for smoke-testing a deployment without leaving the
// loop running.
func runOnce(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", cfgPath)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, cleanup, err := buildRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := app.runner.RunCycle(ctx); err != nil {
		return fmt.Errorf("cycle: %w", err)
	}
	fmt.Fprintln(stdout, "cycle complete")
	return nil
}

// runServe handles the "scribe serve" subcommand. It is the primary
// operating mode: loads config, opens the journal, connects the Coral
// session and the model and memory backends, then hands the cycle to
// the supervisor and blocks until a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The supervisor finishes (or abandons) the current wait and stops
//  3. The status server drains in-flight requests
//  4. The Coral session and journal close via defers
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Scribe", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure logger now that we know the desired level and format.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already validated by config.Validate, so the error path
			// is unreachable in practice.
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"agent_id", cfg.Coral.AgentID,
		"model", cfg.LLM.Model,
		"status_port", cfg.Listen.Port,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, cleanup, err := buildRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	sup := supervisor.New(logger, app.runner.RunCycle)
	sup.IdleDelay = time.Duration(cfg.Loop.IdleDelaySec) * time.Second
	sup.RetryDelay = time.Duration(cfg.Loop.RetryDelaySec) * time.Second

	// --- Status server ---
	// Optional read-only introspection. Port 0 disables it entirely.
	if cfg.Listen.Port > 0 {
		server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, sup, logger)
		server.SetProbes(app.session, app.llm)
		if js, err := journal.NewStore(cfg.DataDir+"/journal.db", logger); err == nil {
			// Separate read-only handle; the runner owns the writing one.
			defer js.Close()
			server.SetJournal(js)
		} else {
			logger.Warn("status server journal unavailable", "error", err)
		}
		go func() {
			if err := server.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("status server failed", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = server.Shutdown(context.Background())
		}()
	}

	if err := sup.Run(ctx); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	logger.Info("Scribe stopped")
	return nil
}

// stack is the constructed agent: the runner plus the live backends
// the status server probes for health.
type stack struct {
	runner  *agent.Runner
	session *coral.Session
	llm     llm.Client
}

// buildRunner constructs the full agent stack from configuration: the
// journal, the mem0 gateway, the LLM client, the Coral session, and the
// tool registry, wired into a ready task runner. The returned cleanup
// closes everything the stack opened, in reverse order.
func buildRunner(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Cycle journal ---
	journalPath := cfg.DataDir + "/journal.db"
	journalStore, err := journal.NewStore(journalPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal %s: %w", journalPath, err)
	}
	closers = append(closers, func() { _ = journalStore.Close() })
	logger.Info("cycle journal opened", "path", journalPath)

	// --- Memory gateway ---
	// Hosted mem0 store behind the never-fail gateway. Missing API key is
	// tolerated: recording and recall degrade to error strings that the
	// model sees in its prompt.
	mem0Client := mem0.NewClient(cfg.Mem0, logger)
	gateway := mem0.NewGateway(mem0Client, cfg.Mem0.UserID, logger)
	if cfg.Mem0.APIKey == "" {
		logger.Warn("mem0 API key not configured - memory operations will fail softly")
	}

	// --- LLM client ---
	llmClient, err := llm.NewOpenRouterClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("llm client: %w", err)
	}

	// --- Coral session ---
	// Registers the agent on the server and discovers its tools. A
	// failure here is fatal; there is nothing to supervise without a
	// session.
	session, err := coral.Connect(ctx, cfg.Coral, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("coral session: %w", err)
	}
	closers = append(closers, func() { _ = session.Close() })

	// --- Tool registry ---
	// Memory tools plus every tool the Coral server advertises, bridged
	// so the model can reach them during generation.
	registry := tools.NewRegistry()
	tools.RegisterMemoryTools(registry, gateway, logger)
	bridged := tools.BridgeSessionTools(session, session.Tools(), registry, logger)
	logger.Info("tool registry ready", "tools", len(registry.Names()), "bridged", bridged)

	runner := agent.NewRunner(logger, session, gateway, llmClient, cfg.LLM.Model, registry)
	runner.SetJournal(journalStore)
	return &stack{runner: runner, session: session, llm: llmClient}, cleanup, nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
