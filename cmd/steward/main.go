// Steward is a conversational executive assistant. It answers questions
// about the owner's calendar, mail and feeds through a tool-using
// language model, and watches the calendar for events that matter.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]); without one, defaults
// and the environment are used.
//
// Usage:
//
//	steward serve                     Start the API server and background monitor
//	steward chat                      Interactive chat in the terminal
//	steward ask <question>            Ask a single question
//	steward providers                 List language-model providers
//	steward providers default <id>    Set the preferred provider
//	steward init [dir]                Write an example config file
//	steward version                   Print version and build information
//	steward -o json version           Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	_ "time/tzdata"

	"github.com/nugget/steward/internal/buildinfo"
	"github.com/nugget/steward/internal/config"
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run].
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the steward command. All OS-level
// dependencies are injected as parameters so tests can drive it.
// Arguments are parsed by hand; the flag package's globals interfere
// with parallel tests.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
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
		return runServe(ctx, stdout, configPath)
	case "chat":
		return runChat(ctx, stdin, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: steward ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, strings.Join(cmdArgs, " "))
	case "providers":
		return runProviders(stdout, stderr, configPath, outputFmt, cmdArgs)
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
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Steward - Executive Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: steward [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                   Start the API server and background monitor")
	fmt.Fprintln(w, "  chat                    Interactive chat in the terminal")
	fmt.Fprintln(w, "  ask <question>          Ask a single question")
	fmt.Fprintln(w, "  providers               List language-model providers")
	fmt.Fprintln(w, "  providers default <id>  Set the preferred provider")
	fmt.Fprintln(w, "  init [dir]              Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  version                 Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/steward/config.yaml, /etc/steward/config.yaml")
	fmt.Fprintln(w, "  A .env file in the working directory is loaded first.")
	return nil
}

// loadConfig loads .env, then locates and parses the YAML
// configuration. When no file exists on the search path and none was
// named, defaults and the environment are used. Returns the config and
// a description of where it came from.
func loadConfig(explicit string) (*config.Config, string, error) {
	if err := config.LoadDotEnv(""); err != nil {
		return nil, "", err
	}

	cfgPath, err := config.FindConfig(explicit)
	if errors.Is(err, config.ErrNoConfig) {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, "", fmt.Errorf("environment config: %w", err)
		}
		return cfg, "(defaults and environment)", nil
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// configuredLogger builds the logger for cfg. Interactive commands pass
// quiet=true so only warnings reach the terminal unless a level is
// configured.
func configuredLogger(w io.Writer, cfg *config.Config, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelWarn
	}
	if cfg.LogLevel != "" {
		// Already validated by config.Validate.
		level, _ = config.ParseLogLevel(cfg.LogLevel)
	}
	return config.NewLogger(w, level, cfg.LogFormat)
}
