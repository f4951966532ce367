package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// chatter is the slice of [agent.Engine] the terminal loop drives.
type chatter interface {
	Chat(ctx context.Context, text string) (string, error)
	Clear()
}

// runChat handles the "steward chat" subcommand: an interactive loop
// on the terminal sharing one conversation.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, configuredLogger(stderr, cfg, true))
	if err != nil {
		return err
	}
	defer a.Close()

	if prev, ok := a.recordLogin(); ok {
		fmt.Fprintf(stdout, "Welcome back. Last login: %s\n", prev.In(cfg.Agent.Location()).Format("Monday, January 02 at 03:04 PM"))
	}

	engine, err := a.newEngine()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Steward (%s). Type \"clear\" to start over, \"quit\" to exit.\n", engine.Provider())
	return repl(ctx, stdin, stdout, engine)
}

// runAsk handles "steward ask": one question, one answer, no history.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, question string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, configuredLogger(stderr, cfg, true))
	if err != nil {
		return err
	}
	defer a.Close()
	a.recordLogin()

	engine, err := a.newEngine()
	if err != nil {
		return err
	}
	answer, err := engine.Chat(ctx, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, answer)
	return nil
}

// repl reads lines from in until EOF or a quit word. Model errors are
// printed and the loop continues.
func repl(ctx context.Context, in io.Reader, out io.Writer, c chatter) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		case "clear":
			c.Clear()
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		start := time.Now()
		answer, err := c.Chat(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "\nSteward: %s\n(%s)\n\n", answer, time.Since(start).Round(100*time.Millisecond))
	}
}
