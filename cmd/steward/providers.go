package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// runProviders lists the language-model providers, or with
// "default <id>" persists the preferred one.
func runProviders(stdout, stderr io.Writer, configPath, outputFmt string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, configuredLogger(stderr, cfg, true))
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) > 0 {
		if args[0] != "default" || len(args) != 2 {
			return fmt.Errorf("usage: steward providers [default <id>]")
		}
		if err := a.factory.SetDefault(args[1]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Default provider set to %s\n", a.factory.Effective())
		return nil
	}

	list := a.factory.List()
	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"providers": list,
			"default":   a.factory.Effective(),
		})
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMODEL\tAVAILABLE\tDEFAULT")
	for _, p := range list {
		def := ""
		if p.Default {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", p.ID, p.Name, p.Model, p.Available, def)
	}
	return tw.Flush()
}
