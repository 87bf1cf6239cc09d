package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/gosnmp/gosnmp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xtxerr/statbridge/internal/registry"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive query session",
	Long: `shell opens a prompt for repeated queries against one statbridged.

Commands:
  get OID...    read values
  next OID...   read successors
  walk [ROOT]   list a subtree
  exit          leave`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

var shellSuggestions = []prompt.Suggest{
	{Text: "get", Description: "read values by exact OID"},
	{Text: "next", Description: "read the entries following each OID"},
	{Text: "walk", Description: "list a subtree"},
	{Text: "exit", Description: "leave the shell"},
}

func runShell(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("shell needs an interactive terminal")
	}

	return withClient(func(c *gosnmp.GoSNMP) error {
		fmt.Printf("connected to %s (community %q)\n", target, community)

		p := prompt.New(
			func(line string) { execLine(c, line) },
			completeLine,
			prompt.OptionPrefix("statctl> "),
			prompt.OptionTitle("statctl"),
			prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
				return breakline && strings.TrimSpace(in) == "exit"
			}),
		)
		p.Run()
		return nil
	})
}

func execLine(c *gosnmp.GoSNMP, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	var err error
	switch fields[0] {
	case "get":
		if len(fields) < 2 {
			err = fmt.Errorf("usage: get OID...")
			break
		}
		err = runGet(c, os.Stdout, fields[1:])
	case "next":
		if len(fields) < 2 {
			err = fmt.Errorf("usage: next OID...")
			break
		}
		err = runNext(c, os.Stdout, fields[1:])
	case "walk":
		root := registry.NodeRoot.Dotted()
		if len(fields) > 1 {
			root = fields[1]
		}
		err = runWalk(c, os.Stdout, root)
	case "exit":
	default:
		err = fmt.Errorf("unknown command %q", fields[0])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
}

func completeLine(d prompt.Document) []prompt.Suggest {
	// Only the command word is completed.
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(shellSuggestions, d.GetWordBeforeCursor(), true)
}
