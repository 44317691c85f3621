package main

import (
	"fmt"
	"os"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___          _ _ _              _
  / __|_ __ ___| | | |__  ___  ___| |__
  \__ \ '_ \ -_) | | '_ \/ _ \/ _ \ / /
  |___/ .__\___|_|_|_.__/\___/\___/_\_\
      |_|

  Knowledge vault indexer and session capture

  Usage: sb <command> [options]
         sb --help

  MCP server mode requires piped input.`)
}

func main() {
	args := os.Args
	if len(args) < 2 {
		// No args + interactive terminal → show banner and exit
		if isTerminal() {
			printBanner()
			return
		}
		// No args + piped stdin → MCP server
		args = append(args, "mcp")
	}

	app := newCLIApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
