package main

import (
	"os"

	"github.com/tume-mail/tume/internal/app"
	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/output"
	"github.com/tume-mail/tume/internal/secret"
)

func main() {
	secret.CatchInterrupt()
	exit := run()
	secret.Purge()
	os.Exit(exit)
}

// run is the main entry point
func run() int {
	// Initialize application
	a := app.New(version, commit, date)
	w := output.New(os.Stdout, os.Stderr)

	// Create root command
	root := NewRootCommand()

	// Add subcommands
	root.AddCommand(NewSpecCommand(&a, &w))
	root.AddCommand(NewVersionCommand(&a, &w))
	root.AddCommand(NewCredsCommand(&w))
	root.AddCommand(NewProvidersCommand(&w))
	root.AddCommand(NewAccountsCommand(&w))
	root.AddCommand(NewMCPCommand())

	// Execute and handle errors
	if err := root.Execute(); err != nil {
		xe := annotateErr(normalizeErr(err))
		format := resolveFormatForError(GlobalConfig.FormatStr)
		_ = w.WriteError(format, xe)
		return int(errors.ExitCodeFor(xe.Code))
	}

	return int(errors.ExitOK)
}
