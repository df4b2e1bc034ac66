package main

import (
	"context"
	"fmt"
	"os"

	app "github.com/valter-silva-au/devflow/internal"
	"github.com/valter-silva-au/devflow/internal/cli"
)

// Set by goreleaser ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)

	a, err := app.NewApp(app.ResolveHomeDir(), app.ResolveRepoPath(context.Background()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing devflow: %v\n", err)
		os.Exit(1)
	}

	err = cli.Execute()
	_ = a.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
