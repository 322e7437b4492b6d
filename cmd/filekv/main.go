// Command filekv reads and writes keyed documents stored in local files.
//
// Documents are ordered key/value maps persisted as JSON or YAML, optionally
// AES encrypted. Settings come from an optional YAML file and flags; flags
// win.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maruel/filekv/cmd/filekv/commands"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "filekv: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	return commands.Execute(ctx, os.Args[1:])
}
