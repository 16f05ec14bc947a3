package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if cleanCancel(err) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cleanCancel reports whether err is a plain cancellation. A cancellation
// joined with a failed halt is not clean.
func cleanCancel(err error) bool {
	errs := multierr.Errors(err)
	return len(errs) == 1 && errors.Is(errs[0], context.Canceled)
}
