package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vulntor/assessor/cmd/assessor/commands"
	"github.com/vulntor/assessor/pkg/assessexec"
)

// main runs the assessor CLI. Exit codes:
//   - 0: success
//   - 1: general failure
//   - 2: invalid input (target, inventory, middleware specification)
//   - 3: authentication rejected
//   - 4: host unreachable
//   - 130: interrupted
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.NewCommand().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var reported *commands.ReportedError
	if !errors.As(err, &reported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(assessexec.ExitCode(err))
}
