package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matzehuels/overclock/internal/cli"
	operrors "github.com/matzehuels/overclock/pkg/errors"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context) error {
	var verbose bool

	c := cli.New(os.Stderr, cli.LogInfo)
	root := c.RootCommand()
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			c.SetLogLevel(cli.LogDebug)
			c.EnableTracing()
		}
	}
	return root.ExecuteContext(ctx)
}

// exitCode separates bad input from solver and internal failures.
func exitCode(err error) int {
	switch operrors.GetCode(err) {
	case operrors.ErrCodeInvalidInput, operrors.ErrCodeNotFound, operrors.ErrCodeDataIngestion:
		return 2
	case operrors.ErrCodeSolverInfeasible:
		return 3
	}
	return 1
}
