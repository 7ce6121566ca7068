package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/dudk/flow"
	"github.com/dudk/flow/log"
)

const (
	successExitCode = 0
	// setupExitCode is returned when pipeline couldn't be built or started.
	setupExitCode = -1
	// errorExitCode is returned when pipeline failed while running.
	errorExitCode = 1
)

// runtimeError is returned when pipeline fails after it was started.
type runtimeError struct {
	err error
}

func (e runtimeError) Error() string {
	return e.err.Error()
}

func (e runtimeError) Unwrap() error {
	return e.err
}

// env is shared by all commands.
type env struct {
	debug    bool
	logger   *logrus.Logger
	registry *flow.Registry
}

func (e *env) pipeline(name string) (*flow.Pipeline, error) {
	return flow.NewPipeline(name, flow.WithLogger(e.logger))
}

func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "flow",
		Short:         "Flow is a media pipeline engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if e.debug {
				e.logger.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVar(&e.debug, "debug", false, "Log debug output")
	root.AddCommand(
		newCpCommand(e),
		newF2FCommand(e),
		newLaunchCommand(e),
		newInspectCommand(e),
	)
	return root
}

// run executes command line and returns exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	e := &env{
		logger:   log.GetLogger(),
		registry: flow.DefaultRegistry,
	}
	e.logger.SetOutput(stderr)
	root := newRootCommand(e)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "flow: %v\n", err)
		if errors.As(err, new(runtimeError)) {
			return errorExitCode
		}
		return setupExitCode
	}
	return successExitCode
}

// play runs pipeline until all data is processed and stops it.
func play(ctx context.Context, p *flow.Pipeline) error {
	if err := p.SetState(flow.Playing); err != nil {
		return multierr.Append(err, p.SetState(flow.Null))
	}
	err := p.Run(ctx)
	err = multierr.Append(err, p.SetState(flow.Null))
	if err != nil {
		return runtimeError{err: err}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
