package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"IssueSync/internal/app"
	"IssueSync/internal/config"
	"IssueSync/internal/console"
	"IssueSync/internal/infrastructure/lock"
)

type pullOptions struct {
	dryRun      bool
	flavor      string
	interactive bool
	debug       bool
	quiet       bool
	verbose     bool
}

func newPullCommand(global *globalOptions) *cobra.Command {
	opts := &pullOptions{}
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull issues from every target and synchronize the task store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPull(cmd, global, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Don't modify the task store")
	flags.StringVar(&opts.flavor, "flavor", "", "The flavor to use")
	flags.BoolVar(&opts.interactive, "interactive", false, "Prompt for missing credentials")
	flags.BoolVar(&opts.debug, "debug", false, "Collect targets one after another")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress output except warnings and errors")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show per-task details")
	return cmd
}

func runPull(cmd *cobra.Command, global *globalOptions, opts *pullOptions) error {
	out := console.New(opts.quiet, opts.verbose || opts.dryRun)

	application, closeLog, err := loadApplication(global, config.Options{
		Flavor:      opts.flavor,
		Interactive: opts.interactive,
	}, out)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = application.Pull(ctx, app.PullOptions{DryRun: opts.dryRun, Debug: opts.debug})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lock.ErrLocked):
		out.Error(fmt.Sprintf(
			"Your task store is currently locked. Remove the file at %s if you are sure no other issuesync processes are currently running.",
			application.Config().LockPath()))
	default:
		out.Error(fmt.Sprintf("Aborted: %v", err))
	}
	return errReported
}
