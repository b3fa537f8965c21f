package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"IssueSync/internal/app"
	"IssueSync/internal/config"
	"IssueSync/internal/console"
	"IssueSync/internal/logging"
)

// errReported marks failures already printed to the console.
var errReported = errors.New("reported")

type globalOptions struct {
	configPath string
}

// NewRootCommand builds the issuesync command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "issuesync",
		Short:         "Sync issues from remote trackers into a local task store",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the configuration file")

	root.AddCommand(newPullCommand(opts))
	root.AddCommand(newUDACommand(opts))
	root.AddCommand(newVaultCommand(opts))
	return root
}

// Execute runs the CLI with os.Args.
func Execute(version string) error {
	root := NewRootCommand(version)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

// loadApplication reads the configuration and wires the application. Load
// failures are reported on out.
func loadApplication(opts *globalOptions, load config.Options, out *console.Console) (*app.Application, func() error, error) {
	load.Path = opts.configPath
	cfg, err := config.Load(load)
	if err != nil {
		out.Error(fmt.Sprintf("Could not load configuration: %v", err))
		if errors.Is(err, config.ErrNotFound) {
			out.Hint("Maybe you have not created a configuration file.")
		}
		return nil, nil, errReported
	}

	logger, closeLog, err := logging.Open(cfg.Main.LogLevel, cfg.Main.LogFile)
	if err != nil {
		return nil, nil, err
	}

	application, err := app.New(cfg, app.Deps{Console: out, Logger: logger})
	if err != nil {
		_ = closeLog()
		out.Error(fmt.Sprintf("Could not load configuration: %v", err))
		return nil, nil, errReported
	}
	return application, closeLog, nil
}
