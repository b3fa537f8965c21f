package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"IssueSync/internal/config"
	"IssueSync/internal/console"
)

func newUDACommand(global *globalOptions) *cobra.Command {
	var flavor string
	cmd := &cobra.Command{
		Use:   "uda",
		Short: "List the extra task fields defined by the configured services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := console.NewWithWriter(cmd.ErrOrStderr(), false, false)
			application, closeLog, err := loadApplication(global, config.Options{Flavor: flavor}, out)
			if err != nil {
				return err
			}
			defer closeLog()

			lines, err := application.UDALines()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "# IssueSync UDAs")
			for _, line := range lines {
				fmt.Fprintln(w, line)
			}
			fmt.Fprintln(w, "# END IssueSync UDAs")
			return nil
		},
	}
	cmd.Flags().StringVar(&flavor, "flavor", "", "The flavor to use")
	return cmd
}
