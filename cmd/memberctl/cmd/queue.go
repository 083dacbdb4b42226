package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queueLenCmd = &cobra.Command{
	Use:   "queue-len",
	Short: "Print the number of queued validation jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := a.Queue.Len(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s=%d\n", a.Queue.Name(), n)
		return nil
	},
}

func init() { rootCmd.AddCommand(queueLenCmd) }
