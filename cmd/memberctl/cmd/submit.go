package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"hize/membership/internal/coordinator"
)

var (
	waitFor      time.Duration
	pollInterval time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit [memberId]",
	Short: "Submit a membership check",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		resp, err := a.Coordinator.Submit(ctx, args[0])
		if err != nil {
			return err
		}
		if resp.JobID == nil || waitFor <= 0 {
			return printJSON(cmd.OutOrStdout(), resp)
		}

		status, err := waitTerminal(ctx, *resp.JobID)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), status)
	},
}

// waitTerminal 轮询直到 job 结束或超过 --wait
func waitTerminal(ctx context.Context, jobID string) (*coordinator.StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := a.Coordinator.PollStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if status.Status.IsTerminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, nil
		case <-ticker.C:
		}
	}
}

func init() {
	submitCmd.Flags().DurationVar(&waitFor, "wait", 0, "Poll until the job finishes, up to this long")
	submitCmd.Flags().DurationVar(&pollInterval, "interval", time.Second, "Poll interval used with --wait")
	rootCmd.AddCommand(submitCmd)
}
