package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/listkit/autoposter/internal/app"
	"github.com/listkit/autoposter/internal/domain"
	"github.com/listkit/autoposter/internal/runner"
)

func newRunCommand() *cobra.Command {
	var (
		listingIDs []string
		jobID      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a posting run and wait for its outcome",
		Long: `Posts listings synchronously: everything due, or the listings named
with --ids. The exit status reflects the job outcome, so the command is
scriptable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(app.Options{ConfigPath: cfgFile, Version: version})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			id, err := a.Queue().RunNow(ctx, runner.Request{JobID: jobID, ListingIDs: listingIDs})
			if err != nil {
				return fmt.Errorf("run %s: %w", id, err)
			}

			snap, err := a.Tracker().GetSnapshot(ctx, id)
			if err != nil {
				return fmt.Errorf("fetch job %s: %w", id, err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(snap); err != nil {
				return err
			}

			if snap.Status == domain.JobStatusFailed {
				msg := "run finished with failures"
				if snap.ErrorMessage != nil {
					msg = *snap.ErrorMessage
				}
				return fmt.Errorf("job %s: %s", id, msg)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&listingIDs, "ids", nil, "specific listing ids to post (default: everything due)")
	cmd.Flags().StringVar(&jobID, "job-id", "", "tag the run with a caller-chosen job id")
	return cmd
}
