package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/workq/api"
	"github.com/xraph/workq/engine"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

func newDLQCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Manage the dead letter queue",
	}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered jobs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				jobs, err := eng.DLQ().List(cmd.Context(), job.ListOpts{Limit: limit, Offset: offset})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.NewJobResponses(jobs))
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum jobs to show")
	list.Flags().IntVar(&offset, "offset", 0, "jobs to skip")

	replay := &cobra.Command{
		Use:   "replay <job-id>",
		Short: "Enqueue a copy of a dead-lettered job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				j, err := eng.DLQ().Replay(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), j.ID)
				return nil
			})
		},
	}

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete dead-lettered jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var before time.Time
			if olderThan > 0 {
				before = time.Now().Add(-olderThan)
			}
			return a.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				n, err := eng.DLQ().Purge(cmd.Context(), before)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d\n", n)
				return nil
			})
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 0, "only purge jobs finished at least this long ago")

	cmd.AddCommand(list, replay, purge)
	return cmd
}
