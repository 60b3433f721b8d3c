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

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				st, err := eng.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

func newJobsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect jobs",
	}

	var (
		state  string
		limit  int
		offset int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs in one state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, ok := job.ParseState(state)
			if !ok {
				return fmt.Errorf("unknown state %q", state)
			}
			return a.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				jobs, err := eng.Store().List(cmd.Context(), st, job.ListOpts{Limit: limit, Offset: offset})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.NewJobResponses(jobs))
			})
		},
	}
	list.Flags().StringVar(&state, "state", string(job.StatePending), "pending, in_flight, completed or dead_letter")
	list.Flags().IntVar(&limit, "limit", 50, "maximum jobs to show")
	list.Flags().IntVar(&offset, "offset", 0, "jobs to skip")

	get := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}
			return a.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				j, err := eng.Store().Get(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), api.NewJobResponse(j))
			})
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

func newRecoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Return jobs with expired leases to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				ids, err := eng.Pool().Recover(cmd.Context())
				if err != nil {
					return err
				}
				if ids == nil {
					ids = []id.JobID{}
				}
				return printJSON(cmd.OutOrStdout(), ids)
			})
		},
	}
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}
