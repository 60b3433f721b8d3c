package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/workq/engine"
	"github.com/xraph/workq/job"
)

func newEnqueueCmd(a *app) *cobra.Command {
	var (
		maxRetries int
		timeout    string
	)
	cmd := &cobra.Command{
		Use:   "enqueue <type> [payload]",
		Short: "Submit a job with a JSON payload",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return errors.New("payload must be valid JSON")
				}
				payload = []byte(args[1])
			}

			var opts []job.Option
			if cmd.Flags().Changed("max-retries") {
				if maxRetries < 0 {
					return errors.New("--max-retries must not be negative")
				}
				opts = append(opts, job.WithMaxRetries(maxRetries))
			}
			if timeout != "" {
				d, err := parseDuration(timeout)
				if err != nil {
					return err
				}
				opts = append(opts, job.WithTimeout(d))
			}

			return a.withEngine(cmd.Context(), func(eng *engine.Engine) error {
				jobID, err := eng.Enqueue(cmd.Context(), args[0], payload, opts...)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), jobID)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "failed attempts before dead-lettering (default from config)")
	cmd.Flags().StringVar(&timeout, "timeout", "", "cooperative execution deadline, e.g. 30s")
	return cmd
}
