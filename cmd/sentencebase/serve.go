package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/japaniel/sentencebase/pkg/scheduler"
)

func serveCmd(a *app) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Form batches for every user on the configured schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ig, err := a.ingester(false)
			if err != nil {
				return err
			}
			s, err := scheduler.NewScheduler(ig.DB, ig, a.cfg.Timezone, a.logger)
			if err != nil {
				return err
			}
			s.Concurrency = a.cfg.Workers

			if once {
				res, err := s.RunOnce(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "formed %d batches for %d users\n", len(res.Batches), res.Users)
				return err
			}

			if err := s.Schedule(a.cfg.BatchSchedule); err != nil {
				return err
			}
			s.Start()
			a.logger.Info("batch scheduler started", "schedule", a.cfg.BatchSchedule, "next", s.Next())

			<-cmd.Context().Done()
			a.logger.Info("shutting down")
			s.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run one batching pass and exit")
	return cmd
}
