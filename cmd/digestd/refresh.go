package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Run one warm cycle over every stale feed, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			sum := a.warm.WarmOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed %d feed(s), %d failed, %d article(s) ingested\n",
				sum.Succeeded, sum.Failed, sum.Ingested)
			for _, o := range sum.Failures() {
				fmt.Fprintf(cmd.OutOrStdout(), "  #%d %s: %v\n", o.FeedID, o.URL, o.Err)
			}
			return nil
		},
	}
}
