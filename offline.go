package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hunterjsb/doorknock/internal/domain"
)

func newSnapshotCommand() *cobra.Command {
	var window string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture a leaderboard snapshot now",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := domain.ParseWindow(window)
			if err != nil {
				return err
			}
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			snap, err := a.ledger.TakeSnapshot(ctx, w, time.Now().UTC().Truncate(time.Second))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "captured %s\n", snap)
			return nil
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", string(domain.Weekly), "weekly, monthly or all-time")
	return cmd
}

func newLeaderboardCommand() *cobra.Command {
	var window, asOf string
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the current leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := domain.ParseWindow(window)
			if err != nil {
				return err
			}
			at := time.Now().UTC()
			if asOf != "" {
				if at, err = time.Parse(time.RFC3339, asOf); err != nil {
					return fmt.Errorf("invalid --as-of: %w", err)
				}
			}
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ranking, err := a.ledger.Rank(cmd.Context(), w, at)
			if err != nil {
				return err
			}
			users, err := a.store.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			names := make(map[string]string, len(users))
			for _, u := range users {
				names[u.ID] = u.DisplayName
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "RANK\tUSER\tNAME\tPOINTS\tREACHED\n")
			for _, e := range ranking.Entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", e.Rank, e.UserID, names[e.UserID], e.Points, e.ReachedAt.Format(time.RFC3339))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if n := len(ranking.Skipped); n > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d unreadable records skipped\n", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", string(domain.Weekly), "weekly, monthly or all-time")
	cmd.Flags().StringVar(&asOf, "as-of", "", "RFC3339 time to rank at (default: now)")
	return cmd
}
