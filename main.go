package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "doorknock",
		Short: "Door-to-door sales practice and leaderboard bot for Discord",
		Long: `doorknock runs a Discord bot where sales reps practice pitches against
AI homeowners, submit closed deals for approval and compete on a points
leaderboard. Configuration comes from the environment and an optional .env file.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newSnapshotCommand())
	rootCmd.AddCommand(newLeaderboardCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
