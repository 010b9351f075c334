package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs, checkpoint progress and open review work",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		o := newOrchestrator(false, true)
		st, err := o.Status(context.Background(), limit)
		if err != nil {
			fail(err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n", cyan("Runs"))
		if len(st.Runs) == 0 {
			fmt.Printf("  %s\n", gray("No runs yet"))
		}
		for _, r := range st.Runs {
			statusColor := gray
			switch r.Status {
			case types.RunCompleted:
				statusColor = green
			case types.RunInterrupted, types.RunRunning:
				statusColor = yellow
			case types.RunFailed:
				statusColor = red
			}
			fmt.Printf("  %s  %-11s %-11s %s\n", gray(r.StartedAt.Local().Format("2006-01-02 15:04")),
				r.Mode, statusColor(string(r.Status)), r.Summary)
		}

		if len(st.Progress) > 0 {
			fmt.Printf("\n%s\n", cyan("Latest run checkpoints"))
			for _, p := range st.Progress {
				mark := yellow("…")
				if p.Done {
					mark = green("✓")
				}
				fmt.Printf("  %s %-12s offset %d\n", mark, p.Stage, p.Offset)
			}
		}

		fmt.Printf("\n%s\n", cyan("Open work"))
		fmt.Printf("  conflicts:       %d\n", len(st.OpenConflicts))
		fmt.Printf("  review items:    %d\n", len(st.OpenReview))
		fmt.Printf("  embed failures:  %d\n", len(st.Failures))
		fmt.Printf("  decisions:       %d\n", st.Decisions)
		for _, f := range st.Failures {
			fmt.Printf("    %s %s %s\n", red("✗"), f.EntityID, gray(f.Error))
		}
		fmt.Println()
	},
}

func init() {
	statusCmd.Flags().Int("limit", 10, "Number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}
