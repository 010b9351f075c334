package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/review"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Record a review decision in the ledger",
	Long: `Append one decision to the ledger and re-validate the taxonomy with it applied.

Actions:
  merge    merge a conflict's nodes, or fold concepts/nodes into the first target
  specify  mark targets as intentionally distinct
  clarify  attach a rationale without closing anything
  keep     accept targets as they are

Targets are conflict, concept, review item or taxonomy node ids, comma separated.`,
	Run: func(cmd *cobra.Command, args []string) {
		action, _ := cmd.Flags().GetString("action")
		targets, _ := cmd.Flags().GetStringSlice("target")
		rationale, _ := cmd.Flags().GetString("rationale")
		actor, _ := cmd.Flags().GetString("actor")
		if actor == "" {
			actor = defaultActor()
		}

		o := newOrchestrator(false, true)
		res, err := o.Decide(context.Background(), &types.Decision{
			Action:    types.DecisionAction(strings.ToLower(action)),
			Targets:   targets,
			Rationale: rationale,
			Actor:     actor,
		})
		if err != nil {
			fail(err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s Recorded %s on %s %s\n", green("✓"), res.Decision.Action,
			strings.Join(res.Decision.Targets, ", "), gray(fmt.Sprintf("(seq %d, %s)", res.Decision.Seq, res.Decision.ID)))
		fmt.Printf("  open violations: %d\n", res.Report.OpenViolations())
		fmt.Printf("  mece score:      %.3f\n", res.Report.MECEScore)
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work through open conflicts and low-confidence concepts",
	Long: `Start an interactive session listing unresolved conflicts, open review items
and low-confidence concepts. Each merge, specify, clarify or keep command is
recorded in the ledger as it is entered.

Type 'help' in the session for available commands.`,
	Run: func(cmd *cobra.Command, args []string) {
		actor, _ := cmd.Flags().GetString("actor")
		if actor == "" {
			actor = defaultActor()
		}
		s, err := review.New(&review.Config{
			Backend: newOrchestrator(false, true),
			Actor:   actor,
			History: filepath.Join(filepath.Dir(cfg.Storage.Path), "review_history"),
			Logger:  log,
		})
		if err != nil {
			fail(fmt.Errorf("failed to create review session: %w", err))
		}
		if err := s.Run(context.Background()); err != nil {
			fail(err)
		}
	},
}

func init() {
	decideCmd.Flags().String("action", "", "merge, specify, clarify or keep (required)")
	decideCmd.Flags().StringSlice("target", nil, "Target ids, comma separated (required)")
	decideCmd.Flags().String("rationale", "", "Why the decision was made (required for clarify)")
	decideCmd.Flags().String("actor", "", "Who made the decision (default $USER)")
	_ = decideCmd.MarkFlagRequired("action")
	_ = decideCmd.MarkFlagRequired("target")

	reviewCmd.Flags().String("actor", "", "Who is reviewing (default $USER)")

	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(reviewCmd)
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "reviewer"
}
