package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/ingest"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/orchestrator"
	"github.com/collinhord/rock-ai-hackathon-2025-sub002/internal/types"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Run the full pipeline over every skill",
	Long: `Embed every skill and taxonomy node, classify similar skill pairs, group
variants into master concepts, validate the taxonomy and write the report.

Ctrl+C stops the run at the next checkpoint; running the same command again
resumes it.`,
	Run: func(cmd *cobra.Command, args []string) {
		applyBatchFlags(cmd)
		skills := loadSkills(cmd, "skills")
		nodes := loadTaxonomy(cmd)
		runBatch(cmd, orchestrator.Request{Mode: types.ModeRebuild, Skills: skills, Nodes: nodes})
	},
}

var incrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Re-compare only new or changed skills",
	Long: `Compare new or changed skills against the stored snapshot and re-validate.
Verdicts for pairs whose texts did not change are reused.

Changed skills are selected either by --since (records updated after a date in
the full skills file) or by --new-records (a file of added and edited records
merged over the stored snapshot).`,
	Run: func(cmd *cobra.Command, args []string) {
		applyBatchFlags(cmd)
		since, _ := cmd.Flags().GetString("since")
		newRecords, _ := cmd.Flags().GetString("new-records")
		if (since == "") == (newRecords == "") {
			fail(fmt.Errorf("exactly one of --since or --new-records is required"))
		}
		nodes := loadTaxonomy(cmd)

		var skills []types.SkillRecord
		var changed map[string]bool
		if since != "" {
			t, err := ingest.ParseSince(since)
			if err != nil {
				fail(err)
			}
			skills = loadSkills(cmd, "skills")
			changed = ingest.ChangedSince(skills, t)
		} else {
			updates, err := ingest.LoadSkills(newRecords)
			if err != nil {
				fail(err)
			}
			noLLM, _ := cmd.Flags().GetBool("no-llm")
			o := newOrchestrator(false, noLLM)
			if skills, changed, err = o.MergeUpdates(context.Background(), updates); err != nil {
				fail(err)
			}
		}
		fmt.Printf("%d changed skills\n", len(changed))
		runBatch(cmd, orchestrator.Request{Mode: types.ModeIncremental, Skills: skills, Nodes: nodes, Changed: changed})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the taxonomy against the stored concepts",
	Long:  `Embed the taxonomy, detect overlapping nodes and score exclusivity. Skills are not re-processed.`,
	Run: func(cmd *cobra.Command, args []string) {
		applyBatchFlags(cmd)
		nodes := loadTaxonomy(cmd)
		runBatch(cmd, orchestrator.Request{Mode: types.ModeValidate, Nodes: nodes})
	},
}

func init() {
	for _, c := range []*cobra.Command{rebuildCmd, incrementalCmd, validateCmd} {
		c.Flags().String("taxonomy", "", "Taxonomy CSV file (required)")
		c.Flags().String("out", "", "Output directory (default from config)")
		c.Flags().Int("checkpoint-interval", 0, "Items between checkpoints (default from config)")
		c.Flags().Int("concurrency", 0, "Concurrent external requests (default from config)")
		c.Flags().Bool("fresh", false, "Start a new run instead of resuming an interrupted one")
		_ = c.MarkFlagRequired("taxonomy")
	}
	for _, c := range []*cobra.Command{rebuildCmd, incrementalCmd} {
		c.Flags().Bool("no-llm", false, "Classify ambiguous pairs by rule only")
		c.Flags().Int("limit", 0, "Process only the first N skills by id")
	}
	rebuildCmd.Flags().String("skills", "", "Skills CSV file (required)")
	_ = rebuildCmd.MarkFlagRequired("skills")
	incrementalCmd.Flags().String("skills", "", "Full skills CSV file, used with --since")
	incrementalCmd.Flags().String("since", "", "Treat records updated after this date as changed (2006-01-02 or RFC3339)")
	incrementalCmd.Flags().String("new-records", "", "CSV of added or edited skill records")

	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(incrementalCmd)
	rootCmd.AddCommand(validateCmd)
}

// applyBatchFlags overlays command flags on the loaded config.
func applyBatchFlags(cmd *cobra.Command) {
	if n, _ := cmd.Flags().GetInt("checkpoint-interval"); n > 0 {
		cfg.Batch.CheckpointInterval = n
	}
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		cfg.Batch.Concurrency = n
	}
	if cmd.Flags().Lookup("limit") != nil {
		if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
			cfg.Batch.Limit = n
		}
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.OutputDir = out
	}
}

func loadSkills(cmd *cobra.Command, flag string) []types.SkillRecord {
	path, _ := cmd.Flags().GetString(flag)
	if path == "" {
		fail(fmt.Errorf("--%s is required", flag))
	}
	skills, err := ingest.LoadSkills(path)
	if err != nil {
		fail(err)
	}
	return skills
}

func loadTaxonomy(cmd *cobra.Command) []types.TaxonomyNode {
	path, _ := cmd.Flags().GetString("taxonomy")
	nodes, err := ingest.LoadTaxonomy(path)
	if err != nil {
		fail(err)
	}
	return nodes
}

func runBatch(cmd *cobra.Command, req orchestrator.Request) {
	noLLM := false
	if cmd.Flags().Lookup("no-llm") != nil {
		noLLM, _ = cmd.Flags().GetBool("no-llm")
	}
	req.NoLLM = noLLM
	req.Fresh, _ = cmd.Flags().GetBool("fresh")
	o := newOrchestrator(true, noLLM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, saving progress...")
			cancel()
		case <-ctx.Done():
		}
	}()

	out, err := o.Run(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Fprintf(os.Stderr, "%s run interrupted; run the same command again to resume\n", yellow("!"))
		}
		fail(err)
	}
	printOutcome(out)
}

func printOutcome(out *orchestrator.Outcome) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	verb := "completed"
	if out.Resumed {
		verb = "resumed and completed"
	}
	fmt.Printf("\n%s %s run %s %s\n", green("✓"), out.Run.Mode, gray(out.Run.ID), verb)
	fmt.Println()

	fmt.Printf("%s\n", cyan("Results"))
	keys := make([]string, 0, len(out.Counts))
	for k := range out.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, out.Counts[k])
	}
	fmt.Printf("  %-20s %d\n", "master_concepts", len(out.Concepts))

	if out.Report != nil {
		open := out.Report.OpenViolations()
		score := green(fmt.Sprintf("%.3f", out.Report.MECEScore))
		if open > 0 {
			score = yellow(fmt.Sprintf("%.3f", out.Report.MECEScore))
		}
		fmt.Printf("  %-20s %s\n", "mece_score", score)
		fmt.Printf("  %-20s %d\n", "open_violations", open)
	}

	openReview := 0
	for _, r := range out.Review {
		if r.Status == types.StatusOpen {
			openReview++
		}
	}
	if openReview > 0 {
		fmt.Printf("\n%s %d items need review (skillmece review)\n", yellow("!"), openReview)
	}
	if len(out.Stale) > 0 {
		fmt.Printf("%s %d decisions reference artifacts missing from this run\n", yellow("!"), len(out.Stale))
	}
	if len(out.Failures) > 0 {
		fmt.Printf("\n%s %d entities could not be embedded:\n", red("✗"), len(out.Failures))
		for _, f := range out.Failures {
			fmt.Printf("  %s  %s\n", f.EntityID, gray(f.Error))
		}
	}

	if len(out.Files) > 0 {
		fmt.Printf("\n%s\n", cyan("Artifacts"))
		for _, f := range out.Files {
			fmt.Printf("  %s\n", f)
		}
	}
	fmt.Println()
}
