package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Export or import the decision ledger",
}

var ledgerExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write every decision to a JSONL file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Create(args[0])
		if err != nil {
			fail(fmt.Errorf("failed to create %s: %w", args[0], err))
		}
		o := newOrchestrator(false, true)
		n, err := o.Ledger().Export(context.Background(), f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			fail(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Exported %d decisions to %s\n", green("✓"), n, args[0])
	},
}

var ledgerImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Append decisions from a JSONL file, skipping known ids",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		if err != nil {
			fail(fmt.Errorf("failed to open %s: %w", args[0], err))
		}
		defer f.Close()
		o := newOrchestrator(false, true)
		n, err := o.ImportLedger(context.Background(), f)
		if err != nil {
			fail(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Imported %d decisions from %s\n", green("✓"), n, args[0])
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerExportCmd)
	ledgerCmd.AddCommand(ledgerImportCmd)
	rootCmd.AddCommand(ledgerCmd)
}
