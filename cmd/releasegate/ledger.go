package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"releasegate/internal/ledger"
	"releasegate/pkg/utils"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or verify a step ledger",
	}

	var runID string
	inspect := &cobra.Command{
		Use:   "inspect <ledger.jsonl>",
		Short: "List ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := ledger.OpenLedger(args[0])
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			entries := l.Entries()
			if runID != "" {
				entries = l.ForRun(runID)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tRUN\tTAG\tSTEP\tSTATUS\tHASH")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", e.Index, utils.Short(e.RunID), e.Tag, e.Step, e.Status, utils.Short(e.Hash))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "head: next index %d, last hash %s\n", l.NextIndex(), headHash(l.LastHash()))
			return nil
		},
	}
	inspect.Flags().StringVar(&runID, "run", "", "only show entries of this run")

	verify := &cobra.Command{
		Use:   "verify <ledger.jsonl>",
		Short: "Check hashes, links and signatures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := ledger.OpenLedger(args[0])
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			if err := l.VerifyChain(); err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger OK (%d entries)\n", len(l.Entries()))
			return nil
		},
	}

	cmd.AddCommand(inspect, verify)
	return cmd
}

func headHash(h string) string {
	if h == "" {
		return "(empty)"
	}
	return h
}
