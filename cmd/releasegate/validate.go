package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"releasegate/internal/core"
)

func validateCmd() *cobra.Command {
	var workflowFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a workflow and print its step plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, err := core.LoadWorkflow(workflowFile)
			if err != nil {
				return err
			}
			plan, err := core.NewScheduler().Plan(wf)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "workflow %q is valid\n", wf.Name)
			fmt.Fprintf(out, "tags: %s  branches: %s\n", patterns(wf.On.Push.Tags), patterns(wf.On.Push.Branches))
			fmt.Fprintf(out, "permissions: %s\n", strings.Join(wf.PermissionList(), ", "))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSTEP\tPHASE")
			for _, ps := range plan {
				fmt.Fprintf(w, "%d\t%s\t%s\n", ps.Index+1, ps.Name, ps.Phase)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&workflowFile, "workflow", "", "workflow file (default: built-in release workflow)")
	return cmd
}

func patterns(p []string) string {
	if len(p) == 0 {
		return "-"
	}
	return strings.Join(p, ",")
}
