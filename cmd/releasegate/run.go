package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"releasegate/internal/app"
	"releasegate/internal/core"
)

func runCmd() *cobra.Command {
	var (
		ref, commit, repo string
		workflowFile      string
		keepWorkspace     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the release workflow locally for one push",
		Example: `  releasegate run --ref v1.2.3 --commit 3f2a9c1 --repo https://github.com/acme/pkg.git
  PYPI_API_TOKEN=... releasegate run --ref refs/tags/v1.2.3 --commit 3f2a9c1 --repo .`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if workflowFile != "" {
				cfg.WorkflowPath = workflowFile
			}
			// A local run executes inline.
			cfg.RedisAddr = ""

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			a.Runner.KeepWorkspace = keepWorkspace

			ev := core.Event{
				Ref:        core.NormalizeRef(ref),
				Commit:     commit,
				Repository: repo,
				ReceivedAt: time.Now().UTC(),
			}
			run, err := a.Runner.Run(ctx, a.Workflow, ev)
			if errors.Is(err, core.ErrNoMatch) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s does not trigger %q, nothing to do\n", ev.Ref, a.Workflow.Name)
				return nil
			}
			if run == nil {
				return err
			}
			if saveErr := a.Store.Save(ctx, run); saveErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: cannot save run: %v\n", saveErr)
			}
			printRun(cmd.OutOrStdout(), run)
			return err
		},
	}
	cmd.Flags().StringVar(&ref, "ref", "", "pushed ref, e.g. v1.2.3 or refs/tags/v1.2.3")
	cmd.Flags().StringVar(&commit, "commit", "", "commit sha the ref points at")
	cmd.Flags().StringVar(&repo, "repo", "", "repository URL or path to clone from")
	cmd.Flags().StringVar(&workflowFile, "workflow", "", "workflow file (default: built-in release workflow)")
	cmd.Flags().BoolVar(&keepWorkspace, "keep-workspace", false, "do not delete the run workspace")
	_ = cmd.MarkFlagRequired("ref")
	_ = cmd.MarkFlagRequired("commit")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func printRun(out io.Writer, run *core.Run) {
	fmt.Fprintf(out, "run %s  tag=%s  status=%s\n", run.ID, run.Tag, run.Status)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTEP\tPHASE\tSTATUS\tEXIT\tDURATION")
	for i, s := range run.Steps {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", i+1, s.Name, s.Phase, s.Status, s.ExitCode, s.Duration.Round(time.Millisecond))
	}
	w.Flush()
	if run.Error != "" {
		fmt.Fprintf(out, "failure (%s): %s\n", run.FailureKind, run.Error)
	}
}
