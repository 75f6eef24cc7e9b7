package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/asyncexec/engine"
	"github.com/xraph/asyncexec/id"
	"github.com/xraph/asyncexec/job"
)

// openEngine builds an engine that is never started. Commands use it for
// its manager and sweeper.
func openEngine(ctx context.Context, g *globalFlags) (*engine.Engine, func(), error) {
	cfg, err := g.config()
	if err != nil {
		return nil, nil, err
	}
	logger := g.logger()

	s, closeStore, err := openStore(ctx, g, logger)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(s, engine.WithConfig(cfg), engine.WithLogger(logger))
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return eng, closeStore, nil
}

func newJobsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and repair job records",
	}
	cmd.AddCommand(
		newJobsListCmd(g),
		newJobsShowCmd(g),
		newJobsReactivateCmd(g),
		newJobsDeleteCmd(g),
	)
	return cmd
}

func newJobsListCmd(g *globalFlags) *cobra.Command {
	var (
		q      job.Query
		state  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if state != "" {
				q.State = job.State(state)
				if !q.State.Valid() {
					return fmt.Errorf("unknown state %q", state)
				}
			}

			eng, closeStore, err := openEngine(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer closeStore()

			jobs, err := eng.Store().ListJobs(cmd.Context(), q)
			if err != nil {
				return err
			}
			total, err := eng.Store().CountJobs(cmd.Context(), q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(jobs)
			}
			printJobs(out, jobs)
			fmt.Fprintf(out, "%d of %d job(s)\n", len(jobs), total)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&state, "state", "", "timer, executable, suspended or deadletter")
	f.StringVar(&q.ProcessInstanceID, "process-instance", "", "filter by process instance")
	f.StringVar(&q.ExecutionID, "execution", "", "filter by execution")
	f.StringVar(&q.TenantID, "tenant", "", "filter by tenant")
	f.StringVar(&q.HandlerType, "handler", "", "filter by handler type")
	f.IntVar(&q.Limit, "limit", 50, "maximum rows, 0 for all")
	f.IntVar(&q.Offset, "offset", 0, "rows to skip")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newJobsShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job including its exception detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeStore, j, err := loadJob(cmd.Context(), g, args[0])
			if err != nil {
				return err
			}
			defer closeStore()

			printJob(cmd.OutOrStdout(), j)
			return nil
		},
	}
}

func newJobsReactivateCmd(g *globalFlags) *cobra.Command {
	var retries int

	cmd := &cobra.Command{
		Use:   "reactivate <id>",
		Short: "Move a dead-letter or suspended job back to execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, closeStore, j, err := loadJob(ctx, g, args[0])
			if err != nil {
				return err
			}
			defer closeStore()

			var outcome job.Outcome
			switch j.State {
			case job.StateDeadLetter:
				outcome, err = eng.Manager().MoveDeadLetterJobToExecutableJob(ctx, j, retries)
			case job.StateSuspended:
				outcome, err = eng.Manager().ActivateSuspendedJob(ctx, j)
			default:
				return fmt.Errorf("job %s is %s, not deadletter or suspended", j.ID, j.State)
			}
			if err != nil {
				return err
			}
			if outcome == job.Conflict {
				return fmt.Errorf("job %s changed concurrently, retry", j.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s reactivated\n", j.ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&retries, "retries", 3, "retries granted to a dead-letter job")
	return cmd
}

func newJobsDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, closeStore, j, err := loadJob(ctx, g, args[0])
			if err != nil {
				return err
			}
			defer closeStore()

			outcome, err := eng.Manager().DeleteJob(ctx, j)
			if err != nil {
				return err
			}
			if outcome == job.Conflict {
				return fmt.Errorf("job %s changed concurrently, retry", j.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s deleted\n", j.ID)
			return nil
		},
	}
}

func loadJob(ctx context.Context, g *globalFlags, raw string) (*engine.Engine, func(), *job.Job, error) {
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse job id %q: %w", raw, err)
	}

	eng, closeStore, err := openEngine(ctx, g)
	if err != nil {
		return nil, nil, nil, err
	}
	j, err := eng.Store().GetJob(ctx, jobID)
	if err != nil {
		closeStore()
		return nil, nil, nil, err
	}
	return eng, closeStore, j, nil
}

func printJobs(w io.Writer, jobs []*job.Job) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tHANDLER\tPROCESS\tDUE\tRETRIES\tLOCK OWNER")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			j.ID, j.State, j.HandlerType, j.ProcessInstanceID,
			formatTime(j.DueDate), j.Retries, dash(j.LockOwner))
	}
	_ = tw.Flush()
}

func printJob(w io.Writer, j *job.Job) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(tw, "%s:\t%s\n", k, v) }

	row("ID", j.ID.String())
	row("State", string(j.State))
	if j.SuspendedFrom != "" {
		row("Suspended from", string(j.SuspendedFrom))
	}
	row("Handler", j.HandlerType)
	row("Config", dash(string(j.HandlerConfig)))
	row("Process instance", j.ProcessInstanceID)
	row("Execution", j.ExecutionID)
	row("Definition", dash(j.ProcessDefinitionID))
	row("Tenant", dash(j.TenantID))
	row("Exclusive", fmt.Sprint(j.Exclusive))
	row("Due", formatTime(j.DueDate))
	if j.Repeat != "" {
		row("Repeat", j.Repeat)
		row("End", formatTime(j.EndDate))
		row("Max iterations", fmt.Sprint(j.MaxIterations))
	}
	row("Retries", fmt.Sprint(j.Retries))
	row("Lock owner", dash(j.LockOwner))
	row("Lock expires", formatTime(j.LockExpiration))
	row("Version", fmt.Sprint(j.Version))
	row("Created", j.CreatedAt.Format(time.RFC3339))
	row("Updated", j.UpdatedAt.Format(time.RFC3339))
	_ = tw.Flush()

	if j.ExceptionMessage != "" {
		fmt.Fprintf(w, "\nException: %s\n", j.ExceptionMessage)
		if j.ExceptionStack != "" {
			fmt.Fprintf(w, "\n%s\n", j.ExceptionStack)
		}
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
