package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"storyboard/internal/batch"
	"storyboard/internal/infra/credentials"
)

type runtime struct {
	manager *batch.Manager
	creds   *credentials.Store
	close   func()
}

type opener func(ctx context.Context) (*runtime, error)

var errNoCredentialStore = errors.New("credentials are only stored by the postgres driver")

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "jobctl",
		Short:         "Inspect and maintain batch illustration jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newStatusCmd(open),
		newJobsCmd(open),
		newCancelCmd(open),
		newResumeCmd(open),
		newClearCmd(open),
		newReconcileCmd(open),
		newDrainCmd(open),
		newCredentialsCmd(open),
	)
	return root
}

// withRuntime opens the runtime for one command invocation.
func withRuntime(open opener, fn func(cmd *cobra.Command, rt *runtime, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := open(cmd.Context())
		if err != nil {
			return err
		}
		if rt.close != nil {
			defer rt.close()
		}
		return fn(cmd, rt, args)
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "status <script-id>",
		Short: "Show progress of the latest job of a script",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *runtime, args []string) error {
			status, err := rt.manager.JobStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		}),
	}
}

func newJobsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs <script-id>",
		Short: "List the job history of a script, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *runtime, args []string) error {
			jobs, err := rt.manager.ListJobs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := make([]batch.Status, 0, len(jobs))
			for i := range jobs {
				out = append(out, batch.StatusFromJob(&jobs[i]))
			}
			return printJSON(cmd, out)
		}),
	}
}

func newCancelCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <script-id>",
		Short: "Pause the active job of a script",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *runtime, args []string) error {
			cancelled, err := rt.manager.CancelBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]bool{"cancelled": cancelled})
		}),
	}
}

func newResumeCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <script-id>",
		Short: "Requeue the paused job of a script",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *runtime, args []string) error {
			job, err := rt.manager.ResumeBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, batch.StatusFromJob(job))
		}),
	}
}

func newClearCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <script-id>",
		Short: "Delete every job recorded for a script",
		Args:  cobra.ExactArgs(1),
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *runtime, args []string) error {
			deleted, err := rt.manager.ClearJobs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int64{"deleted": deleted})
		}),
	}
}

func newReconcileCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Return jobs and items stuck in processing to pending",
		Long: `Return jobs and items stuck in processing to pending.

Run this only while no worker is active; a running worker reconciles on start.`,
		Args: cobra.NoArgs,
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *runtime, _ []string) error {
			if err := rt.manager.Reconcile(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reconciled")
			return nil
		}),
	}
}

func newDrainCmd(open opener) *cobra.Command {
	var maxPasses int
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Process runnable jobs in the foreground until none are left",
		Args:  cobra.NoArgs,
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *runtime, _ []string) error {
			passes := 0
			for maxPasses <= 0 || passes < maxPasses {
				worked, err := rt.manager.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				if !worked {
					break
				}
				passes++
			}
			return printJSON(cmd, map[string]int{"passes": passes})
		}),
	}
	cmd.Flags().IntVar(&maxPasses, "max-passes", 0, "stop after this many job passes (0 means no limit)")
	return cmd
}

func newCredentialsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage provider API keys stored in the database",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <dashscope|openai> <api-key>",
		Short: "Store an API key used when the environment does not provide one",
		Args:  cobra.ExactArgs(2),
		RunE: withRuntime(open, func(cmd *cobra.Command, rt *runtime, args []string) error {
			if rt.creds == nil {
				return errNoCredentialStore
			}
			if err := rt.creds.SetToken(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s key\n", args[0])
			return nil
		}),
	})
	return cmd
}
