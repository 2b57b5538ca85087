package cli

import "github.com/spf13/cobra"

// NewRootCmd builds the dispatchctl command tree, bound to a Client
// pointed at coordinatorURL.
func NewRootCmd(coordinatorURL string) *cobra.Command {
	root := &cobra.Command{
		Use:          "dispatchctl",
		Short:        "Operate a Dispatch coordinator",
		SilenceUsage: true,
	}

	client := NewClient(coordinatorURL)

	jobs := &cobra.Command{Use: "jobs", Short: "Inspect and create jobs"}
	jobs.AddCommand(NewJobsGetCmd(client))
	jobs.AddCommand(NewJobsCreateCmd(client))

	workers := &cobra.Command{Use: "workers", Short: "Manage worker processes"}
	workers.AddCommand(NewWorkersScaleCmd(client))

	root.AddCommand(jobs)
	root.AddCommand(workers)
	root.AddCommand(NewStatsCmd(client))

	return root
}
