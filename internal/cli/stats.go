package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatsCmd builds `dispatchctl stats`, spec.md §6 "GET /api/stats".
func NewStatsCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job and worker counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body struct {
				Jobs struct {
					ByStatus map[string]int `json:"byStatus"`
					Total    int            `json:"total"`
				} `json:"jobs"`
				Workers struct {
					ByStatus map[string]int `json:"byStatus"`
					Total    int            `json:"total"`
				} `json:"workers"`
			}
			if err := client.do(context.Background(), "GET", "/api/stats", nil, &body); err != nil {
				return err
			}

			fmt.Printf("jobs: %d total\n", body.Jobs.Total)
			for status, count := range body.Jobs.ByStatus {
				fmt.Printf("  %-12s %d\n", status, count)
			}
			fmt.Printf("workers: %d total\n", body.Workers.Total)
			for status, count := range body.Workers.ByStatus {
				fmt.Printf("  %-12s %d\n", status, count)
			}
			return nil
		},
	}
}
