package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewJobsGetCmd builds `dispatchctl jobs get <id>`, spec.md §6
// "GET /api/jobs/:id".
func NewJobsGetCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a job by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			var body struct {
				Job json.RawMessage `json:"job"`
			}
			if err := client.do(context.Background(), "GET", fmt.Sprintf("/api/jobs/%d", id), nil, &body); err != nil {
				return err
			}

			pretty, err := json.MarshalIndent(body.Job, "", "  ")
			if err != nil {
				return fmt.Errorf("format job: %w", err)
			}
			fmt.Println(string(pretty))
			return nil
		},
	}
}
