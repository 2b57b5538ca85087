package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewJobsCreateCmd builds `dispatchctl jobs create <type> <payload-json>`,
// spec.md §6 "POST /api/jobs".
func NewJobsCreateCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "create <type> <payload-json>",
		Short: "Submit a new job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType, rawPayload := args[0], args[1]
			if !json.Valid([]byte(rawPayload)) {
				return fmt.Errorf("payload is not valid JSON: %s", rawPayload)
			}

			req := map[string]any{"type": jobType, "payload": json.RawMessage(rawPayload)}
			var body struct {
				JobID int64 `json:"jobId"`
			}
			if err := client.do(context.Background(), "POST", "/api/jobs", req, &body); err != nil {
				return err
			}

			fmt.Println("created job", body.JobID)
			return nil
		},
	}
}
