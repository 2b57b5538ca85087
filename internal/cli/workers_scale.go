package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkersScaleCmd builds `dispatchctl workers scale <type> <count>`,
// spec.md §6 "POST /api/workers/scale".
func NewWorkersScaleCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "scale <type> <count>",
		Short: "Scale the worker pool of a type to count",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			workerType := args[0]
			count, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid count %q: %w", args[1], err)
			}

			req := map[string]any{"type": workerType, "count": count}
			if err := client.do(context.Background(), "POST", "/api/workers/scale", req, nil); err != nil {
				return err
			}

			fmt.Printf("scaled %s workers to %d\n", workerType, count)
			return nil
		},
	}
}
