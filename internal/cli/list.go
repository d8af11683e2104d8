package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var history bool
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dump jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/jobs/"
			if history {
				path += "?history=true"
				if state != "" {
					path += "&state=" + state
				}
			}

			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}

			fmt.Printf("%-36s  %-10s  %-30s  %s\n", "ID", "STATE", "NAME", "CREATED")
			fmt.Printf("%-36s  %-10s  %-30s  %s\n", "----", "-----", "----", "-------")
			for _, job := range data {
				id, _ := job["id"].(string)
				st, _ := job["state"].(string)
				name, _ := job["name"].(string)
				createdAt, _ := job["created_at"].(string)
				fmt.Printf("%-36s  %-10s  %-30s  %s\n", id, st, name, createdAt)
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Printf("\n(%d of %d shown)\n", len(data), resp.Pagination.Total)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "List the persisted job history instead of the live queue")
	cmd.Flags().StringVar(&state, "state", "", "Filter history by state (QUEUED, RUNNING, COMPLETED, FAILED, CANCELED)")
	return cmd
}
