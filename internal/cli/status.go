package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Check the status of a dump job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/jobs/" + id)
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			name, _ := data["name"].(string)
			state, _ := data["state"].(string)
			detail, _ := data["detail"].(string)

			fmt.Printf("Job: %s\n", id)
			fmt.Printf("  Name:   %s\n", name)
			fmt.Printf("  State:  %s\n", state)
			if detail != "" {
				fmt.Printf("  Detail: %s\n", detail)
			}

			if resources, ok := data["resources"].([]any); ok && len(resources) > 0 {
				fmt.Println("  Resources:")
				for _, r := range resources {
					res, ok := r.(map[string]any)
					if !ok {
						continue
					}
					kind, _ := res["kind"].(string)
					resID, _ := res["id"].(string)
					fmt.Printf("    - %s:%s\n", kind, resID)
				}
			}

			if profiles, ok := data["profiles"].(map[string]any); ok {
				if region, ok := profiles["region"].(map[string]any); ok {
					start, _ := region["start"].(float64)
					length, _ := region["length"].(float64)
					fmt.Printf("  Region: 0x%08x + %d bytes\n", uint32(start), uint32(length))
				}
				if out, ok := profiles["output_path"].(string); ok && out != "" {
					fmt.Printf("  Output: %s\n", out)
				}
			}

			if createdAt, ok := data["created_at"].(string); ok {
				fmt.Printf("  Created: %s\n", createdAt)
			}
			if completedAt, ok := data["completed_at"].(string); ok && completedAt != "" {
				fmt.Printf("  Completed: %s\n", completedAt)
			}

			return nil
		},
	}
}
