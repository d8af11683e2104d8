package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newResourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "Show resources held by running jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/resources")
			if err != nil {
				return fmt.Errorf("list resources: %w", err)
			}

			var data struct {
				Held []struct {
					Key string `json:"key"`
				} `json:"held"`
				Count int `json:"count"`
			}
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if data.Count == 0 {
				fmt.Println("No resources held; all hardware is idle.")
				return nil
			}
			for _, h := range data.Held {
				fmt.Println(h.Key)
			}
			return nil
		},
	}
}
