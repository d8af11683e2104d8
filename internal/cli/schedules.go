package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSchedulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Manage recurring dump schedules",
	}
	cmd.AddCommand(
		newSchedulesListCmd(),
		newSchedulesCreateCmd(),
		newSchedulesDeleteCmd(),
	)
	return cmd
}

func newSchedulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/schedules/")
			if err != nil {
				return fmt.Errorf("list schedules: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No schedules found.")
				return nil
			}

			fmt.Printf("%-36s  %-20s  %-16s  %-8s  %s\n", "ID", "NAME", "CRON", "ENABLED", "NEXT DUE")
			fmt.Printf("%-36s  %-20s  %-16s  %-8s  %s\n", "----", "----", "----", "-------", "--------")
			for _, sc := range data {
				id, _ := sc["id"].(string)
				name, _ := sc["name"].(string)
				cron, _ := sc["cron_expr"].(string)
				enabled, _ := sc["enabled"].(bool)
				nextDue, _ := sc["next_due"].(string)
				fmt.Printf("%-36s  %-20s  %-16s  %-8t  %s\n", id, name, cron, enabled, nextDue)
			}
			return nil
		},
	}
}

func newSchedulesCreateCmd() *cobra.Command {
	var profileID string
	var cronExpr string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a recurring schedule for a job profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/schedules/", map[string]any{
				"name":           args[0],
				"job_profile_id": profileID,
				"cron_expr":      cronExpr,
				"enabled":        true,
			})
			if err != nil {
				return fmt.Errorf("create schedule: %w", err)
			}

			var sc map[string]any
			if err := json.Unmarshal(resp.Data, &sc); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			id, _ := sc["id"].(string)
			nextDue, _ := sc["next_due"].(string)
			fmt.Printf("Schedule created: %s (next due: %s)\n", id, nextDue)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileID, "profile", "p", "", "Job profile ID to fire (required)")
	cmd.Flags().StringVarP(&cronExpr, "cron", "c", "", "Cron expression, e.g. \"0 3 * * *\" (required)")
	cmd.MarkFlagRequired("profile")
	cmd.MarkFlagRequired("cron")
	return cmd
}

func newSchedulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Delete("/api/v1/schedules/" + args[0]); err != nil {
				return fmt.Errorf("delete schedule: %w", err)
			}
			fmt.Printf("Schedule %s deleted\n", args[0])
			return nil
		},
	}
}
