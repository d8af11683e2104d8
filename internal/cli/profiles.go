package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newProfilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage serial, socat, power, and job profiles",
	}
	cmd.AddCommand(
		newProfilesListCmd(),
		newProfilesValidateCmd(),
		newProfilesDuplicateCmd(),
		newProfilesDeleteCmd(),
	)
	return cmd
}

// profileKindPath maps a kind name to its API path segment.
func profileKindPath(kind string) (string, error) {
	switch kind {
	case "serial", "socat", "power", "jobs":
		return "/api/v1/profiles/" + kind + "/", nil
	default:
		return "", fmt.Errorf("unknown profile kind %q (serial, socat, power, jobs)", kind)
	}
}

func newProfilesListCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles of one kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := profileKindPath(kind)
			if err != nil {
				return err
			}

			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list profiles: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No profiles found.")
				return nil
			}

			fmt.Printf("%-24s  %-30s  %s\n", "ID", "NAME", "FLAGS")
			fmt.Printf("%-24s  %-30s  %s\n", "----", "----", "-----")
			for _, p := range data {
				id, _ := p["id"].(string)
				name, _ := p["name"].(string)
				flags := ""
				if d, _ := p["is_default"].(bool); d {
					flags += "default "
				}
				if ro, _ := p["read_only"].(bool); ro {
					flags += "read-only "
				}
				if tpl, _ := p["is_template"].(bool); tpl {
					flags += "template"
				}
				fmt.Printf("%-24s  %-30s  %s\n", id, name, flags)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "jobs", "Profile kind (serial, socat, power, jobs)")
	return cmd
}

func newProfilesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <job_profile_id>",
		Short: "Validate a job profile without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			if _, err := client.Post("/api/v1/profiles/jobs/"+id+"/validate", nil); err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			fmt.Printf("Profile %s is valid\n", id)

			// Also report whether its resources are free right now.
			if _, err := client.Get("/api/v1/profiles/jobs/" + id + "/can-execute"); err != nil {
				fmt.Printf("Not executable now: %v\n", err)
				return nil
			}
			fmt.Println("Resources are free; the profile is executable now")
			return nil
		},
	}
}

func newProfilesDuplicateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate <template_id> <name>",
		Short: "Copy a template into an editable job profile",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/profiles/jobs/"+args[0]+"/duplicate",
				map[string]string{"name": args[1]})
			if err != nil {
				return fmt.Errorf("duplicate: %w", err)
			}

			var p map[string]any
			if err := json.Unmarshal(resp.Data, &p); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			id, _ := p["id"].(string)
			fmt.Printf("Profile created: %s\n", id)
			return nil
		},
	}
}

func newProfilesDeleteCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := profileKindPath(kind)
			if err != nil {
				return err
			}

			if _, err := client.Delete(path + args[0]); err != nil {
				return fmt.Errorf("delete profile: %w", err)
			}
			fmt.Printf("Profile %s deleted\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "jobs", "Profile kind (serial, socat, power, jobs)")
	return cmd
}
