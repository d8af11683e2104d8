package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var name string
	var follow bool

	cmd := &cobra.Command{
		Use:   "submit <profile_id>",
		Short: "Submit a dump job from a job profile",
		Long:  "Materialize the given job profile and enqueue a dump job on the server.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID := args[0]

			req := map[string]any{"profile_id": profileID}
			if name != "" {
				req["name"] = name
			}
			resp, err := client.Post("/api/v1/jobs/", req)
			if err != nil {
				return fmt.Errorf("submit job: %w", err)
			}

			var job map[string]any
			if err := json.Unmarshal(resp.Data, &job); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			id, ok := job["id"].(string)
			if !ok {
				return fmt.Errorf("job response missing 'id' field")
			}
			state, _ := job["state"].(string)
			fmt.Printf("Job created: %s (state: %s)\n", id, state)

			if !follow {
				return nil
			}
			return followJob(id)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Job name (defaults to the profile name)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Poll until the job reaches a terminal state")
	return cmd
}

// followJob polls the job until it is terminal, printing state changes.
func followJob(id string) error {
	lastDetail := ""
	for {
		resp, err := client.Get("/api/v1/jobs/" + id)
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		var job map[string]any
		if err := json.Unmarshal(resp.Data, &job); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		state, _ := job["state"].(string)
		detail, _ := job["detail"].(string)

		if detail != lastDetail {
			if detail != "" {
				fmt.Printf("  %s: %s\n", state, detail)
			}
			lastDetail = detail
		}

		switch state {
		case "COMPLETED":
			fmt.Printf("Job %s completed\n", id)
			return nil
		case "FAILED":
			return fmt.Errorf("job %s failed: %s", id, detail)
		case "CANCELED":
			return fmt.Errorf("job %s was canceled", id)
		}
		time.Sleep(time.Second)
	}
}
