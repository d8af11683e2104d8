package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream job events from the server (SSE)",
		Long:  "Connect to the server's event stream and print job state changes as they happen. Interrupt to stop.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), "GET",
				client.BaseURL+"/api/v1/sse/jobs", nil)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}

			resp, err := client.HTTPClient.Do(req)
			if err != nil {
				return fmt.Errorf("connect event stream: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("event stream returned status %d", resp.StatusCode)
			}

			fmt.Println("Watching job events (Ctrl-C to stop)...")

			scanner := bufio.NewScanner(resp.Body)
			event := ""
			for scanner.Scan() {
				line := scanner.Text()
				switch {
				case strings.HasPrefix(line, "event: "):
					event = strings.TrimPrefix(line, "event: ")
				case strings.HasPrefix(line, "data: ") && event == "job":
					printJobEvent(strings.TrimPrefix(line, "data: "))
				}
			}
			return scanner.Err()
		},
	}
}

func printJobEvent(data string) {
	var ev struct {
		JobID  string `json:"job_id"`
		State  string `json:"state"`
		Detail string `json:"detail"`
		At     string `json:"at"`
	}
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return
	}
	if ev.Detail != "" {
		fmt.Printf("%s  %-36s  %-10s  %s\n", ev.At, ev.JobID, ev.State, ev.Detail)
	} else {
		fmt.Printf("%s  %-36s  %-10s\n", ev.At, ev.JobID, ev.State)
	}
}
