package cli

import (
	"log/slog"
	"os"

	"github.com/me/s7dump/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking S7DUMP_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("S7DUMP_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the s7dump CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "s7dump",
		Short: "s7dump - firmware memory dump orchestration",
		Long:  "s7dump submits, monitors, and manages firmware memory dump jobs on an s7dump server.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "s7dump server URL (or S7DUMP_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newListCmd(),
		newCancelCmd(),
		newProfilesCmd(),
		newSchedulesCmd(),
		newResourcesCmd(),
		newWatchCmd(),
	)

	return root
}
