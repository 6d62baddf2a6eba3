package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srg/fpctl/internal/session"
)

// logCmd represents the log command
var logCmd = &cobra.Command{
	Use:   "log <identifier>",
	Short: "Show the persisted process log of a sensor",
	Long: `Print the persisted status changes of a sensor, newest first.

Only statuses worth keeping are persisted: search misses, connection
failures, unavailable sensors and "No update required".`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

func init() {
	logCmd.Flags().IntP("limit", "n", 20, "Maximum number of records (0 for all)")
	logCmd.Flags().StringP("format", "f", "text", "Output format (text, json)")
}

func runLog(cmd *cobra.Command, args []string) error {
	id, err := sensorID(args[0])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [text json]", format)
	}
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	records, err := a.store.History(cmd.Context(), id, limit)
	if err != nil {
		return fmt.Errorf("failed to read process log: %w", err)
	}

	if format == "json" {
		return writeJSON(a.out, records)
	}
	if len(records) == 0 {
		a.console.printf("No process records for %s.\n", id)
		return nil
	}
	for _, r := range records {
		a.console.observe(session.Snapshot{Identifier: r.Identifier, Status: r.Status, Date: r.Timestamp})
	}
	return nil
}
