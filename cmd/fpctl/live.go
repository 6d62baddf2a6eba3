package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/fpctl/internal/session"
)

// liveCmd represents the live command
var liveCmd = &cobra.Command{
	Use:   "live <identifier>",
	Short: "Stream live measurements from a sensor",
	Long: `Connect to a Flower Power, enable live mode and print every measurement
for --delay, then disable live mode and disconnect. Ctrl+C ends early.`,
	Args: cobra.ExactArgs(1),
	RunE: runLive,
}

func init() {
	liveCmd.Flags().DurationP("delay", "d", 0, "Live duration (default from config, 10s)")
}

func runLive(cmd *cobra.Command, args []string) error {
	id, err := sensorID(args[0])
	if err != nil {
		return err
	}
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	delay, _ := cmd.Flags().GetDuration("delay")
	if delay <= 0 {
		delay = a.cfg.Live.Delay
	}

	ctx, cancel := interruptible(cmd.Context(), a.out)
	defer cancel()

	s := a.newSession(id)
	err = a.withSession(ctx, s, func(ctx context.Context) error {
		return s.Live(ctx, &session.LiveOptions{Delay: delay})
	})

	readings, dropped, reportErr := s.LiveReport()
	if reportErr != nil {
		a.logger.WithError(reportErr).Warn("Failed to collect live readings")
	}
	for _, r := range readings {
		a.console.printf("%s  %s\n", r.At.Format(time.TimeOnly), r)
	}
	if dropped > 0 {
		a.console.printf("(%d older readings dropped)\n", dropped)
	}
	return err
}
