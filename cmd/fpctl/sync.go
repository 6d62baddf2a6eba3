package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/srg/fpctl/internal/device"
	"github.com/srg/fpctl/internal/session"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [identifier...]",
	Short: "Harvest samples from a fleet of sensors",
	Long: `Harvest history samples from every listed sensor, one after another.

Sensors come from the arguments or, when none are given, from the 'devices'
list of the config file. With --schedule (or 'schedule' in the config) the
harvest repeats on a cron schedule until interrupted.`,
	Example: `  fpctl sync a0:14:3d:08:b4:90 a0:14:3d:08:b4:91
  fpctl sync --schedule "*/30 * * * *"`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("schedule", "", "Cron expression to repeat the harvest (default from config)")
}

func runSync(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	ids := args
	if len(ids) == 0 {
		ids = a.cfg.Devices
	}
	if len(ids) == 0 {
		return ErrNoDevices
	}
	ids, err = device.ValidateIDs(ids...)
	if err != nil {
		return err
	}

	schedule, _ := cmd.Flags().GetString("schedule")
	if schedule == "" {
		schedule = a.cfg.Schedule
	}

	registry := session.NewRegistry(a.sessionOptions())
	for _, id := range ids {
		a.track(registry.GetOrCreate(id))
	}

	ctx, cancel := interruptible(cmd.Context(), a.out)
	defer cancel()

	if schedule == "" {
		return a.syncAll(ctx, registry)
	}
	return a.syncScheduled(ctx, registry, schedule)
}

// syncAll harvests every sensor once
func (a *app) syncAll(ctx context.Context, registry *session.Registry) error {
	return registry.All(ctx, func(ctx context.Context, s *session.Session) error {
		_, err := a.harvest(ctx, s, -1)
		return err
	})
}

// syncScheduled runs syncAll on every cron tick until ctx ends or a fatal
// error occurs. Ticks never overlap.
func (a *app) syncScheduled(ctx context.Context, registry *session.Registry, schedule string) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		a.logger.WithField("devices", registry.Len()).Info("Scheduled sync started")
		if err := a.syncAll(ctx, registry); err != nil {
			if session.IsFatal(err) {
				cancel(err)
				return
			}
			a.logger.WithError(err).Warn("Scheduled sync finished with errors")
			return
		}
		a.logger.Info("Scheduled sync finished")
	})
	if err != nil {
		return fmt.Errorf("invalid schedule '%s': %w", schedule, err)
	}

	a.console.printf("Syncing %d sensor(s) on schedule %q, press Ctrl+C to stop\n", registry.Len(), schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}
