package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update <identifier> <firmware-file>",
	Short: "Push a firmware image to a sensor",
	Long: `Connect to a Flower Power and write a firmware image over the air.

The sensor reboots into the new image once the transfer completes.`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) error {
	id, err := sensorID(args[0])
	if err != nil {
		return err
	}
	image, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read firmware image: %w", err)
	}
	if len(image) == 0 {
		return fmt.Errorf("firmware image %s is empty", args[1])
	}

	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := interruptible(cmd.Context(), a.out)
	defer cancel()

	s := a.newSession(id)
	err = a.withSession(ctx, s, func(ctx context.Context) error {
		return s.Update(ctx, image)
	})
	if err != nil {
		return err
	}
	a.console.printf("%s: firmware image written (%d bytes)\n", s.Identifier(), len(image))
	return nil
}
