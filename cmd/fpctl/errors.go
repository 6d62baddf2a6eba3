package main

import (
	"errors"
	"fmt"

	"github.com/srg/fpctl/internal/device"
	"github.com/srg/fpctl/internal/session"
	"github.com/srg/fpctl/internal/store"
)

// Command-level errors
var (
	// ErrNoDevices indicates sync had neither arguments nor configured devices
	ErrNoDevices = errors.New("no devices to sync")
)

// FormatUserError renders err as a short message for the terminal
func FormatUserError(err error) string {
	var fatal *session.FatalError
	var readErr *session.ReadError
	var notFound *device.NotFoundError

	switch {
	case errors.As(err, &fatal):
		return fmt.Sprintf("connection to %s failed, giving up", fatal.Identifier)
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; turn it on and retry"
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("Bluetooth is not supported here: %v", err)
	case errors.Is(err, session.ErrNotFound):
		return "sensor not found; check it is nearby and awake"
	case errors.Is(err, session.ErrBusy):
		return "sensor is busy with another connection"
	case errors.Is(err, session.ErrUnavailable):
		return fmt.Sprintf("sensor is not available: %v", err)
	case errors.As(err, &readErr):
		return fmt.Sprintf("failed to read %s from the sensor: %v", readErr.Attribute, readErr.Err)
	case errors.As(err, &notFound):
		return fmt.Sprintf("not a Flower Power: %v", notFound)
	case errors.Is(err, device.ErrNotConnected):
		return "connection lost"
	case errors.Is(err, ErrNoDevices):
		return "no devices to sync: pass identifiers or set 'devices' in the config"
	case errors.Is(err, store.ErrNoSamples):
		return "no samples archived for this sensor yet"
	default:
		return err.Error()
	}
}
