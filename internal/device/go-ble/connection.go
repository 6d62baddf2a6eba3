package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/fpctl/internal/device"
	"github.com/srg/fpctl/internal/groutine"
)

// gattClient is the part of ble.Client a Flower Power connection uses
type gattClient interface {
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	DiscoverProfile(force bool) (*ble.Profile, error)
	CancelConnection() error
}

// dialFunc opens a GATT client to the given address
type dialFunc func(ctx context.Context, addr string) (gattClient, error)

// peripheral tracks link state and lifecycle listeners of one sensor
type peripheral struct {
	mu         sync.Mutex
	state      device.ConnectivityState
	connect    device.Listeners[struct{}]
	disconnect device.Listeners[struct{}]
}

func (p *peripheral) State() device.ConnectivityState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *peripheral) setState(s device.ConnectivityState) (previous device.ConnectivityState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	previous, p.state = p.state, s
	return previous
}

func (p *peripheral) OnConnect(fn func()) func() {
	return p.connect.Add(func(struct{}) { fn() })
}

func (p *peripheral) OnDisconnect(fn func()) func() {
	return p.disconnect.Add(func(struct{}) { fn() })
}

func (p *peripheral) RemoveAllListeners() {
	p.connect.Clear()
	p.disconnect.Clear()
}

// ConnectAndSetup dials the sensor, discovers its GATT profile and indexes the
// characteristics. The connect event fires once the profile is ready.
func (f *FlowerPower) ConnectAndSetup(ctx context.Context) error {
	if prev := f.periph.setState(device.StateConnecting); prev == device.StateConnected {
		f.periph.setState(prev)
		return device.ErrAlreadyConnected
	}

	f.logger.WithFields(logrus.Fields{
		"device": f.id,
		"name":   f.Name(),
	}).Info("Connecting to Flower Power...")

	client, err := f.dial(ctx, f.id)
	if err != nil {
		f.periph.setState(device.StateDisconnected)
		return fmt.Errorf("failed to connect to %q: %w", f.id, NormalizeError(err))
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			f.logger.WithError(cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		f.periph.setState(device.StateDisconnected)
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	// DiscoverProfile ignores ctx.
	if err := ctx.Err(); err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			f.logger.WithError(cancelErr).Warn("Failed to cancel connection after the caller gave up")
		}
		f.periph.setState(device.StateDisconnected)
		return err
	}

	chars := make(map[string]*ble.Characteristic)
	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			chars[device.NormalizeUUID(c.UUID.String())] = c
		}
	}

	connCtx, cancel := context.WithCancel(context.Background())
	f.mu.Lock()
	f.client = client
	f.chars = chars
	f.cancel = cancel
	f.mu.Unlock()

	if _, ok := chars[charLivePeriod]; !ok {
		f.logger.WithField("device", f.id).Warn("Live service missing, is this a Flower Power?")
	}

	// CoreBluetooth reports link loss through the client's Disconnected channel.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(connCtx, "fp-link-monitor-"+device.ShortenID(f.id), func(ctx context.Context) {
			select {
			case <-dc.Disconnected():
				f.logger.WithField("device", f.id).Warn("Link lost")
				f.markDisconnected()
			case <-ctx.Done():
			}
		})
	}

	f.periph.setState(device.StateConnected)
	f.logger.WithFields(logrus.Fields{
		"device":          f.id,
		"services":        len(profile.Services),
		"characteristics": len(chars),
	}).Info("Flower Power connected")
	f.periph.connect.Emit(struct{}{})
	return nil
}

// Disconnect closes the link; the disconnect event fires once
func (f *FlowerPower) Disconnect(context.Context) error {
	f.mu.Lock()
	client := f.client
	f.mu.Unlock()

	if client == nil {
		return device.ErrNotConnected
	}

	f.periph.setState(device.StateDisconnecting)
	err := client.CancelConnection()
	f.markDisconnected()
	if err != nil {
		return NormalizeError(err)
	}
	return nil
}

// markDisconnected drops the client and fires the disconnect event on the first call
func (f *FlowerPower) markDisconnected() {
	f.mu.Lock()
	client, cancel := f.client, f.cancel
	f.client, f.cancel, f.chars = nil, nil, nil
	f.mu.Unlock()

	if client == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	f.periph.setState(device.StateDisconnected)
	f.logger.WithField("device", f.id).Info("Flower Power disconnected")
	f.periph.disconnect.Emit(struct{}{})
}

// characteristic returns the connected client and one characteristic by normalized UUID
func (f *FlowerPower) characteristic(uuid string) (gattClient, *ble.Characteristic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client == nil {
		return nil, nil, device.ErrNotConnected
	}
	c, ok := f.chars[uuid]
	if !ok {
		return nil, nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{uuid}}
	}
	return f.client, c, nil
}

func (f *FlowerPower) readRaw(ctx context.Context, uuid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, c, err := f.characteristic(uuid)
	if err != nil {
		return nil, err
	}
	data, err := client.ReadCharacteristic(c)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uuid, NormalizeError(err))
	}
	return data, nil
}

func (f *FlowerPower) write(ctx context.Context, uuid string, value []byte, noRsp bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, c, err := f.characteristic(uuid)
	if err != nil {
		return err
	}

	// Writes are serialized; the sensor drops interleaved requests.
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if err := client.WriteCharacteristic(c, value, noRsp); err != nil {
		return fmt.Errorf("write %s: %w", uuid, NormalizeError(err))
	}
	return nil
}

func (f *FlowerPower) subscribe(uuid string, h ble.NotificationHandler) error {
	client, c, err := f.characteristic(uuid)
	if err != nil {
		return err
	}
	if err := client.Subscribe(c, false, h); err != nil {
		return fmt.Errorf("subscribe %s: %w", uuid, NormalizeError(err))
	}
	return nil
}

// unsubscribe is best-effort; the link may already be gone
func (f *FlowerPower) unsubscribe(uuid string) {
	client, c, err := f.characteristic(uuid)
	if err != nil {
		return
	}
	if err := client.Unsubscribe(c, false); err != nil {
		f.logger.WithError(NormalizeError(err)).WithField("char_uuid", uuid).Debug("Unsubscribe failed")
	}
}

// Read performs one named read and decodes it
func (f *FlowerPower) Read(ctx context.Context, op device.ReadOperation) (any, error) {
	spec, ok := readSpecs[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrUnknownOperation, op)
	}
	data, err := f.readRaw(ctx, spec.char)
	if err != nil {
		return nil, err
	}
	v, err := decodeRead(spec.kind, data, f.now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// errTransferAborted is returned when the sensor reports a failed history upload
var errTransferAborted = errors.New("history transfer aborted by sensor")

// defaultWriteDelay paces firmware block writes
const defaultWriteDelay = 10 * time.Millisecond
