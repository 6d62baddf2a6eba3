package goble

import (
	"context"
	"strings"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/fpctl/internal/device"
)

// FlowerPowerNamePrefix is the local name every Flower Power advertises
const FlowerPowerNamePrefix = "Flower power"

// advertisement is the part of ble.Advertisement the transport reads
type advertisement interface {
	LocalName() string
	Addr() ble.Addr
	RSSI() int
	Services() []ble.UUID
}

// scanFunc runs one scan until ctx ends
type scanFunc func(ctx context.Context, onAdv func(advertisement)) error

// Transport discovers Flower Power sensors and hands out one handle per sensor
type Transport struct {
	logger  *logrus.Logger
	scan    scanFunc
	dial    dialFunc
	handles *hashmap.Map[string, *FlowerPower]
}

// NewTransport opens the platform BLE device
func NewTransport(logger *logrus.Logger) (*Transport, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}

	scan := func(ctx context.Context, onAdv func(advertisement)) error {
		return dev.Scan(ctx, true, func(a ble.Advertisement) { onAdv(a) })
	}
	dial := func(ctx context.Context, addr string) (gattClient, error) {
		client, err := dev.Dial(ctx, ble.NewAddr(addr))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return newTransport(scan, dial, logger), nil
}

func newTransport(scan scanFunc, dial dialFunc, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{
		logger:  logger,
		scan:    scan,
		dial:    dial,
		handles: hashmap.New[string, *FlowerPower](),
	}
}

// DiscoverAll scans until ctx ends, reporting every Flower Power advert.
// Repeated adverts of one sensor report the same handle.
func (t *Transport) DiscoverAll(ctx context.Context, onDevice func(device.Handle)) error {
	err := t.scan(ctx, func(adv advertisement) {
		if !IsFlowerPower(adv.LocalName(), adv.Services()) {
			return
		}
		onDevice(t.handleFor(adv))
	})
	if err == nil || isCancellation(err) {
		return nil
	}
	return NormalizeError(err)
}

// Handle returns a handle for a sensor address without scanning
func (t *Transport) Handle(addr string) device.Handle {
	key := device.NormalizeID(addr)
	h, _ := t.handles.GetOrInsert(key, newFlowerPower(addr, "", 0, t.dial, t.logger))
	return h
}

func (t *Transport) handleFor(adv advertisement) *FlowerPower {
	addr := adv.Addr().String()
	key := device.NormalizeID(addr)
	if h, ok := t.handles.Get(key); ok {
		h.observe(adv.LocalName(), adv.RSSI())
		return h
	}

	h, loaded := t.handles.GetOrInsert(key, newFlowerPower(addr, adv.LocalName(), adv.RSSI(), t.dial, t.logger))
	if loaded {
		h.observe(adv.LocalName(), adv.RSSI())
	} else {
		t.logger.WithFields(logrus.Fields{
			"device": addr,
			"name":   adv.LocalName(),
			"rssi":   adv.RSSI(),
		}).Debug("Flower Power discovered")
	}
	return h
}

// IsFlowerPower reports whether an advert comes from a Flower Power
func IsFlowerPower(name string, services []ble.UUID) bool {
	if strings.HasPrefix(strings.ToLower(name), strings.ToLower(FlowerPowerNamePrefix)) {
		return true
	}
	for _, u := range services {
		if device.NormalizeUUID(u.String()) == LiveServiceUUID {
			return true
		}
	}
	return false
}
