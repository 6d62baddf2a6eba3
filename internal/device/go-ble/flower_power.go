package goble

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/fpctl/internal/device"
)

// FlowerPower is a device.Handle backed by a go-ble GATT client
type FlowerPower struct {
	id     string
	name   atomic.Value
	rssi   atomic.Int64
	logger *logrus.Logger
	dial   dialFunc
	now    func() time.Time
	periph *peripheral

	// block write pacing for firmware updates
	writeDelay time.Duration

	mu      sync.Mutex
	writeMu sync.Mutex
	client  gattClient
	chars   map[string]*ble.Characteristic
	cancel  context.CancelFunc

	metrics device.Listeners[metricEvent]
}

type metricEvent struct {
	metric device.Metric
	value  float64
}

func newFlowerPower(id, name string, rssi int, dial dialFunc, logger *logrus.Logger) *FlowerPower {
	f := &FlowerPower{
		id:         id,
		logger:     logger,
		dial:       dial,
		now:        time.Now,
		periph:     &peripheral{state: device.StateDisconnected},
		writeDelay: defaultWriteDelay,
	}
	f.name.Store(name)
	f.rssi.Store(int64(rssi))
	return f
}

func (f *FlowerPower) ID() string { return f.id }

func (f *FlowerPower) Name() string { return f.name.Load().(string) }

func (f *FlowerPower) RSSI() int { return int(f.rssi.Load()) }

func (f *FlowerPower) Peripheral() device.Peripheral { return f.periph }

// observe refreshes advertisement data from a repeated advert
func (f *FlowerPower) observe(name string, rssi int) {
	if name != "" {
		f.name.Store(name)
	}
	f.rssi.Store(int64(rssi))
}

// OnMetric registers fn for decoded values of one live metric
func (f *FlowerPower) OnMetric(metric device.Metric, fn func(float64)) func() {
	return f.metrics.Add(func(e metricEvent) {
		if e.metric == metric {
			fn(e.value)
		}
	})
}

// RemoveAllListeners drops every metric listener
func (f *FlowerPower) RemoveAllListeners() {
	f.metrics.Clear()
}
