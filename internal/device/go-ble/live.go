package goble

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/fpctl/internal/device"
)

// Live period values written to the live service
const (
	livePeriodOff byte = 0
	livePeriodOn  byte = 1
)

// EnableLiveMode subscribes every live characteristic and starts notifications
func (f *FlowerPower) EnableLiveMode(ctx context.Context) error {
	var subscribed []string
	for _, metric := range device.LiveMetrics {
		spec := metricSpecs[metric]
		if err := f.subscribe(spec.char, f.metricHandler(metric, spec)); err != nil {
			for _, char := range subscribed {
				f.unsubscribe(char)
			}
			return fmt.Errorf("live %s: %w", metric, err)
		}
		subscribed = append(subscribed, spec.char)
	}

	if err := f.write(ctx, charLivePeriod, []byte{livePeriodOn}, false); err != nil {
		for _, char := range subscribed {
			f.unsubscribe(char)
		}
		return err
	}

	f.logger.WithField("device", f.id).Debug("Live mode enabled")
	return nil
}

// DisableLiveMode stops notifications and unsubscribes the live characteristics
func (f *FlowerPower) DisableLiveMode(ctx context.Context) error {
	err := f.write(ctx, charLivePeriod, []byte{livePeriodOff}, false)
	for _, metric := range device.LiveMetrics {
		f.unsubscribe(metricSpecs[metric].char)
	}
	if err != nil {
		return err
	}
	f.logger.WithField("device", f.id).Debug("Live mode disabled")
	return nil
}

func (f *FlowerPower) metricHandler(metric device.Metric, spec metricSpec) func([]byte) {
	return func(data []byte) {
		v, err := spec.convert(data)
		if err != nil {
			f.logger.WithFields(logrus.Fields{
				"device": f.id,
				"metric": metric,
			}).WithError(err).Warn("Dropping malformed live value")
			return
		}
		f.metrics.Emit(metricEvent{metric: metric, value: v})
	}
}
