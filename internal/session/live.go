package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/fpctl/internal/device"
)

// LiveOptions configures a live window
type LiveOptions struct {
	// Delay is how long live mode stays enabled
	Delay time.Duration `default:"10s"`
}

// Reading is one live metric notification
type Reading struct {
	Metric device.Metric
	Value  float64
	At     time.Time
}

// String renders "soil moisture = 23.40%"
func (r Reading) String() string {
	switch unit := r.Metric.Unit(); unit {
	case "", "%", "°C":
		return fmt.Sprintf("%s = %.2f%s", r.Metric.Label(), r.Value, unit)
	default:
		return fmt.Sprintf("%s = %.2f %s", r.Metric.Label(), r.Value, unit)
	}
}

// liveReadings keeps the most recent readings; older ones are overwritten
type liveReadings struct {
	buf         mpmc.RichOverlappedRingBuffer[Reading]
	overwritten atomic.Int64
}

func newLiveReadings(size uint32) *liveReadings {
	return &liveReadings{buf: mpmc.NewOverlappedRingBuffer[Reading](size)}
}

func (l *liveReadings) push(r Reading) error {
	overwrites, err := l.buf.EnqueueM(r)
	if err != nil {
		return err
	}
	l.overwritten.Add(int64(overwrites))
	return nil
}

func (l *liveReadings) drain() ([]Reading, error) {
	var out []Reading
	for !l.buf.IsEmpty() {
		r, err := l.buf.Dequeue()
		if err != nil {
			return out, fmt.Errorf("live buffer dequeue: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Live subscribes to every live metric, enables live mode for the configured
// delay and disables it again. Each step starts only after the previous one
// succeeded; the first failure aborts the rest. Metric listeners are removed
// when Live returns.
func (s *Session) Live(ctx context.Context, opts *LiveOptions) error {
	h, err := s.requireHandle()
	if err != nil {
		return err
	}

	var o LiveOptions
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)

	removers := make([]func(), 0, len(device.LiveMetrics))
	defer func() {
		for _, remove := range removers {
			remove()
		}
	}()
	for _, metric := range device.LiveMetrics {
		removers = append(removers, h.OnMetric(metric, s.metricHandler(metric)))
	}

	s.Record(StatusLive, false)
	if err := h.EnableLiveMode(ctx); err != nil {
		return fmt.Errorf("enable live mode: %w", err)
	}

	wait := time.NewTimer(o.Delay)
	defer wait.Stop()
	select {
	case <-wait.C:
	case <-ctx.Done():
		// Leave the sensor out of live mode even when the caller gave up.
		if err := h.DisableLiveMode(context.WithoutCancel(ctx)); err != nil {
			s.logger.WithError(err).WithField("device", s.id).Warn("Failed to disable live mode after cancellation")
		}
		return ctx.Err()
	}

	s.Record(StatusEndLive, false)
	if err := h.DisableLiveMode(ctx); err != nil {
		return fmt.Errorf("disable live mode: %w", err)
	}
	return nil
}

func (s *Session) metricHandler(metric device.Metric) func(float64) {
	return func(value float64) {
		r := Reading{Metric: metric, Value: value, At: s.now()}
		s.logger.WithFields(logrus.Fields{
			"device": s.id,
			"metric": string(metric),
			"value":  value,
			"unit":   metric.Unit(),
		}).Info(r.String())

		if err := s.live.push(r); err != nil {
			s.logger.WithError(err).WithField("device", s.id).Debug("Dropping live reading")
		}
	}
}

// LiveReport drains the readings buffered since the last call, oldest first.
// Only the most recent readings are kept; the count of dropped ones is returned too.
func (s *Session) LiveReport() (readings []Reading, dropped int64, err error) {
	readings, err = s.live.drain()
	return readings, s.live.overwritten.Swap(0), err
}
