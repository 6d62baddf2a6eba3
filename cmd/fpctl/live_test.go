package main

import (
	"context"
	"errors"
	"time"

	"github.com/srg/fpctl/internal/device"
	"github.com/srg/fpctl/internal/session"
)

func (s *CommandTestSuite) TestLiveCmd() {
	// GOAL: Verify live enables live mode for the delay and prints the readings
	//
	// TEST SCENARIO: live --delay 200ms → a sunlight notification arrives → reading printed → live mode disabled

	go func() {
		deadline := time.After(time.Second)
		for !s.sensor1.Called("EnableLiveMode") {
			select {
			case <-deadline:
				return
			case <-time.After(time.Millisecond):
			}
		}
		s.sensor1.EmitMetric(device.MetricSunlight, 10.95)
	}()

	out, _, err := s.ExecuteCommand("live", TestSensorAddress1, "--delay", "200ms")

	s.Require().NoError(err, "live MUST succeed")
	s.Assert().Contains(out, "a0143d08b490: Live\n")
	s.Assert().Contains(out, "a0143d08b490: End live\n")
	s.Assert().Contains(out, session.Reading{Metric: device.MetricSunlight, Value: 10.95}.String(), "reading MUST be printed")
	s.Assert().True(s.sensor1.Called("DisableLiveMode"), "live mode MUST be disabled")
	s.Assert().True(s.sensor1.Called("Disconnect"), "sensor MUST be disconnected")
	s.Assert().Zero(s.sensor1.MetricListenerCount(), "metric listeners MUST be removed")
}

func (s *CommandTestSuite) TestLiveCmd_DefaultDelayFromConfig() {
	start := time.Now()

	_, _, err := s.ExecuteCommand("live", TestSensorAddress1)

	s.Require().NoError(err)
	s.Assert().GreaterOrEqual(time.Since(start), 100*time.Millisecond, "config live.delay MUST apply without --delay")
}

func (s *CommandTestSuite) TestLiveCmd_EnableFails() {
	s.sensor1.WithLiveErrors(errors.New("write refused"), nil)

	_, _, err := s.ExecuteCommand("live", TestSensorAddress1)

	s.Require().Error(err)
	s.Assert().ErrorContains(err, "enable live mode")
	s.Assert().True(s.sensor1.Called("Disconnect"), "sensor MUST be disconnected after a failure")
}

func (s *CommandTestSuite) TestLiveCmd_Cancelled() {
	// GOAL: Verify cancelling live still leaves the sensor out of live mode
	//
	// TEST SCENARIO: Context cancelled during a long live window → context.Canceled → DisableLiveMode and Disconnect called

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for !s.sensor1.Called("EnableLiveMode") {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	_, _, err := s.ExecuteCommandContext(ctx, "live", TestSensorAddress1, "--delay", "1m")

	s.Require().ErrorIs(err, context.Canceled)
	s.Assert().True(s.sensor1.Called("DisableLiveMode"))
	s.Assert().True(s.sensor1.Called("Disconnect"))
}
