package main

import (
	"context"
	"time"
)

func (s *CommandTestSuite) TestSyncCmd_Arguments() {
	// GOAL: Verify sync harvests every listed sensor once
	//
	// TEST SCENARIO: sync with two identifiers → both sensors transfer history from their first entry

	out, _, err := s.ExecuteCommand("sync", TestSensorAddress1, TestSensorAddress2)

	s.Require().NoError(err, "sync MUST succeed")
	s.Assert().Equal([]int{81}, s.sensor1.HistoryStarts())
	s.Assert().Equal([]int{81}, s.sensor2.HistoryStarts())
	s.Assert().Contains(out, "a0143d08b490: Getting samples")
	s.Assert().Contains(out, "a0143d08b491: Getting samples")
}

func (s *CommandTestSuite) TestSyncCmd_ConfigDevices() {
	s.WriteConfig("devices:\n  - a0:14:3d:08:b4:91\n")

	_, _, err := s.ExecuteCommand("sync")

	s.Require().NoError(err)
	s.Assert().Empty(s.sensor1.HistoryStarts(), "unlisted sensor MUST NOT be harvested")
	s.Assert().Equal([]int{81}, s.sensor2.HistoryStarts())
}

func (s *CommandTestSuite) TestSyncCmd_NoDevices() {
	_, _, err := s.ExecuteCommand("sync")

	s.Require().ErrorIs(err, ErrNoDevices)
}

func (s *CommandTestSuite) TestSyncCmd_ContinuesAfterFailure() {
	// GOAL: Verify one missing sensor does not stop the fleet
	//
	// TEST SCENARIO: sync absent + present sensor → present one harvested → joined error reports the miss

	_, _, err := s.ExecuteCommand("sync", "a0:14:3d:08:b4:99", TestSensorAddress2)

	s.Require().Error(err)
	s.Assert().ErrorContains(err, "not found")
	s.Assert().Equal([]int{81}, s.sensor2.HistoryStarts(), "remaining sensors MUST still be harvested")
}

func (s *CommandTestSuite) TestSyncCmd_Schedule() {
	// GOAL: Verify --schedule repeats the harvest until cancelled
	//
	// TEST SCENARIO: Every-second schedule → first tick harvests → cancel → command returns cleanly

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		deadline := time.After(3 * time.Second)
		for len(s.sensor1.HistoryStarts()) == 0 {
			select {
			case <-deadline:
				cancel()
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
		cancel()
	}()

	out, _, err := s.ExecuteCommandContext(ctx, "sync", TestSensorAddress1, "--schedule", "@every 1s")

	s.Require().NoError(err, "cancelling a scheduled sync MUST NOT be an error")
	s.Assert().Contains(out, `Syncing 1 sensor(s) on schedule "@every 1s"`)
	s.Assert().Equal([]int{81}, s.sensor1.HistoryStarts(), "first tick MUST harvest the sensor")
}

func (s *CommandTestSuite) TestSyncCmd_InvalidSchedule() {
	_, _, err := s.ExecuteCommand("sync", TestSensorAddress1, "--schedule", "whenever")

	s.Require().Error(err)
	s.Assert().ErrorContains(err, "invalid schedule 'whenever'")
}
