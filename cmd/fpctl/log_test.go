package main

import (
	"github.com/srg/fpctl/internal/testutils"
)

func (s *CommandTestSuite) TestLogCmd() {
	// GOAL: Verify log shows only persisted statuses, matching any identifier spelling
	//
	// TEST SCENARIO: Harvest twice → second run records "No update required" → log lists it; JSON carries the record fields

	_, _, err := s.ExecuteCommand("samples", TestSensorAddress1)
	s.Require().NoError(err)
	_, _, err = s.ExecuteCommand("samples", TestSensorAddress1)
	s.Require().NoError(err)

	out, _, err := s.ExecuteCommand("log", "A0-14-3D-08-B4-90")

	s.Require().NoError(err, "log MUST succeed")
	testutils.NewTextAsserter(s.T(), testutils.WithIgnoreTimestamps(true)).Assert(out, `
[<<TIME>>]: a0143d08b490: No update required
`)

	out, _, err = s.ExecuteCommand("log", TestSensorAddress1, "--format", "json")

	s.Require().NoError(err)
	testutils.NewJSONAsserter(s.T()).Assert(out, `[
		{
			"id": "<<PRESENCE>>",
			"uuid": "a0143d08b490",
			"proc": "No update required",
			"date": "<<PRESENCE>>"
		}
	]`)
}

func (s *CommandTestSuite) TestLogCmd_Empty() {
	out, _, err := s.ExecuteCommand("log", TestSensorAddress2)

	s.Require().NoError(err)
	s.Assert().Equal("No process records for a0143d08b491.\n", out)
}

func (s *CommandTestSuite) TestLogCmd_Limit() {
	// GOAL: Verify --limit keeps the newest records
	//
	// TEST SCENARIO: Two failed searches persisted → log -n 1 → one line

	_, _, err := s.ExecuteCommand("samples", "a0:14:3d:08:b4:99")
	s.Require().Error(err)
	_, _, err = s.ExecuteCommand("samples", "a0:14:3d:08:b4:99")
	s.Require().Error(err)

	out, _, err := s.ExecuteCommand("log", "a0:14:3d:08:b4:99", "-n", "1")

	s.Require().NoError(err)
	testutils.NewTextAsserter(s.T(), testutils.WithIgnoreTimestamps(true)).Assert(out, `
[<<TIME>>]: a0143d08b499: Not found
`)
}
