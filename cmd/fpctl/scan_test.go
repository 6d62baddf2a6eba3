package main

import (
	"bytes"
	"errors"
	"time"

	"github.com/srg/fpctl/internal/testutils"
	"github.com/srg/fpctl/scanner"
)

func (s *CommandTestSuite) TestScanCmd_Help() {
	// GOAL: Verify scan command displays help text with all flags
	//
	// TEST SCENARIO: Execute scan --help → returns success → output contains description and flag documentation

	out, _, err := s.ExecuteCommand("scan", "--help")

	s.Require().NoError(err, "help command MUST succeed")
	s.Assert().Contains(out, "Scan for and display Flower Power sensors", "help MUST contain command description")
	for _, flag := range []string{"--duration", "--format", "--allow", "--block", "--min-rssi"} {
		s.Assert().Contains(out, flag, "help MUST document %s", flag)
	}
}

func (s *CommandTestSuite) TestScanCmd_InvalidFormat() {
	// GOAL: Verify scan command rejects invalid format values
	//
	// TEST SCENARIO: Execute scan with invalid format → returns error → error message lists valid formats

	_, _, err := s.ExecuteCommand("scan", "--format=invalid")

	s.Require().Error(err, "invalid format MUST return error")
	s.Assert().Contains(err.Error(), "invalid format 'invalid': must be one of [table json]")
	s.Assert().Zero(s.scanner.Scans(), "scan MUST NOT start with an invalid format")
}

func (s *CommandTestSuite) TestScanCmd_Table() {
	// GOAL: Verify scan prints a table of sensors, strongest first
	//
	// TEST SCENARIO: Two sensors advertise → scan for 50ms → table lists both with name, RSSI and advert count

	out, _, err := s.ExecuteCommand("scan", "--duration", "50ms")

	s.Require().NoError(err, "scan MUST succeed")
	testutils.NewTextAsserter(s.T()).Assert(out, `
IDENTIFIER         NAME                   RSSI     ADVERTS  LAST SEEN
A0:14:3D:08:B4:90  Flower power A0:14:3D  -48 dBm  1        0s ago
A0:14:3D:08:B4:91  Flower power A0:14:3D  -71 dBm  1        0s ago
`)
}

func (s *CommandTestSuite) TestScanCmd_JSON() {
	// GOAL: Verify scan emits machine readable entries
	//
	// TEST SCENARIO: Scan with --format json and --min-rssi -60 → only the strong sensor is listed

	out, _, err := s.ExecuteCommand("scan", "--duration", "50ms", "--format", "json", "--min-rssi", "-60")

	s.Require().NoError(err, "scan MUST succeed")
	testutils.NewJSONAsserter(s.T()).Assert(out, `[
		{
			"id": "A0:14:3D:08:B4:90",
			"name": "Flower power A0:14:3D",
			"rssi": -48,
			"adverts": 1,
			"first_seen": "<<PRESENCE>>",
			"last_seen": "<<PRESENCE>>"
		}
	]`)
}

func (s *CommandTestSuite) TestScanCmd_BlockList() {
	// GOAL: Verify --block accepts any identifier spelling
	//
	// TEST SCENARIO: Block the first sensor in compact lowercase form → only the second one is listed

	out, _, err := s.ExecuteCommand("scan", "--duration", "50ms", "--format", "json", "--block", "a0143d08b490")

	s.Require().NoError(err)
	s.Assert().NotContains(out, TestSensorAddress1, "blocked sensor MUST NOT be listed")
	s.Assert().Contains(out, TestSensorAddress2)
}

func (s *CommandTestSuite) TestScanCmd_NoSensors() {
	s.scanner.Plan = nil

	out, _, err := s.ExecuteCommand("scan", "--duration", "20ms")

	s.Require().NoError(err)
	s.Assert().Equal("No Flower Power sensors found.\n", out)
}

func (s *CommandTestSuite) TestScanCmd_TransportFailure() {
	// GOAL: Verify a failing transport surfaces as a scan error
	//
	// TEST SCENARIO: Scanner fails → scan returns error wrapping the cause

	s.scanner.Err = errors.New("adapter gone")

	_, _, err := s.ExecuteCommand("scan", "--duration", "20ms")

	s.Require().Error(err, "scan MUST fail when the transport fails")
	s.Assert().ErrorContains(err, "adapter gone")
}

func (s *CommandTestSuite) TestDisplayDevicesTable() {
	now := time.Date(2016, 4, 1, 8, 0, 0, 0, time.UTC)
	entries := []scanner.DeviceEntry{
		{ID: TestSensorAddress1, Name: "Flower power B490", RSSI: -52, Adverts: 12, LastSeen: now.Add(-3 * time.Second)},
	}
	var buf bytes.Buffer

	s.Require().NoError(displayDevicesTable(&buf, entries, now))

	testutils.NewTextAsserter(s.T()).Assert(buf.String(), `
IDENTIFIER         NAME               RSSI     ADVERTS  LAST SEEN
A0:14:3D:08:B4:90  Flower power B490  -52 dBm  12       3s ago
`)
}
