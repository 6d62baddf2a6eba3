package main

import (
	"github.com/srg/fpctl/internal/device"
	"github.com/srg/fpctl/internal/testutils"
)

func (s *CommandTestSuite) TestSamplesCmd_ArchiveAndResume() {
	// GOAL: Verify samples harvests the history once and resumes from the archive afterwards
	//
	// TEST SCENARIO: First run fetches entries 81..100 → archive saved → second run starts at 101 → "No update required"

	text := testutils.NewTextAsserter(s.T(), testutils.WithIgnoreTimestamps(true))

	out, _, err := s.ExecuteCommand("samples", TestSensorAddress1)

	s.Require().NoError(err, "first harvest MUST succeed")
	text.Assert(out, `
[<<TIME>>]: a0143d08b490: Searching
[<<TIME>>]: a0143d08b490: Found
[<<TIME>>]: a0143d08b490: Connection
[<<TIME>>]: a0143d08b490: Connected
[<<TIME>>]: a0143d08b490: Getting samples
[<<TIME>>]: a0143d08b490: Disconnected
a0143d08b490: fetched entries 81..100 (240 bytes), firmware 2016-03-14_hawaii-2.0.3_hw-1.1, hardware 1.1
`)
	s.Assert().Equal([]int{81}, s.sensor1.HistoryStarts(), "empty archive MUST start at the first stored entry")

	out, _, err = s.ExecuteCommand("samples", "a0-14-3d-08-b4-90")

	s.Require().NoError(err, "resumed harvest MUST succeed")
	text.Assert(out, `
[<<TIME>>]: a0143d08b490: Searching
[<<TIME>>]: a0143d08b490: Found
[<<TIME>>]: a0143d08b490: Connection
[<<TIME>>]: a0143d08b490: Connected
[<<TIME>>]: a0143d08b490: Getting samples
[<<TIME>>]: a0143d08b490: No update required
[<<TIME>>]: a0143d08b490: Disconnected
a0143d08b490: up to date at entry 100
`)
	s.Assert().Equal([]int{81}, s.sensor1.HistoryStarts(), "up to date sensor MUST NOT transfer history again")
}

func (s *CommandTestSuite) TestSamplesCmd_ExplicitIndexJSON() {
	// GOAL: Verify --index overrides the archive and --format json reports the batch
	//
	// TEST SCENARIO: samples --index 95 --format json → transfer starts at 95 → JSON carries indexes and values

	out, _, err := s.ExecuteCommand("samples", TestSensorAddress1, "--index", "95", "--format", "json")

	s.Require().NoError(err)
	s.Assert().Equal([]int{95}, s.sensor1.HistoryStarts())

	// status lines precede the JSON document
	doc := out[indexOfJSON(out):]
	testutils.NewJSONAsserter(s.T()).Assert(doc, `{
		"identifier": "a0143d08b490",
		"outcome": "fetched",
		"start_index": 95,
		"first_entry_index": 81,
		"last_entry_index": 100,
		"bytes": 240,
		"values": {
			"firmware_version": "2016-03-14_hawaii-2.0.3_hw-1.1",
			"hardware_version": "1.1",
			"history_nb_entries": 20,
			"history_last_entry_index": 100
		}
	}`)
}

func (s *CommandTestSuite) TestSamplesCmd_Errors() {
	tests := []struct {
		name    string
		args    []string
		setup   func()
		wantErr string
	}{
		{
			name:    "malformed identifier",
			args:    []string{"samples", "not-a-sensor"},
			wantErr: "invalid",
		},
		{
			name:    "invalid format",
			args:    []string{"samples", TestSensorAddress1, "--format", "xml"},
			wantErr: "invalid format 'xml': must be one of [text json]",
		},
		{
			name:    "sensor out of range",
			args:    []string{"samples", "a0:14:3d:08:b4:99"},
			wantErr: "not found",
		},
		{
			name: "history transfer fails",
			args: []string{"samples", TestSensorAddress1},
			setup: func() {
				s.sensor1.WithHistory(nil, device.ErrMalformedValue)
			},
			wantErr: "get history from 81",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			if tt.setup != nil {
				tt.setup()
			}

			_, _, err := s.ExecuteCommand(tt.args...)

			s.Require().Error(err)
			s.Assert().ErrorContains(err, tt.wantErr)
		})
	}
}

// indexOfJSON returns the offset of the first line opening a JSON object
func indexOfJSON(out string) int {
	for i := 0; i < len(out); i++ {
		if out[i] == '{' && (i == 0 || out[i-1] == '\n') {
			return i
		}
	}
	return len(out)
}
