package main

import (
	"errors"
	"os"
	"path/filepath"
)

func (s *CommandTestSuite) writeImage(data []byte) string {
	path := filepath.Join(s.dir, "fw.bin")
	s.Require().NoError(os.WriteFile(path, data, 0o600))
	return path
}

func (s *CommandTestSuite) TestUpdateCmd() {
	// GOAL: Verify update pushes the file to the sensor
	//
	// TEST SCENARIO: 64-byte image → update → handle receives the exact image → success line printed

	image := make([]byte, 64)
	for i := range image {
		image[i] = byte(i)
	}

	out, _, err := s.ExecuteCommand("update", TestSensorAddress1, s.writeImage(image))

	s.Require().NoError(err, "update MUST succeed")
	s.Assert().Equal(image, s.sensor1.Firmware(), "sensor MUST receive the image unchanged")
	s.Assert().Contains(out, "a0143d08b490: Update\n")
	s.Assert().Contains(out, "a0143d08b490: firmware image written (64 bytes)\n")
}

func (s *CommandTestSuite) TestUpdateCmd_Errors() {
	tests := []struct {
		name    string
		args    func() []string
		setup   func()
		wantErr string
	}{
		{
			name:    "missing file",
			args:    func() []string { return []string{"update", TestSensorAddress1, filepath.Join(s.dir, "absent.bin")} },
			wantErr: "failed to read firmware image",
		},
		{
			name:    "empty file",
			args:    func() []string { return []string{"update", TestSensorAddress1, s.writeImage(nil)} },
			wantErr: "is empty",
		},
		{
			name:    "transfer fails",
			args:    func() []string { return []string{"update", TestSensorAddress1, s.writeImage(make([]byte, 32))} },
			setup:   func() { s.sensor1.WithUpdateError(errors.New("oad rejected")) },
			wantErr: "oad rejected",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			if tt.setup != nil {
				tt.setup()
			}

			_, _, err := s.ExecuteCommand(tt.args()...)

			s.Require().Error(err)
			s.Assert().ErrorContains(err, tt.wantErr)
		})
	}
}
