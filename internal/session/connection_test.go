package session_test

import (
	"context"
	"errors"
	"time"

	"github.com/srg/fpctl/internal/device"
	"github.com/srg/fpctl/internal/session"
	"github.com/srg/fpctl/internal/testutils"
)

func (suite *SessionTestSuite) TestInit() {
	// GOAL: Verify Init gates Connect on the peripheral state
	//
	// TEST SCENARIO: Bound handle in each state → disconnected proceeds; connecting/other fail, release handle, never connect

	tests := []struct {
		name       string
		state      device.ConnectivityState
		wantErr    error
		wantStatus string
		persisted  bool
	}{
		{
			name:       "disconnected proceeds to connect",
			state:      device.StateDisconnected,
			wantStatus: session.StatusConnection,
		},
		{
			name:       "connecting is busy",
			state:      device.StateConnecting,
			wantErr:    session.ErrBusy,
			wantStatus: session.StatusBusy,
		},
		{
			name:       "connected is unavailable",
			state:      device.StateConnected,
			wantErr:    session.ErrUnavailable,
			wantStatus: "Not available: connected",
			persisted:  true,
		},
		{
			name:       "disconnecting is unavailable",
			state:      device.StateDisconnecting,
			wantErr:    session.ErrUnavailable,
			wantStatus: "Not available: disconnecting",
			persisted:  true,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			h := testutils.NewFakeHandle(sensorID).WithState(tt.state)
			suite.scanner.Plan = [][]device.Handle{{h}}
			s := suite.newSession()
			suite.Require().NoError(s.Search(context.Background()))

			err := s.Init()

			suite.Assert().Equal(tt.wantStatus, s.LastProcess())
			if tt.wantErr == nil {
				suite.Require().NoError(err)
				suite.Assert().Same(h, s.Handle(), "handle MUST stay bound")
				suite.Assert().Equal(2, h.FakePeripheral().ListenerCount(), "lifecycle listeners MUST be attached")
				return
			}

			suite.Assert().ErrorIs(err, tt.wantErr)
			suite.Assert().Nil(s.Handle(), "handle MUST be dropped")
			suite.Assert().True(h.Released(), "handle MUST be released")
			suite.Assert().False(h.Called("ConnectAndSetup"), "connect MUST NOT be attempted")
			if tt.persisted {
				suite.Assert().Contains(suite.persisted(1), tt.wantStatus, "unavailable status MUST be persisted")
			}
		})
	}

	suite.Run("requires a bound handle", func() {
		err := suite.newSession().Init()
		suite.Assert().ErrorIs(err, session.ErrNoDevice)
	})
}

func (suite *SessionTestSuite) TestConnect() {
	// GOAL: Verify Connect under its watchdog
	//
	// TEST SCENARIO: Link comes up → Connected; never comes up → fatal Connection failed; setup error → propagated

	suite.Run("find and connect records the full sequence", func() {
		s := suite.connected()

		suite.Assert().Equal([]string{
			session.StatusConnected,
			session.StatusConnection,
			session.StatusFound,
			session.StatusSearching,
		}, s.Process())
		suite.Assert().Same(suite.handle, s.Handle())
	})

	suite.Run("watchdog expiry is fatal", func() {
		h := testutils.NewFakeHandle(sensorID).WithConnect(-1, nil)
		opts := suite.options()
		opts.Scanner = testutils.NewFakeScanner(h)
		s := session.New(sensorID, opts)

		start := time.Now()
		err := s.FindAndConnect(context.Background())

		suite.Require().Error(err)
		suite.Assert().True(session.IsFatal(err), "connection failure MUST be fatal")
		suite.Assert().ErrorIs(err, session.ErrConnectionFailed)
		suite.Assert().GreaterOrEqual(time.Since(start), 150*time.Millisecond)
		suite.Assert().Equal(session.StatusConnectionFailed, s.LastProcess())
		suite.Assert().Nil(s.Handle(), "handle MUST be dropped")
		suite.Assert().True(h.Released(), "handle MUST be released")
		suite.Assert().Contains(suite.persisted(1), session.StatusConnectionFailed)
	})

	suite.Run("watchdog is stopped once connected", func() {
		s := suite.connected()

		time.Sleep(200 * time.Millisecond)

		suite.Assert().Equal(session.StatusConnected, s.LastProcess(), "no stray watchdog MUST fire after success")
		suite.Assert().NotNil(s.Handle())
	})

	suite.Run("setup error is propagated without fatal escalation", func() {
		setupErr := errors.New("service discovery failed")
		h := testutils.NewFakeHandle(sensorID).WithConnect(10*time.Millisecond, setupErr)
		opts := suite.options()
		opts.Scanner = testutils.NewFakeScanner(h)
		s := session.New(sensorID, opts)

		err := s.FindAndConnect(context.Background())

		suite.Assert().ErrorIs(err, setupErr)
		suite.Assert().False(session.IsFatal(err))
		suite.Assert().Equal(session.StatusConnection, s.LastProcess())
	})

	suite.Run("busy sensor is never connected", func() {
		h := testutils.NewFakeHandle(sensorID).WithState(device.StateConnecting)
		opts := suite.options()
		opts.Scanner = testutils.NewFakeScanner(h)
		s := session.New(sensorID, opts)

		err := s.FindAndConnect(context.Background())

		suite.Assert().ErrorIs(err, session.ErrBusy)
		suite.Assert().False(h.Called("ConnectAndSetup"))
	})
}

func (suite *SessionTestSuite) TestDisconnect() {
	// GOAL: Verify teardown paths
	//
	// TEST SCENARIO: Explicit disconnect or link loss → Disconnected recorded, handle released; disconnect errors swallowed

	suite.Run("explicit disconnect", func() {
		s := suite.connected()

		err := s.Disconnect(context.Background())

		suite.Require().NoError(err)
		suite.Assert().Equal(session.StatusDisconnected, s.LastProcess())
		suite.Assert().Nil(s.Handle(), "handle MUST be dropped on disconnect")
		suite.Assert().True(suite.handle.Released())
	})

	suite.Run("link loss at any time", func() {
		h := testutils.NewFakeHandle(sensorID)
		opts := suite.options()
		opts.Scanner = testutils.NewFakeScanner(h)
		s := session.New(sensorID, opts)
		suite.Require().NoError(s.FindAndConnect(context.Background()))

		h.FakePeripheral().FireDisconnect()

		suite.Assert().Equal(session.StatusDisconnected, s.LastProcess())
		suite.Assert().Nil(s.Handle())
		suite.Assert().Zero(h.FakePeripheral().ListenerCount(), "lifecycle listeners MUST be detached")
	})

	suite.Run("disconnect is best effort", func() {
		h := testutils.NewFakeHandle(sensorID).WithDisconnectError(errors.New("not connected"))
		opts := suite.options()
		opts.Scanner = testutils.NewFakeScanner(h)
		s := session.New(sensorID, opts)
		suite.Require().NoError(s.FindAndConnect(context.Background()))

		suite.Assert().NoError(s.Disconnect(context.Background()), "disconnect MUST NOT report handle errors")
	})

	suite.Run("disconnect without a handle", func() {
		suite.Assert().NoError(suite.newSession().Disconnect(context.Background()))
	})
}
