package session_test

import (
	"errors"
	"time"

	"github.com/srg/fpctl/internal/session"
)

func (suite *SessionTestSuite) TestRecord() {
	// GOAL: Verify the process log keeps most-recent-first order and notifies observers
	//
	// TEST SCENARIO: Record several statuses → process reversed, lastProcess = head → observers see each snapshot

	suite.Run("fresh session is standby", func() {
		s := suite.newSession()

		suite.Assert().Equal(session.StatusStandby, s.LastProcess(), "initial status MUST be Standby")
		suite.Assert().Empty(s.Process(), "process log MUST start empty")
		suite.Assert().Nil(s.Handle(), "no handle MUST be bound before search")
	})

	suite.Run("statuses are ordered most recent first", func() {
		s := suite.newSession()

		s.Record("one", false)
		s.Record("two", false)
		s.Record("three", false)

		suite.Assert().Equal([]string{"three", "two", "one"}, s.Process())
		suite.Assert().Equal("three", s.LastProcess(), "lastProcess MUST equal the head of the log")
	})

	suite.Run("observers run synchronously with the new snapshot", func() {
		tick := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		opts := suite.options()
		opts.Now = func() time.Time { tick = tick.Add(time.Second); return tick }
		s := session.New(sensorID, opts)

		var seen []session.Snapshot
		unsubscribe := s.Subscribe(func(snap session.Snapshot) {
			suite.Assert().Equal(snap.Status, s.LastProcess(), "state MUST be updated before observers run")
			seen = append(seen, snap)
		})

		s.Record(session.StatusSearching, false)
		unsubscribe()
		s.Record(session.StatusFound, false)

		suite.Require().Len(seen, 1, "unsubscribed observer MUST NOT be called")
		suite.Assert().Equal(sensorID, seen[0].Identifier)
		suite.Assert().Equal(session.StatusSearching, seen[0].Status)
		suite.Assert().Equal(s.LastDate().Add(-time.Second), seen[0].Date)
	})

	suite.Run("only persisted statuses reach the store", func() {
		s := suite.newSession()

		s.Record("transient", false)
		s.Record(session.StatusNotFound, true)

		statuses := suite.persisted(1)
		suite.Assert().Equal([]string{session.StatusNotFound}, statuses)
		rec := suite.store.Records()[0]
		suite.Assert().Equal(sensorID, rec.Identifier)
		suite.Assert().Equal(s.LastDate(), rec.Timestamp, "persisted date MUST be the status date")
		suite.Assert().NotEmpty(rec.ID, "record MUST get an id")
	})

	suite.Run("flush waits for pending writes", func() {
		s := suite.newSession()

		s.Record(session.StatusNotFound, true)
		s.Record(session.StatusConnectionFailed, true)
		s.Flush()

		suite.Assert().Len(suite.store.Records(), 2, "every persisted status MUST be stored once Flush returns")
	})

	suite.Run("store failures never reach the caller", func() {
		suite.store.FailWith(errors.New("disk full"))
		s := suite.newSession()

		suite.Assert().NotPanics(func() { s.Record(session.StatusNotFound, true) })
		suite.Assert().Equal(session.StatusNotFound, s.LastProcess())
	})
}

func (suite *SessionTestSuite) TestString() {
	// GOAL: Verify the console rendering of a session
	//
	// TEST SCENARIO: Fixed clock → Record → "[date]: id: status"

	at := time.Date(2016, 4, 1, 8, 30, 15, 0, time.UTC)
	opts := suite.options()
	opts.Now = func() time.Time { return at }
	s := session.New(sensorID, opts)

	s.Record(session.StatusFound, false)

	suite.Assert().Equal("[Apr 01 2016 08:30:15]: "+sensorID+": Found", s.String())
}
