package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/fpctl/internal/device"
	"github.com/srg/fpctl/internal/groutine"
	"github.com/srg/fpctl/internal/store"
)

// Status values recorded in the process log
const (
	StatusStandby          = "Standby"
	StatusSearching        = "Searching"
	StatusFound            = "Found"
	StatusNotFound         = "Not found"
	StatusConnection       = "Connection"
	StatusConnected        = "Connected"
	StatusBusy             = "Not available: is on connection"
	StatusConnectionFailed = "Connection failed"
	StatusDisconnected     = "Disconnected"
	StatusGettingSamples   = "Getting samples"
	StatusNoUpdate         = "No update required"
	StatusLive             = "Live"
	StatusEndLive          = "End live"
	StatusUpdate           = "Update"
)

// StatusUnavailable renders the status recorded for a non-connectable peripheral state
func StatusUnavailable(state device.ConnectivityState) string {
	return fmt.Sprintf("Not available: %s", state)
}

// Snapshot is the session state carried by a status-changed notification
type Snapshot struct {
	Identifier string
	Status     string
	Date       time.Time
}

// String renders the snapshot the way the console prints it
func (s Snapshot) String() string {
	return fmt.Sprintf("[%s]: %s: %s", s.Date.Format("Jan 02 2006 15:04:05"), s.Identifier, s.Status)
}

// Observer is called synchronously on every recorded status change
type Observer func(Snapshot)

// Subscribe registers an observer and returns a function that removes it
func (s *Session) Subscribe(fn Observer) (unsubscribe func()) {
	return s.observers.Add(fn)
}

// Record appends status to the process log, updates the last date and notifies
// observers. When persist is set the transition is also written to the store in
// the background; store failures are logged and never reach the caller.
func (s *Session) Record(status string, persist bool) {
	s.mu.Lock()
	now := s.now()
	s.process = append(s.process, status)
	s.lastDate = now
	snap := Snapshot{Identifier: s.id, Status: status, Date: now}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"device":  s.id,
		"status":  status,
		"persist": persist,
	}).Debug("Session status changed")

	s.observers.Emit(snap)

	if persist && s.sink != nil {
		rec := store.ProcessRecord{Identifier: s.id, Status: status, Timestamp: now}
		s.persisting.Add(1)
		groutine.Go(context.Background(), "fp-persist-"+device.ShortenID(s.id), func(ctx context.Context) {
			defer s.persisting.Done()
			if err := s.sink.Insert(ctx, rec); err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"device": rec.Identifier,
					"status": rec.Status,
				}).Warn("Failed to persist session status")
			}
		})
	}
}

// Flush waits until every persisted status has reached the sink
func (s *Session) Flush() {
	s.persisting.Wait()
}

// Process returns the recorded statuses, most recent first
func (s *Session) Process() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.process))
	for i, status := range s.process {
		out[len(s.process)-1-i] = status
	}
	return out
}

// LastProcess returns the most recent status, or Standby before anything was recorded
func (s *Session) LastProcess() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastProcessLocked()
}

func (s *Session) lastProcessLocked() string {
	if len(s.process) == 0 {
		return StatusStandby
	}
	return s.process[len(s.process)-1]
}

// LastDate returns the time of the last status change (session creation time initially)
func (s *Session) LastDate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDate
}

// Snapshot returns the current identifier, status and date
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Identifier: s.id, Status: s.lastProcessLocked(), Date: s.lastDate}
}

// String renders "[<date>]: <identifier>: <last status>"
func (s *Session) String() string {
	return s.Snapshot().String()
}
