package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/srg/fpctl/internal/device"
	"github.com/srg/fpctl/internal/groutine"
)

// errNoScanner is returned when a session was built without a scanner
var errNoScanner = errors.New("session has no scanner")

// Search runs one discovery attempt. The first advertisement whose identifier
// matches the session is claimed and bound; every other handle has its
// listeners released. If nothing matches within the search timeout the
// attempt records "Not found" and fails with ErrNotFound.
func (s *Session) Search(ctx context.Context) error {
	if s.scanner == nil {
		return errNoScanner
	}

	s.Record(StatusSearching, false)

	scanCtx, stopScan := context.WithCancel(ctx)
	defer stopScan()

	// Buffered so the scan callback never blocks on a claim.
	found := make(chan device.Handle, 1)
	scanDone := make(chan error, 1)
	var claim sync.Once

	onDevice := func(h device.Handle) {
		if h == nil {
			return
		}
		if device.SameID(h.ID(), s.id) {
			// Repeated advertisements of the target are ignored, not released:
			// the transport may hand back the very handle that was claimed.
			claim.Do(func() {
				found <- h
				stopScan()
			})
			return
		}
		s.logger.WithFields(logrus.Fields{
			"device": s.id,
			"seen":   h.ID(),
		}).Trace("Ignoring non-matching sensor")
		device.Release(h)
	}

	groutine.Go(scanCtx, "fp-scan-"+device.ShortenID(s.id), func(ctx context.Context) {
		scanDone <- s.scanner.DiscoverAll(ctx, onDevice)
	})

	watchdog := time.NewTimer(s.opts.SearchTimeout)
	defer watchdog.Stop()

	// finish stops the scan and waits for the scanner to return, so no
	// callback runs after Search does.
	finish := func() error {
		stopScan()
		return <-scanDone
	}

	select {
	case h := <-found:
		_ = finish()
		return s.found(h)

	case <-watchdog.C:
		_ = finish()
		// A match may have landed between the timer firing and the scan stopping.
		select {
		case h := <-found:
			return s.found(h)
		default:
		}
		s.Record(StatusNotFound, true)
		return ErrNotFound

	case err := <-scanDone:
		select {
		case h := <-found:
			return s.found(h)
		default:
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return fmt.Errorf("scan for %s: %w", s.id, err)
		}
		s.Record(StatusNotFound, true)
		return ErrNotFound

	case <-ctx.Done():
		_ = finish()
		return ctx.Err()
	}
}

func (s *Session) found(h device.Handle) error {
	s.bind(h)
	s.Record(StatusFound, false)
	s.logger.WithFields(logrus.Fields{
		"device": s.id,
		"name":   h.Name(),
		"rssi":   h.RSSI(),
	}).Info("Sensor found")
	return nil
}

// SearchWithRetry repeats Search up to the configured number of attempts with a
// fixed interval between them. Only the last failure is returned.
func (s *Session) SearchWithRetry(ctx context.Context) error {
	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := s.Search(ctx)
		if err != nil && (ctx.Err() != nil || errors.Is(err, errNoScanner)) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.opts.SearchInterval)),
		backoff.WithMaxTries(uint(max(s.opts.SearchAttempts, 1))),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"device":   s.id,
				"attempt":  attempt,
				"attempts": s.opts.SearchAttempts,
				"interval": next,
			}).Debug("Search attempt failed, retrying")
		}),
	)
	return err
}
