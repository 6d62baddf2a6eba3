package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/fpctl/internal/device"
	"github.com/srg/fpctl/internal/groutine"
)

// Init attaches the lifecycle listeners to the bound peripheral and checks that
// it can be claimed. Only a disconnected peripheral proceeds to Connect; any
// other state releases the handle and fails without a retry.
func (s *Session) Init() error {
	h, err := s.requireHandle()
	if err != nil {
		return err
	}

	p := h.Peripheral()
	if p == nil {
		s.Record(StatusUnavailable("unknown"), true)
		s.destroy(h)
		return fmt.Errorf("%w: no peripheral", ErrUnavailable)
	}

	p.OnDisconnect(func() {
		s.Record(StatusDisconnected, false)
		s.destroy(h)
	})
	p.OnConnect(func() {
		s.Record(StatusConnected, false)
	})

	switch state := p.State(); state {
	case device.StateDisconnected:
		s.Record(StatusConnection, false)
		return nil
	case device.StateConnecting:
		s.Record(StatusBusy, false)
		s.destroy(h)
		return ErrBusy
	default:
		s.Record(StatusUnavailable(state), true)
		s.destroy(h)
		return fmt.Errorf("%w: %s", ErrUnavailable, state)
	}
}

// Connect runs connect-and-setup under the connect watchdog. If the watchdog
// fires while the session is still in "Connection", the handle is released
// and a *FatalError wrapping ErrConnectionFailed is returned.
func (s *Session) Connect(ctx context.Context) error {
	h, err := s.requireHandle()
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	groutine.Go(connectCtx, "fp-connect-"+device.ShortenID(s.id), func(ctx context.Context) {
		done <- h.ConnectAndSetup(ctx)
	})

	watchdog := time.NewTimer(s.opts.ConnectTimeout)
	defer watchdog.Stop()

	for {
		select {
		case err := <-done:
			return s.connected(err)

		case <-watchdog.C:
			select {
			case err := <-done:
				return s.connected(err)
			default:
			}
			if s.LastProcess() != StatusConnection {
				// The link came up; setup is still running.
				continue
			}
			s.Record(StatusConnectionFailed, true)
			cancel()
			s.destroy(h)
			s.logger.WithFields(logrus.Fields{
				"device":  s.id,
				"timeout": s.opts.ConnectTimeout,
			}).Error("Connection watchdog expired")
			return &FatalError{Identifier: s.id, Err: ErrConnectionFailed}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) connected(err error) error {
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.id, err)
	}
	s.logger.WithField("device", s.id).Debug("Connected and set up")
	return nil
}

// Disconnect asks the handle to disconnect. It is best-effort and always returns nil;
// the "Disconnected" status is recorded by the peripheral's disconnect event.
func (s *Session) Disconnect(ctx context.Context) error {
	h := s.Handle()
	if h == nil {
		return nil
	}
	if err := h.Disconnect(ctx); err != nil {
		s.logger.WithError(err).WithField("device", s.id).Debug("Disconnect failed, ignoring")
	}
	return nil
}

// destroy detaches every listener from h and its peripheral and drops the
// session's reference if h is the bound handle.
func (s *Session) destroy(h device.Handle) {
	device.Release(h)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == h {
		s.handle = nil
	}
}
