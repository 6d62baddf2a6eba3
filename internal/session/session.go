// Package session drives one Flower Power sensor through discovery, connection,
// history harvesting, live streaming, firmware update and teardown.
//
// A Session owns at most one device handle at a time. Every transition is
// appended to the process log, broadcast to observers and, for terminal
// outcomes, written to the injected store.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/fpctl/internal/device"
	"github.com/srg/fpctl/internal/store"
)

// Options configures a Session. Zero durations and counts take the tagged defaults.
type Options struct {
	Logger  *logrus.Logger
	Sink    store.ProcessSink
	Scanner device.Scanner

	SearchTimeout  time.Duration `default:"30s"`
	SearchAttempts int           `default:"3"`
	SearchInterval time.Duration `default:"2s"`
	ConnectTimeout time.Duration `default:"60s"`

	// LiveBufferSize bounds the readings kept for LiveReport
	LiveBufferSize uint32 `default:"64"`

	// Now is the clock used for status dates (time.Now when nil)
	Now func() time.Time
}

// Session is the per-device state machine
type Session struct {
	id      string
	logger  *logrus.Logger
	sink    store.ProcessSink
	scanner device.Scanner
	opts    Options
	now     func() time.Time

	mu         sync.Mutex
	handle     device.Handle
	process    []string // oldest first; exposed most recent first
	lastDate   time.Time
	observers  device.Listeners[Snapshot]
	persisting sync.WaitGroup

	live *liveReadings
}

// New creates a session for the sensor with the given identifier
func New(identifier string, opts *Options) *Session {
	var o Options
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)

	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	return &Session{
		id:       identifier,
		logger:   o.Logger,
		sink:     o.Sink,
		scanner:  o.Scanner,
		opts:     o,
		now:      o.Now,
		lastDate: o.Now(),
		live:     newLiveReadings(o.LiveBufferSize),
	}
}

// Identifier returns the sensor identifier the session was created for
func (s *Session) Identifier() string {
	return s.id
}

// Handle returns the bound device handle, nil before Found and after teardown
func (s *Session) Handle() device.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Session) bind(h device.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

// requireHandle returns the bound handle or ErrNoDevice
func (s *Session) requireHandle() (device.Handle, error) {
	h := s.Handle()
	if h == nil {
		return nil, ErrNoDevice
	}
	return h, nil
}

// FindAndConnect searches for the sensor (with retries), claims its handle and
// connects to it. A connect watchdog expiry is returned as a *FatalError.
func (s *Session) FindAndConnect(ctx context.Context) error {
	if err := s.SearchWithRetry(ctx); err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}
	return s.Connect(ctx)
}
