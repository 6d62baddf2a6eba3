package scanner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/srg/fpctl/internal/device"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// Scan phases reported through ProgressCallback
const (
	PhaseScanning   = "Scanning"
	PhaseProcessing = "Processing results"
)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

// DeviceEntry summarizes one sensor seen during a scan
type DeviceEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RSSI      int       `json:"rssi"`
	Adverts   int       `json:"adverts"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

type DeviceEvent struct {
	Type  DeviceEventType
	Entry DeviceEntry
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration  time.Duration `default:"10s"`
	AllowList []string
	BlockList []string
	// MinRSSI hides weaker sensors; zero disables the filter
	MinRSSI int
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	opts := &ScanOptions{}
	defaults.SetDefaults(opts)
	return opts
}

// Scanner lists nearby Flower Power sensors
type Scanner struct {
	transport device.Scanner
	logger    *logrus.Logger
	now       func() time.Time
}

// NewScanner creates a scanner over a transport
func NewScanner(transport device.Scanner, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		transport: transport,
		logger:    logger,
		now:       time.Now,
	}
}

// Scan discovers sensors for opts.Duration or until ctx ends. Entries are
// ordered strongest signal first. onEvent, when set, sees every accepted advert.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progress ProgressCallback, onEvent func(DeviceEvent)) ([]DeviceEntry, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progress == nil {
		progress = func(string) {}
	}
	if onEvent == nil {
		onEvent = func(DeviceEvent) {}
	}

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting Flower Power scan...")
	progress(PhaseScanning)

	devices := hashmap.New[string, *DeviceEntry]()
	err := s.transport.DiscoverAll(ctx, func(h device.Handle) {
		if !shouldInclude(h, opts) {
			return
		}

		key := device.NormalizeID(h.ID())
		now := s.now()
		entry, existing := devices.GetOrInsert(key, &DeviceEntry{ID: h.ID(), FirstSeen: now})
		entry.Name = h.Name()
		entry.RSSI = h.RSSI()
		entry.LastSeen = now
		entry.Adverts++

		event := DeviceEvent{Type: EventUpdated, Entry: *entry}
		if !existing {
			event.Type = EventNew
			s.logger.WithFields(logrus.Fields{
				"device": entry.ID,
				"name":   entry.Name,
				"rssi":   entry.RSSI,
			}).Info("Discovered new device")
		}
		onEvent(event)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", devices.Len()).Info("Flower Power scan completed")
	progress(PhaseProcessing)

	entries := make([]DeviceEntry, 0, devices.Len())
	devices.Range(func(_ string, e *DeviceEntry) bool {
		entries = append(entries, *e)
		return true
	})
	slices.SortFunc(entries, func(a, b DeviceEntry) int {
		if c := cmp.Compare(b.RSSI, a.RSSI); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return entries, nil
}

// shouldInclude applies allow, block and signal filters
func shouldInclude(h device.Handle, opts *ScanOptions) bool {
	id := h.ID()
	for _, blocked := range opts.BlockList {
		if device.SameID(id, blocked) {
			return false
		}
	}
	if len(opts.AllowList) > 0 && !slices.ContainsFunc(opts.AllowList, func(a string) bool { return device.SameID(id, a) }) {
		return false
	}
	if opts.MinRSSI != 0 && h.RSSI() < opts.MinRSSI {
		return false
	}
	return true
}
