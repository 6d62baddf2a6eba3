// Package store persists session status transitions and harvested sample batches.
//
// The session core only writes (ProcessSink). Read methods exist for the
// command line and for tests.
package store

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNoSamples is returned when no batch has been archived for a device
var ErrNoSamples = errors.New("no archived samples")

// ProcessRecord is one persisted status transition
type ProcessRecord struct {
	ID         string    `json:"id"`
	Identifier string    `json:"uuid"`
	Status     string    `json:"proc"`
	Timestamp  time.Time `json:"date"`
}

// SampleRecord is one archived history harvest
type SampleRecord struct {
	ID              string    `json:"id"`
	Identifier      string    `json:"uuid"`
	StartIndex      int       `json:"start_index"`
	LastEntryIndex  int       `json:"history_last_entry_index"`
	FirmwareVersion string    `json:"firmware_version"`
	HardwareVersion string    `json:"hardware_version"`
	Buffer          []byte    `json:"buffer_base64"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// ProcessSink receives status transitions. It is insert-only.
type ProcessSink interface {
	Insert(ctx context.Context, rec ProcessRecord) error
}

// Store is the full persistence surface used by the command line
type Store interface {
	ProcessSink
	History(ctx context.Context, identifier string, limit int) ([]ProcessRecord, error)
	SaveSamples(ctx context.Context, rec SampleRecord) error
	LastSamples(ctx context.Context, identifier string) (SampleRecord, error)
	Close() error
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewID returns a time-ordered unique record identifier
func NewID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// MemoryStore keeps records in memory (development/testing use)
type MemoryStore struct {
	mu       sync.Mutex
	records  []ProcessRecord
	samples  []SampleRecord
	failWith error
	inserted chan ProcessRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{inserted: make(chan ProcessRecord, 256)}
}

// FailWith makes every subsequent write return err (nil restores normal behaviour)
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Insert appends a process record
func (s *MemoryStore) Insert(_ context.Context, rec ProcessRecord) error {
	s.mu.Lock()
	if s.failWith != nil {
		err := s.failWith
		s.mu.Unlock()
		return err
	}
	if rec.ID == "" {
		rec.ID = NewID(rec.Timestamp)
	}
	s.records = append(s.records, rec)
	s.mu.Unlock()

	select {
	case s.inserted <- rec:
	default:
	}
	return nil
}

// Inserted exposes a best-effort feed of inserted records for tests
func (s *MemoryStore) Inserted() <-chan ProcessRecord {
	return s.inserted
}

// Records returns a copy of all stored process records in insertion order
func (s *MemoryStore) Records() []ProcessRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProcessRecord, len(s.records))
	copy(out, s.records)
	return out
}

// History returns the most recent records for identifier, newest first
func (s *MemoryStore) History(_ context.Context, identifier string, limit int) ([]ProcessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ProcessRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Identifier != identifier {
			continue
		}
		out = append(out, s.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SaveSamples archives a harvested batch
func (s *MemoryStore) SaveSamples(_ context.Context, rec SampleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if rec.ID == "" {
		rec.ID = NewID(rec.FetchedAt)
	}
	s.samples = append(s.samples, rec)
	return nil
}

// LastSamples returns the newest archived batch for identifier
func (s *MemoryStore) LastSamples(_ context.Context, identifier string) (SampleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.samples) - 1; i >= 0; i-- {
		if s.samples[i].Identifier == identifier {
			return s.samples[i], nil
		}
	}
	return SampleRecord{}, ErrNoSamples
}

// Close is a no-op
func (s *MemoryStore) Close() error { return nil }

// NextIndex returns the history index following the last archived batch, or 0
func NextIndex(ctx context.Context, s Store, identifier string) (int, error) {
	rec, err := s.LastSamples(ctx, identifier)
	if errors.Is(err, ErrNoSamples) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.LastEntryIndex + 1, nil
}
