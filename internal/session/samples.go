package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/fpctl/internal/device"
)

// Outcome tells whether GetSamples fetched a history buffer
type Outcome int

const (
	OutcomeFetched Outcome = iota
	OutcomeNoUpdateRequired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFetched:
		return "fetched"
	case OutcomeNoUpdateRequired:
		return "no update required"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// sampleAttributes are read before every history fetch
var sampleAttributes = []Attribute{
	AttrStartupTime,
	AttrFirmwareVersion,
	AttrHardwareVersion,
	AttrHistoryNbEntries,
	AttrHistoryLastEntryIndex,
	AttrHistoryCurrentSessionID,
	AttrHistoryCurrentSessionPeriod,
	AttrHistoryCurrentSessionStartIndex,
}

// SampleBatch is the result of one history harvest
type SampleBatch struct {
	// Values holds the raw attribute values in read order, versions trimmed
	Values *orderedmap.OrderedMap[Attribute, any]

	StartupTime              time.Time
	FirmwareVersion          string
	HardwareVersion          string
	HistoryNbEntries         int
	HistoryLastEntryIndex    int
	CurrentSessionID         int
	CurrentSessionPeriod     int
	CurrentSessionStartIndex int

	FirstEntryIndex int
	StartIndex      int

	// Buffer is the raw history payload from StartIndex, nil when nothing was fetched
	Buffer  []byte
	Outcome Outcome
}

// GetSamples reads the history bookkeeping attributes and fetches every entry
// from max(index, first stored entry). When there is nothing newer than the
// last stored entry the batch carries OutcomeNoUpdateRequired and no buffer.
func (s *Session) GetSamples(ctx context.Context, index int) (*SampleBatch, error) {
	h, err := s.requireHandle()
	if err != nil {
		return nil, err
	}

	s.Record(StatusGettingSamples, false)

	values, err := s.ReadAll(ctx, sampleAttributes...)
	if err != nil {
		return nil, err
	}

	batch, err := decodeBatch(values)
	if err != nil {
		return nil, err
	}

	batch.FirstEntryIndex = batch.HistoryLastEntryIndex - batch.HistoryNbEntries + 1
	batch.StartIndex = max(index, batch.FirstEntryIndex)

	fields := logrus.Fields{
		"device":      s.id,
		"requested":   index,
		"first_entry": batch.FirstEntryIndex,
		"last_entry":  batch.HistoryLastEntryIndex,
		"start_index": batch.StartIndex,
	}

	if batch.StartIndex > batch.HistoryLastEntryIndex {
		s.Record(StatusNoUpdate, true)
		s.logger.WithFields(fields).Info("No new history entries")
		batch.Outcome = OutcomeNoUpdateRequired
		return batch, nil
	}

	buf, err := h.GetHistory(ctx, batch.StartIndex)
	if err != nil {
		return nil, fmt.Errorf("get history from %d: %w", batch.StartIndex, err)
	}
	batch.Buffer = buf
	batch.Outcome = OutcomeFetched

	s.logger.WithFields(fields).WithField("bytes", len(buf)).Info("History fetched")
	return batch, nil
}

func decodeBatch(values *orderedmap.OrderedMap[Attribute, any]) (*SampleBatch, error) {
	b := &SampleBatch{Values: values}

	var err error
	if b.StartupTime, err = timeValue(values, AttrStartupTime); err != nil {
		return nil, err
	}
	if b.FirmwareVersion, err = stringValue(values, AttrFirmwareVersion); err != nil {
		return nil, err
	}
	if b.HardwareVersion, err = stringValue(values, AttrHardwareVersion); err != nil {
		return nil, err
	}

	ints := []struct {
		attr Attribute
		dst  *int
	}{
		{AttrHistoryNbEntries, &b.HistoryNbEntries},
		{AttrHistoryLastEntryIndex, &b.HistoryLastEntryIndex},
		{AttrHistoryCurrentSessionID, &b.CurrentSessionID},
		{AttrHistoryCurrentSessionPeriod, &b.CurrentSessionPeriod},
		{AttrHistoryCurrentSessionStartIndex, &b.CurrentSessionStartIndex},
	}
	for _, f := range ints {
		if *f.dst, err = intValue(values, f.attr); err != nil {
			return nil, err
		}
	}

	b.FirmwareVersion = TrimVersion(b.FirmwareVersion)
	b.HardwareVersion = TrimVersion(b.HardwareVersion)
	values.Set(AttrFirmwareVersion, b.FirmwareVersion)
	values.Set(AttrHardwareVersion, b.HardwareVersion)
	return b, nil
}

// TrimVersion cuts a revision string at its first NUL. A NUL at position 0
// yields an empty string; a string without NUL is returned unchanged.
func TrimVersion(v string) string {
	if i := strings.IndexByte(v, 0); i >= 0 {
		return v[:i]
	}
	return v
}

func malformed(attr Attribute, v any) error {
	return &ReadError{Attribute: string(attr), Err: fmt.Errorf("%w: %T", device.ErrMalformedValue, v)}
}

func intValue(values *orderedmap.OrderedMap[Attribute, any], attr Attribute) (int, error) {
	v, _ := values.Get(attr)
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, malformed(attr, v)
	}
}

func stringValue(values *orderedmap.OrderedMap[Attribute, any], attr Attribute) (string, error) {
	v, _ := values.Get(attr)
	switch str := v.(type) {
	case string:
		return str, nil
	case []byte:
		return string(str), nil
	default:
		return "", malformed(attr, v)
	}
}

func timeValue(values *orderedmap.OrderedMap[Attribute, any], attr Attribute) (time.Time, error) {
	v, _ := values.Get(attr)
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case int64:
		return time.Unix(t, 0), nil
	default:
		return time.Time{}, malformed(attr, v)
	}
}
