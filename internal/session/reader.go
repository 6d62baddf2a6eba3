package session

import (
	"context"
	"errors"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/fpctl/internal/device"
	"github.com/srg/fpctl/internal/groutine"
)

// Attribute is a logical sensor attribute name
type Attribute string

const (
	AttrStartupTime                     Attribute = "start_up_time"
	AttrFirmwareVersion                 Attribute = "firmware_version"
	AttrHardwareVersion                 Attribute = "hardware_version"
	AttrHistoryNbEntries                Attribute = "history_nb_entries"
	AttrSoilPercentVWC                  Attribute = "soil_percent_vwc"
	AttrHistoryLastEntryIndex           Attribute = "history_last_entry_index"
	AttrHistoryCurrentSessionID         Attribute = "history_current_session_id"
	AttrHistoryCurrentSessionPeriod     Attribute = "history_current_session_period"
	AttrHistoryCurrentSessionStartIndex Attribute = "history_current_session_start_index"
)

// attributeOperations maps attribute names to the handle read behind them
var attributeOperations = map[Attribute]device.ReadOperation{
	AttrStartupTime:                     device.OpStartupTime,
	AttrFirmwareVersion:                 device.OpFirmwareRevision,
	AttrHardwareVersion:                 device.OpHardwareRevision,
	AttrHistoryNbEntries:                device.OpHistoryNbEntries,
	AttrSoilPercentVWC:                  device.OpCalibratedSoilMoisture,
	AttrHistoryLastEntryIndex:           device.OpHistoryLastEntryIdx,
	AttrHistoryCurrentSessionID:         device.OpHistoryCurrentSessionID,
	AttrHistoryCurrentSessionPeriod:     device.OpHistoryCurrentSessionPeriod,
	AttrHistoryCurrentSessionStartIndex: device.OpHistoryCurrentSessionStartIdx,
}

// OperationFor returns the read operation behind an attribute
func OperationFor(attr Attribute) (device.ReadOperation, bool) {
	op, ok := attributeOperations[attr]
	return op, ok
}

// ReadAll reads every key concurrently and returns the values in key order.
// The first failing read is returned as a *ReadError; no partial result is returned.
func (s *Session) ReadAll(ctx context.Context, keys ...Attribute) (*orderedmap.OrderedMap[Attribute, any], error) {
	h, err := s.requireHandle()
	if err != nil {
		return nil, err
	}

	tasks := make([]groutine.Task[any], len(keys))
	for i, key := range keys {
		op, ok := attributeOperations[key]
		if !ok {
			return nil, &ReadError{Attribute: string(key), Err: device.ErrUnknownOperation}
		}
		tasks[i] = func(ctx context.Context) (any, error) {
			return h.Read(ctx, op)
		}
	}

	values, err := groutine.All(ctx, "fp-read-"+device.ShortenID(s.id), tasks)
	if err != nil {
		var taskErr *groutine.TaskError
		if errors.As(err, &taskErr) {
			return nil, &ReadError{Attribute: string(keys[taskErr.Index]), Err: taskErr.Err}
		}
		return nil, err
	}

	result := orderedmap.New[Attribute, any](orderedmap.WithCapacity[Attribute, any](len(keys)))
	for i, key := range keys {
		result.Set(key, values[i])
	}
	return result, nil
}
