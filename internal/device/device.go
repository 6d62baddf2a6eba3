package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is missing on a connected sensor
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	ErrTimeout          = errors.New("timeout")
	ErrUnsupported      = errors.New("unsupported")
	ErrBluetoothOff     = errors.New("bluetooth is turned off")
	ErrUnknownOperation = errors.New("unknown read operation")
	ErrMalformedValue   = errors.New("malformed characteristic value")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ConnectivityState is the link state reported by a peripheral
type ConnectivityState string

const (
	StateDisconnected  ConnectivityState = "disconnected"
	StateConnecting    ConnectivityState = "connecting"
	StateConnected     ConnectivityState = "connected"
	StateDisconnecting ConnectivityState = "disconnecting"
)

// ReadOperation names a single characteristic read exposed by a Handle
type ReadOperation string

const (
	OpStartupTime                   ReadOperation = "getStartupTime"
	OpFirmwareRevision              ReadOperation = "readFirmwareRevision"
	OpHardwareRevision              ReadOperation = "readHardwareRevision"
	OpHistoryNbEntries              ReadOperation = "getHistoryNbEntries"
	OpHistoryLastEntryIdx           ReadOperation = "getHistoryLastEntryIdx"
	OpHistoryCurrentSessionID       ReadOperation = "getHistoryCurrentSessionID"
	OpHistoryCurrentSessionPeriod   ReadOperation = "getHistoryCurrentSessionPeriod"
	OpHistoryCurrentSessionStartIdx ReadOperation = "getHistoryCurrentSessionStartIdx"
	OpCalibratedSoilMoisture        ReadOperation = "getCalibratedSoilMoisture"
)

// Metric identifies a live measurement notification
type Metric string

const (
	MetricSunlight                 Metric = "sunlight"
	MetricSoilTemperature          Metric = "soil_temperature"
	MetricAirTemperature           Metric = "air_temperature"
	MetricSoilMoisture             Metric = "soil_moisture"
	MetricCalibratedSoilMoisture   Metric = "calibrated_soil_moisture"
	MetricCalibratedAirTemperature Metric = "calibrated_air_temperature"
	MetricCalibratedSunlight       Metric = "calibrated_sunlight"
	MetricCalibratedEa             Metric = "calibrated_ea"
	MetricCalibratedEcb            Metric = "calibrated_ecb"
	MetricCalibratedEcPorous       Metric = "calibrated_ec_porous"
)

// LiveMetrics lists every live notification in subscription order
var LiveMetrics = []Metric{
	MetricSunlight,
	MetricSoilTemperature,
	MetricAirTemperature,
	MetricSoilMoisture,
	MetricCalibratedSoilMoisture,
	MetricCalibratedAirTemperature,
	MetricCalibratedSunlight,
	MetricCalibratedEa,
	MetricCalibratedEcb,
	MetricCalibratedEcPorous,
}

// Unit returns the display unit of a metric, empty for dimensionless values
func (m Metric) Unit() string {
	switch m {
	case MetricSunlight, MetricCalibratedSunlight:
		return "mol/m²/d"
	case MetricSoilTemperature, MetricAirTemperature, MetricCalibratedAirTemperature:
		return "°C"
	case MetricSoilMoisture, MetricCalibratedSoilMoisture:
		return "%"
	case MetricCalibratedEcb, MetricCalibratedEcPorous:
		return "dS/m"
	default:
		return ""
	}
}

// Label returns a human-readable metric name ("calibrated soil moisture")
func (m Metric) Label() string {
	label := strings.ReplaceAll(string(m), "_", " ")
	return strings.NewReplacer(" ea", " EA", " ecb", " ECB", " ec ", " EC ").Replace(label)
}

// Scanner discovers sensors over the air.
//
// DiscoverAll blocks, invoking onDevice for every discovered handle, until ctx
// is cancelled or the scan fails. Cancelling ctx is the stop primitive.
type Scanner interface {
	DiscoverAll(ctx context.Context, onDevice func(Handle)) error
}

// Peripheral is the link-level object underneath a Handle
type Peripheral interface {
	State() ConnectivityState
	OnConnect(fn func()) (remove func())
	OnDisconnect(fn func()) (remove func())
	RemoveAllListeners()
}

// Handle is one discovered sensor.
type Handle interface {
	ID() string
	Name() string
	RSSI() int
	Peripheral() Peripheral

	ConnectAndSetup(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Read(ctx context.Context, op ReadOperation) (any, error)
	GetHistory(ctx context.Context, startIndex int) ([]byte, error)

	EnableLiveMode(ctx context.Context) error
	DisableLiveMode(ctx context.Context) error
	OnMetric(metric Metric, fn func(float64)) (remove func())

	UpdateFirmware(ctx context.Context, image []byte) error

	RemoveAllListeners()
}

// Release detaches every listener from a handle and its peripheral.
// It is safe to call with a nil handle.
func Release(h Handle) {
	if h == nil {
		return
	}
	if p := h.Peripheral(); p != nil {
		p.RemoveAllListeners()
	}
	h.RemoveAllListeners()
}
