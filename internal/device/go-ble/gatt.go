package goble

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/srg/fpctl/internal/device"
)

// Flower Power GATT services
const (
	LiveServiceUUID    = "39e1fa0084a811e2afba0002a5d5c51b"
	UploadServiceUUID  = "39e1fb0084a811e2afba0002a5d5c51b"
	HistoryServiceUUID = "39e1fc0084a811e2afba0002a5d5c51b"
	ClockServiceUUID   = "39e1fd0084a811e2afba0002a5d5c51b"
	DeviceInfoUUID     = "180a"
	OADServiceUUID     = "f000ffc004514000b000000000000000"
)

// Flower Power GATT characteristics, normalized
const (
	charSunlight                 = "39e1fa0184a811e2afba0002a5d5c51b"
	charSoilTemperature          = "39e1fa0384a811e2afba0002a5d5c51b"
	charAirTemperature           = "39e1fa0484a811e2afba0002a5d5c51b"
	charSoilMoisture             = "39e1fa0584a811e2afba0002a5d5c51b"
	charLivePeriod               = "39e1fa0684a811e2afba0002a5d5c51b"
	charCalibratedSoilMoisture   = "39e1fa0984a811e2afba0002a5d5c51b"
	charCalibratedAirTemperature = "39e1fa0a84a811e2afba0002a5d5c51b"
	charCalibratedSunlight       = "39e1fa0b84a811e2afba0002a5d5c51b"
	charCalibratedEa             = "39e1fa0c84a811e2afba0002a5d5c51b"
	charCalibratedEcb            = "39e1fa0d84a811e2afba0002a5d5c51b"
	charCalibratedEcPorous       = "39e1fa0e84a811e2afba0002a5d5c51b"

	charTxBuffer = "39e1fb0184a811e2afba0002a5d5c51b"
	charTxStatus = "39e1fb0284a811e2afba0002a5d5c51b"
	charRxStatus = "39e1fb0384a811e2afba0002a5d5c51b"

	charHistoryNbEntries        = "39e1fc0184a811e2afba0002a5d5c51b"
	charHistoryLastEntryIdx     = "39e1fc0284a811e2afba0002a5d5c51b"
	charHistoryTransferStartIdx = "39e1fc0384a811e2afba0002a5d5c51b"
	charHistorySessionID        = "39e1fc0484a811e2afba0002a5d5c51b"
	charHistorySessionStartIdx  = "39e1fc0584a811e2afba0002a5d5c51b"
	charHistorySessionPeriod    = "39e1fc0684a811e2afba0002a5d5c51b"

	charCurrentTime = "39e1fd0184a811e2afba0002a5d5c51b"

	charFirmwareRevision = "2a26"
	charHardwareRevision = "2a27"

	charOADIdentify = "f000ffc104514000b000000000000000"
	charOADBlock    = "f000ffc204514000b000000000000000"
)

// valueKind selects the decoder for a read
type valueKind int

const (
	kindUint16 valueKind = iota
	kindUint32
	kindFloat32
	kindString
	kindUptime
)

type readSpec struct {
	char string
	kind valueKind
}

// readSpecs maps read operations to their characteristic and encoding
var readSpecs = map[device.ReadOperation]readSpec{
	device.OpStartupTime:                   {charCurrentTime, kindUptime},
	device.OpFirmwareRevision:              {charFirmwareRevision, kindString},
	device.OpHardwareRevision:              {charHardwareRevision, kindString},
	device.OpHistoryNbEntries:              {charHistoryNbEntries, kindUint16},
	device.OpHistoryLastEntryIdx:           {charHistoryLastEntryIdx, kindUint32},
	device.OpHistoryCurrentSessionID:       {charHistorySessionID, kindUint16},
	device.OpHistoryCurrentSessionPeriod:   {charHistorySessionPeriod, kindUint16},
	device.OpHistoryCurrentSessionStartIdx: {charHistorySessionStartIdx, kindUint32},
	device.OpCalibratedSoilMoisture:        {charCalibratedSoilMoisture, kindFloat32},
}

// decodeRead turns a raw characteristic value into the Go value a read returns.
// Counters become int, revisions stay raw strings, uptime becomes a start time.
func decodeRead(kind valueKind, data []byte, now time.Time) (any, error) {
	switch kind {
	case kindUint16:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: want 2 bytes, got %d", device.ErrMalformedValue, len(data))
		}
		return int(binary.LittleEndian.Uint16(data)), nil
	case kindUint32:
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: want 4 bytes, got %d", device.ErrMalformedValue, len(data))
		}
		return int(binary.LittleEndian.Uint32(data)), nil
	case kindFloat32:
		return decodeFloat32(data)
	case kindString:
		return string(data), nil
	case kindUptime:
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: want 4 bytes, got %d", device.ErrMalformedValue, len(data))
		}
		seconds := binary.LittleEndian.Uint32(data)
		return now.Add(-time.Duration(seconds) * time.Second).Truncate(time.Second), nil
	default:
		return nil, fmt.Errorf("%w: kind %d", device.ErrUnknownOperation, kind)
	}
}

func decodeFloat32(data []byte) (float64, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: want 4 bytes, got %d", device.ErrMalformedValue, len(data))
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), nil
}

func decodeUint16(data []byte) (float64, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("%w: want 2 bytes, got %d", device.ErrMalformedValue, len(data))
	}
	return float64(binary.LittleEndian.Uint16(data)), nil
}

// metricSpec describes the notification behind a live metric
type metricSpec struct {
	char    string
	convert func(data []byte) (float64, error)
}

var metricSpecs = map[device.Metric]metricSpec{
	device.MetricSunlight:                 {charSunlight, rawConverter(SunlightFromRaw)},
	device.MetricSoilTemperature:          {charSoilTemperature, rawConverter(TemperatureFromRaw)},
	device.MetricAirTemperature:           {charAirTemperature, rawConverter(TemperatureFromRaw)},
	device.MetricSoilMoisture:             {charSoilMoisture, rawConverter(SoilMoistureFromRaw)},
	device.MetricCalibratedSoilMoisture:   {charCalibratedSoilMoisture, decodeFloat32},
	device.MetricCalibratedAirTemperature: {charCalibratedAirTemperature, decodeFloat32},
	device.MetricCalibratedSunlight:       {charCalibratedSunlight, decodeFloat32},
	device.MetricCalibratedEa:             {charCalibratedEa, decodeFloat32},
	device.MetricCalibratedEcb:            {charCalibratedEcb, decodeFloat32},
	device.MetricCalibratedEcPorous:       {charCalibratedEcPorous, decodeFloat32},
}

func rawConverter(fn func(raw float64) float64) func([]byte) (float64, error) {
	return func(data []byte) (float64, error) {
		raw, err := decodeUint16(data)
		if err != nil {
			return 0, err
		}
		return fn(raw), nil
	}
}

// SunlightFromRaw converts the raw light sensor reading to mol/m²/d
func SunlightFromRaw(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return 0.0864 * (192773.17 * math.Pow(raw, -1.0606619))
}

// TemperatureFromRaw converts a raw thermistor reading to °C, clamped to the sensor range
func TemperatureFromRaw(raw float64) float64 {
	t := 0.00000003044*math.Pow(raw, 3) - 0.00008038*math.Pow(raw, 2) + raw*0.1149 - 30.45
	return clamp(t, -10, 55)
}

// SoilMoistureFromRaw converts a raw capacitance reading to volumetric water content in %
func SoilMoistureFromRaw(raw float64) float64 {
	m := 11.4293 + (0.0000000010698*math.Pow(raw, 4) -
		0.00000152538*math.Pow(raw, 3) +
		0.000866976*math.Pow(raw, 2) -
		0.169422*raw)
	m = 100 * (0.0000045*math.Pow(m, 3) - 0.00055*math.Pow(m, 2) + 0.0292*m - 0.053)
	return clamp(m, 0, 60)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
