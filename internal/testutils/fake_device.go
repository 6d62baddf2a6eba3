package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/srg/fpctl/internal/device"
)

// Call is one recorded invocation on a FakeHandle
type Call struct {
	Name string
	At   time.Time
}

// FakePeripheral is a scriptable device.Peripheral
type FakePeripheral struct {
	mu         sync.Mutex
	state      device.ConnectivityState
	connect    device.Listeners[struct{}]
	disconnect device.Listeners[struct{}]
	removeAll  int
}

// NewFakePeripheral creates a peripheral reporting the given state
func NewFakePeripheral(state device.ConnectivityState) *FakePeripheral {
	return &FakePeripheral{state: state}
}

func (p *FakePeripheral) State() device.ConnectivityState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState changes the reported state without firing events
func (p *FakePeripheral) SetState(state device.ConnectivityState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

func (p *FakePeripheral) OnConnect(fn func()) func() {
	return p.connect.Add(func(struct{}) { fn() })
}

func (p *FakePeripheral) OnDisconnect(fn func()) func() {
	return p.disconnect.Add(func(struct{}) { fn() })
}

// FireConnect moves to connected and notifies connect listeners
func (p *FakePeripheral) FireConnect() {
	p.SetState(device.StateConnected)
	p.connect.Emit(struct{}{})
}

// FireDisconnect moves to disconnected and notifies disconnect listeners
func (p *FakePeripheral) FireDisconnect() {
	p.SetState(device.StateDisconnected)
	p.disconnect.Emit(struct{}{})
}

func (p *FakePeripheral) RemoveAllListeners() {
	p.connect.Clear()
	p.disconnect.Clear()
	p.mu.Lock()
	p.removeAll++
	p.mu.Unlock()
}

// ListenerCount returns the number of attached connect and disconnect listeners
func (p *FakePeripheral) ListenerCount() int {
	return p.connect.Len() + p.disconnect.Len()
}

// RemoveAllCount returns how many times RemoveAllListeners was called
func (p *FakePeripheral) RemoveAllCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeAll
}

// FakeHandle is a scriptable device.Handle. Configure it with the With* methods
// before handing it to the code under test.
type FakeHandle struct {
	id         string
	name       string
	rssi       int
	peripheral *FakePeripheral

	mu         sync.Mutex
	values     map[device.ReadOperation]any
	readErrs   map[device.ReadOperation]error
	readDelays map[device.ReadOperation]time.Duration
	history    []byte
	historyErr error
	connectErr error
	// connectDelay < 0 blocks ConnectAndSetup until its context is done
	connectDelay   time.Duration
	connectNoEvent bool
	disconnectErr  error
	enableErr      error
	disableErr     error
	updateErr      error
	calls          []Call
	historyStarts  []int
	firmware       []byte
	removeAll      int

	metrics map[device.Metric]*device.Listeners[float64]
}

// NewFakeHandle creates a disconnected Flower Power handle with FlowerPowerValues
func NewFakeHandle(id string) *FakeHandle {
	h := &FakeHandle{
		id:         id,
		name:       "Flower power " + device.ShortenID(id),
		rssi:       -60,
		peripheral: NewFakePeripheral(device.StateDisconnected),
		values:     FlowerPowerValues(),
		readErrs:   map[device.ReadOperation]error{},
		readDelays: map[device.ReadOperation]time.Duration{},
		metrics:    map[device.Metric]*device.Listeners[float64]{},
	}
	for _, m := range device.LiveMetrics {
		h.metrics[m] = &device.Listeners[float64]{}
	}
	return h
}

// FlowerPowerValues returns read values of a sensor holding entries 81..100
func FlowerPowerValues() map[device.ReadOperation]any {
	return map[device.ReadOperation]any{
		device.OpStartupTime:                   time.Date(2016, 4, 1, 8, 0, 0, 0, time.UTC),
		device.OpFirmwareRevision:              "2016-03-14_hawaii-2.0.3_hw-1.1\x00\x00",
		device.OpHardwareRevision:              "1.1\x00",
		device.OpHistoryNbEntries:              20,
		device.OpHistoryLastEntryIdx:           100,
		device.OpHistoryCurrentSessionID:       7,
		device.OpHistoryCurrentSessionPeriod:   900,
		device.OpHistoryCurrentSessionStartIdx: 1,
		device.OpCalibratedSoilMoisture:        23.4,
	}
}

func (h *FakeHandle) WithState(state device.ConnectivityState) *FakeHandle {
	h.peripheral.SetState(state)
	return h
}

func (h *FakeHandle) WithName(name string) *FakeHandle {
	h.name = name
	return h
}

func (h *FakeHandle) WithRSSI(rssi int) *FakeHandle {
	h.rssi = rssi
	return h
}

func (h *FakeHandle) WithValue(op device.ReadOperation, v any) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values[op] = v
	return h
}

func (h *FakeHandle) WithReadError(op device.ReadOperation, err error) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readErrs[op] = err
	return h
}

func (h *FakeHandle) WithReadDelay(op device.ReadOperation, d time.Duration) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readDelays[op] = d
	return h
}

func (h *FakeHandle) WithHistory(buf []byte, err error) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history, h.historyErr = buf, err
	return h
}

// WithConnect scripts ConnectAndSetup: it waits delay (forever when negative),
// then fires the connect event unless err is set, and returns err.
func (h *FakeHandle) WithConnect(delay time.Duration, err error) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectDelay, h.connectErr = delay, err
	return h
}

// WithoutConnectEvent makes a successful ConnectAndSetup skip the connect event
func (h *FakeHandle) WithoutConnectEvent() *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectNoEvent = true
	return h
}

func (h *FakeHandle) WithDisconnectError(err error) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectErr = err
	return h
}

func (h *FakeHandle) WithLiveErrors(enable, disable error) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enableErr, h.disableErr = enable, disable
	return h
}

func (h *FakeHandle) WithUpdateError(err error) *FakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updateErr = err
	return h
}

func (h *FakeHandle) record(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Name: name, At: time.Now()})
}

// Calls returns every recorded call in order
func (h *FakeHandle) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Call, len(h.calls))
	copy(out, h.calls)
	return out
}

// CallNames returns the names of recorded calls in order
func (h *FakeHandle) CallNames() []string {
	calls := h.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return names
}

// Called reports whether a call with the given name was recorded
func (h *FakeHandle) Called(name string) bool {
	for _, c := range h.Calls() {
		if c.Name == name {
			return true
		}
	}
	return false
}

// HistoryStarts returns the start indexes GetHistory was called with
func (h *FakeHandle) HistoryStarts() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.historyStarts...)
}

// Firmware returns the last image passed to UpdateFirmware
func (h *FakeHandle) Firmware() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.firmware
}

// FakePeripheral returns the concrete peripheral for event scripting
func (h *FakeHandle) FakePeripheral() *FakePeripheral {
	return h.peripheral
}

// EmitMetric notifies the listeners of one live metric
func (h *FakeHandle) EmitMetric(m device.Metric, v float64) {
	if l, ok := h.metrics[m]; ok {
		l.Emit(v)
	}
}

// MetricListenerCount returns the number of attached metric listeners
func (h *FakeHandle) MetricListenerCount() int {
	n := 0
	for _, l := range h.metrics {
		n += l.Len()
	}
	return n
}

// RemoveAllCount returns how many times RemoveAllListeners was called on the handle
func (h *FakeHandle) RemoveAllCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeAll
}

// Released reports whether both the handle and its peripheral were stripped of listeners
func (h *FakeHandle) Released() bool {
	return h.RemoveAllCount() > 0 && h.peripheral.RemoveAllCount() > 0
}

func (h *FakeHandle) ID() string                     { return h.id }
func (h *FakeHandle) Name() string                   { return h.name }
func (h *FakeHandle) RSSI() int                      { return h.rssi }
func (h *FakeHandle) Peripheral() device.Peripheral { return h.peripheral }

func (h *FakeHandle) ConnectAndSetup(ctx context.Context) error {
	h.record("ConnectAndSetup")
	h.mu.Lock()
	delay, err, noEvent := h.connectDelay, h.connectErr, h.connectNoEvent
	h.mu.Unlock()

	h.peripheral.SetState(device.StateConnecting)
	if err := sleep(ctx, delay); err != nil {
		return err
	}
	if err != nil {
		h.peripheral.SetState(device.StateDisconnected)
		return err
	}
	if noEvent {
		h.peripheral.SetState(device.StateConnected)
	} else {
		h.peripheral.FireConnect()
	}
	return nil
}

func (h *FakeHandle) Disconnect(context.Context) error {
	h.record("Disconnect")
	h.mu.Lock()
	err := h.disconnectErr
	h.mu.Unlock()
	if err != nil {
		return err
	}
	h.peripheral.FireDisconnect()
	return nil
}

func (h *FakeHandle) Read(ctx context.Context, op device.ReadOperation) (any, error) {
	h.record("Read:" + string(op))
	h.mu.Lock()
	v, ok := h.values[op]
	err := h.readErrs[op]
	delay := h.readDelays[op]
	h.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrUnknownOperation, op)
	}
	return v, nil
}

func (h *FakeHandle) GetHistory(_ context.Context, startIndex int) ([]byte, error) {
	h.record("GetHistory")
	h.mu.Lock()
	defer h.mu.Unlock()
	h.historyStarts = append(h.historyStarts, startIndex)
	return h.history, h.historyErr
}

func (h *FakeHandle) EnableLiveMode(context.Context) error {
	h.record("EnableLiveMode")
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enableErr
}

func (h *FakeHandle) DisableLiveMode(context.Context) error {
	h.record("DisableLiveMode")
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disableErr
}

func (h *FakeHandle) OnMetric(m device.Metric, fn func(float64)) func() {
	h.record("OnMetric:" + string(m))
	l, ok := h.metrics[m]
	if !ok {
		return func() {}
	}
	return l.Add(fn)
}

func (h *FakeHandle) UpdateFirmware(_ context.Context, image []byte) error {
	h.record("UpdateFirmware")
	h.mu.Lock()
	defer h.mu.Unlock()
	h.firmware = image
	return h.updateErr
}

func (h *FakeHandle) RemoveAllListeners() {
	for _, l := range h.metrics {
		l.Clear()
	}
	h.mu.Lock()
	h.removeAll++
	h.mu.Unlock()
}

// sleep waits d, forever when d < 0, returning early with the context error
func sleep(ctx context.Context, d time.Duration) error {
	if d == 0 {
		return nil
	}
	if d < 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FakeScanner is a scriptable device.Scanner. Each DiscoverAll call emits the
// handles of the next plan entry (the last entry repeats), Interval apart, then
// blocks until its context is cancelled.
type FakeScanner struct {
	Plan     [][]device.Handle
	Interval time.Duration
	Err      error

	mu    sync.Mutex
	scans int
}

// NewFakeScanner creates a scanner that emits the same handles on every scan
func NewFakeScanner(handles ...device.Handle) *FakeScanner {
	return &FakeScanner{Plan: [][]device.Handle{handles}}
}

// Scans returns how many times DiscoverAll was called
func (s *FakeScanner) Scans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans
}

func (s *FakeScanner) DiscoverAll(ctx context.Context, onDevice func(device.Handle)) error {
	s.mu.Lock()
	n := s.scans
	s.scans++
	s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	var handles []device.Handle
	if len(s.Plan) > 0 {
		handles = s.Plan[min(n, len(s.Plan)-1)]
	}
	for _, h := range handles {
		if err := sleep(ctx, s.Interval); err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		onDevice(h)
	}
	<-ctx.Done()
	return nil
}
