package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ble/ble"

	"github.com/srg/fpctl/internal/device"
)

type gattWrite struct {
	uuid  string
	value []byte
	noRsp bool
}

// fakeClient is an in-memory GATT client exposing the full Flower Power profile
type fakeClient struct {
	mu           sync.Mutex
	profile      *ble.Profile
	values       map[string][]byte
	writes       []gattWrite
	handlers     map[string]ble.NotificationHandler
	unsubscribed []string
	cancelled    int

	readErr      error
	subscribeErr map[string]error
	discoverErr  error
	onDiscover   func()
	onWrite      func(uuid string, value []byte)
}

func flowerPowerProfile() *ble.Profile {
	services := map[string][]string{
		LiveServiceUUID: {
			charSunlight, charSoilTemperature, charAirTemperature, charSoilMoisture, charLivePeriod,
			charCalibratedSoilMoisture, charCalibratedAirTemperature, charCalibratedSunlight,
			charCalibratedEa, charCalibratedEcb, charCalibratedEcPorous,
		},
		UploadServiceUUID: {charTxBuffer, charTxStatus, charRxStatus},
		HistoryServiceUUID: {
			charHistoryNbEntries, charHistoryLastEntryIdx, charHistoryTransferStartIdx,
			charHistorySessionID, charHistorySessionStartIdx, charHistorySessionPeriod,
		},
		ClockServiceUUID: {charCurrentTime},
		DeviceInfoUUID:   {charFirmwareRevision, charHardwareRevision},
		OADServiceUUID:   {charOADIdentify, charOADBlock},
	}

	profile := &ble.Profile{}
	for svcUUID, chars := range services {
		svc := &ble.Service{UUID: ble.MustParse(svcUUID)}
		for _, c := range chars {
			svc.Characteristics = append(svc.Characteristics, &ble.Characteristic{UUID: ble.MustParse(c)})
		}
		profile.Services = append(profile.Services, svc)
	}
	return profile
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		profile:      flowerPowerProfile(),
		values:       make(map[string][]byte),
		handlers:     make(map[string]ble.NotificationHandler),
		subscribeErr: make(map[string]error),
	}
}

func (c *fakeClient) set(uuid string, value []byte) *fakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[uuid] = value
	return c
}

func (c *fakeClient) ReadCharacteristic(char *ble.Characteristic) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	v, ok := c.values[device.NormalizeUUID(char.UUID.String())]
	if !ok {
		return nil, errors.New("attribute not readable")
	}
	return v, nil
}

func (c *fakeClient) WriteCharacteristic(char *ble.Characteristic, value []byte, noRsp bool) error {
	uuid := device.NormalizeUUID(char.UUID.String())
	c.mu.Lock()
	c.writes = append(c.writes, gattWrite{uuid: uuid, value: append([]byte(nil), value...), noRsp: noRsp})
	hook := c.onWrite
	c.mu.Unlock()

	if hook != nil {
		hook(uuid, value)
	}
	return nil
}

func (c *fakeClient) Subscribe(char *ble.Characteristic, _ bool, h ble.NotificationHandler) error {
	uuid := device.NormalizeUUID(char.UUID.String())
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.subscribeErr[uuid]; err != nil {
		return err
	}
	c.handlers[uuid] = h
	return nil
}

func (c *fakeClient) Unsubscribe(char *ble.Characteristic, _ bool) error {
	uuid := device.NormalizeUUID(char.UUID.String())
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, uuid)
	c.unsubscribed = append(c.unsubscribed, uuid)
	return nil
}

func (c *fakeClient) DiscoverProfile(bool) (*ble.Profile, error) {
	if c.onDiscover != nil {
		c.onDiscover()
	}
	if c.discoverErr != nil {
		return nil, c.discoverErr
	}
	return c.profile, nil
}

func (c *fakeClient) CancelConnection() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled++
	return nil
}

// notify delivers a notification to the current subscriber of uuid
func (c *fakeClient) notify(uuid string, data []byte) bool {
	c.mu.Lock()
	h := c.handlers[uuid]
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// handler returns the current subscriber of uuid, for delivering after unsubscribe
func (c *fakeClient) handler(uuid string) ble.NotificationHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[uuid]
}

func (c *fakeClient) subscribed(uuid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[uuid]
	return ok
}

func (c *fakeClient) writesTo(uuid string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, w := range c.writes {
		if w.uuid == uuid {
			out = append(out, w.value)
		}
	}
	return out
}

func dialTo(client *fakeClient) dialFunc {
	return func(context.Context, string) (gattClient, error) {
		return client, nil
	}
}

// fakeAdvertisement is a canned advert
type fakeAdvertisement struct {
	name     string
	addr     string
	rssi     int
	services []ble.UUID
}

func (a fakeAdvertisement) LocalName() string    { return a.name }
func (a fakeAdvertisement) Addr() ble.Addr       { return ble.NewAddr(a.addr) }
func (a fakeAdvertisement) RSSI() int            { return a.rssi }
func (a fakeAdvertisement) Services() []ble.UUID { return a.services }
