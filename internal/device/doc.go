// Package device defines the transport contract used by a Flower Power session.
//
// The contract mirrors what a BLE binding exposes for one sensor:
//   - Scanner yields device handles discovered over the air
//   - Handle performs named characteristic reads, live-mode toggling,
//     history retrieval and firmware pushes
//   - Peripheral reports connectivity state and connect/disconnect events
//   - Listeners are detachable so a session can release a handle it does not own
//
// The go-ble implementation lives in the goble subpackage.
package device
