package goble

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"

	"github.com/srg/fpctl/internal/device"
)

// Upload service status values
const (
	txStatusIdle         byte = 0
	txStatusTransferring byte = 1
	txStatusAwaitingAck  byte = 2
	txStatusError        byte = 3

	rxStatusStandby   byte = 0
	rxStatusReceiving byte = 1
	rxStatusAck       byte = 2
)

// frameHeaderSize is the little-endian frame index preceding every upload frame
const frameHeaderSize = 2

// maxHistorySize bounds the length the sensor may announce for a history file
const maxHistorySize = 1 << 20

// historyTransfer reassembles upload frames into one history file.
// Frame 0 announces the total length; later frames carry consecutive payload.
type historyTransfer struct {
	buf     *ringbuffer.RingBuffer
	total   int
	next    uint16
	started bool
}

// accept consumes one frame; done is true once the announced length arrived
func (t *historyTransfer) accept(frame []byte) (done bool, err error) {
	if len(frame) < frameHeaderSize {
		return false, fmt.Errorf("%w: upload frame of %d bytes", device.ErrMalformedValue, len(frame))
	}
	idx := binary.LittleEndian.Uint16(frame)
	payload := frame[frameHeaderSize:]

	if !t.started {
		if idx != 0 || len(payload) < 4 {
			return false, fmt.Errorf("%w: history transfer did not start with a header frame", device.ErrMalformedValue)
		}
		t.total = int(binary.LittleEndian.Uint32(payload))
		if t.total > maxHistorySize {
			return false, fmt.Errorf("%w: history of %d bytes", device.ErrMalformedValue, t.total)
		}
		t.buf = ringbuffer.New(max(t.total, 1))
		t.started = true
		t.next = 1
		return t.total == 0, nil
	}

	if idx != t.next {
		return false, fmt.Errorf("%w: expected frame %d, got %d", device.ErrMalformedValue, t.next, idx)
	}
	t.next++

	remaining := t.total - t.buf.Length()
	if len(payload) > remaining {
		payload = payload[:remaining]
	}
	if _, err := t.buf.Write(payload); err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return false, err
	}
	return t.buf.Length() >= t.total, nil
}

// bytes drains the reassembled file
func (t *historyTransfer) bytes() []byte {
	if t.buf == nil {
		return []byte{}
	}
	out := make([]byte, t.buf.Length())
	n, err := t.buf.TryRead(out)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return out[:0]
	}
	return out[:n]
}

// GetHistory uploads the sensor history starting at startIndex.
// The transfer ends when the announced length arrived, the sensor reports an
// error or ctx ends.
func (f *FlowerPower) GetHistory(ctx context.Context, startIndex int) ([]byte, error) {
	if startIndex < 0 {
		return nil, fmt.Errorf("invalid history start index %d", startIndex)
	}

	frames := make(chan []byte, 64)
	status := make(chan byte, 8)

	// Handlers stop delivering once GetHistory returns.
	xferCtx, stop := context.WithCancel(ctx)

	if err := f.subscribe(charTxBuffer, func(data []byte) {
		frame := append([]byte(nil), data...)
		select {
		case frames <- frame:
		case <-xferCtx.Done():
		}
	}); err != nil {
		stop()
		return nil, err
	}
	defer f.unsubscribe(charTxBuffer)

	if err := f.subscribe(charTxStatus, func(data []byte) {
		if len(data) == 0 {
			return
		}
		select {
		case status <- data[0]:
		case <-xferCtx.Done():
		default:
		}
	}); err != nil {
		stop()
		return nil, err
	}
	defer f.unsubscribe(charTxStatus)
	defer stop()

	idx := make([]byte, 4)
	binary.LittleEndian.PutUint32(idx, uint32(startIndex))
	if err := f.write(ctx, charHistoryTransferStartIdx, idx, false); err != nil {
		return nil, err
	}
	if err := f.write(ctx, charRxStatus, []byte{rxStatusReceiving}, false); err != nil {
		return nil, err
	}

	f.logger.WithFields(logrus.Fields{
		"device":      f.id,
		"start_index": startIndex,
	}).Debug("History transfer started")

	var transfer historyTransfer
	for {
		select {
		case frame := <-frames:
			done, err := transfer.accept(frame)
			if err != nil {
				return nil, err
			}
			if done {
				if err := f.write(ctx, charRxStatus, []byte{rxStatusStandby}, false); err != nil {
					f.logger.WithError(err).Debug("Failed to reset upload status")
				}
				history := transfer.bytes()
				f.logger.WithFields(logrus.Fields{
					"device": f.id,
					"bytes":  len(history),
				}).Debug("History transfer complete")
				return history, nil
			}
		case s := <-status:
			switch s {
			case txStatusAwaitingAck:
				if err := f.write(ctx, charRxStatus, []byte{rxStatusAck}, false); err != nil {
					return nil, err
				}
			case txStatusError:
				return nil, errTransferAborted
			case txStatusIdle, txStatusTransferring:
				// frames may still be queued behind the status change
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
