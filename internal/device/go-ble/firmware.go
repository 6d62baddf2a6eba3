package goble

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// OAD image layout
const (
	oadBlockSize = 16
	// identify payload: version, length, user id and reserved bytes of the image header
	oadHeaderOffset = 4
	oadHeaderSize   = 12
)

// oadBlocks splits an image into indexed OAD block writes, padding the tail with 0xff
func oadBlocks(image []byte) [][]byte {
	n := (len(image) + oadBlockSize - 1) / oadBlockSize
	blocks := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		chunk := image[i*oadBlockSize : min((i+1)*oadBlockSize, len(image))]
		block := make([]byte, 2, 2+oadBlockSize)
		binary.LittleEndian.PutUint16(block, uint16(i))
		block = append(block, chunk...)
		if pad := oadBlockSize - len(chunk); pad > 0 {
			block = append(block, bytes.Repeat([]byte{0xff}, pad)...)
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// UpdateFirmware flashes image over the OAD service.
// The sensor reboots into the new image once the last block is written.
func (f *FlowerPower) UpdateFirmware(ctx context.Context, image []byte) error {
	if len(image) < oadHeaderOffset+oadHeaderSize {
		return fmt.Errorf("firmware image too short: %d bytes", len(image))
	}
	blocks := oadBlocks(image)
	if len(blocks) > 0xffff {
		return fmt.Errorf("firmware image too large: %d blocks", len(blocks))
	}

	header := image[oadHeaderOffset : oadHeaderOffset+oadHeaderSize]
	if err := f.write(ctx, charOADIdentify, header, false); err != nil {
		return fmt.Errorf("identify image: %w", err)
	}

	f.logger.WithFields(logrus.Fields{
		"device": f.id,
		"bytes":  len(image),
		"blocks": len(blocks),
	}).Info("Writing firmware image...")

	for i, block := range blocks {
		if err := f.write(ctx, charOADBlock, block, true); err != nil {
			return fmt.Errorf("block %d/%d: %w", i+1, len(blocks), err)
		}
		if f.writeDelay > 0 {
			timer := time.NewTimer(f.writeDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if (i+1)%256 == 0 {
			f.logger.WithFields(logrus.Fields{
				"device":  f.id,
				"written": i + 1,
				"total":   len(blocks),
			}).Debug("Firmware progress")
		}
	}

	f.logger.WithField("device", f.id).Info("Firmware image written")
	return nil
}
