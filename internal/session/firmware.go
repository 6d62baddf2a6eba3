package session

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Update pushes a firmware image to the sensor. The handle's outcome is returned unchanged.
func (s *Session) Update(ctx context.Context, image []byte) error {
	h, err := s.requireHandle()
	if err != nil {
		return err
	}

	s.Record(StatusUpdate, false)
	s.logger.WithFields(logrus.Fields{
		"device": s.id,
		"bytes":  len(image),
	}).Info("Updating firmware")

	return h.UpdateFirmware(ctx, image)
}
