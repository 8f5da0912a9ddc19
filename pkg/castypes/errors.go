package castypes

import (
	"errors"
)

var (
	// store response did not carry a checksum attribute. fatal for the read
	// in progress - we never fall back to trusting content silently.
	ErrNoChecksum = errors.New("no checksum for object")

	// computed digest does not match the checksum the store reported. the
	// wrapping error always names both values.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)
