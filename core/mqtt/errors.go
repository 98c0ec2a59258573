package mqtt

import "errors"

// ErrNotConnected is returned when the broker connection is down.
var ErrNotConnected = errors.New("mqtt client not connected")

// ErrInvalidReading is returned for production payloads that cannot be used.
var ErrInvalidReading = errors.New("invalid production reading")
