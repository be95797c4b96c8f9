package transport

import "errors"

// Transport errors
var (
	ErrNotConnected     = errors.New("transport is not connected")
	ErrAlreadyConnected = errors.New("transport is already connected")
	ErrInvalidServerURL = errors.New("invalid server url")
	ErrInvalidMessage   = errors.New("invalid message")
)
