package types

import "errors"

var (
	// ErrMalformedFrame is returned when a wire frame cannot be decoded.
	// A frame that fails to decode is dropped; no reply is sent.
	ErrMalformedFrame = errors.New("generals: malformed wire frame")

	// ErrUnsupportedAction is returned when a frame's action is not one
	// of order, client_order, or response.
	ErrUnsupportedAction = errors.New("generals: unsupported frame action")

	// ErrNotPrimary is returned when a client_order lands on a peer that
	// is not the current primary.
	ErrNotPrimary = errors.New("generals: client_order received by a non-primary peer")
)
