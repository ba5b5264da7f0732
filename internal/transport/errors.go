package transport

import "errors"

var (
	errNotConnected = errors.New("transport: target not connected")
	errInboxFull    = errors.New("transport: target inbox full")
)
