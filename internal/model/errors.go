package model

import "errors"

var (
	// ErrProtocolMismatch is returned when a connect request is not a
	// WebSocket upgrade request.
	ErrProtocolMismatch = errors.New("websocket upgrade required")

	// ErrMethodNotAllowed is returned when a connect request uses a method
	// other than GET.
	ErrMethodNotAllowed = errors.New("connect endpoint only accepts GET")

	// ErrUnknownSession is returned when a message arrives from a connection
	// with no resolvable session record.
	ErrUnknownSession = errors.New("unknown session")

	// ErrCorruptAttachment is returned when a stored attachment cannot be
	// decoded into a session record.
	ErrCorruptAttachment = errors.New("corrupt attachment")

	// ErrHubNotFound is returned when a hub instance is not found.
	ErrHubNotFound = errors.New("hub instance not found")
)
