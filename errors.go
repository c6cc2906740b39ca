package shopassist

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned for operations that need an active
	// session. Surface it to users as "activate the session first".
	ErrNotConnected = errors.New("session is not connected, activate the session first")
	ErrProtocol     = errors.New("protocol violation")

	errAborted        = errors.New("connect aborted by disconnect")
	errConnectionLost = errors.New("connection lost")
)

// ConnectionError is transient; callers may retry Connect.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError describes a frame that does not fit the conversation state,
// e.g. a delta for an item that is unknown or already completed.
type ProtocolError struct {
	Frame  string
	ItemID string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s for item %q: %s", ErrProtocol, e.Frame, e.ItemID, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}
