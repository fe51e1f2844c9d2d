package socket

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by Send when no live transport exists.
// Fire-and-forget callers (search cancel) ignore it.
var ErrNotConnected = errors.New("socket: not connected")

// ErrSendBufferFull is returned by Send when the write pump is saturated.
var ErrSendBufferFull = errors.New("socket: send buffer full")

// ConnectivityError reports that the transport could not be (re)established
// within the configured attempt budget. Published on the bus as conn.error;
// the caller decides whether to retry manually.
type ConnectivityError struct {
	Attempts int
	Last     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connection failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ConnectivityError) Unwrap() error { return e.Last }

// AuthenticationError reports that the server rejected the register
// handshake. Never retried automatically.
type AuthenticationError struct {
	Identity string
	Reason   string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("identity %q rejected by server: %s", e.Identity, e.Reason)
}
