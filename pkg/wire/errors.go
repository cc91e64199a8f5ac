package wire

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when the remote side closed the connection on a
// frame boundary, before any header byte of the next frame arrived.
var ErrClosed = errors.New("connection closed by remote")

// HeaderError is returned when eight header bytes fail the complement
// check. It carries the raw bytes for diagnostics. Framing cannot be
// recovered after this, no resynchronization is attempted: the caller is
// expected to drop the connection.
type HeaderError struct {
	Header [HeaderSize]byte
}

// Error implements the error interface.
func (e *HeaderError) Error() string {
	return fmt.Sprintf("not a frame header: %x", e.Header)
}

// TruncatedError is returned when the stream ended inside a header or a
// body. Stage tells which phase was cut short.
type TruncatedError struct {
	Stage string // "header" or "body"
	Want  int
	Got   int
}

// Error implements the error interface.
func (e *TruncatedError) Error() string {
	return fmt.Sprintf("%s truncated: got %d of %d bytes", e.Stage, e.Got, e.Want)
}

const (
	stageHeader = "header"
	stageBody   = "body"
)
