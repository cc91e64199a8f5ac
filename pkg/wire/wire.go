// Package wire implements the length-prefixed framing shared by every
// rendez TCP link. A frame is an 8-byte header followed by the payload:
// the payload length as a 32-bit big-endian word, the bitwise complement
// of that word, then the payload bytes. The complement acts as a cheap
// synchronization sentinel: the links carry heterogeneous payloads (JSON
// records and raw UTF-8 text) with no type tag, so a desynced stream is
// detected on the next header instead of being misparsed.
//
// A frame with an empty payload is the heartbeat used for liveness on
// every link.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the fixed length of a frame header.
	HeaderSize = 8
	// MaxPayload bounds the declared payload length of a single frame.
	MaxPayload = 1<<31 - 1
)

func putHeader(b []byte, n uint32) {
	binary.BigEndian.PutUint32(b, n)
	binary.BigEndian.PutUint32(b[4:], ^n)
}

func parseHeader(b []byte) (uint32, error) {
	n := binary.BigEndian.Uint32(b)
	if ^n != binary.BigEndian.Uint32(b[4:]) || n > MaxPayload {
		e := new(HeaderError)
		copy(e.Header[:], b)
		return 0, e
	}
	return n, nil
}

// Write frames payload onto w. Header and payload go out in a single
// Write call, so no partial frame is ever exposed to a concurrent writer
// on the same connection. A nil or empty payload produces a heartbeat.
func Write(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("payload of %d bytes exceeds frame limit", len(payload))
	}
	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// WriteHeartbeat sends an empty-payload frame.
func WriteHeartbeat(w io.Writer) error {
	return Write(w, nil)
}

// Read blocks until one complete frame is consumed from r and returns its
// payload. A heartbeat yields an empty, non-nil payload. ErrClosed is
// returned when the stream ends on a frame boundary; a stream cut inside
// a frame yields a TruncatedError.
func Read(r io.Reader) ([]byte, error) {
	var head [HeaderSize]byte
	n, err := io.ReadFull(r, head[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &TruncatedError{Stage: stageHeader, Want: HeaderSize, Got: n}
		}
		return nil, err
	}
	length, err := parseHeader(head[:])
	if err != nil {
		return nil, err
	}
	body := make([]byte, length)
	if length == 0 {
		return body, nil
	}
	m, err := io.ReadFull(r, body)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &TruncatedError{Stage: stageBody, Want: int(length), Got: m}
		}
		return nil, err
	}
	return body, nil
}
