package wire

import (
	"errors"
	"io"
	"net"
)

// Reader reassembles frames from a stream that may deliver bytes in
// arbitrarily small chunks. Header and body collection are independent
// phases: the body buffer is allocated only after all eight header bytes
// arrived and passed the complement check, and no read ever goes past the
// declared body length. Partial state survives across calls, so one
// Reader handles any number of read deadlines and short reads on the same
// connection.
//
// The zero value is ready to use.
type Reader struct {
	head   [HeaderSize]byte
	hn     int
	body   []byte
	bn     int
	inBody bool
	ready  bool
}

// Poll reads from r until a frame completes, the connection reports a
// read deadline, or an error occurs. It returns true when a frame is
// ready for Take. A (false, nil) return means no more progress is
// possible right now and the caller should poll again once r is readable.
//
// A complement-check failure resets the Reader and surfaces a
// HeaderError; the stream is left where it is.
func (rd *Reader) Poll(r io.Reader) (bool, error) {
	for !rd.ready {
		var (
			n   int
			err error
		)
		if !rd.inBody {
			n, err = r.Read(rd.head[rd.hn:])
			rd.hn += n
			if rd.hn == HeaderSize {
				length, perr := parseHeader(rd.head[:])
				if perr != nil {
					rd.Reset()
					return false, perr
				}
				rd.inBody = true
				rd.body = make([]byte, length)
				rd.bn = 0
			}
		} else {
			n, err = r.Read(rd.body[rd.bn:])
			rd.bn += n
		}
		if rd.inBody && rd.bn == len(rd.body) {
			rd.ready = true
		}
		if err != nil {
			if isDeadline(err) {
				return rd.ready, nil
			}
			if errors.Is(err, io.EOF) {
				switch {
				case rd.ready:
					return true, nil
				case !rd.inBody && rd.hn == 0:
					return false, ErrClosed
				case !rd.inBody:
					return false, &TruncatedError{Stage: stageHeader, Want: HeaderSize, Got: rd.hn}
				default:
					return false, &TruncatedError{Stage: stageBody, Want: len(rd.body), Got: rd.bn}
				}
			}
			return false, err
		}
	}
	return true, nil
}

// Take returns the completed frame payload and resets the Reader for the
// next frame on the same stream. It returns nil when no frame is ready.
func (rd *Reader) Take() []byte {
	if !rd.ready {
		return nil
	}
	body := rd.body
	rd.Reset()
	return body
}

// Reset drops any partial state and returns the Reader to header
// collection.
func (rd *Reader) Reset() {
	rd.hn = 0
	rd.bn = 0
	rd.body = nil
	rd.inBody = false
	rd.ready = false
}

func isDeadline(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
