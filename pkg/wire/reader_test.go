package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timeoutError mimics a read deadline expiring on a net.Conn.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// chunkStream hands out its chunks one Read at a time. An empty chunk is
// delivered as a zero-byte read with a timeout error, simulating a
// deadline firing between scheduler wakeups.
type chunkStream struct {
	chunks [][]byte
	idx    int
}

func (s *chunkStream) Read(p []byte) (int, error) {
	if s.idx >= len(s.chunks) {
		return 0, io.EOF
	}
	chunk := s.chunks[s.idx]
	if len(chunk) == 0 {
		s.idx++
		return 0, timeoutError{}
	}
	n := copy(p, chunk)
	if n == len(chunk) {
		s.idx++
	} else {
		s.chunks[s.idx] = chunk[n:]
	}
	return n, nil
}

func frame(t *testing.T, payload []byte) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, Write(buf, payload))
	return buf.Bytes()
}

func TestReaderWholeFrameAtOnce(t *testing.T) {
	var rd Reader
	ok, err := rd.Poll(bytes.NewReader(frame(t, []byte("hello"))))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(rd.Take()))
}

func TestReaderOneByteChunks(t *testing.T) {
	var rd Reader
	r := iotest.OneByteReader(bytes.NewReader(frame(t, []byte("hello"))))

	ok, err := rd.Poll(r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(rd.Take()))
}

func TestReaderSurvivesDeadlines(t *testing.T) {
	raw := frame(t, []byte("fragmented"))
	// Deliver the frame in ragged pieces with deadline expiries between
	// them, splitting both the header and the body.
	s := &chunkStream{chunks: [][]byte{
		{}, raw[:3], {}, {}, raw[3:9], {}, raw[9:11], raw[11:], {},
	}}

	var (
		rd    Reader
		ok    bool
		err   error
		polls int
	)
	for !ok {
		ok, err = rd.Poll(s)
		require.NoError(t, err)
		polls++
		require.Less(t, polls, 20, "reader must make progress")
	}
	assert.Equal(t, "fragmented", string(rd.Take()))
}

func TestReaderTwoFramesSameStream(t *testing.T) {
	raw := append(frame(t, []byte("one")), frame(t, []byte("two"))...)
	r := iotest.OneByteReader(bytes.NewReader(raw))

	var rd Reader
	ok, err := rd.Poll(r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "one", string(rd.Take()))

	ok, err = rd.Poll(r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", string(rd.Take()))
}

func TestReaderHeartbeat(t *testing.T) {
	var rd Reader
	ok, err := rd.Poll(bytes.NewReader(frame(t, nil)))
	require.NoError(t, err)
	require.True(t, ok)

	got := rd.Take()
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReaderBadSentinelResets(t *testing.T) {
	bad := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(bad, 1)
	binary.BigEndian.PutUint32(bad[4:], 42)
	raw := append(bad, frame(t, []byte("after"))...)
	r := bytes.NewReader(raw)

	var rd Reader
	ok, err := rd.Poll(r)
	require.False(t, ok)
	var herr *HeaderError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, bad, herr.Header[:])

	// The reader is reusable after the reset; the stream position is
	// whatever it is, here conveniently the next frame.
	ok, err = rd.Poll(r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "after", string(rd.Take()))
}

func TestReaderPeerClosed(t *testing.T) {
	var rd Reader
	_, err := rd.Poll(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReaderTruncatedHeader(t *testing.T) {
	var rd Reader
	_, err := rd.Poll(bytes.NewReader(frame(t, []byte("x"))[:4]))
	var terr *TruncatedError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "header", terr.Stage)
	assert.Equal(t, 4, terr.Got)
}

func TestReaderTruncatedBody(t *testing.T) {
	var rd Reader
	_, err := rd.Poll(bytes.NewReader(frame(t, []byte("abcdef"))[:HeaderSize+3]))
	var terr *TruncatedError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "body", terr.Stage)
	assert.Equal(t, 6, terr.Want)
	assert.Equal(t, 3, terr.Got)
}

func TestReaderTakeWithoutFrame(t *testing.T) {
	var rd Reader
	assert.Nil(t, rd.Take())
}

func TestReaderDeadlineOnBoundary(t *testing.T) {
	s := &chunkStream{chunks: [][]byte{{}}}
	var rd Reader
	ok, err := rd.Poll(s)
	require.NoError(t, err)
	assert.False(t, ok)
}
