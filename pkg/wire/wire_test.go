package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte(`{"id":1,"name":"a"}`),
		bytes.Repeat([]byte{0xAB}, 4096),
	}
	for _, p := range payloads {
		buf := new(bytes.Buffer)
		require.NoError(t, Write(buf, p))
		got, err := Read(buf)
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.Zero(t, buf.Len(), "no trailing bytes after one frame")
	}
}

func TestHeartbeatIsHeaderOnly(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, WriteHeartbeat(buf))
	assert.Equal(t, HeaderSize, buf.Len())

	got, err := Read(buf)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestHeaderEncoding(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, Write(buf, []byte("abc")))

	head := buf.Bytes()[:HeaderSize]
	assert.Equal(t, uint32(3), binary.BigEndian.Uint32(head))
	assert.Equal(t, ^uint32(3), binary.BigEndian.Uint32(head[4:]))
}

func TestReadRejectsBadSentinel(t *testing.T) {
	head := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(head, 3)
	binary.BigEndian.PutUint32(head[4:], 3) // not the complement

	_, err := Read(bytes.NewReader(append(head, "abc"...)))
	var herr *HeaderError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, head, herr.Header[:])
}

func TestReadRejectsOversizedLength(t *testing.T) {
	head := make([]byte, HeaderSize)
	putHeader(head, MaxPayload+1)

	_, err := Read(bytes.NewReader(head))
	var herr *HeaderError
	require.ErrorAs(t, err, &herr)
}

func TestReadClosedStream(t *testing.T) {
	_, err := Read(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReadTruncatedHeader(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, Write(buf, []byte("abc")))

	_, err := Read(bytes.NewReader(buf.Bytes()[:5]))
	var terr *TruncatedError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "header", terr.Stage)
	assert.Equal(t, 5, terr.Got)
}

func TestReadTruncatedBody(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, Write(buf, []byte("abcdef")))

	_, err := Read(bytes.NewReader(buf.Bytes()[:HeaderSize+2]))
	var terr *TruncatedError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "body", terr.Stage)
	assert.Equal(t, 6, terr.Want)
	assert.Equal(t, 2, terr.Got)
}

func TestWriteCoversAllBytes(t *testing.T) {
	var w countingWriter
	err := Write(&w, make([]byte, 1))
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+1, w.n)
}

type countingWriter struct{ n int }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}

func TestReadSequentialFrames(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, Write(buf, []byte("first")))
	require.NoError(t, WriteHeartbeat(buf))
	require.NoError(t, Write(buf, []byte("second")))

	got, err := Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	got, err = Read(buf)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	_, err = Read(buf)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReadPropagatesIOErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Read(&failingReader{err: boom})
	assert.ErrorIs(t, err, boom)
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestReadLargePayload(t *testing.T) {
	p := []byte(strings.Repeat("rendezvous", 10000))
	buf := new(bytes.Buffer)
	require.NoError(t, Write(buf, p))

	got, err := Read(io.LimitReader(buf, int64(buf.Len())))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
