package nodeclient

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multiplexFrame(kind StreamKind, payload string) []byte {
	header := make([]byte, frameHeaderSize)
	header[0] = byte(kind)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	return append(header, []byte(payload)...)
}

func TestFrameReader_DecodesMultiplexedStream(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(multiplexFrame(StreamStdout, "hello from stdout\n"))
	buf.Write(multiplexFrame(StreamStderr, "oops\n"))

	reader := NewFrameReader(&buf)

	frame, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, StreamStdout, frame.Stream)
	assert.Equal(t, "hello from stdout\n", string(frame.Payload))

	frame, err = reader.Next()
	require.NoError(t, err)
	assert.Equal(t, StreamStderr, frame.Stream)
	assert.Equal(t, "oops\n", string(frame.Payload))

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReader_ZeroLengthFrame(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(multiplexFrame(StreamStdout, ""))
	buf.Write(multiplexFrame(StreamStdout, "after empty\n"))

	reader := NewFrameReader(&buf)

	frame, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, StreamStdout, frame.Stream)
	assert.Empty(t, frame.Payload)

	frame, err = reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "after empty\n", string(frame.Payload))
}

// a TTY container's logs are never framed at all — the daemon writes raw
// bytes straight through, so the first peek never looks like a multiplex
// header and the reader falls back to line-at-a-time plain mode.
func TestFrameReader_FallsBackToPlainForUnframedStream(t *testing.T) {
	reader := NewFrameReader(strings.NewReader("plain line one\nplain line two\n"))

	frame, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, StreamUnknown, frame.Stream)
	assert.Equal(t, "plain line one", string(frame.Payload))

	frame, err = reader.Next()
	require.NoError(t, err)
	assert.Equal(t, "plain line two", string(frame.Payload))

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

// a stream shorter than one header (e.g. a container that emits a single
// short line with no trailing newline) must not be mistaken for a truncated
// multiplex frame — it falls back to plain mode instead of erroring.
func TestFrameReader_ShortStreamFallsBackToPlain(t *testing.T) {
	reader := NewFrameReader(strings.NewReader("hi"))

	frame, err := reader.Next()
	require.NoError(t, err)
	assert.Equal(t, StreamUnknown, frame.Stream)
	assert.Equal(t, "hi", string(frame.Payload))

	_, err = reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestIsMultiplexHeader(t *testing.T) {
	good := make([]byte, frameHeaderSize)
	good[0] = byte(StreamStdout)
	assert.True(t, isMultiplexHeader(good))

	badKind := make([]byte, frameHeaderSize)
	badKind[0] = 9
	assert.False(t, isMultiplexHeader(badKind))

	badReserved := make([]byte, frameHeaderSize)
	badReserved[0] = byte(StreamStderr)
	badReserved[1] = 1
	assert.False(t, isMultiplexHeader(badReserved))

	assert.False(t, isMultiplexHeader([]byte{1, 0, 0}))
}
