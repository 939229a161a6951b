package connection

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type bufferCloser struct {
	bytes.Buffer
}

func (b *bufferCloser) Close() error { return nil }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (failingWriter) Close() error              { return nil }

func TestTraceLoggerLines(t *testing.T) {
	buf := new(bufferCloser)
	logger, err := newTraceLogger(buf, 0)
	require.NoError(t, err)

	require.NoError(t, logger.OnOutgoing(3, []byte("<presence/>")))
	require.NoError(t, logger.OnRewritten(3, []byte("<presence></presence>")))
	require.NoError(t, logger.OnIncoming(4, []byte("<iq/>")))
	require.Equal(t, "[3] ==> <presence/>\n[3] =>> <presence></presence>\n[4] <== <iq/>\n", buf.String())
}

func TestTraceLoggerGzip(t *testing.T) {
	buf := new(bufferCloser)
	logger, err := newTraceLogger(buf, 4)
	require.NoError(t, err)
	require.NoError(t, logger.OnIncoming(1, []byte("<iq/>")))
	require.NoError(t, logger.Close())

	r, err := gzip.NewReader(&buf.Buffer)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "[1] <== <iq/>\n", string(data))
}

func TestTraceLoggerStopsAfterFailure(t *testing.T) {
	logger, err := newTraceLogger(failingWriter{}, 0)
	require.NoError(t, err)
	require.Error(t, logger.OnIncoming(1, []byte("a")))
	require.ErrorIs(t, logger.OnIncoming(1, []byte("b")), errWriteFailed)
}

func TestNilTraceLogger(t *testing.T) {
	var logger *TraceLogger
	require.NoError(t, logger.OnOutgoing(1, []byte("a")))
	require.NoError(t, logger.Close())
}

func TestNewTraceLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace", "xmpp.log")
	logger, err := NewTraceLogger(path, 0)
	require.NoError(t, err)
	require.NoError(t, logger.OnOutgoing(9, []byte("<x/>")))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[9] ==> <x/>\n", string(data))
}
