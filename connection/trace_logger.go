package connection

import (
	"compress/gzip"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
)

var (
	errWriteFailed error = errors.New("trace logger shut down due to write failure")

	outgoingTag  = []byte("==> ")
	incomingTag  = []byte("<== ")
	rewrittenTag = []byte("=>> ")
)

// Records every chunk passing through the proxy, one line per chunk, prefixed with its direction:
//
//	==>  client to chat server, as received
//	=>>  client to chat server, after rewriting
//	<==  chat server to client
//
// Shared by all sessions. After the first failed write it stops for good.
type TraceLogger struct {
	mu          sync.Mutex
	writer      io.WriteCloser
	gzip        *gzip.Writer
	writeFailed atomic.Bool
}

// Opens (appending) the trace file. With gzipLevel between 1 and 9 the output is gzip compressed.
func NewTraceLogger(outputFile string, gzipLevel int) (*TraceLogger, error) {
	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return newTraceLogger(f, gzipLevel)
}

func newTraceLogger(w io.WriteCloser, gzipLevel int) (*TraceLogger, error) {
	if gzipLevel < gzip.BestSpeed || gzipLevel > gzip.BestCompression {
		return &TraceLogger{writer: w}, nil
	}
	g, err := gzip.NewWriterLevel(w, gzipLevel)
	if err != nil {
		w.Close()
		return nil, err
	}
	return &TraceLogger{writer: w, gzip: g}, nil
}

func (x *TraceLogger) OnOutgoing(sessionId uint32, data []byte) error {
	return x.write(sessionId, outgoingTag, data)
}

func (x *TraceLogger) OnRewritten(sessionId uint32, data []byte) error {
	return x.write(sessionId, rewrittenTag, data)
}

func (x *TraceLogger) OnIncoming(sessionId uint32, data []byte) error {
	return x.write(sessionId, incomingTag, data)
}

func (x *TraceLogger) write(sessionId uint32, tag []byte, data []byte) error {
	if x == nil {
		return nil
	}
	if x.writeFailed.Load() {
		return errWriteFailed
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	line := make([]byte, 0, len(data)+16)
	line = append(line, '[')
	line = strconv.AppendUint(line, uint64(sessionId), 10)
	line = append(line, ']', ' ')
	line = append(line, tag...)
	line = append(line, data...)
	line = append(line, '\n')

	var out io.Writer = x.writer
	if x.gzip != nil {
		out = x.gzip
	}
	if _, err := out.Write(line); err != nil {
		// Writes typically fail due to disk space constraints.
		// After writes fail, do not attempt again.
		if x.writeFailed.CompareAndSwap(false, true) {
			log.Println("TraceLogger: write failed, no more traces will be written. Caused by: " + err.Error())
		}
		return err
	}
	return nil
}

func (x *TraceLogger) Close() error {
	if x == nil {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.gzip != nil {
		if err := x.gzip.Close(); err != nil {
			x.writer.Close()
			return err
		}
	}
	return x.writer.Close()
}
