// internal/protocol/line_channel.go
package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"eload-service/pkg/driver"
)

// ErrReadTimeout is returned when the load stops sending before a reply is
// complete
var ErrReadTimeout = errors.New("timed out waiting for reply")

const readChunk = 256

// LineChannel frames a DeviceProtocol into newline terminated lines and
// implements driver.Link
type LineChannel struct {
	proto  DeviceProtocol
	logger *zap.Logger

	mutex        sync.Mutex
	buf          []byte
	linesWritten int64
	linesRead    int64
}

// NewLineChannel wraps a byte level protocol
func NewLineChannel(proto DeviceProtocol, logger *zap.Logger) *LineChannel {
	return &LineChannel{
		proto:  proto,
		logger: logger.With(zap.String("address", proto.Address())),
	}
}

// Open opens the underlying connection
func (lc *LineChannel) Open(ctx context.Context) error {
	return lc.proto.Open(ctx)
}

// Close closes the underlying connection and drops buffered input
func (lc *LineChannel) Close() error {
	lc.mutex.Lock()
	lc.buf = nil
	lc.mutex.Unlock()
	return lc.proto.Close()
}

// IsOpen returns whether the underlying connection is open
func (lc *LineChannel) IsOpen() bool {
	return lc.proto.IsOpen()
}

// Send writes line followed by "\n". Unread bytes left over from a previous
// exchange are dropped first so they cannot be taken for this reply.
func (lc *LineChannel) Send(ctx context.Context, line string) error {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	if len(lc.buf) > 0 {
		lc.logger.Debug("Dropping stale input", zap.ByteString("data", lc.buf))
		lc.buf = nil
	}

	if err := lc.proto.Write(ctx, []byte(line+"\n")); err != nil {
		return err
	}
	lc.linesWritten++
	return nil
}

// Receive reads exactly lines lines. "\r" is dropped and the lines are
// joined with "\n".
func (lc *LineChannel) Receive(ctx context.Context, lines int) (string, error) {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	if lines < 1 {
		lines = 1
	}

	out := make([]string, 0, lines)
	for len(out) < lines {
		if i := bytes.IndexByte(lc.buf, '\n'); i >= 0 {
			out = append(out, strings.ReplaceAll(string(lc.buf[:i]), "\r", ""))
			lc.buf = lc.buf[i+1:]
			continue
		}

		chunk, err := lc.proto.Read(ctx, readChunk)
		if err != nil {
			lc.buf = nil
			return "", err
		}
		if len(chunk) == 0 {
			lc.buf = nil
			return "", fmt.Errorf("%w: got %d of %d lines", ErrReadTimeout, len(out), lines)
		}
		lc.buf = append(lc.buf, chunk...)
	}

	lc.linesRead += int64(len(out))
	return strings.Join(out, "\n"), nil
}

// Stats combines the line counters with the connection statistics
func (lc *LineChannel) Stats() driver.LinkStats {
	ps := lc.proto.Stats()

	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	return driver.LinkStats{
		LinesWritten:   lc.linesWritten,
		LinesRead:      lc.linesRead,
		BytesWritten:   ps.BytesWritten,
		BytesRead:      ps.BytesRead,
		ErrorCount:     ps.ErrorCount,
		LastActivity:   ps.LastActivity,
		AverageLatency: ps.AverageLatency,
		IsConnected:    ps.IsConnected,
	}
}

// Ping checks the connection without waiting for a reply
func (lc *LineChannel) Ping(ctx context.Context) error {
	return lc.proto.Ping(ctx)
}

// Protocol returns the wrapped connection
func (lc *LineChannel) Protocol() DeviceProtocol {
	return lc.proto
}
