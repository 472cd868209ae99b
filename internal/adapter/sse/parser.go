// Package sse provides a Server-Sent Events connector for stream.Source.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xiaot623/gogo/livesession/internal/adapter/stream"
	"github.com/xiaot623/gogo/livesession/internal/logger"
)

// DefaultEventName is used when a block carries no event field.
const DefaultEventName = "message"

// maxLineSize bounds one field line. An event with a longer line is
// dropped and reading continues with the next event.
const maxLineSize = 1024 * 1024

// Decoder reads events from an SSE body.
type Decoder struct {
	r           *bufio.Reader
	lastEventID string
	retry       time.Duration
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next complete event, or io.EOF at the end of the stream.
// A block not terminated by a blank line before EOF is discarded.
func (d *Decoder) Next() (stream.RawEvent, error) {
	var name string
	var data strings.Builder
	hasData := false
	oversized := false

	for {
		line, tooLong, err := d.readLine()
		if err != nil {
			return stream.RawEvent{}, err
		}
		if tooLong {
			oversized = true
			continue
		}

		// Empty line marks end of event
		if line == "" {
			if oversized {
				logger.Warnf("sse: dropping event %q with a line over %d bytes", name, maxLineSize)
			} else if hasData {
				return d.event(name, data.String()), nil
			}
			name = ""
			data.Reset()
			hasData = false
			oversized = false
			continue
		}

		// Comments keep the connection alive
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastEventID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				d.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

// readLine returns one line without its terminator. Lines longer than
// maxLineSize are consumed and reported as tooLong. A line cut off by EOF
// is never returned.
func (d *Decoder) readLine() (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxLineSize+2 {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		break
	}
	if tooLong {
		return "", true, nil
	}
	buf = bytes.TrimSuffix(buf, []byte("\n"))
	buf = bytes.TrimSuffix(buf, []byte("\r"))
	if len(buf) > maxLineSize {
		return "", true, nil
	}
	return string(buf), false, nil
}

// LastEventID returns the most recent id field seen.
func (d *Decoder) LastEventID() string {
	return d.lastEventID
}

func (d *Decoder) event(name, data string) stream.RawEvent {
	if name == "" {
		name = DefaultEventName
	}
	return stream.RawEvent{
		Name:  name,
		Data:  data,
		ID:    d.lastEventID,
		Retry: d.retry,
	}
}
