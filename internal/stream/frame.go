// Package stream maintains the live event subscription: a STOMP session over
// a WebSocket, with per-topic subscriptions and automatic reconnection. The
// broker speaks plain STOMP 1.2 framing, one frame per WebSocket message.
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Frame commands used by the session.
const (
	cmdConnect     = "CONNECT"
	cmdConnected   = "CONNECTED"
	cmdSubscribe   = "SUBSCRIBE"
	cmdUnsubscribe = "UNSUBSCRIBE"
	cmdSend        = "SEND"
	cmdMessage     = "MESSAGE"
	cmdError       = "ERROR"
)

// ErrMalformedFrame indicates bytes that do not parse as a STOMP frame.
var ErrMalformedFrame = errors.New("stream: malformed stomp frame")

// Frame is one STOMP frame. A zero Command marks a heartbeat.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

// Heartbeat reports whether the frame is an empty keepalive.
func (f Frame) Heartbeat() bool {
	return f.Command == ""
}

var headerEscaper = strings.NewReplacer("\\", "\\\\", "\n", "\\n", ":", "\\c", "\r", "\\r")

var headerUnescaper = strings.NewReplacer("\\n", "\n", "\\c", ":", "\\r", "\r", "\\\\", "\\")

// encodeFrame renders a frame in wire form, NUL-terminated.
func encodeFrame(frame Frame) []byte {
	var buf bytes.Buffer
	buf.WriteString(frame.Command)
	buf.WriteByte('\n')
	for key, value := range frame.Headers {
		buf.WriteString(headerEscaper.Replace(key))
		buf.WriteByte(':')
		buf.WriteString(headerEscaper.Replace(value))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(frame.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// parseFrame decodes one wire frame. Bare newlines are heartbeats.
func parseFrame(raw []byte) (Frame, error) {
	raw = bytes.TrimSuffix(raw, []byte{0})
	if len(bytes.TrimSpace(raw)) == 0 {
		return Frame{}, nil
	}

	head, body, found := bytes.Cut(raw, []byte("\n\n"))
	if !found {
		return Frame{}, fmt.Errorf("%w: missing header terminator", ErrMalformedFrame)
	}

	lines := strings.Split(strings.TrimSuffix(string(head), "\r"), "\n")
	command := strings.TrimSpace(lines[0])
	if command == "" {
		return Frame{}, fmt.Errorf("%w: empty command", ErrMalformedFrame)
	}

	frame := Frame{Command: command, Headers: make(map[string]string, len(lines)-1), Body: body}
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return Frame{}, fmt.Errorf("%w: header %q", ErrMalformedFrame, line)
		}
		key = headerUnescaper.Replace(key)
		// Repeated headers keep the first occurrence.
		if _, seen := frame.Headers[key]; !seen {
			frame.Headers[key] = headerUnescaper.Replace(value)
		}
	}
	return frame, nil
}
