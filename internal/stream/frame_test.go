package stream

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	original := Frame{
		Command: cmdSend,
		Headers: map[string]string{"destination": "/topic/posts", "content-type": "application/json"},
		Body:    []byte(`{"id":"p1"}`),
	}

	parsed, err := parseFrame(encodeFrame(original))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Command != original.Command {
		t.Fatalf("command %q", parsed.Command)
	}
	if parsed.Headers["destination"] != "/topic/posts" {
		t.Fatalf("destination %q", parsed.Headers["destination"])
	}
	if !bytes.Equal(parsed.Body, original.Body) {
		t.Fatalf("body %q", parsed.Body)
	}
}

func TestParseFrameHeartbeat(t *testing.T) {
	for _, raw := range []string{"\n", "\r\n", ""} {
		frame, err := parseFrame([]byte(raw))
		if err != nil {
			t.Fatalf("heartbeat %q: %v", raw, err)
		}
		if !frame.Heartbeat() {
			t.Fatalf("expected heartbeat for %q", raw)
		}
	}
}

func TestParseFrameHeaderEscaping(t *testing.T) {
	original := Frame{
		Command: cmdMessage,
		Headers: map[string]string{"destination": "/topic/odd:name"},
	}
	parsed, err := parseFrame(encodeFrame(original))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Headers["destination"] != "/topic/odd:name" {
		t.Fatalf("colon not escaped through roundtrip: %q", parsed.Headers["destination"])
	}
}

func TestParseFrameMalformed(t *testing.T) {
	for _, raw := range []string{"MESSAGE\nno-terminator", "MESSAGE\nbadheader\n\nbody"} {
		if _, err := parseFrame([]byte(raw)); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("expected ErrMalformedFrame for %q, got %v", raw, err)
		}
	}
}

func TestParseFrameRepeatedHeaderKeepsFirst(t *testing.T) {
	raw := []byte("MESSAGE\ndestination:/topic/a\ndestination:/topic/b\n\n\x00")
	frame, err := parseFrame(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if frame.Headers["destination"] != "/topic/a" {
		t.Fatalf("repeated header should keep first value, got %q", frame.Headers["destination"])
	}
}
