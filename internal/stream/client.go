package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultDialTimeout = 15 * time.Second
)

var errMissingURL = errors.New("stream: broker url is required")

// Handler receives each MESSAGE frame's destination and body. Handlers must
// tolerate malformed bodies; a bad payload never tears down the session.
type Handler func(topic string, body []byte)

// ClientConfig describes the broker session.
type ClientConfig struct {
	// URL is the WebSocket endpoint, ws:// or wss://.
	URL string
	// AuthToken, when set, travels in the CONNECT frame and dial headers.
	AuthToken string
	Handler   Handler
	Logger    *zap.Logger
	// MinBackoff and MaxBackoff bound the reconnect delay. Zero selects
	// defaults.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Client is a reconnecting STOMP subscriber. Subscriptions registered while
// disconnected are replayed after every successful connect, so a reconnect
// is invisible to the consumer apart from the gap in events.
type Client struct {
	url        string
	token      string
	handler    Handler
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	topics  map[string]string
	nextSub int
}

// NewClient validates the configuration and returns a disconnected client.
// Run establishes and maintains the session.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errMissingURL
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("stream: handler required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	minBackoff := cfg.MinBackoff
	if minBackoff <= 0 {
		minBackoff = defaultMinBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < minBackoff {
		maxBackoff = defaultMaxBackoff
	}
	return &Client{
		url:        cfg.URL,
		token:      cfg.AuthToken,
		handler:    cfg.Handler,
		logger:     logger,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		topics:     make(map[string]string),
	}, nil
}

// Subscribe registers a topic. When connected the SUBSCRIBE frame goes out
// immediately; either way the topic is replayed on every reconnect.
func (c *Client) Subscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[topic]; ok {
		return nil
	}
	c.nextSub++
	id := "sub-" + strconv.Itoa(c.nextSub)
	c.topics[topic] = id
	if c.conn == nil {
		return nil
	}
	return c.writeFrame(Frame{
		Command: cmdSubscribe,
		Headers: map[string]string{"id": id, "destination": topic, "ack": "auto"},
	})
}

// UnsubscribeAll drops every subscription, on the wire and in the replay set.
// Called before re-scoping to a new identity so no event from the old scope
// leaks into the new one.
func (c *Client) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, id := range c.topics {
		if c.conn != nil {
			if err := c.writeFrame(Frame{Command: cmdUnsubscribe, Headers: map[string]string{"id": id}}); err != nil {
				c.logger.Warn("unsubscribe failed", zap.String("topic", topic), zap.Error(err))
			}
		}
		delete(c.topics, topic)
	}
}

// Send publishes a frame to an application destination.
func (c *Client) Send(destination string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("stream: not connected")
	}
	return c.writeFrame(Frame{
		Command: cmdSend,
		Headers: map[string]string{"destination": destination, "content-type": "application/json"},
		Body:    body,
	})
}

// Run maintains the session until the context ends: dial, STOMP handshake,
// subscription replay, read loop, then reconnect with doubling backoff.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.minBackoff
	for {
		err := c.runSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("broker session ended", zap.Error(err), zap.Duration("retryIn", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Client) runSession(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: defaultDialTimeout}
	headers := make(map[string][]string)
	if c.token != "" {
		headers["Authorization"] = []string{"Bearer " + c.token}
	}
	conn, _, err := dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		return fmt.Errorf("stream: dial: %w", err)
	}
	defer conn.Close()

	if err := c.handshake(ctx, conn); err != nil {
		return err
	}

	// Publishing the conn and replaying the registered topics happen under
	// one hold of c.mu: the moment another goroutine's Subscribe sees the
	// live conn it writes through writeFrame, and the websocket allows only
	// one writer at a time.
	c.mu.Lock()
	c.conn = conn
	var replayErr error
	for topic, id := range c.topics {
		frame := Frame{
			Command: cmdSubscribe,
			Headers: map[string]string{"id": id, "destination": topic, "ack": "auto"},
		}
		if err := c.writeFrame(frame); err != nil {
			replayErr = fmt.Errorf("stream: resubscribe %s: %w", topic, err)
			break
		}
	}
	topicCount := len(c.topics)
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()
	if replayErr != nil {
		return replayErr
	}
	c.logger.Info("broker session established", zap.Int("topics", topicCount))

	return c.readLoop(ctx, conn)
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	headers := map[string]string{
		"accept-version": "1.2,1.1",
		"heart-beat":     "10000,10000",
	}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}
	if err := conn.WriteMessage(websocket.TextMessage, encodeFrame(Frame{Command: cmdConnect, Headers: headers})); err != nil {
		return fmt.Errorf("stream: connect frame: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(defaultDialTimeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream: awaiting CONNECTED: %w", err)
		}
		frame, err := parseFrame(raw)
		if err != nil || frame.Heartbeat() {
			continue
		}
		switch frame.Command {
		case cmdConnected:
			return nil
		case cmdError:
			return fmt.Errorf("stream: broker rejected connect: %s", frame.Headers["message"])
		}
	}
}

// readLoop dispatches MESSAGE frames. Unparseable frames are skipped; the
// framing is per WebSocket message, so one bad frame cannot desync the rest.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream: read: %w", err)
		}
		frame, err := parseFrame(raw)
		if err != nil {
			c.logger.Warn("skipping malformed frame", zap.Error(err))
			continue
		}
		if frame.Heartbeat() {
			continue
		}
		switch frame.Command {
		case cmdMessage:
			topic := frame.Headers["destination"]
			if topic == "" {
				c.logger.Warn("message frame without destination")
				continue
			}
			c.handler(topic, frame.Body)
		case cmdError:
			return fmt.Errorf("stream: broker error: %s", frame.Headers["message"])
		}
	}
}

// writeFrame sends a frame on the live connection. Callers hold c.mu.
func (c *Client) writeFrame(frame Frame) error {
	return c.conn.WriteMessage(websocket.TextMessage, encodeFrame(frame))
}
